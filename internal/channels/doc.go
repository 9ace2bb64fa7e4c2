// Package channels carries observations out of the polling core through
// typed, buffered Go channels.
//
// Poll loops and the supervisor publish without ever blocking: when a buffer
// is full the event is dropped and counted, so a slow consumer can never
// stall a poll tick or a state transition.
//
// Producers:
//
//	events.PublishTick(channels.TickEvent{...})
//	events.PublishTransition(channels.TransitionEvent{...})
//
// Consumers:
//
//	channels.Consume(ctx, events, onTick, onTransition)
//
// # Graceful Shutdown
//
// Close marks the hub done. Data channels are never closed, so a publisher
// racing with shutdown cannot panic; consumers exit on Done or ctx.
package channels
