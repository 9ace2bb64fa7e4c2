package channels

import "context"

// Consume dispatches events to the given handlers until ctx is cancelled or
// the hub is closed. Either handler may be nil; events for a nil handler are
// still drained. When the hub is closed, events already buffered are
// dispatched before Consume returns.
func Consume(ctx context.Context, events *EventChannels, onTick func(TickEvent), onTransition func(TransitionEvent)) {
	for {
		select {
		case ev := <-events.Ticks:
			dispatchTick(onTick, ev)
		case ev := <-events.Transitions:
			dispatchTransition(onTransition, ev)
		case <-ctx.Done():
			return
		case <-events.Done():
			drain(events, onTick, onTransition)
			return
		}
	}
}

func drain(events *EventChannels, onTick func(TickEvent), onTransition func(TransitionEvent)) {
	for {
		select {
		case ev := <-events.Ticks:
			dispatchTick(onTick, ev)
		case ev := <-events.Transitions:
			dispatchTransition(onTransition, ev)
		default:
			return
		}
	}
}

func dispatchTick(fn func(TickEvent), ev TickEvent) {
	if fn != nil {
		fn(ev)
	}
}

func dispatchTransition(fn func(TransitionEvent), ev TransitionEvent) {
	if fn != nil {
		fn(ev)
	}
}
