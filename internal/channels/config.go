package channels

// EventChannelsConfig configures buffer sizes for event channels
type EventChannelsConfig struct {
	TickBufferSize       int
	TransitionBufferSize int
}

const (
	defaultTickBufferSize       = 256
	defaultTransitionBufferSize = 32
)
