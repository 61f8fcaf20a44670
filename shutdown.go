package tcp

// ShutdownType selects which direction(s) of a connected socket to shut
// down. Shutting down a direction is a one-way, irreversible transition:
// there is no corresponding "re-open" operation.
type ShutdownType uint8

const (
	ShutdownReceive ShutdownType = 1 << iota
	ShutdownSend
	ShutdownBoth = ShutdownReceive | ShutdownSend
)

func (s ShutdownType) String() string {
	switch s {
	case ShutdownReceive:
		return "receive"
	case ShutdownSend:
		return "send"
	case ShutdownBoth:
		return "both"
	default:
		return "none"
	}
}
