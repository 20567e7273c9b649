package engine

// State is a document's position in the annotation cycle.
type State int

const (
	Idle State = iota
	Debouncing
	Requesting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Debouncing:
		return "debouncing"
	case Requesting:
		return "requesting"
	default:
		return "unknown"
	}
}
