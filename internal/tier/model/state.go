package model

// State is the lifecycle position of an Entry:
//
//	Loading -> Ready -> Evicting -> Destroyed
//	Loading -> Destroyed (aborted fetch)
type State int32

const (
	Loading State = iota
	Ready
	Evicting
	Destroyed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Evicting:
		return "evicting"
	case Destroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}
