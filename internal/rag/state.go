package rag

// State is the lifecycle stage of a session.
type State int

const (
	Uninitialized State = iota
	DocumentLoaded
	Indexed
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case DocumentLoaded:
		return "document_loaded"
	case Indexed:
		return "indexed"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}
