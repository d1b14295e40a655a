package session

// Phase is the recording session state. Exactly one value is live at a
// time, owned by Lifecycle; other components only read it.
type Phase int

// Session phases, in the order a healthy session passes through them.
const (
	PhaseIdle Phase = iota
	PhaseWaiting
	PhaseActive
	PhaseProcessing
	PhaseFinished
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseWaiting:
		return "waiting"
	case PhaseActive:
		return "active"
	case PhaseProcessing:
		return "processing"
	case PhaseFinished:
		return "finished"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Recording reports whether audio capture is running in this phase.
func (p Phase) Recording() bool {
	return p == PhaseWaiting || p == PhaseActive
}
