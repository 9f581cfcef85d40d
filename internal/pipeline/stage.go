package pipeline

// Stage is the position of a run in the listing flow.
type Stage int

const (
	Idle Stage = iota
	Capturing
	Detecting
	AwaitingConfirmation
	Generating
	AwaitingEdits
	Uploading
	Persisting
	Done
	Errored
)

func (s Stage) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Capturing:
		return "Capturing"
	case Detecting:
		return "Detecting"
	case AwaitingConfirmation:
		return "AwaitingConfirmation"
	case Generating:
		return "Generating"
	case AwaitingEdits:
		return "AwaitingEdits"
	case Uploading:
		return "Uploading"
	case Persisting:
		return "Persisting"
	case Done:
		return "Done"
	case Errored:
		return "Errored"
	default:
		return "Unknown"
	}
}

// Working reports whether a remote call is in progress in s.
func (s Stage) Working() bool {
	switch s {
	case Capturing, Detecting, Generating, Uploading, Persisting:
		return true
	}
	return false
}
