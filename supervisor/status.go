package supervisor

// Status is the externally visible lifecycle state of a managed stream.
type Status int

const (
	Stopped Status = iota
	Starting
	Running
	Degraded
	CrashLoop
	Stopping
)

func (s Status) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Degraded:
		return "Degraded"
	case CrashLoop:
		return "CrashLoop"
	case Stopping:
		return "Stopping"
	}
	return "Unknown"
}
