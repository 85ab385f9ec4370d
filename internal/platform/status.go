package platform

import "fmt"

type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	default:
		return "idle"
	}
}

// Label is the short form shown next to the run counters.
func (s Status) Label() string {
	switch s {
	case StatusRunning:
		return "TRAINING"
	case StatusCompleted:
		return "COMPLETE"
	default:
		return "IDLE"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StatusIdle
	case "running":
		*s = StatusRunning
	case "completed":
		*s = StatusCompleted
	default:
		return fmt.Errorf("unknown status %q", string(text))
	}
	return nil
}
