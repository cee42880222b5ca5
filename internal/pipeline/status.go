// Package pipeline manages the lifecycle of remote build/deploy pipelines:
// project search, application resolution, pipeline start with
// de-duplication, interval polling to completion, and out-of-band abort.
package pipeline

// Status is the remote pipeline state as reported by the platform.
type Status int

const (
	StatusPrepare Status = 1
	StatusDoing   Status = 2
	StatusDone    Status = 3
	StatusError   Status = 4
	StatusAbort   Status = 5
	StatusJump    Status = 6
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusError, StatusAbort, StatusJump:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusPrepare:
		return "prepare"
	case StatusDoing:
		return "doing"
	case StatusDone:
		return "done"
	case StatusError:
		return "error"
	case StatusAbort:
		return "abort"
	case StatusJump:
		return "jump"
	default:
		return "pending"
	}
}
