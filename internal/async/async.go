// Package async defines the shared poll-driven lifecycle used by every
// long-running operation in the scraping pipeline. Operations are advanced
// by repeated Update calls from a single control goroutine and must never
// block that caller; once an operation reports Done or Error its state is
// frozen and further Update calls are no-ops.
package async

import "context"

// Status is the lifecycle state of a poll-driven operation.
type Status int

const (
	StatusInProgress Status = iota
	StatusDone
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "in_progress"
	case StatusDone:
		return "done"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status will never change again.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Operation is the contract the poll driver relies on. Update must be
// non-blocking and idempotent once the operation is terminal. Cancel
// releases any in-flight network resources; it is safe to call more
// than once.
type Operation interface {
	Update(ctx context.Context)
	Status() Status
	ErrorMessage() string
	Cancel()
}
