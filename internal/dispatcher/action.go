package dispatcher

import (
	"time"

	"github.com/oakbyte/labpanel/internal/backend"
)

// Action states. Terminal states are succeeded, failed, and timed_out;
// timed_out is kept distinct from failed because the backend may still
// complete the action server-side.
const (
	StateReceived  = "received"
	StateRouting   = "routing"
	StateExecuting = "executing"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
	StateTimedOut  = "timed_out"
)

// Action is one user-issued lifecycle request tracked from submission to a
// terminal outcome. It doubles as the poll handle the gateway hands back.
type Action struct {
	ID          string       `json:"id"`
	ResourceID  string       `json:"resource_id"`
	Backend     backend.Name `json:"backend"`
	Verb        backend.Verb `json:"verb"`
	State       string       `json:"state"`
	Attempts    int          `json:"attempts"`
	Reason      string       `json:"reason,omitempty"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// Terminal reports whether the action has reached a final state.
func (a *Action) Terminal() bool {
	switch a.State {
	case StateSucceeded, StateFailed, StateTimedOut:
		return true
	}
	return false
}
