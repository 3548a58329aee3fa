package backend

import (
	"context"
	"fmt"
	"time"
)

// Name identifies which backend a resource belongs to.
type Name string

const (
	PVE    Name = "pve"
	Docker Name = "docker"
)

// Resource kinds.
const (
	KindVM        = "vm"
	KindLXC       = "lxc"
	KindContainer = "container"
)

// Normalized run states. A resource whose backend has been failing past the
// staleness threshold is reported as StatusUnknown, never as a stale
// "running".
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
	StatusPaused  = "paused"
	StatusUnknown = "unknown"
)

// Verb is a lifecycle action. Stop always means the graceful form; forced
// power-off is never issued without a separate explicit request.
type Verb string

const (
	VerbStart   Verb = "start"
	VerbStop    Verb = "stop"
	VerbRestart Verb = "restart"
)

// ParseVerb validates a user-supplied verb string.
func ParseVerb(s string) (Verb, error) {
	switch Verb(s) {
	case VerbStart, VerbStop, VerbRestart:
		return Verb(s), nil
	}
	return "", fmt.Errorf("unknown verb %q (want start, stop, or restart)", s)
}

// Resource is one monitored unit, normalized across backends. IDs are unique
// within their backend namespace only; identity is the (Backend, ID) pair.
type Resource struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	Name     string    `json:"name"`
	Status   string    `json:"status"`
	Backend  Name      `json:"backend"`
	Stale    bool      `json:"stale,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

// Client is the contract both backend clients implement. PerformAction
// returns once the backend has accepted the request; reaching the target
// state is observed by subsequent polls, not by the client.
type Client interface {
	ListResources(ctx context.Context) ([]Resource, error)
	PerformAction(ctx context.Context, id string, verb Verb) error
}
