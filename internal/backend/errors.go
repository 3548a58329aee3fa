package backend

import (
	"errors"
	"fmt"
)

// AuthError means the backend rejected our credentials (401/403). Not
// transient: retrying cannot help, the operator has to reconfigure.
type AuthError struct {
	Backend Name
	Detail  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %s", e.Backend, e.Detail)
}

// UnreachableError means the backend could not be reached at all (dial, DNS
// or TLS failure). Transient by taxonomy.
type UnreachableError struct {
	Backend Name
	Err     error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("%s: unreachable: %v", e.Backend, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// SocketUnavailableError means the local control socket is missing or not
// readable. Kept distinct from UnreachableError because it usually indicates
// a misconfigured mount or a stopped daemon rather than a network fault.
type SocketUnavailableError struct {
	Path string
	Err  error
}

func (e *SocketUnavailableError) Error() string {
	return fmt.Sprintf("docker socket %s unavailable: %v", e.Path, e.Err)
}

func (e *SocketUnavailableError) Unwrap() error { return e.Err }

// UpstreamError is any other non-2xx response from a backend.
type UpstreamError struct {
	Backend    Name
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: upstream %d: %s", e.Backend, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: upstream %d", e.Backend, e.StatusCode)
}

// UnknownResourceError means the target id is not present in the current
// inventory (or the backend reported it gone). Typically stale UI state.
type UnknownResourceError struct {
	Backend Name
	ID      string
}

func (e *UnknownResourceError) Error() string {
	return fmt.Sprintf("%s: resource %q no longer exists", e.Backend, e.ID)
}

// IsTransient reports whether err is worth retrying: only infrastructure
// faults qualify, never credential or stale-state problems.
func IsTransient(err error) bool {
	var unreach *UnreachableError
	var sock *SocketUnavailableError
	return errors.As(err, &unreach) || errors.As(err, &sock)
}

// Reason returns the taxonomy label for an error, for API responses and
// logs. Unclassified errors report as "error".
func Reason(err error) string {
	var auth *AuthError
	var unreach *UnreachableError
	var sock *SocketUnavailableError
	var upstream *UpstreamError
	var unknown *UnknownResourceError
	switch {
	case errors.As(err, &auth):
		return "auth"
	case errors.As(err, &unknown):
		return "unknown_resource"
	case errors.As(err, &sock):
		return "socket_unavailable"
	case errors.As(err, &unreach):
		return "unreachable"
	case errors.As(err, &upstream):
		return "upstream"
	default:
		return "error"
	}
}
