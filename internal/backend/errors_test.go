package backend

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unreachable", &UnreachableError{Backend: PVE, Err: errors.New("dial tcp: timeout")}, true},
		{"socket unavailable", &SocketUnavailableError{Path: "/var/run/docker.sock", Err: errors.New("no such file")}, true},
		{"wrapped unreachable", fmt.Errorf("listing: %w", &UnreachableError{Backend: PVE, Err: errors.New("x")}), true},
		{"auth", &AuthError{Backend: PVE, Detail: "401"}, false},
		{"upstream", &UpstreamError{Backend: Docker, StatusCode: 500}, false},
		{"unknown resource", &UnknownResourceError{Backend: Docker, ID: "c1"}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&AuthError{Backend: PVE}, "auth"},
		{&UnreachableError{Backend: PVE, Err: errors.New("x")}, "unreachable"},
		{&SocketUnavailableError{Path: "/s"}, "socket_unavailable"},
		{&UpstreamError{Backend: PVE, StatusCode: 500}, "upstream"},
		{&UnknownResourceError{ID: "c1"}, "unknown_resource"},
		{errors.New("boom"), "error"},
		{fmt.Errorf("wrap: %w", &AuthError{Backend: PVE}), "auth"},
	}
	for _, tt := range tests {
		if got := Reason(tt.err); got != tt.want {
			t.Errorf("Reason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestParseVerb(t *testing.T) {
	for _, ok := range []string{"start", "stop", "restart"} {
		if _, err := ParseVerb(ok); err != nil {
			t.Errorf("ParseVerb(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "kill", "STOP", "pause"} {
		if _, err := ParseVerb(bad); err == nil {
			t.Errorf("ParseVerb(%q) should fail", bad)
		}
	}
}
