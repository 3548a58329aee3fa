package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/oakbyte/labpanel/internal/backend"
)

// apiVersion is the minimum Engine API version carrying everything we use.
// Daemons negotiate down automatically for anything newer.
const apiVersion = "v1.24"

// ClientConfig holds the parameters for creating a new Client.
type ClientConfig struct {
	SocketPath string
	// StopGraceSeconds bounds how long a graceful stop waits before the
	// daemon falls back to SIGKILL.
	StopGraceSeconds int
}

// Client talks to the local Docker daemon over its unix control socket,
// using the same plain-HTTP style as the Proxmox client.
type Client struct {
	socketPath string
	stopGrace  int
	httpClient *http.Client
}

// NewClient creates a new Docker API client for the given socket path.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.SocketPath == "" {
		return nil, fmt.Errorf("docker socket path is required")
	}
	grace := cfg.StopGraceSeconds
	if grace <= 0 {
		grace = 10
	}

	socketPath := cfg.SocketPath
	return &Client{
		socketPath: socketPath,
		stopGrace:  grace,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}, nil
}

type containerEntry struct {
	ID    string   `json:"Id"`
	Names []string `json:"Names"`
	State string   `json:"State"`
}

// ListResources lists all containers, including stopped ones.
func (c *Client) ListResources(ctx context.Context) ([]backend.Resource, error) {
	var containers []containerEntry
	if err := c.doRequest(ctx, "GET", "/containers/json", url.Values{"all": {"1"}}, &containers); err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}

	now := time.Now()
	resources := make([]backend.Resource, 0, len(containers))
	for _, ct := range containers {
		resources = append(resources, backend.Resource{
			ID:       shortID(ct.ID),
			Kind:     backend.KindContainer,
			Name:     containerName(ct),
			Status:   normalizeState(ct.State),
			Backend:  backend.Docker,
			LastSeen: now,
		})
	}

	sort.Slice(resources, func(i, j int) bool { return resources[i].ID < resources[j].ID })
	return resources, nil
}

// PerformAction starts, stops, or restarts a container. Stop and restart
// send the graceful termination signal and give the process the configured
// grace period before the daemon force-kills it.
func (c *Client) PerformAction(ctx context.Context, id string, verb backend.Verb) error {
	var path string
	params := url.Values{}
	switch verb {
	case backend.VerbStart:
		path = "/containers/" + id + "/start"
	case backend.VerbStop:
		path = "/containers/" + id + "/stop"
		params.Set("t", strconv.Itoa(c.stopGrace))
	case backend.VerbRestart:
		path = "/containers/" + id + "/restart"
		params.Set("t", strconv.Itoa(c.stopGrace))
	default:
		return fmt.Errorf("unsupported verb %q", verb)
	}

	if err := c.doRequest(ctx, "POST", path, params, nil); err != nil {
		return fmt.Errorf("%s container %s: %w", verb, id, err)
	}
	return nil
}

// doRequest performs a request against the Engine API. Params always go in
// the query string; the endpoints we use take no request body.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, result interface{}) error {
	// The host is ignored by the unix-socket dialer but must be present
	// for a well-formed request line.
	reqURL := "http://docker/" + apiVersion + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return c.socketError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.socketError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(resp.StatusCode, path, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}

// socketError wraps a transport failure, checking the socket path so a
// missing or unreadable socket (a misconfigured mount, a stopped daemon)
// reports as the distinct SocketUnavailableError.
func (c *Client) socketError(err error) error {
	if _, statErr := os.Stat(c.socketPath); statErr != nil {
		return &backend.SocketUnavailableError{Path: c.socketPath, Err: statErr}
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, os.ErrPermission) {
		return &backend.SocketUnavailableError{Path: c.socketPath, Err: err}
	}
	return &backend.UnreachableError{Backend: backend.Docker, Err: err}
}

func classifyStatus(status int, path string, respBody []byte) error {
	var body struct {
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(respBody))
	if json.Unmarshal(respBody, &body) == nil && body.Message != "" {
		msg = body.Message
	}

	if status == http.StatusNotFound {
		return &backend.UnknownResourceError{Backend: backend.Docker, ID: pathContainerID(path)}
	}
	return &backend.UpstreamError{Backend: backend.Docker, StatusCode: status, Message: msg}
}

func pathContainerID(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 && parts[0] == "containers" {
		return parts[1]
	}
	return path
}

// shortID mirrors the 12-character id the docker CLI shows.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func containerName(ct containerEntry) string {
	if len(ct.Names) > 0 {
		return strings.TrimPrefix(ct.Names[0], "/")
	}
	return shortID(ct.ID)
}

// normalizeState maps Engine container states onto the shared status set.
func normalizeState(s string) string {
	switch s {
	case "running":
		return backend.StatusRunning
	case "paused":
		return backend.StatusPaused
	case "exited", "created", "dead":
		return backend.StatusStopped
	case "restarting":
		return backend.StatusRunning
	default:
		return backend.StatusUnknown
	}
}
