package proxmox

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oakbyte/labpanel/internal/backend"
)

// Resource IDs are "node/qemu/<vmid>" or "node/lxc/<vmid>" so that actions
// can be routed back to the owning node without extra client state.

type nodeEntry struct {
	Node   string `json:"node"`
	Status string `json:"status"`
}

type guestEntry struct {
	VMID   int    `json:"vmid"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// ListResources lists all VMs and LXC containers across every node.
func (c *Client) ListResources(ctx context.Context) ([]backend.Resource, error) {
	var nodes []nodeEntry
	if err := c.doRequest(ctx, "GET", "/nodes", nil, &nodes); err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}

	now := time.Now()
	var resources []backend.Resource
	for _, n := range nodes {
		if n.Status != "online" {
			log.Printf("[proxmox] skipping node %s (status %s)", n.Node, n.Status)
			continue
		}
		for _, guestType := range []string{"qemu", "lxc"} {
			var guests []guestEntry
			path := fmt.Sprintf("/nodes/%s/%s", n.Node, guestType)
			if err := c.doRequest(ctx, "GET", path, nil, &guests); err != nil {
				return nil, fmt.Errorf("listing %s on %s: %w", guestType, n.Node, err)
			}
			for _, g := range guests {
				resources = append(resources, backend.Resource{
					ID:       fmt.Sprintf("%s/%s/%d", n.Node, guestType, g.VMID),
					Kind:     guestKind(guestType),
					Name:     guestName(g),
					Status:   normalizeStatus(g.Status),
					Backend:  backend.PVE,
					LastSeen: now,
				})
			}
		}
	}

	sort.Slice(resources, func(i, j int) bool { return resources[i].ID < resources[j].ID })
	return resources, nil
}

// PerformAction issues a power action against a VM or LXC container. The
// returned error is nil as soon as Proxmox acknowledges the task (actions
// are asynchronous server-side); completion is observed by later polls.
// Stop maps to the graceful shutdown endpoint; the forced stop endpoint is
// only reachable through StopForced and is never chosen implicitly.
func (c *Client) PerformAction(ctx context.Context, id string, verb backend.Verb) error {
	node, guestType, vmid, err := parseResourceID(id)
	if err != nil {
		return err
	}

	var endpoint string
	switch verb {
	case backend.VerbStart:
		endpoint = "start"
	case backend.VerbStop:
		endpoint = "shutdown"
	case backend.VerbRestart:
		endpoint = "reboot"
	default:
		return fmt.Errorf("unsupported verb %q", verb)
	}

	return c.postStatus(ctx, node, guestType, vmid, endpoint, nil)
}

// StopForced issues a hard power-off. Separate from PerformAction so the
// caller must ask for it explicitly.
func (c *Client) StopForced(ctx context.Context, id string) error {
	node, guestType, vmid, err := parseResourceID(id)
	if err != nil {
		return err
	}
	return c.postStatus(ctx, node, guestType, vmid, "stop", nil)
}

func (c *Client) postStatus(ctx context.Context, node, guestType string, vmid int, endpoint string, params url.Values) error {
	path := fmt.Sprintf("/nodes/%s/%s/%d/status/%s", node, guestType, vmid, endpoint)
	var upid string
	if err := c.doRequest(ctx, "POST", path, params, &upid); err != nil {
		return fmt.Errorf("%s %s/%d: %w", endpoint, guestType, vmid, err)
	}
	log.Printf("[proxmox] %s %s/%s/%d accepted (task %s)", endpoint, node, guestType, vmid, upid)
	return nil
}

func parseResourceID(id string) (node, guestType string, vmid int, err error) {
	parts := strings.Split(id, "/")
	if len(parts) != 3 || (parts[1] != "qemu" && parts[1] != "lxc") {
		return "", "", 0, fmt.Errorf("malformed PVE resource id %q", id)
	}
	vmid, err = strconv.Atoi(parts[2])
	if err != nil {
		return "", "", 0, fmt.Errorf("malformed PVE resource id %q: %w", id, err)
	}
	return parts[0], parts[1], vmid, nil
}

func guestKind(guestType string) string {
	if guestType == "lxc" {
		return backend.KindLXC
	}
	return backend.KindVM
}

func guestName(g guestEntry) string {
	if g.Name != "" {
		return g.Name
	}
	return strconv.Itoa(g.VMID)
}

// normalizeStatus maps Proxmox guest states onto the shared status set.
func normalizeStatus(s string) string {
	switch s {
	case "running":
		return backend.StatusRunning
	case "stopped":
		return backend.StatusStopped
	case "paused", "suspended":
		return backend.StatusPaused
	default:
		return backend.StatusUnknown
	}
}
