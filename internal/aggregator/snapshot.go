package aggregator

import (
	"sort"
	"time"

	"github.com/oakbyte/labpanel/internal/backend"
)

// BackendHealth describes the poll state of one backend.
type BackendHealth struct {
	LastPoll            time.Time `json:"last_poll"`
	LastSuccess         time.Time `json:"last_success"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	Healthy             bool      `json:"healthy"`
}

// Snapshot is the merged inventory view. It is immutable once published:
// the aggregator builds a fresh value each cycle and swaps it in whole, so
// readers never observe a partially merged state.
type Snapshot struct {
	Version   uint64                         `json:"version"`
	Taken     time.Time                      `json:"taken"`
	Resources []backend.Resource             `json:"resources"`
	Backends  map[backend.Name]BackendHealth `json:"backends"`
}

// Lookup finds a resource by id within one backend's namespace.
func (s *Snapshot) Lookup(b backend.Name, id string) (backend.Resource, bool) {
	for _, r := range s.Resources {
		if r.Backend == b && r.ID == id {
			return r, true
		}
	}
	return backend.Resource{}, false
}

// Find locates a resource by id alone. Identity is (backend, id); ids are
// only unique per backend, so an ambiguous match reports ok=false.
func (s *Snapshot) Find(id string) (backend.Resource, bool) {
	var found backend.Resource
	matches := 0
	for _, r := range s.Resources {
		if r.ID == id {
			found = r
			matches++
		}
	}
	return found, matches == 1
}

// mergeSorted combines per-backend slices into one name-ordered list,
// tie-breaking on (backend, id) so the order is deterministic.
func mergeSorted(slices map[backend.Name][]backend.Resource) []backend.Resource {
	var out []backend.Resource
	for _, rs := range slices {
		out = append(out, rs...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		if out[i].Backend != out[j].Backend {
			return out[i].Backend < out[j].Backend
		}
		return out[i].ID < out[j].ID
	})
	return out
}
