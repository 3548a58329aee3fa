package aggregator

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oakbyte/labpanel/internal/backend"
)

const (
	// DefaultStaleThreshold is how many consecutive poll failures a
	// backend gets before its resources are downgraded to "unknown".
	DefaultStaleThreshold = 3

	// pokeDelay is the shortened wait used after a dispatched action, so
	// the inventory reflects the new state without a full interval.
	pokeDelay = 1 * time.Second

	// minPollTimeout bounds a single poll even when intervals are short.
	minPollTimeout = 5 * time.Second
)

// backendState is the per-backend poll loop state. The client and interval
// are swapped atomically on reconfiguration; a poll that already started
// keeps the client it loaded.
type backendState struct {
	name     backend.Name
	client   atomic.Value // backend.Client
	interval atomic.Int64 // nanoseconds
	poke     chan struct{}

	// Owned by the poll loop, guarded by the aggregator mutex only when
	// copied into a snapshot.
	resources []backend.Resource
	health    BackendHealth
}

// Aggregator polls both backends on independent schedules and publishes a
// merged, versioned, immutable inventory snapshot.
type Aggregator struct {
	staleThreshold int

	mu       sync.Mutex
	backends map[backend.Name]*backendState
	version  uint64
	current  atomic.Pointer[Snapshot]

	subMu  sync.Mutex
	subs   map[int]chan *Snapshot
	nextID int

	wg sync.WaitGroup
}

// Option configures the aggregator.
type Option func(*Aggregator)

// WithStaleThreshold overrides the consecutive-failure count after which a
// backend's resources flip to "unknown".
func WithStaleThreshold(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.staleThreshold = n
		}
	}
}

// New creates an aggregator with no backends registered yet.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		staleThreshold: DefaultStaleThreshold,
		backends:       make(map[backend.Name]*backendState),
		subs:           make(map[int]chan *Snapshot),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.current.Store(&Snapshot{Backends: map[backend.Name]BackendHealth{}})
	return a
}

// Register adds a backend before Run is called. A nil client is allowed:
// the loop idles until ReplaceClient supplies one (unconfigured mode).
func (a *Aggregator) Register(name backend.Name, client backend.Client, interval time.Duration) {
	st := &backendState{
		name: name,
		poke: make(chan struct{}, 1),
	}
	if client != nil {
		st.client.Store(client)
	}
	st.interval.Store(int64(interval))
	a.mu.Lock()
	a.backends[name] = st
	a.mu.Unlock()
}

// ReplaceClient atomically swaps a backend's client and interval, used when
// the operator reconfigures. The old client is dropped, not mutated; an
// in-flight poll completes against the client it started with.
func (a *Aggregator) ReplaceClient(name backend.Name, client backend.Client, interval time.Duration) {
	a.mu.Lock()
	st, ok := a.backends[name]
	a.mu.Unlock()
	if !ok {
		return
	}
	if client != nil {
		st.client.Store(client)
	}
	if interval > 0 {
		st.interval.Store(int64(interval))
	}
	a.Poke(name)
}

// Run starts one poll loop per registered backend and blocks until ctx is
// cancelled and the loops have drained.
func (a *Aggregator) Run(ctx context.Context) {
	a.mu.Lock()
	states := make([]*backendState, 0, len(a.backends))
	for _, st := range a.backends {
		states = append(states, st)
	}
	a.mu.Unlock()

	for _, st := range states {
		a.wg.Add(1)
		go a.pollLoop(ctx, st)
	}
	a.wg.Wait()
}

// Current returns the latest published snapshot. Non-blocking.
func (a *Aggregator) Current() *Snapshot {
	return a.current.Load()
}

// Subscribe returns a channel receiving each published snapshot and a
// cancel function. Delivery is latest-wins: a slow reader only ever lags by
// one snapshot, it never blocks the poll loops.
func (a *Aggregator) Subscribe() (<-chan *Snapshot, func()) {
	ch := make(chan *Snapshot, 1)
	a.subMu.Lock()
	id := a.nextID
	a.nextID++
	a.subs[id] = ch
	a.subMu.Unlock()

	cancel := func() {
		a.subMu.Lock()
		delete(a.subs, id)
		a.subMu.Unlock()
	}
	return ch, cancel
}

// Poke asks the named backend to poll again after a short delay instead of
// waiting out its full interval. Coalesces if a poke is already pending.
func (a *Aggregator) Poke(name backend.Name) {
	a.mu.Lock()
	st, ok := a.backends[name]
	a.mu.Unlock()
	if !ok {
		return
	}
	select {
	case st.poke <- struct{}{}:
	default:
	}
}

// pollLoop runs polls for one backend strictly sequentially. A slow or
// unreachable backend only ever delays itself.
func (a *Aggregator) pollLoop(ctx context.Context, st *backendState) {
	defer a.wg.Done()

	// First poll immediately so the panel is populated at startup.
	a.pollOnce(ctx, st)

	for {
		wait := time.Duration(st.interval.Load())
		select {
		case <-ctx.Done():
			return
		case <-st.poke:
			select {
			case <-ctx.Done():
				return
			case <-time.After(pokeDelay):
			}
		case <-time.After(wait):
		}
		a.pollOnce(ctx, st)
	}
}

func (a *Aggregator) pollOnce(ctx context.Context, st *backendState) {
	clientVal := st.client.Load()
	if clientVal == nil {
		// No client yet (unconfigured mode). Publish the backend as
		// unhealthy once so health reads still account for it.
		a.mu.Lock()
		if st.health.LastError == "" {
			st.health.LastError = "backend not configured"
			st.health.Healthy = false
			snap := a.publishLocked(time.Now())
			a.mu.Unlock()
			a.notify(snap)
			return
		}
		a.mu.Unlock()
		return
	}
	client := clientVal.(backend.Client)

	timeout := time.Duration(st.interval.Load())
	if timeout < minPollTimeout {
		timeout = minPollTimeout
	}
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	resources, err := client.ListResources(pollCtx)
	cancel()

	if ctx.Err() != nil {
		return
	}

	now := time.Now()
	a.mu.Lock()
	st.health.LastPoll = now
	if err != nil {
		st.health.ConsecutiveFailures++
		st.health.LastError = err.Error()
		st.health.Healthy = false
		degraded := st.health.ConsecutiveFailures >= a.staleThreshold
		for i := range st.resources {
			st.resources[i].Stale = true
			if degraded {
				st.resources[i].Status = backend.StatusUnknown
			}
		}
		log.Printf("[aggregator] %s poll failed (%d consecutive): %v", st.name, st.health.ConsecutiveFailures, err)
	} else {
		st.health.ConsecutiveFailures = 0
		st.health.LastError = ""
		st.health.LastSuccess = now
		st.health.Healthy = true
		st.resources = resources
	}
	snap := a.publishLocked(now)
	a.mu.Unlock()

	a.notify(snap)
}

// publishLocked builds and stores a fresh snapshot. Callers hold a.mu.
func (a *Aggregator) publishLocked(now time.Time) *Snapshot {
	slices := make(map[backend.Name][]backend.Resource, len(a.backends))
	healths := make(map[backend.Name]BackendHealth, len(a.backends))
	for name, st := range a.backends {
		// Copy so later poll cycles cannot mutate a published snapshot.
		rs := make([]backend.Resource, len(st.resources))
		copy(rs, st.resources)
		slices[name] = rs
		healths[name] = st.health
	}

	a.version++
	snap := &Snapshot{
		Version:   a.version,
		Taken:     now,
		Resources: mergeSorted(slices),
		Backends:  healths,
	}
	a.current.Store(snap)
	return snap
}

func (a *Aggregator) notify(snap *Snapshot) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	for _, ch := range a.subs {
		select {
		case ch <- snap:
		default:
			// Replace the undelivered snapshot with the newer one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
