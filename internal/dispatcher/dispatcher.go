package dispatcher

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/oakbyte/labpanel/internal/aggregator"
	"github.com/oakbyte/labpanel/internal/backend"
)

const (
	// attemptTimeout bounds one backend call. Past it the action resolves
	// timed_out: the request may still complete server-side, which is why
	// timed_out is reported separately from failed.
	attemptTimeout = 15 * time.Second

	// maxAttempts counts the initial try plus retries. Only transient
	// infrastructure errors are retried.
	maxAttempts = 3
)

// retryBackoff[i] is the wait before attempt i+2.
var retryBackoff = []time.Duration{1 * time.Second, 3 * time.Second}

// ActionStore records actions as they progress. *Store implements it; tests
// substitute an in-memory fake.
type ActionStore interface {
	Put(a *Action) error
	Get(id string) (*Action, error)
	Recent(limit int) ([]*Action, error)
}

// Dispatcher executes validated action requests exactly once each, with
// bounded retries, independent of the poll cycle. Requests run concurrently;
// nothing serializes them against the poll loops.
type Dispatcher struct {
	agg   *aggregator.Aggregator
	store ActionStore

	mu      sync.Mutex
	clients map[backend.Name]*atomic.Value

	wg sync.WaitGroup

	// sleep is swapped out by tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a dispatcher routing through the given aggregator's snapshot.
func New(agg *aggregator.Aggregator, store ActionStore) *Dispatcher {
	return &Dispatcher{
		agg:     agg,
		store:   store,
		clients: make(map[backend.Name]*atomic.Value),
		sleep:   sleepCtx,
	}
}

// Register sets the client used for a backend.
func (d *Dispatcher) Register(name backend.Name, client backend.Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.clients[name]
	if !ok {
		v = &atomic.Value{}
		d.clients[name] = v
	}
	if client != nil {
		v.Store(client)
	}
}

// ReplaceClient swaps a backend's client on reconfiguration. In-flight
// requests keep the client they resolved at execution start.
func (d *Dispatcher) ReplaceClient(name backend.Name, client backend.Client) {
	d.Register(name, client)
}

func (d *Dispatcher) client(name backend.Name) backend.Client {
	d.mu.Lock()
	v, ok := d.clients[name]
	d.mu.Unlock()
	if !ok {
		return nil
	}
	c, _ := v.Load().(backend.Client)
	return c
}

// Submit validates and routes a request, then executes it asynchronously.
// The returned Action is the handle the caller polls for the outcome. A
// routing failure (unknown resource, bad verb) is returned synchronously
// and nothing is dispatched.
func (d *Dispatcher) Submit(resourceID string, verb backend.Verb) (*Action, error) {
	now := time.Now()
	act := &Action{
		ID:         uuid.NewString(),
		ResourceID: resourceID,
		Verb:       verb,
		State:      StateReceived,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// Routing: the backend comes from the resource's entry in the current
	// snapshot. An id that is not in the snapshot is stale UI state; it is
	// rejected here, never dispatched.
	act.State = StateRouting
	res, ok := d.agg.Current().Find(resourceID)
	if !ok {
		err := &backend.UnknownResourceError{ID: resourceID}
		d.finish(act, StateFailed, err)
		return act, err
	}
	act.Backend = res.Backend

	client := d.client(res.Backend)
	if client == nil {
		err := &backend.UnreachableError{Backend: res.Backend, Err: errors.New("backend not configured")}
		d.finish(act, StateFailed, err)
		return act, err
	}

	act.State = StateExecuting
	d.record(act)

	// Copy the handle before the goroutine below starts mutating act.
	handle := *act

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.execute(act, client)
	}()

	return &handle, nil
}

// execute runs the attempt/retry loop to a terminal state.
func (d *Dispatcher) execute(act *Action, client backend.Client) {
	ctx := context.Background()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		act.Attempts = attempt

		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		err := client.PerformAction(attemptCtx, act.ResourceID, act.Verb)
		cancel()

		switch {
		case err == nil:
			d.finish(act, StateSucceeded, nil)
			return

		case errors.Is(err, context.DeadlineExceeded):
			d.finish(act, StateTimedOut, err)
			return

		case backend.IsTransient(err) && attempt < maxAttempts:
			wait := retryBackoff[attempt-1]
			log.Printf("[dispatch] %s %s on %s: transient failure (attempt %d/%d), retrying in %s: %v",
				act.Verb, act.ResourceID, act.Backend, attempt, maxAttempts, wait, err)
			if d.sleep(ctx, wait) != nil {
				d.finish(act, StateFailed, err)
				return
			}

		default:
			// Auth and stale-state errors are configuration problems,
			// not faults worth retrying.
			d.finish(act, StateFailed, err)
			return
		}
	}
}

// finish records a terminal outcome and pokes the aggregator so the next
// poll of the affected backend happens promptly.
func (d *Dispatcher) finish(act *Action, state string, err error) {
	now := time.Now()
	act.State = state
	act.UpdatedAt = now
	act.CompletedAt = &now
	if err != nil {
		act.Error = err.Error()
		act.Reason = backend.Reason(err)
		if state == StateTimedOut {
			act.Reason = "timed_out"
		}
		log.Printf("[dispatch] %s %s on %s: %s after %d attempt(s): %v",
			act.Verb, act.ResourceID, act.Backend, state, act.Attempts, err)
	} else {
		log.Printf("[dispatch] %s %s on %s: %s after %d attempt(s)",
			act.Verb, act.ResourceID, act.Backend, state, act.Attempts)
	}
	d.record(act)
	if act.Backend != "" {
		d.agg.Poke(act.Backend)
	}
}

func (d *Dispatcher) record(act *Action) {
	if d.store == nil {
		return
	}
	cp := *act
	if err := d.store.Put(&cp); err != nil {
		log.Printf("[dispatch] recording action %s: %v", act.ID, err)
	}
}

// Get returns the stored record for an action id.
func (d *Dispatcher) Get(id string) (*Action, error) {
	if d.store == nil {
		return nil, nil
	}
	return d.store.Get(id)
}

// Recent lists the newest action records.
func (d *Dispatcher) Recent(limit int) ([]*Action, error) {
	if d.store == nil {
		return nil, nil
	}
	return d.store.Recent(limit)
}

// Wait blocks until all in-flight actions have resolved. Used on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
