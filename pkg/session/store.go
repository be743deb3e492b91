package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/soralis-ops/sortie/pkg/vars"
)

// LastSessionVar is the variable the store publishes the most recently
// resolved session handle under.
const LastSessionVar = "LAST_SESSION"

// ErrSessionNotFound reports a non-blocking lookup that matched no live
// session.
var ErrSessionNotFound = errors.New("session not found")

// Store reconciles logical session names with live session handles. A single
// consumer drains the pending queue into the directory; producers only ever
// call AddSession or hand a queue to the wait helpers.
type Store struct {
	logger   *slog.Logger
	varstore *vars.Store
	queue    *PendingQueue
	sessions map[string]string // name -> correlation id

	// DrainSettle is the pause after each drained queue entry, letting the
	// freshly handed-off session stabilize before it is resolved.
	DrainSettle time.Duration
	// PollInterval is the pause between registry polls and between blocked
	// directory re-checks.
	PollInterval time.Duration
	// ReadySettle is the pause after a direct registration before the
	// matched handle is returned to the caller.
	ReadySettle time.Duration
}

// NewStore creates an empty store publishing resolved handles into varstore.
func NewStore(logger *slog.Logger, varstore *vars.Store) *Store {
	return &Store{
		logger:       logger,
		varstore:     varstore,
		queue:        NewPendingQueue(),
		sessions:     make(map[string]string),
		DrainSettle:  time.Second,
		PollInterval: 3 * time.Second,
		ReadySettle:  30 * time.Second,
	}
}

// AddSession registers a logical name for a correlation id. Safe to call
// from any goroutine or forwarding process.
func (s *Store) AddSession(name, correlationID string) {
	s.logger.Debug("registering session", "name", name, "correlation_id", correlationID)
	s.queue.Push(Pending{Name: name, CorrelationID: correlationID})
}

// drain merges every queued registration into the directory, pausing after
// each entry.
func (s *Store) drain(ctx context.Context) error {
	for {
		p, ok := s.queue.TryPop()
		if !ok {
			return nil
		}
		s.sessions[p.Name] = p.CorrelationID
		if err := sleep(ctx, s.DrainSettle); err != nil {
			return err
		}
	}
}

// GetSessionByName resolves a logical name to a live session handle: drain
// the queue, then scan the registry for a handle carrying the name's
// correlation id. On no match — name unregistered or no live handle — a
// non-blocking call fails with ErrSessionNotFound immediately; a blocking
// call sleeps and retries, bounded only by ctx.
func (s *Store) GetSessionByName(ctx context.Context, name string, reg Registry, block bool) (string, error) {
	for {
		if err := s.drain(ctx); err != nil {
			return "", err
		}

		if cid, ok := s.sessions[name]; ok {
			live, err := reg.List(ctx)
			if err != nil {
				return "", fmt.Errorf("list sessions: %w", err)
			}
			for handle, info := range live {
				if info.CorrelationID == cid {
					s.logger.Info("session resolved", "name", name, "handle", handle)
					s.varstore.Set(LastSessionVar, handle)
					return handle, nil
				}
			}
		}

		if !block {
			return "", fmt.Errorf("%w: %q", ErrSessionNotFound, name)
		}
		s.logger.Debug("waiting for session", "name", name)
		if err := sleep(ctx, s.PollInterval); err != nil {
			return "", err
		}
	}
}

// WaitForSession polls the registry until a session carrying the given
// correlation id is live, then records the name association and returns the
// handle. With a nil queue the association is registered directly and the
// call settles before returning; with a queue it is pushed for whichever
// process owns the directory to merge.
func (s *Store) WaitForSession(ctx context.Context, name, correlationID string, reg Registry, queue *PendingQueue) (string, error) {
	for {
		live, err := reg.List(ctx)
		if err != nil {
			return "", fmt.Errorf("list sessions: %w", err)
		}
		for handle, info := range live {
			if info.CorrelationID == correlationID {
				s.logger.Info("session matched", "name", name, "handle", handle)
				return s.adopt(ctx, name, correlationID, handle, queue)
			}
		}
		if err := sleep(ctx, s.PollInterval); err != nil {
			return "", err
		}
	}
}

// WaitForNewSession polls the registry until a session not present at call
// time appears, attributes the given correlation id to name via the same
// direct-or-queued path, and returns the new handle. When several appear in
// the same poll, which one wins is unspecified.
func (s *Store) WaitForNewSession(ctx context.Context, name, correlationID string, reg Registry, queue *PendingQueue) (string, error) {
	baseline, err := reg.List(ctx)
	if err != nil {
		return "", fmt.Errorf("list sessions: %w", err)
	}

	for {
		if err := sleep(ctx, s.PollInterval); err != nil {
			return "", err
		}
		live, err := reg.List(ctx)
		if err != nil {
			return "", fmt.Errorf("list sessions: %w", err)
		}
		for handle := range live {
			if _, seen := baseline[handle]; !seen {
				s.logger.Info("new session detected", "name", name, "handle", handle)
				return s.adopt(ctx, name, correlationID, handle, queue)
			}
		}
	}
}

// adopt records a matched session. Queue present: push the pair and leave
// local state alone. Queue absent: register into the directory, publish the
// handle, and let the session settle before the caller uses it.
func (s *Store) adopt(ctx context.Context, name, correlationID, handle string, queue *PendingQueue) (string, error) {
	if queue != nil {
		queue.Push(Pending{Name: name, CorrelationID: correlationID})
		return handle, nil
	}
	s.sessions[name] = correlationID
	s.varstore.Set(LastSessionVar, handle)
	if err := sleep(ctx, s.ReadySettle); err != nil {
		return "", err
	}
	return handle, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
