package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/soralis-ops/sortie/pkg/vars"
)

// fakeRegistry is a mutable in-memory Registry.
type fakeRegistry struct {
	mu   sync.Mutex
	live map[string]Info
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{live: make(map[string]Info)}
}

func (r *fakeRegistry) List(ctx context.Context) (map[string]Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Info, len(r.live))
	for k, v := range r.live {
		out[k] = v
	}
	return out, nil
}

func (r *fakeRegistry) open(handle string, info Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[handle] = info
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) (*Store, *vars.Store) {
	t.Helper()
	varstore := vars.New(testLogger())
	s := NewStore(testLogger(), varstore)
	s.DrainSettle = time.Millisecond
	s.PollInterval = time.Millisecond
	s.ReadySettle = time.Millisecond
	return s, varstore
}

func TestGetSessionByNameNonBlockingUnregistered(t *testing.T) {
	s, _ := newTestStore(t)
	reg := newFakeRegistry()

	_, err := s.GetSessionByName(context.Background(), "foothold", reg, false)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

// A registered name whose session is not live yet must still fail fast on a
// non-blocking lookup instead of polling the registry.
func TestGetSessionByNameNonBlockingNoLiveMatch(t *testing.T) {
	s, _ := newTestStore(t)
	reg := newFakeRegistry()
	s.AddSession("beacon1", NewCorrelationID())

	done := make(chan error, 1)
	go func() {
		_, err := s.GetSessionByName(context.Background(), "beacon1", reg, false)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("err = %v, want ErrSessionNotFound", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("non-blocking lookup did not return")
	}
}

func TestGetSessionByNameResolvesQueuedRegistration(t *testing.T) {
	s, varstore := newTestStore(t)
	reg := newFakeRegistry()

	cid := NewCorrelationID()
	reg.open("7", Info{CorrelationID: cid, Type: "shell"})
	s.AddSession("foothold", cid)

	handle, err := s.GetSessionByName(context.Background(), "foothold", reg, false)
	if err != nil {
		t.Fatalf("GetSessionByName error: %v", err)
	}
	if handle != "7" {
		t.Errorf("handle = %q, want \"7\"", handle)
	}
	if v, _ := varstore.Get(LastSessionVar); v != "7" {
		t.Errorf("%s = %q", LastSessionVar, v)
	}
}

func TestGetSessionByNameBlocksForLateProducer(t *testing.T) {
	s, _ := newTestStore(t)
	reg := newFakeRegistry()
	cid := NewCorrelationID()

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.AddSession("late", cid)
		reg.open("12", Info{CorrelationID: cid})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	handle, err := s.GetSessionByName(ctx, "late", reg, true)
	if err != nil {
		t.Fatalf("GetSessionByName error: %v", err)
	}
	if handle != "12" {
		t.Errorf("handle = %q, want \"12\"", handle)
	}
}

func TestWaitForSessionRegistersDirectly(t *testing.T) {
	s, varstore := newTestStore(t)
	reg := newFakeRegistry()
	cid := NewCorrelationID()

	go func() {
		time.Sleep(10 * time.Millisecond)
		reg.open("3", Info{CorrelationID: cid})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	handle, err := s.WaitForSession(ctx, "pivot", cid, reg, nil)
	if err != nil {
		t.Fatalf("WaitForSession error: %v", err)
	}
	if handle != "3" {
		t.Errorf("handle = %q, want \"3\"", handle)
	}
	if v, _ := varstore.Get(LastSessionVar); v != "3" {
		t.Errorf("%s = %q", LastSessionVar, v)
	}

	// The direct registration makes the name resolvable afterwards.
	resolved, err := s.GetSessionByName(context.Background(), "pivot", reg, false)
	if err != nil {
		t.Fatalf("GetSessionByName after wait: %v", err)
	}
	if resolved != "3" {
		t.Errorf("resolved = %q, want \"3\"", resolved)
	}
}

func TestWaitForSessionPushesToQueue(t *testing.T) {
	s, varstore := newTestStore(t)
	reg := newFakeRegistry()
	cid := NewCorrelationID()
	reg.open("5", Info{CorrelationID: cid})

	queue := NewPendingQueue()
	handle, err := s.WaitForSession(context.Background(), "worker", cid, reg, queue)
	if err != nil {
		t.Fatalf("WaitForSession error: %v", err)
	}
	if handle != "5" {
		t.Errorf("handle = %q, want \"5\"", handle)
	}

	// Queued path leaves local state alone: the pair sits on the queue and
	// no variable is published.
	p, ok := queue.TryPop()
	if !ok || p.Name != "worker" || p.CorrelationID != cid {
		t.Fatalf("queued pair = %+v ok=%v", p, ok)
	}
	if _, ok := varstore.Get(LastSessionVar); ok {
		t.Errorf("%s published on the queued path", LastSessionVar)
	}
}

func TestWaitForSessionHonorsCancellation(t *testing.T) {
	s, _ := newTestStore(t)
	reg := newFakeRegistry()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.WaitForSession(ctx, "gone", NewCorrelationID(), reg, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestWaitForNewSessionAttributesName(t *testing.T) {
	s, varstore := newTestStore(t)
	reg := newFakeRegistry()
	reg.open("1", Info{CorrelationID: NewCorrelationID()})

	cid := NewCorrelationID()
	go func() {
		time.Sleep(10 * time.Millisecond)
		reg.open("21", Info{CorrelationID: cid})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	handle, err := s.WaitForNewSession(ctx, "implant", cid, reg, nil)
	if err != nil {
		t.Fatalf("WaitForNewSession error: %v", err)
	}
	if handle != "21" {
		t.Errorf("handle = %q, want \"21\"", handle)
	}
	if v, _ := varstore.Get(LastSessionVar); v != "21" {
		t.Errorf("%s = %q", LastSessionVar, v)
	}

	// The attribution makes the name resolvable by a later lookup.
	resolved, err := s.GetSessionByName(context.Background(), "implant", reg, false)
	if err != nil {
		t.Fatalf("GetSessionByName after wait: %v", err)
	}
	if resolved != "21" {
		t.Errorf("resolved = %q, want \"21\"", resolved)
	}
}

func TestWaitForNewSessionQueuedPath(t *testing.T) {
	s, _ := newTestStore(t)
	reg := newFakeRegistry()
	cid := NewCorrelationID()

	go func() {
		time.Sleep(10 * time.Millisecond)
		reg.open("8", Info{CorrelationID: cid})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	queue := NewPendingQueue()
	handle, err := s.WaitForNewSession(ctx, "relay", cid, reg, queue)
	if err != nil {
		t.Fatalf("WaitForNewSession error: %v", err)
	}
	if handle != "8" {
		t.Errorf("handle = %q, want \"8\"", handle)
	}
	p, ok := queue.TryPop()
	if !ok || p.Name != "relay" || p.CorrelationID != cid {
		t.Fatalf("queued pair = %+v ok=%v", p, ok)
	}
}

func TestPendingQueueDrainOrder(t *testing.T) {
	q := NewPendingQueue()
	q.Push(Pending{Name: "a", CorrelationID: "1"})
	q.Push(Pending{Name: "b", CorrelationID: "2"})

	first, ok := q.TryPop()
	if !ok || first.Name != "a" {
		t.Fatalf("first = %+v ok=%v", first, ok)
	}
	second, ok := q.TryPop()
	if !ok || second.Name != "b" {
		t.Fatalf("second = %+v ok=%v", second, ok)
	}
	if _, ok := q.TryPop(); ok {
		t.Fatal("queue should be empty")
	}
}

func TestReRegistrationOverwrites(t *testing.T) {
	s, _ := newTestStore(t)
	reg := newFakeRegistry()

	old := NewCorrelationID()
	cur := NewCorrelationID()
	s.AddSession("pivot", old)
	s.AddSession("pivot", cur)
	reg.open("9", Info{CorrelationID: cur})

	handle, err := s.GetSessionByName(context.Background(), "pivot", reg, false)
	if err != nil {
		t.Fatalf("GetSessionByName error: %v", err)
	}
	if handle != "9" {
		t.Errorf("handle = %q, want \"9\"", handle)
	}
}
