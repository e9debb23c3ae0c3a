package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/watcherhq/watcher/internal/config"
	"github.com/watcherhq/watcher/internal/models"
)

type fakeLister struct {
	mu  sync.Mutex
	due []models.Monitor
}

func (l *fakeLister) ListDue(ctx context.Context, now time.Time) ([]models.Monitor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	due := l.due
	l.due = nil // dispatched monitors are no longer due
	return due, nil
}

type fakeRunner struct {
	mu      sync.Mutex
	ran     []string
	block   chan struct{}
	active  atomic.Int64
	maxSeen atomic.Int64
}

func (r *fakeRunner) RunMonitor(ctx context.Context, monitorID string) error {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		max := r.maxSeen.Load()
		if n <= max || r.maxSeen.CompareAndSwap(max, n) {
			break
		}
	}

	if r.block != nil {
		<-r.block
	}

	r.mu.Lock()
	r.ran = append(r.ran, monitorID)
	r.mu.Unlock()
	return nil
}

func (r *fakeRunner) runs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ran...)
}

func monitors(ids ...string) []models.Monitor {
	ms := make([]models.Monitor, len(ids))
	for i, id := range ids {
		ms[i] = models.Monitor{ID: id}
	}
	return ms
}

func testConfig(concurrency int) config.SchedulerConfig {
	return config.SchedulerConfig{
		CheckInterval:  10 * time.Millisecond,
		ConcurrentRuns: concurrency,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestScheduler_DispatchesDueMonitors(t *testing.T) {
	lister := &fakeLister{due: monitors("m1", "m2", "m3")}
	runner := &fakeRunner{}

	s := New(lister, runner, nil, testConfig(4), quietLogger())

	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		s.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(runner.runs()) < 3 {
		select {
		case <-deadline:
			t.Fatalf("monitors not dispatched in time, ran: %v", runner.runs())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
	s.wg.Wait()

	ran := map[string]bool{}
	for _, id := range runner.runs() {
		ran[id] = true
	}
	for _, want := range []string{"m1", "m2", "m3"} {
		if !ran[want] {
			t.Errorf("monitor %s never ran", want)
		}
	}
}

func TestScheduler_BoundsConcurrency(t *testing.T) {
	lister := &fakeLister{due: monitors("m1", "m2", "m3", "m4", "m5")}
	runner := &fakeRunner{block: make(chan struct{})}

	s := New(lister, runner, nil, testConfig(2), quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	// Give the first tick time to fill both run slots.
	time.Sleep(50 * time.Millisecond)

	if got := runner.active.Load(); got != 2 {
		t.Errorf("active runs = %d, want 2", got)
	}

	close(runner.block)
	cancel()
	<-done
	s.wg.Wait()

	if max := runner.maxSeen.Load(); max > 2 {
		t.Errorf("max concurrent runs = %d, want <= 2", max)
	}
}

type fakePruner struct {
	mu     sync.Mutex
	calls  int
	before time.Time
}

func (p *fakePruner) Prune(ctx context.Context, before time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.before = before
	return 3, nil
}

func (p *fakePruner) snapshot() (int, time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls, p.before
}

func TestScheduler_PrunesRunLogOncePerDay(t *testing.T) {
	lister := &fakeLister{}
	pruner := &fakePruner{}

	s := New(lister, &fakeRunner{}, pruner, testConfig(1), quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	// Several ticks elapse, but the sweep must fire only once within a day.
	time.Sleep(60 * time.Millisecond)
	cancel()
	<-done

	calls, before := pruner.snapshot()
	if calls != 1 {
		t.Fatalf("prune ran %d times, want 1", calls)
	}

	wantCutoff := time.Now().UTC().Add(-runLogRetention)
	if before.Before(wantCutoff.Add(-time.Minute)) || before.After(wantCutoff.Add(time.Minute)) {
		t.Errorf("prune cutoff = %v, want about %v", before, wantCutoff)
	}
}

func TestScheduler_StopWaitsForInFlightRuns(t *testing.T) {
	lister := &fakeLister{due: monitors("m1")}
	runner := &fakeRunner{block: make(chan struct{})}

	s := New(lister, runner, nil, testConfig(1), quietLogger())

	go s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a run was still in flight")
	case <-time.After(30 * time.Millisecond):
	}

	close(runner.block)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after runs finished")
	}

	if got := runner.runs(); len(got) != 1 || got[0] != "m1" {
		t.Errorf("runs = %v, want [m1]", got)
	}
}
