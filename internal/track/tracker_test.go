package track

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"
)

// TestNewTrackerDefaults tests configuration defaults
func TestNewTrackerDefaults(t *testing.T) {
	tr, err := NewTracker(Config{})
	if err != nil {
		t.Fatalf("Failed to create tracker: %v", err)
	}
	wd, _ := os.Getwd()
	if tr.Root() != wd {
		t.Errorf("Expected root %s, got %s", wd, tr.Root())
	}
	if tr.Interval() != DefaultInterval {
		t.Errorf("Expected interval %v, got %v", DefaultInterval, tr.Interval())
	}
	if _, ok := tr.cfg.Handler.(*PrintHandler); !ok {
		t.Errorf("Expected the print handler by default, got %T", tr.cfg.Handler)
	}
	if tr.State() != StateIdle {
		t.Errorf("Expected idle state, got %s", tr.State())
	}
}

// TestNewTrackerInvalidConfig tests rejected configurations
func TestNewTrackerInvalidConfig(t *testing.T) {
	if _, err := NewTracker(Config{Interval: -time.Second}); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("Expected ErrInvalidInterval, got %v", err)
	}
}

// TestTrackerDispatchOrder tests that events arrive removed, added, changed, moved
func TestTrackerDispatchOrder(t *testing.T) {
	root := t.TempDir()
	keep := writeFile(t, root, "keep.txt", "keep")
	writeFile(t, root, "gone.txt", "gone")
	writeFile(t, root, "old.txt", "travels")
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	setModTime(t, keep, base)

	rec := &recorder{}
	tr := newTestTracker(t, Config{Root: root, Handler: HandlerFromFunc(rec.record)})
	tr.Tick()
	rec.reset()

	if err := os.Remove(filepath.Join(root, "gone.txt")); err != nil {
		t.Fatalf("Failed to remove file: %v", err)
	}
	if err := os.Rename(filepath.Join(root, "old.txt"), filepath.Join(root, "new.txt")); err != nil {
		t.Fatalf("Failed to rename file: %v", err)
	}
	writeFile(t, root, "fresh.txt", "fresh")
	setModTime(t, keep, base.Add(time.Minute))

	changes := tr.Tick()
	if changes.Len() != 4 {
		t.Fatalf("Expected 4 changes, got %+v", changes)
	}
	want := []string{"removed gone.txt", "added fresh.txt", "changed keep.txt", "moved new.txt"}
	if got := rec.events(); !slices.Equal(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

// TestTrackerInlineStopFromHandler tests the blocking mode stopped by its own handler
func TestTrackerInlineStopFromHandler(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")

	var tr *Tracker
	var added []string
	tr = newTestTracker(t, Config{
		Root:     root,
		Interval: 10 * time.Millisecond,
		Handler: HandlerFuncs{Added: func(item *Item) {
			added = append(added, item.Path)
			tr.Stop()
		}},
	})

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	// Start only returns once stopped.
	if tr.State() != StateStopped {
		t.Errorf("Expected stopped state, got %s", tr.State())
	}
	select {
	case <-tr.Done():
	default:
		t.Errorf("Expected Done to be closed")
	}
	if !slices.Equal(added, []string{"a.txt"}) {
		t.Errorf("Expected a.txt added once, got %v", added)
	}
	if err := tr.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped on restart, got %v", err)
	}
}

// TestTrackerInlineContextCancel tests that cancelling the context ends the loop
func TestTrackerInlineContextCancel(t *testing.T) {
	tr := newTestTracker(t, Config{Root: t.TempDir(), Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if tr.State() != StateStopped {
		t.Errorf("Expected stopped state, got %s", tr.State())
	}
	if tr.Stats().Ticks < 1 {
		t.Errorf("Expected at least one tick, got %d", tr.Stats().Ticks)
	}
}

// TestTrackerThreaded tests background mode end to end
func TestTrackerThreaded(t *testing.T) {
	root := t.TempDir()
	events := make(chan string, 16)
	tr := newTestTracker(t, Config{
		Root:     root,
		Interval: 10 * time.Millisecond,
		Threaded: true,
		Handler: HandlerFromFunc(func(event Event, item *Item) {
			events <- string(event) + " " + item.Path
		}),
	})

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := tr.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Expected ErrAlreadyStarted, got %v", err)
	}

	writeFile(t, root, "x/1.txt", "a")
	waitForEvent(t, events, "added x/1.txt")

	// Pause so the delete and the create land in the same tick.
	tr.Suspend()
	time.Sleep(30 * time.Millisecond)
	if err := os.Remove(filepath.Join(root, "x", "1.txt")); err != nil {
		t.Fatalf("Failed to remove file: %v", err)
	}
	writeFile(t, root, "x/2.txt", "a")
	tr.Resume()
	waitForEvent(t, events, "moved x/2.txt")

	tr.Stop()
	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("Tracker did not stop")
	}
}

// TestTrackerSuspendResume tests that no ticks run while suspended and that
// ticking restarts on the next scheduled wake-up rather than at Resume
func TestTrackerSuspendResume(t *testing.T) {
	const interval = 200 * time.Millisecond
	tr := newTestTracker(t, Config{Root: t.TempDir(), Interval: interval, Threaded: true})
	if tr.Suspend() {
		t.Errorf("Suspend must not apply to an idle tracker")
	}
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer tr.Stop()

	// The first tick runs at Start; the next wake-up is one interval later.
	waitFor(t, func() bool { return tr.Stats().Ticks >= 1 })
	if !tr.Suspend() {
		t.Fatalf("Expected Suspend to apply to a running tracker")
	}
	if tr.State() != StateSuspended {
		t.Errorf("Expected suspended state, got %s", tr.State())
	}
	paused := tr.Stats().Ticks

	// Sleep past one wake-up, which must be skipped.
	time.Sleep(interval + interval/4)
	if got := tr.Stats().Ticks; got != paused {
		t.Errorf("Expected no ticks while suspended, went from %d to %d", paused, got)
	}

	if !tr.Resume() {
		t.Fatalf("Expected Resume to apply to a suspended tracker")
	}
	time.Sleep(interval / 4)
	if got := tr.Stats().Ticks; got != paused {
		t.Errorf("Expected no tick right after Resume, went from %d to %d", paused, got)
	}
	waitFor(t, func() bool { return tr.Stats().Ticks > paused })
}

// TestTrackerStopIdle tests stopping a tracker that never started
func TestTrackerStopIdle(t *testing.T) {
	tr := newTestTracker(t, Config{Root: t.TempDir()})
	tr.Stop()
	tr.Stop()
	select {
	case <-tr.Done():
	default:
		t.Errorf("Expected Done to be closed")
	}
	if err := tr.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped, got %v", err)
	}
}

// TestTrackerHandlerPanic tests that a panicking handler does not abort the tick
func TestTrackerHandlerPanic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	writeFile(t, root, "b.txt", "b")

	var seen []string
	tr := newTestTracker(t, Config{Root: root, Handler: HandlerFuncs{Added: func(item *Item) {
		seen = append(seen, item.Path)
		if item.Path == "a.txt" {
			panic("boom")
		}
	}}})

	changes := tr.Tick()
	if len(changes.Added) != 2 {
		t.Errorf("Expected 2 added items, got %d", len(changes.Added))
	}
	if !slices.Equal(seen, []string{"a.txt", "b.txt"}) {
		t.Errorf("Expected both items dispatched, got %v", seen)
	}
	if len(tr.Snapshot()) != 2 {
		t.Errorf("Expected the snapshot to hold 2 items, got %d", len(tr.Snapshot()))
	}
}

// TestTrackerMissingRoot tests that a vanished root skips the tick instead of removing everything
func TestTrackerMissingRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "watched")
	writeFile(t, root, "a.txt", "a")

	rec := &recorder{}
	tr := newTestTracker(t, Config{Root: root, Handler: HandlerFromFunc(rec.record)})
	tr.Tick()

	if err := os.Rename(root, filepath.Join(parent, "elsewhere")); err != nil {
		t.Fatalf("Failed to move root: %v", err)
	}
	rec.reset()
	if changes := tr.Tick(); !changes.Empty() {
		t.Errorf("Expected no changes, got %+v", changes)
	}
	if len(rec.events()) != 0 {
		t.Errorf("Expected no events, got %v", rec.events())
	}
	if got := tr.Stats().SkippedTicks; got != 1 {
		t.Errorf("Expected 1 skipped tick, got %d", got)
	}
	if len(tr.Snapshot()) != 1 {
		t.Errorf("Expected the snapshot to be kept, got %v", tr.Snapshot().Paths())
	}
}

// TestTrackerStateAcrossRestart tests that saved state suppresses replayed events
func TestTrackerStateAcrossRestart(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	store := NewFileStore(filepath.Join(t.TempDir(), "state"), nil)

	first := newTestTracker(t, Config{Root: root, Handler: HandlerFuncs{}})
	first.Tick()
	if err := first.SaveState(store); err != nil {
		t.Fatalf("Failed to save state: %v", err)
	}

	// Rename while nothing is running.
	if err := os.Rename(filepath.Join(root, "a.txt"), filepath.Join(root, "b.txt")); err != nil {
		t.Fatalf("Failed to rename file: %v", err)
	}

	second := newTestTracker(t, Config{Root: root, Handler: HandlerFuncs{}})
	second.LoadState(store)
	if got := second.Stats().Items; got != 1 {
		t.Errorf("Expected 1 loaded item, got %d", got)
	}
	changes := second.Tick()
	if len(changes.Moved) != 1 || changes.Moved[0].PreviousPath != "a.txt" {
		t.Errorf("Expected a.txt moved to b.txt, got %+v", changes)
	}
	if len(changes.Added) != 0 || len(changes.Removed) != 0 {
		t.Errorf("Expected no adds or removals, got %+v", changes)
	}
}

// TestTrackerSymlinkedRoot tests a root configured as a link to a directory
func TestTrackerSymlinkedRoot(t *testing.T) {
	target := t.TempDir()
	writeFile(t, target, "in.txt", "inside")
	link := filepath.Join(t.TempDir(), "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("Symlinks not supported: %v", err)
	}
	store := NewFileStore(filepath.Join(t.TempDir(), "state"), nil)

	first := newTestTracker(t, Config{Root: target, Handler: HandlerFuncs{}})
	first.Tick()
	if err := first.SaveState(store); err != nil {
		t.Fatalf("Failed to save state: %v", err)
	}

	second := newTestTracker(t, Config{Root: link, Handler: HandlerFuncs{}})
	second.LoadState(store)
	changes := second.Tick()
	if !changes.Empty() {
		t.Errorf("Expected no changes through the link, got %+v", changes)
	}
	if got := second.Snapshot().Paths(); !slices.Equal(got, []string{"in.txt"}) {
		t.Errorf("Expected in.txt tracked, got %v", got)
	}

	writeFile(t, target, "new.txt", "fresh")
	changes = second.Tick()
	if got := pathsOf(changes.Added); !slices.Equal(got, []string{"new.txt"}) {
		t.Errorf("Expected new.txt added, got %v", got)
	}
}

// TestStateString tests state names
func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateIdle:      "idle",
		StateRunning:   "running",
		StateSuspended: "suspended",
		StateStopped:   "stopped",
		State(42):      "State(42)",
	} {
		if got := state.String(); got != want {
			t.Errorf("Expected %s, got %s", want, got)
		}
	}
}

func newTestTracker(t *testing.T, cfg Config) *Tracker {
	t.Helper()
	tr, err := NewTracker(cfg)
	if err != nil {
		t.Fatalf("Failed to create tracker: %v", err)
	}
	t.Cleanup(tr.Stop)
	return tr
}

// recorder collects "event path" lines from any goroutine.
type recorder struct {
	mu   sync.Mutex
	list []string
}

func (r *recorder) record(event Event, item *Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, string(event)+" "+item.Path)
}

func (r *recorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.list)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = nil
}

// waitForEvent drains events until want shows up.
func waitForEvent(t *testing.T, events <-chan string, want string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case got := <-events:
			t.Logf("Received event: %s", got)
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("Did not receive event %q", want)
		}
	}
}

// waitFor polls cond until it holds.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Condition not met in time")
}
