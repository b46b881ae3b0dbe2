package track

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the pause between two ticks when none is configured.
const DefaultInterval = time.Second

var (
	ErrAlreadyStarted  = errors.New("track: tracker already started")
	ErrStopped         = errors.New("track: tracker stopped")
	ErrInvalidInterval = errors.New("track: interval must be positive")
)

// State is the lifecycle position of a Tracker.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateSuspended
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Config is fixed for the lifetime of a Tracker.
type Config struct {
	Root     string        // Directory to monitor; defaults to the working directory
	Interval time.Duration // Pause between ticks; defaults to DefaultInterval
	Handler  Handler       // Receives changes; defaults to a PrintHandler on stdout
	Threaded bool          // Run the loop in its own goroutine
	Exclude  []string      // Glob patterns left out of every scan
	Logger   *zap.Logger   // Defaults to a no-op logger
}

func (c Config) withDefaults() (Config, error) {
	if c.Root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return c, fmt.Errorf("resolve working directory: %w", err)
		}
		c.Root = wd
	}
	abs, err := filepath.Abs(c.Root)
	if err != nil {
		return c, fmt.Errorf("resolve root %s: %w", c.Root, err)
	}
	c.Root = abs

	if c.Interval < 0 {
		return c, fmt.Errorf("%w, got %v", ErrInvalidInterval, c.Interval)
	}
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Handler == nil {
		c.Handler = NewPrintHandler(c.Root)
	}
	return c, nil
}

// Stats summarizes the ticks a Tracker has performed.
type Stats struct {
	Ticks            int64         // Completed ticks
	SkippedTicks     int64         // Ticks skipped because the root was unavailable
	Items            int           // Items in the current snapshot
	Added            int64         // Totals across all ticks
	Removed          int64
	Changed          int64
	Moved            int64
	LastTick         time.Time     // Start of the most recent tick
	LastTickDuration time.Duration // Duration of the most recent tick
}

// runner executes the tick loop, either on the caller's goroutine or on a
// new one.
type runner func(loop func())

func inline(loop func())     { loop() }
func background(loop func()) { go loop() }

// Tracker polls a directory tree and reports changes to its Handler.
//
// The snapshot is only touched while a tick holds the tick lock, so Tick,
// Snapshot, LoadState and SaveState must not be called from a Handler
// callback. Suspend, Resume, Stop, State and Stats are safe anywhere.
type Tracker struct {
	cfg        Config
	reconciler *Reconciler
	exclude    *Matcher
	logger     *zap.Logger
	run        runner

	state    atomic.Int32
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu       sync.Mutex
	snapshot Snapshot

	statsMu sync.Mutex
	stats   Stats
}

// NewTracker validates cfg and returns an idle Tracker with an empty
// snapshot.
func NewTracker(cfg Config) (*Tracker, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	exclude, err := NewMatcher(cfg.Exclude)
	if err != nil {
		return nil, err
	}

	t := &Tracker{
		cfg:        cfg,
		reconciler: NewReconciler(cfg.Root, cfg.Logger),
		exclude:    exclude,
		logger:     cfg.Logger,
		run:        inline,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		snapshot:   Snapshot{},
	}
	if cfg.Threaded {
		t.run = background
	}
	return t, nil
}

// Root returns the absolute directory being monitored.
func (t *Tracker) Root() string { return t.cfg.Root }

// Interval returns the pause between ticks.
func (t *Tracker) Interval() time.Duration { return t.cfg.Interval }

// State returns the current lifecycle state.
func (t *Tracker) State() State { return State(t.state.Load()) }

// Done is closed once the tick loop has exited, or immediately on Stop when
// the tracker was never started.
func (t *Tracker) Done() <-chan struct{} { return t.done }

// Start begins ticking. The first tick runs immediately. In threaded mode
// Start returns at once; otherwise it blocks until Stop is called or ctx is
// done.
func (t *Tracker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !t.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		if t.State() == StateStopped {
			return ErrStopped
		}
		return ErrAlreadyStarted
	}

	t.logger.Info("tracker started",
		zap.String("root", t.cfg.Root),
		zap.Duration("interval", t.cfg.Interval),
		zap.Bool("threaded", t.cfg.Threaded),
	)
	t.run(func() { t.loop(ctx) })
	return nil
}

// Suspend pauses ticking. The loop keeps waking on schedule but skips work.
func (t *Tracker) Suspend() bool {
	return t.state.CompareAndSwap(int32(StateRunning), int32(StateSuspended))
}

// Resume continues ticking from the next scheduled wake-up.
func (t *Tracker) Resume() bool {
	return t.state.CompareAndSwap(int32(StateSuspended), int32(StateRunning))
}

// Stop ends monitoring. A tick in progress completes first. Stop is
// idempotent and terminal.
func (t *Tracker) Stop() {
	prev := State(t.state.Swap(int32(StateStopped)))
	t.stopOnce.Do(func() {
		close(t.stopCh)
		if prev == StateIdle {
			close(t.done)
		}
	})
}

func (t *Tracker) loop(ctx context.Context) {
	defer close(t.done)
	defer t.logger.Info("tracker stopped", zap.String("root", t.cfg.Root))

	timer := time.NewTimer(t.cfg.Interval)
	defer timer.Stop()

	for {
		switch t.State() {
		case StateStopped:
			return
		case StateRunning:
			t.Tick()
		}

		// The wait starts after the tick, so a slow tick delays the next one.
		timer.Reset(t.cfg.Interval)
		select {
		case <-timer.C:
		case <-t.stopCh:
			return
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
}

// Tick performs one enumerate, reconcile and dispatch cycle and returns the
// changes it dispatched. Ticks never overlap.
func (t *Tracker) Tick() Changes {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := time.Now()
	if _, err := os.Stat(t.cfg.Root); err != nil {
		t.logger.Warn("root unavailable, skipping tick", zap.String("root", t.cfg.Root), zap.Error(err))
		t.statsMu.Lock()
		t.stats.SkippedTicks++
		t.statsMu.Unlock()
		return Changes{}
	}

	paths := Enumerate(t.cfg.Root, EnumerateOptions{Exclude: t.exclude, Logger: t.logger})
	next, changes := t.reconciler.Reconcile(t.snapshot, paths)
	t.snapshot = next

	t.statsMu.Lock()
	t.stats.Ticks++
	t.stats.Items = len(next)
	t.stats.Added += int64(len(changes.Added))
	t.stats.Removed += int64(len(changes.Removed))
	t.stats.Changed += int64(len(changes.Changed))
	t.stats.Moved += int64(len(changes.Moved))
	t.stats.LastTick = start
	t.stats.LastTickDuration = time.Since(start)
	t.statsMu.Unlock()

	t.dispatch(changes)
	return changes
}

// dispatch delivers changes in the order removed, added, changed, moved.
func (t *Tracker) dispatch(changes Changes) {
	h := t.cfg.Handler
	for _, item := range changes.Removed {
		t.notify(EventRemoved, item, h.OnRemoved)
	}
	for _, item := range changes.Added {
		t.notify(EventAdded, item, h.OnAdded)
	}
	for _, item := range changes.Changed {
		t.notify(EventChanged, item, h.OnChanged)
	}
	for _, item := range changes.Moved {
		t.notify(EventMoved, item, h.OnMoved)
	}
}

// notify shields the tick from a panicking handler.
func (t *Tracker) notify(event Event, item *Item, fn func(*Item)) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("handler panicked",
				zap.String("event", string(event)),
				zap.String("path", item.Path),
				zap.Any("panic", r),
			)
		}
	}()
	fn(item)
}

// Snapshot returns a deep copy of the current snapshot.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot.Clone()
}

// Stats returns a copy of the tick statistics.
func (t *Tracker) Stats() Stats {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	return t.stats
}

// LoadState replaces the snapshot with the one held by store. Changes made
// while the tracker was not running are reported by the next tick.
func (t *Tracker) LoadState(store Store) {
	s := store.Load()
	if s == nil {
		s = Snapshot{}
	}

	t.mu.Lock()
	t.snapshot = s
	t.mu.Unlock()

	t.statsMu.Lock()
	t.stats.Items = len(s)
	t.statsMu.Unlock()
}

// SaveState persists the current snapshot to store.
func (t *Tracker) SaveState(store Store) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return store.Save(t.snapshot)
}
