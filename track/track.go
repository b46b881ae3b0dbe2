package track

import (
	"context"
	"io"
	"iter"

	internal "github.com/TFMV/changetrack/internal/track"
	"go.uber.org/zap"
)

// Re-export the types from the internal package
type (
	// Item is the tracked state of one entry below the root.
	Item = internal.Item

	// ItemType classifies a tracked entry.
	ItemType = internal.ItemType

	// Snapshot maps relative paths to their last known state.
	Snapshot = internal.Snapshot

	// Changes groups the items reported by one tick.
	Changes = internal.Changes

	// Reconciler turns a previous snapshot and a fresh listing into changes.
	Reconciler = internal.Reconciler

	// Matcher holds compiled exclude patterns.
	Matcher = internal.Matcher

	// EnumerateOptions configures Enumerate.
	EnumerateOptions = internal.EnumerateOptions

	// Store persists snapshots between runs.
	Store = internal.Store

	// FileStore keeps the snapshot in a single binary file.
	FileStore = internal.FileStore

	// SQLiteStore keeps the snapshot in a SQLite table.
	SQLiteStore = internal.SQLiteStore

	// Handler receives changes.
	Handler      = internal.Handler
	HandlerFuncs = internal.HandlerFuncs
	EventFunc    = internal.EventFunc
	PrintHandler = internal.PrintHandler
	Event        = internal.Event

	// Tracker polls a directory tree.
	Tracker = internal.Tracker
	Config  = internal.Config
	State   = internal.State
	Stats   = internal.Stats

	// LogLevel defines the verbosity of logging.
	LogLevel = internal.LogLevel
	LogFile  = internal.LogFile
)

// Re-export all the constants
const (
	TypeAbsent  = internal.TypeAbsent
	TypeFile    = internal.TypeFile
	TypeDir     = internal.TypeDir
	TypeSymlink = internal.TypeSymlink

	EventRemoved = internal.EventRemoved
	EventAdded   = internal.EventAdded
	EventChanged = internal.EventChanged
	EventMoved   = internal.EventMoved

	StateIdle      = internal.StateIdle
	StateRunning   = internal.StateRunning
	StateSuspended = internal.StateSuspended
	StateStopped   = internal.StateStopped

	LogLevelError = internal.LogLevelError
	LogLevelWarn  = internal.LogLevelWarn
	LogLevelInfo  = internal.LogLevelInfo
	LogLevelDebug = internal.LogLevelDebug

	DefaultInterval  = internal.DefaultInterval
	DefaultStateFile = internal.DefaultStateFile
)

var (
	ErrAlreadyStarted  = internal.ErrAlreadyStarted
	ErrStopped         = internal.ErrStopped
	ErrInvalidInterval = internal.ErrInvalidInterval
)

// New returns an idle Tracker for cfg.
func New(cfg Config) (*Tracker, error) {
	return internal.NewTracker(cfg)
}

// Run monitors cfg.Root until ctx is done, loading and saving state through store.
func Run(ctx context.Context, cfg Config, store Store) error {
	return internal.Run(ctx, cfg, store)
}

// ScanOnce runs a single tick against the snapshot held by store.
func ScanOnce(cfg Config, store Store) (Changes, error) {
	return internal.ScanOnce(cfg, store)
}

// Enumerate lists every entry below root in sorted depth-first order.
func Enumerate(root string, opts EnumerateOptions) iter.Seq[string] {
	return internal.Enumerate(root, opts)
}

// NewReconciler returns a Reconciler for root.
func NewReconciler(root string, logger *zap.Logger) *Reconciler {
	return internal.NewReconciler(root, logger)
}

// NewMatcher compiles exclude patterns.
func NewMatcher(patterns []string) (*Matcher, error) {
	return internal.NewMatcher(patterns)
}

// NewItem probes path below root.
func NewItem(root, path string) *Item {
	return internal.NewItem(root, path)
}

// NewFileStore returns a Store backed by the file at path.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	return internal.NewFileStore(path, logger)
}

// NewSQLiteStore opens or creates a SQLite backed Store.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	return internal.NewSQLiteStore(path, logger)
}

// EncodeSnapshot writes s in the binary state file format.
func EncodeSnapshot(w io.Writer, s Snapshot) error {
	return internal.EncodeSnapshot(w, s)
}

// DecodeSnapshot reads a snapshot written by EncodeSnapshot.
func DecodeSnapshot(r io.Reader) (Snapshot, error) {
	return internal.DecodeSnapshot(r)
}

// HandlerFromFunc routes every change into fn.
func HandlerFromFunc(fn EventFunc) Handler {
	return internal.HandlerFromFunc(fn)
}

// NewPrintHandler returns a handler printing one line per change to stdout.
func NewPrintHandler(root string) *PrintHandler {
	return internal.NewPrintHandler(root)
}

// FormatHandler writes each change rendered through template.
func FormatHandler(root, template string, out io.Writer) Handler {
	return internal.FormatHandler(root, template, out)
}

// ExecHandler runs the command rendered from template for each change.
func ExecHandler(ctx context.Context, root, template string, out, errOut io.Writer) Handler {
	return internal.ExecHandler(ctx, root, template, out, errOut)
}

// FormatEvent renders template for one change.
func FormatEvent(template, root string, event Event, item *Item) string {
	return internal.FormatEvent(template, root, event, item)
}

// NewLogger builds a zap logger at level, optionally writing to a rotated file.
func NewLogger(level LogLevel, file LogFile) (*zap.Logger, error) {
	return internal.NewLogger(level, file)
}
