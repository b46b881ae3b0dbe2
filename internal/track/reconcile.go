package track

import (
	"iter"
	"slices"

	"go.uber.org/zap"
)

// Snapshot maps relative paths to the last known state of each item.
type Snapshot map[string]*Item

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for path, item := range s {
		out[path] = item.clone()
	}
	return out
}

// Equal reports whether both snapshots hold the same items.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for path, item := range s {
		if !item.Equal(other[path]) {
			return false
		}
	}
	return true
}

// Paths returns the snapshot keys in sorted order.
func (s Snapshot) Paths() []string {
	paths := make([]string, 0, len(s))
	for path := range s {
		paths = append(paths, path)
	}
	slices.Sort(paths)
	return paths
}

// Changes holds the events produced by one reconciliation. The four sets are
// disjoint.
type Changes struct {
	Added   []*Item
	Removed []*Item
	Changed []*Item
	Moved   []*Item
}

// Len returns the total number of events.
func (c Changes) Len() int {
	return len(c.Added) + len(c.Removed) + len(c.Changed) + len(c.Moved)
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return c.Len() == 0
}

// Reconciler diffs a previous snapshot against a fresh enumeration.
type Reconciler struct {
	root   string
	logger *zap.Logger
}

// NewReconciler returns a Reconciler resolving item paths against root.
func NewReconciler(root string, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{root: root, logger: logger}
}

// Reconcile compares prev with the paths currently present and returns the
// next snapshot together with the changes between the two.
//
// Items of prev that still exist are refreshed in place and carried into the
// returned snapshot; prev itself is left keyed as it was and must not be
// reused afterwards. A removed file whose content hash equals that of a newly
// added file is reported as a single move. When several added files share
// that hash the first one in enumeration order wins.
func (r *Reconciler) Reconcile(prev Snapshot, paths iter.Seq[string]) (Snapshot, Changes) {
	var changes Changes

	next := make(Snapshot, len(prev))
	stillPresent := make(map[string]struct{}, len(prev))
	for path := range prev {
		stillPresent[path] = struct{}{}
	}

	var added []*Item
	for path := range paths {
		if _, seen := next[path]; seen {
			continue
		}

		item, known := prev[path]
		if !known {
			item = NewItem(r.root, path)
			if item.Type == TypeAbsent {
				r.logger.Debug("new path vanished before probing", zap.String("path", path))
				continue
			}
			next[path] = item
			added = append(added, item)
			continue
		}

		item.PreviousPath = ""
		changed := item.Refresh(r.root, true)
		if item.Type == TypeAbsent {
			// Leave it among the tentative removals.
			r.logger.Debug("known path vanished before probing", zap.String("path", path))
			continue
		}
		delete(stillPresent, path)
		next[path] = item
		if changed {
			changes.Changed = append(changes.Changed, item)
		}
	}

	removals := make([]string, 0, len(stillPresent))
	for path := range stillPresent {
		removals = append(removals, path)
	}
	slices.Sort(removals)

	// Index added files by content so each removal finds its first match.
	candidates := make(map[string][]int)
	for idx, item := range added {
		if item.Type == TypeFile && item.Hash != nil {
			key := string(item.Hash)
			candidates[key] = append(candidates[key], idx)
		}
	}

	claimed := make([]bool, len(added))
	for _, path := range removals {
		removed := prev[path]
		if removed.Type != TypeFile || removed.Hash == nil {
			changes.Removed = append(changes.Removed, removed)
			continue
		}

		key := string(removed.Hash)
		if len(candidates[key]) == 0 {
			changes.Removed = append(changes.Removed, removed)
			continue
		}
		match := candidates[key][0]
		candidates[key] = candidates[key][1:]

		target := added[match]
		claimed[match] = true
		removed.Relocate(r.root, target.Path, target.Hash)
		if removed.Type == TypeAbsent {
			// The target vanished after it was listed.
			r.logger.Debug("move target vanished before relocating", zap.String("path", target.Path))
			delete(next, target.Path)
			removed.Path, removed.PreviousPath = removed.PreviousPath, ""
			changes.Removed = append(changes.Removed, removed)
			continue
		}
		next[target.Path] = removed
		changes.Moved = append(changes.Moved, removed)
	}

	for idx, item := range added {
		if !claimed[idx] {
			changes.Added = append(changes.Added, item)
		}
	}

	if !changes.Empty() {
		r.logger.Debug("reconciled",
			zap.String("root", r.root),
			zap.Int("added", len(changes.Added)),
			zap.Int("removed", len(changes.Removed)),
			zap.Int("changed", len(changes.Changed)),
			zap.Int("moved", len(changes.Moved)),
		)
	}
	return next, changes
}
