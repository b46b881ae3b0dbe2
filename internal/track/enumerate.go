package track

import (
	"errors"
	"iter"
	"path/filepath"

	"github.com/karrick/godirwalk"
	"go.uber.org/zap"
)

// errStopWalk unwinds godirwalk when the consumer stops ranging.
var errStopWalk = errors.New("track: enumeration stopped")

// EnumerateOptions configures Enumerate.
type EnumerateOptions struct {
	Exclude *Matcher    // Entries to leave out; excluded directories are not descended
	Logger  *zap.Logger // Receives unreadable-entry diagnostics
}

// Enumerate lazily yields every entry below root, depth first and sorted by
// name within each directory. Symbolic links below root are yielded but never
// followed; root itself may be a link to a directory.
//
// Paths are relative to root and slash separated on every platform.
func Enumerate(root string, opts EnumerateOptions) iter.Seq[string] {
	root = filepath.Clean(root)
	// A linked root is listed through its target; links below it stay leaves.
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(yield func(string) bool) {
		err := godirwalk.Walk(root, &godirwalk.Options{
			Callback: func(osPathname string, de *godirwalk.Dirent) error {
				rel, err := filepath.Rel(root, osPathname)
				if err != nil {
					return err
				}
				if rel == "." {
					return nil
				}
				rel = filepath.ToSlash(rel)

				if opts.Exclude.Match(rel) {
					return godirwalk.SkipThis
				}
				if !yield(rel) {
					return errStopWalk
				}
				return nil
			},
			ErrorCallback: func(osPathname string, err error) godirwalk.ErrorAction {
				if errors.Is(err, errStopWalk) {
					return godirwalk.Halt
				}
				logger.Debug("skipping unreadable entry",
					zap.String("path", osPathname),
					zap.Error(err),
				)
				return godirwalk.SkipNode
			},
			FollowSymbolicLinks: false,
			Unsorted:            false,
		})
		if err != nil && !errors.Is(err, errStopWalk) {
			logger.Warn("enumeration ended early", zap.String("root", root), zap.Error(err))
		}
	}
}
