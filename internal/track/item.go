// Package track implements poll-based change tracking for a directory tree.
package track

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// hashBlockSize is the read size used when streaming file content into the digest.
const hashBlockSize = 32 * 1024

// ItemType classifies a tracked filesystem entry.
type ItemType string

const (
	TypeAbsent  ItemType = ""     // Path no longer exists (transient)
	TypeFile    ItemType = "file" // Regular file
	TypeDir     ItemType = "dir"  // Directory
	TypeSymlink ItemType = "link" // Symbolic link, never followed
)

func (t ItemType) String() string {
	if t == TypeAbsent {
		return "absent"
	}
	return string(t)
}

// Item is the tracked state of one entry below the root.
//
// Hash and ModTime are only set for files. PreviousPath is only meaningful
// during the tick in which a move was detected.
type Item struct {
	Path         string    // Slash separated, relative to the root
	Type         ItemType  // Current classification
	Hash         []byte    // MD5 of the content, files only
	ModTime      time.Time // Last modification time, files only
	PreviousPath string    // Path before a detected move
}

// NewItem probes path below root and seeds its state. The initial probe
// never reports a change.
func NewItem(root, path string) *Item {
	item := &Item{Path: path}
	item.refresh(root, true, true)
	return item
}

// AbsPath resolves the item against root.
func (i *Item) AbsPath(root string) string {
	return filepath.Join(root, filepath.FromSlash(i.Path))
}

// Refresh re-probes the item and reports whether its modification time
// moved forward since the previous probe.
func (i *Item) Refresh(root string, computeHash bool) bool {
	return i.refresh(root, false, computeHash)
}

// Relocate re-keys the item to newPath after a detected move. A non-nil
// knownHash is adopted as-is so the content is not read again.
func (i *Item) Relocate(root, newPath string, knownHash []byte) {
	if newPath == i.Path {
		return
	}
	i.PreviousPath = i.Path
	i.Path = newPath
	if knownHash == nil {
		i.refresh(root, true, true)
		return
	}
	i.refresh(root, true, false)
	if i.Type == TypeFile {
		i.Hash = knownHash
	}
}

func (i *Item) refresh(root string, init, computeHash bool) bool {
	abs := i.AbsPath(root)

	info, err := os.Lstat(abs)
	switch {
	case err != nil:
		i.Type = TypeAbsent
	case info.Mode()&os.ModeSymlink != 0:
		i.Type = TypeSymlink
	case info.Mode().IsRegular():
		i.Type = TypeFile
	case info.IsDir():
		i.Type = TypeDir
	default:
		i.Type = TypeAbsent
	}

	if i.Type != TypeFile {
		i.Hash = nil
		i.ModTime = time.Time{}
		return false
	}

	if computeHash {
		sum, err := hashFile(abs)
		if err != nil {
			// Vanished between the stat and the open.
			if os.IsNotExist(err) {
				i.Type = TypeAbsent
				i.Hash = nil
				i.ModTime = time.Time{}
				return false
			}
			i.Hash = nil
		} else {
			i.Hash = sum
		}
	}

	modTime := info.ModTime()
	if init {
		i.ModTime = modTime
		return false
	}
	if modTime.After(i.ModTime) {
		i.ModTime = modTime
		return true
	}
	return false
}

// hashFile streams the file through MD5 in fixed-size blocks.
func hashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := md5.New()
	buf := make([]byte, hashBlockSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return nil, fmt.Errorf("hash %s: %w", path, err)
	}
	return h.Sum(nil), nil
}

// HexHash returns the hex encoded digest, or an empty string.
func (i *Item) HexHash() string {
	if i.Hash == nil {
		return ""
	}
	return hex.EncodeToString(i.Hash)
}

// Equal reports whether two items carry the same persisted state.
// PreviousPath is transient and ignored.
func (i *Item) Equal(other *Item) bool {
	if i == nil || other == nil {
		return i == other
	}
	return i.Path == other.Path &&
		i.Type == other.Type &&
		bytes.Equal(i.Hash, other.Hash) &&
		i.ModTime.Equal(other.ModTime)
}

// Describe renders the item the way the print handler reports it.
func (i *Item) Describe(root string) string {
	abs := i.AbsPath(root)
	switch i.Type {
	case TypeAbsent:
		return "(NONEXISTING:" + abs + ")"
	case TypeFile:
		return fmt.Sprintf("(%s, %s, %s, %s)", abs, i.ModTime.Format(time.RFC3339Nano), i.Type, i.HexHash())
	default:
		return fmt.Sprintf("(%s, %s)", abs, i.Type)
	}
}

// clone returns a copy that shares no mutable state with i.
func (i *Item) clone() *Item {
	c := *i
	if i.Hash != nil {
		c.Hash = append([]byte(nil), i.Hash...)
	}
	return &c
}
