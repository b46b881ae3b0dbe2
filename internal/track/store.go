package track

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// DefaultStateFile is the snapshot file name used when none is configured.
const DefaultStateFile = "changetrack.state"

// snapshotMagic prefixes every snapshot file, followed by snapshotVersion.
var snapshotMagic = []byte("CTRK")

const snapshotVersion byte = 1

// Store persists snapshots between process runs.
//
// Load never fails: missing or unreadable state yields an empty snapshot,
// because "no prior state" is the normal cold start. Save reports every
// failure since silently losing state is not acceptable.
type Store interface {
	Save(s Snapshot) error
	Load() Snapshot
}

// record is the persisted form of an Item.
type record struct {
	Path    string
	Type    ItemType
	Hash    []byte
	ModTime time.Time
}

func toRecords(s Snapshot) []record {
	records := make([]record, 0, len(s))
	for _, path := range s.Paths() {
		item := s[path]
		records = append(records, record{
			Path:    path,
			Type:    item.Type,
			Hash:    item.Hash,
			ModTime: item.ModTime,
		})
	}
	return records
}

func fromRecords(records []record) Snapshot {
	s := make(Snapshot, len(records))
	for _, rec := range records {
		s[rec.Path] = &Item{
			Path:    rec.Path,
			Type:    rec.Type,
			Hash:    rec.Hash,
			ModTime: rec.ModTime,
		}
	}
	return s
}

// FileStore keeps the snapshot in a single binary file.
type FileStore struct {
	Path   string
	Logger *zap.Logger
}

// NewFileStore returns a FileStore writing to path, or DefaultStateFile when
// path is empty.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if path == "" {
		path = DefaultStateFile
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{Path: path, Logger: logger}
}

// Save writes s atomically: the file is either the previous snapshot or the
// new one, never a partial write.
func (fs *FileStore) Save(s Snapshot) error {
	dir := filepath.Dir(fs.Path)
	tmp, err := os.CreateTemp(dir, filepath.Base(fs.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("save snapshot to %s: %w", fs.Path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriter(tmp)
	if err := EncodeSnapshot(w, s); err != nil {
		tmp.Close()
		return fmt.Errorf("save snapshot to %s: %w", fs.Path, err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("save snapshot to %s: %w", fs.Path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save snapshot to %s: %w", fs.Path, err)
	}
	if err := os.Rename(tmpName, fs.Path); err != nil {
		return fmt.Errorf("save snapshot to %s: %w", fs.Path, err)
	}

	fs.logger().Debug("snapshot saved", zap.String("file", fs.Path), zap.Int("items", len(s)))
	return nil
}

// Load reads the snapshot file, returning an empty snapshot when there is
// nothing usable to read.
func (fs *FileStore) Load() Snapshot {
	f, err := os.Open(fs.Path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fs.logger().Warn("snapshot unreadable, starting cold", zap.String("file", fs.Path), zap.Error(err))
		}
		return Snapshot{}
	}
	defer f.Close()

	s, err := DecodeSnapshot(bufio.NewReader(f))
	if err != nil {
		fs.logger().Warn("snapshot corrupt, starting cold", zap.String("file", fs.Path), zap.Error(err))
		return Snapshot{}
	}
	fs.logger().Debug("snapshot loaded", zap.String("file", fs.Path), zap.Int("items", len(s)))
	return s
}

func (fs *FileStore) logger() *zap.Logger {
	if fs.Logger == nil {
		return zap.NewNop()
	}
	return fs.Logger
}

// EncodeSnapshot writes the binary snapshot format to w.
func EncodeSnapshot(w io.Writer, s Snapshot) error {
	if _, err := w.Write(append(append([]byte(nil), snapshotMagic...), snapshotVersion)); err != nil {
		return err
	}
	return gob.NewEncoder(w).Encode(toRecords(s))
}

// DecodeSnapshot reads a snapshot written by EncodeSnapshot.
func DecodeSnapshot(r io.Reader) (Snapshot, error) {
	header := make([]byte, len(snapshotMagic)+1)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if !bytes.Equal(header[:len(snapshotMagic)], snapshotMagic) {
		return nil, errors.New("not a snapshot file")
	}
	if v := header[len(snapshotMagic)]; v != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", v)
	}

	var records []record
	if err := gob.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return fromRecords(records), nil
}
