package calibration

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/banshee-data/dealr/internal/fsutil"
	"github.com/banshee-data/dealr/internal/monitoring"
)

// ErrNoImage is returned by a Backend that has never been written.
var ErrNoImage = errors.New("no calibration image stored")

// Backend persists the raw calibration image.
type Backend interface {
	Load() ([]byte, error)
	Save([]byte) error
}

// FileBackend keeps the image in a single file.
type FileBackend struct {
	fs   fsutil.FileSystem
	path string
}

// NewFileBackend returns a backend writing path through fsys.
func NewFileBackend(fsys fsutil.FileSystem, path string) *FileBackend {
	return &FileBackend{fs: fsys, path: path}
}

func (b *FileBackend) Load() ([]byte, error) {
	data, err := b.fs.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoImage
	}
	return data, err
}

func (b *FileBackend) Save(data []byte) error {
	return fsutil.WriteFileAtomic(b.fs, b.path, data, 0o644)
}

// Store is the in-memory copy of the calibration plus its backend. It is
// read by the control loop and the debug server, so access is locked.
type Store struct {
	backend Backend

	mu  sync.RWMutex
	rec Record
}

// Open loads the stored calibration. A missing, unreadable or
// version-mismatched image is replaced by the factory defaults, which are
// written back before Open returns.
func Open(backend Backend) (*Store, error) {
	s := &Store{backend: backend}

	data, err := backend.Load()
	if err == nil {
		rec, derr := Decode(data, NumIdentities)
		if derr == nil {
			s.rec = rec
			return s, nil
		}
		err = derr
	}
	if !errors.Is(err, ErrNoImage) {
		monitoring.Logf("calibration: %v; restoring defaults", err)
	}

	s.rec = DefaultRecord()
	if err := backend.Save(Encode(s.rec)); err != nil {
		return nil, fmt.Errorf("failed to seed calibration defaults: %w", err)
	}
	return s, nil
}

// Table returns a copy of the current colour table.
func (s *Store) Table() ColorTable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.Table.Clone()
}

// Centroid returns one identity's centroid.
func (s *Store) Centroid(id Identity) Centroid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.Table[id]
}

// Threshold returns the marked-card brightness threshold.
func (s *Store) Threshold() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.Threshold
}

// SetCentroid replaces one identity and persists the whole image.
func (s *Store) SetCentroid(id Identity, c Centroid) error {
	if id < 0 || int(id) >= NumIdentities {
		return fmt.Errorf("identity %d out of range", id)
	}
	return s.update(func(r *Record) { r.Table[id] = c })
}

// SetThreshold persists a new marked-card threshold.
func (s *Store) SetThreshold(v uint16) error {
	return s.update(func(r *Record) { r.Threshold = v })
}

// update applies fn to a copy and only swaps it in once the backend accepted
// the write, so a failed save leaves memory and storage agreeing.
func (s *Store) update(fn func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := Record{Version: s.rec.Version, Table: s.rec.Table.Clone(), Threshold: s.rec.Threshold}
	fn(&next)
	if err := s.backend.Save(Encode(next)); err != nil {
		return fmt.Errorf("failed to save calibration: %w", err)
	}
	s.rec = next
	return nil
}
