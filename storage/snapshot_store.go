package storage

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/maxpert/amqp-router/interfaces"
)

const (
	FileExtension     = ".cbor"
	TempFileExtension = ".tmp"
)

var _ interfaces.SnapshotStore = (*FileSnapshotStore)(nil)

// ErrStoreClosed is returned by operations on a closed store
var ErrStoreClosed = errors.New("snapshot store is closed")

// FileSnapshotStore persists entity snapshots as CBOR files, one file per
// entity ID under a directory per kind. Snapshots are cached in memory and
// loaded from disk when the store opens.
type FileSnapshotStore struct {
	baseDir string
	mutex   sync.RWMutex
	cache   map[string]interfaces.EntitySnapshot
	closed  bool

	encMode cbor.EncMode
}

// NewFileSnapshotStore opens or creates a snapshot store rooted at dir
func NewFileSnapshotStore(dir string) (*FileSnapshotStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory %s: %w", dir, err)
	}

	encMode, err := cbor.EncOptions{
		Time:    cbor.TimeRFC3339Nano,
		TimeTag: cbor.EncTagRequired,
		Sort:    cbor.SortCanonical,
	}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create cbor encoder: %w", err)
	}

	store := &FileSnapshotStore{
		baseDir: dir,
		cache:   make(map[string]interfaces.EntitySnapshot),
		encMode: encMode,
	}
	if err := store.loadCacheFromDisk(); err != nil {
		return nil, err
	}
	return store, nil
}

func cacheKey(kind, id string) string {
	return kind + "/" + id
}

func (s *FileSnapshotStore) path(kind, id string) string {
	return filepath.Join(s.baseDir, url.PathEscape(kind), url.PathEscape(id)+FileExtension)
}

// loadCacheFromDisk reads every snapshot file into the cache. Leftover
// temp files from an interrupted write are removed.
func (s *FileSnapshotStore) loadCacheFromDisk() error {
	kinds, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	for _, kind := range kinds {
		if !kind.IsDir() {
			continue
		}
		kindDir := filepath.Join(s.baseDir, kind.Name())
		entries, err := os.ReadDir(kindDir)
		if err != nil {
			return fmt.Errorf("failed to read snapshot directory: %w", err)
		}
		for _, entry := range entries {
			path := filepath.Join(kindDir, entry.Name())
			switch {
			case strings.HasSuffix(entry.Name(), TempFileExtension):
				os.Remove(path)
			case strings.HasSuffix(entry.Name(), FileExtension):
				snapshot, err := readSnapshot(path)
				if err != nil {
					return err
				}
				s.cache[cacheKey(snapshot.Kind, snapshot.ID)] = snapshot
			}
		}
	}
	return nil
}

func readSnapshot(path string) (interfaces.EntitySnapshot, error) {
	var snapshot interfaces.EntitySnapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshot, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	if err := cbor.Unmarshal(data, &snapshot); err != nil {
		return snapshot, fmt.Errorf("failed to unmarshal snapshot %s: %w", path, err)
	}
	return snapshot, nil
}

// atomicWrite writes data to a file atomically using temp file + rename
func atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempPath := path + TempFileExtension
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Put persists snapshot, replacing any earlier one for the same entity
func (s *FileSnapshotStore) Put(snapshot interfaces.EntitySnapshot) error {
	if snapshot.Kind == "" || snapshot.ID == "" {
		return fmt.Errorf("snapshot requires a kind and an id")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	data, err := s.encMode.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := atomicWrite(s.path(snapshot.Kind, snapshot.ID), data); err != nil {
		return err
	}
	s.cache[cacheKey(snapshot.Kind, snapshot.ID)] = snapshot
	return nil
}

// Get returns the snapshot of an entity
func (s *FileSnapshotStore) Get(kind, id string) (interfaces.EntitySnapshot, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return interfaces.EntitySnapshot{}, ErrStoreClosed
	}

	snapshot, ok := s.cache[cacheKey(kind, id)]
	if !ok {
		return interfaces.EntitySnapshot{}, interfaces.ErrSnapshotNotFound
	}
	return snapshot, nil
}

// Delete removes the snapshot of an entity
func (s *FileSnapshotStore) Delete(kind, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	key := cacheKey(kind, id)
	if _, ok := s.cache[key]; !ok {
		return interfaces.ErrSnapshotNotFound
	}
	if err := os.Remove(s.path(kind, id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	delete(s.cache, key)
	return nil
}

// List returns every snapshot ordered by kind, name, then id
func (s *FileSnapshotStore) List() ([]interfaces.EntitySnapshot, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	out := make([]interfaces.EntitySnapshot, 0, len(s.cache))
	for _, snapshot := range s.cache {
		out = append(out, snapshot)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Close releases the store. Later calls fail with ErrStoreClosed.
func (s *FileSnapshotStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.closed = true
	s.cache = nil
	return nil
}
