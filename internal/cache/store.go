package cache

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const indexName = "cache.index"

// Store is a disk-backed cache of synthesized audio. It is safe for
// concurrent use; the index is persisted on Close.
type Store struct {
	dir      string
	capacity int64
	size     int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index  map[string]*entry
	closed bool

	mu    sync.Mutex
	stats Stats
}

// entry is one cached item in the persisted index
type entry struct {
	Key          string
	FilePath     string
	Size         int64 // on disk
	OriginalSize int64
	Timestamp    time.Time
	LastAccess   time.Time
	Hits         int64
	Compressed   bool
}

// Open opens or creates the store in cfg.Dir.
func Open(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	s := &Store{
		dir:      cfg.Dir,
		capacity: cfg.Capacity,
		index:    make(map[string]*entry),
		stats:    Stats{Capacity: cfg.Capacity},
	}

	if cfg.CompressionLevel > 0 {
		var err error
		s.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(cfg.CompressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		s.decoder, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
	}

	if err := s.loadIndex(); err != nil {
		// start over with an empty index
		s.index = make(map[string]*entry)
	}
	if cfg.TTL > 0 {
		s.pruneOlderThan(time.Now().Add(-cfg.TTL))
	}
	s.calculateSize()

	return s, nil
}

// Get returns the cached value for key.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.index[key]
	if !ok || s.closed {
		s.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(e.FilePath)
	if err != nil {
		s.drop(key, e)
		s.stats.Misses++
		return nil, false
	}

	if e.Compressed {
		if s.decoder == nil {
			s.drop(key, e)
			s.stats.Misses++
			return nil, false
		}
		data, err = s.decoder.DecodeAll(data, nil)
		if err != nil {
			s.drop(key, e)
			s.stats.Misses++
			return nil, false
		}
	}

	e.LastAccess = time.Now()
	e.Hits++
	s.stats.Hits++
	s.stats.LastAccess = e.LastAccess

	return data, true
}

// Put stores value under key, evicting least recently used entries to stay
// within capacity.
func (s *Store) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	data, compressed := value, false
	if s.encoder != nil && len(value) > 1024 {
		if packed := s.encoder.EncodeAll(value, nil); len(packed) < len(value) {
			data, compressed = packed, true
		}
	}

	diskSize := int64(len(data))
	if diskSize > s.capacity {
		return ErrItemTooLarge
	}

	if existing, ok := s.index[key]; ok {
		s.drop(key, existing)
	}
	for s.size+diskSize > s.capacity && len(s.index) > 0 {
		s.evictOldest()
	}

	path := s.filePath(key)
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	now := time.Now()
	s.index[key] = &entry{
		Key:          key,
		FilePath:     path,
		Size:         diskSize,
		OriginalSize: int64(len(value)),
		Timestamp:    now,
		LastAccess:   now,
		Compressed:   compressed,
	}
	s.size += diskSize
	return nil
}

// Delete removes key from the store.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.index[key]; ok {
		s.drop(key, e)
	}
	return nil
}

// Clear removes every entry.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.index {
		s.drop(key, e)
	}
	return s.saveIndex()
}

// Contains reports whether key is cached without touching its access time.
func (s *Store) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.index[key]
	return ok
}

// Stats returns cache statistics.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	stats.Size = s.size
	stats.ItemCount = int64(len(s.index))
	if stats.Hits+stats.Misses > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.Hits+stats.Misses)
	}
	return stats
}

// Close persists the index. The store must not be used afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.encoder != nil {
		_ = s.encoder.Close()
	}
	if s.decoder != nil {
		s.decoder.Close()
	}
	return s.saveIndex()
}

// drop removes an entry and its file; callers hold the lock.
func (s *Store) drop(key string, e *entry) {
	_ = os.Remove(e.FilePath)
	delete(s.index, key)
	s.size -= e.Size
}

func (s *Store) evictOldest() {
	var oldest *entry
	for _, e := range s.index {
		if oldest == nil || e.LastAccess.Before(oldest.LastAccess) {
			oldest = e
		}
	}
	if oldest != nil {
		s.drop(oldest.Key, oldest)
		s.stats.Evictions++
		s.stats.LastEvict = time.Now()
	}
}

func (s *Store) pruneOlderThan(cutoff time.Time) {
	for key, e := range s.index {
		if e.Timestamp.Before(cutoff) {
			s.drop(key, e)
		}
	}
}

func (s *Store) filePath(key string) string {
	return filepath.Join(s.dir, key+".audio")
}

func (s *Store) calculateSize() {
	s.size = 0
	for _, e := range s.index {
		s.size += e.Size
	}
}

func (s *Store) loadIndex() error {
	f, err := os.Open(filepath.Join(s.dir, indexName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close() //nolint:errcheck

	return gob.NewDecoder(f).Decode(&s.index)
}

func (s *Store) saveIndex() error {
	path := filepath.Join(s.dir, indexName)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = gob.NewEncoder(f).Encode(s.index)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// writeFileAtomic writes to a temp file and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
