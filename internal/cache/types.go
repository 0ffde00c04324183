package cache

import (
	"errors"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrClosed is returned when the store is used after Close
	ErrClosed = errors.New("cache is closed")
)

// Stats holds cache performance metrics
type Stats struct {
	Capacity  int64 // Maximum capacity in bytes
	Size      int64 // Current size on disk in bytes
	ItemCount int64

	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64 // hits / (hits + misses)

	LastAccess time.Time
	LastEvict  time.Time
}

// Config holds configuration for a Store
type Config struct {
	Dir      string
	Capacity int64 // Bytes

	// CompressionLevel is the zstd level (1-22); 0 disables compression.
	CompressionLevel int

	// TTL drops entries older than this when the store is opened.
	// Zero keeps entries forever.
	TTL time.Duration
}

// DefaultConfig returns default cache configuration
func DefaultConfig(dir string) Config {
	return Config{
		Dir:              dir,
		Capacity:         1024 * 1024 * 1024, // 1GB
		CompressionLevel: 3,
		TTL:              30 * 24 * time.Hour,
	}
}
