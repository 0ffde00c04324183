// Package cache persists synthesized chunk audio on disk so that re-running
// a document only re-synthesizes the chunks that changed. Entries are zstd
// compressed when that saves space and evicted least recently used first.
package cache
