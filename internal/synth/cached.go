package synth

import (
	"context"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/speakdoc/internal/cache"
)

// Store persists synthesized audio by key.
type Store interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
}

// CachedBackend serves repeated requests from a store so that re-running
// a document only pays for chunks whose markup or voice changed.
type CachedBackend struct {
	next   Backend
	store  Store
	logger *log.Logger
}

// NewCachedBackend wraps next with store. Requests log through the logger
// carried by their context (see log.WithContext) and fall back to logger.
func NewCachedBackend(next Backend, store Store, logger *log.Logger) *CachedBackend {
	if logger == nil {
		logger = log.Default()
	}
	return &CachedBackend{next: next, store: store, logger: logger}
}

func (b *CachedBackend) loggerFor(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(log.ContextKey).(*log.Logger); ok {
		return l
	}
	return b.logger
}

// Synthesize implements Backend.
func (b *CachedBackend) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	key := RequestKey(req)
	logger := b.loggerFor(ctx)
	if audio, ok := b.store.Get(key); ok && len(audio) > 0 {
		logger.Debug("Synthesis cache hit", "key", key[:12], "size", len(audio))
		return audio, nil
	}

	audio, err := b.next.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := b.store.Put(key, audio); err != nil {
		// non-fatal
		logger.Warn("Unable to cache synthesized audio", "key", key[:12], "error", err)
	}
	return audio, nil
}

// RequestKey identifies a request by everything that affects its audio.
func RequestKey(req Request) string {
	return cache.GenerateKey(
		req.Text,
		req.TextType,
		req.Voice,
		req.Engine,
		req.LanguageCode,
		strings.Join(req.Lexicons, ","),
		req.Format,
		strconv.Itoa(req.SampleRate),
	)
}
