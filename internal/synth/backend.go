// Package synth drives a speech backend over a document's chunks. Every
// chunk is synthesized concurrently with bounded, immediate retries and the
// resulting audio is written to one part file per chunk.
package synth

import "context"

// TextTypeSSML marks request text as SSML markup.
const TextTypeSSML = "ssml"

// Request is a single synthesis call.
type Request struct {
	Text     string
	TextType string

	Voice        string
	Engine       string
	LanguageCode string
	Lexicons     []string

	// Format is the backend's output format name, e.g. "mp3".
	Format     string
	SampleRate int
}

// Backend turns one request into an audio payload. Implementations must be
// safe for concurrent use.
type Backend interface {
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, req Request) ([]byte, error)

// Synthesize calls f.
func (f BackendFunc) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	return f(ctx, req)
}
