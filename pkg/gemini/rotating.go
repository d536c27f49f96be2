package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
)

// LogSink receives one diagnostic line per rotation event. Implementations
// must not fail the caller.
type LogSink interface {
	Append(line string)
}

// Observer is notified about the outcome of every attempt.
type Observer interface {
	Succeeded(op string, attempt int)
	Rotated(op string, kind ErrorKind)
	Failed(op string, kind ErrorKind)
}

type Option func(*RotatingGenerator)

func WithLogSink(s LogSink) Option {
	return func(g *RotatingGenerator) { g.sink = s }
}

func WithObserver(o Observer) Option {
	return func(g *RotatingGenerator) { g.observer = o }
}

// RotatingGenerator spreads calls over several API keys. Successful calls
// advance to the next key; a 401/403 moves on to the next key and retries,
// at most once per key. Any other error is returned straight away.
type RotatingGenerator struct {
	keys     *KeyManager
	factory  Factory
	sink     LogSink
	observer Observer
}

var _ ContentGenerator = (*RotatingGenerator)(nil)

func NewRotatingGenerator(keys []string, factory Factory, opts ...Option) (*RotatingGenerator, error) {
	if len(keys) == 0 {
		return nil, ErrNoAPIKeys
	}
	if factory == nil {
		return nil, errors.New("rotating generator: factory must not be nil")
	}
	g := &RotatingGenerator{
		keys:    NewKeyManager(keys),
		factory: factory,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Keys exposes the key manager, mostly for diagnostics.
func (g *RotatingGenerator) Keys() *KeyManager {
	return g.keys
}

func (g *RotatingGenerator) GenerateContent(ctx context.Context, req *GenerateRequest, promptID string) (*genai.GenerateContentResponse, error) {
	return execute(ctx, g, "generate_content", func(h ContentGenerator) (*genai.GenerateContentResponse, error) {
		defer release(h)
		return h.GenerateContent(ctx, req, promptID)
	})
}

// GenerateContentStream opens a stream and waits for its first chunk before
// returning, so a rejected key is rotated like in the other operations.
// Errors after the first chunk reach the caller through Next and are not
// retried.
func (g *RotatingGenerator) GenerateContentStream(ctx context.Context, req *GenerateRequest, promptID string) (ResponseStream, error) {
	return execute(ctx, g, "generate_content_stream", func(h ContentGenerator) (ResponseStream, error) {
		s, err := h.GenerateContentStream(ctx, req, promptID)
		if err != nil {
			release(h)
			return nil, err
		}
		first, err := s.Next()
		if err != nil && !errors.Is(err, iterator.Done) {
			_ = s.Close()
			release(h)
			return nil, err
		}
		return &primedStream{first: first, firstErr: err, inner: s, handle: h}, nil
	})
}

func (g *RotatingGenerator) CountTokens(ctx context.Context, req *CountTokensRequest) (*genai.CountTokensResponse, error) {
	return execute(ctx, g, "count_tokens", func(h ContentGenerator) (*genai.CountTokensResponse, error) {
		defer release(h)
		return h.CountTokens(ctx, req)
	})
}

func (g *RotatingGenerator) EmbedContent(ctx context.Context, req *EmbedRequest) (*genai.EmbedContentResponse, error) {
	return execute(ctx, g, "embed_content", func(h ContentGenerator) (*genai.EmbedContentResponse, error) {
		defer release(h)
		return h.EmbedContent(ctx, req)
	})
}

func execute[T any](ctx context.Context, g *RotatingGenerator, op string, call func(ContentGenerator) (T, error)) (T, error) {
	var zero T

	if !g.keys.HasMultiple() {
		res, _, err := attempt(ctx, g, call)
		if err != nil {
			g.failed(op, err)
			return zero, err
		}
		if g.observer != nil {
			g.observer.Succeeded(op, 0)
		}
		return res, nil
	}

	maxAttempts := g.keys.Count()
	var lastErr error

	for i := 0; i < maxAttempts; i++ {
		res, key, err := attempt(ctx, g, call)
		if err == nil {
			g.keys.Advance()
			g.logf("[SUCCESS] Request succeeded. Next request will use key ending with \"...%s\"", Suffix(g.keys.Current()))
			if g.observer != nil {
				g.observer.Succeeded(op, i)
			}
			return res, nil
		}
		lastErr = err

		if Classify(err) == AuthFailure && i < maxAttempts-1 {
			g.keys.Advance()
			g.logf("[FAILURE] API Key ending with \"...%s\" failed. Attempting key ending with \"...%s\"", Suffix(key), Suffix(g.keys.Current()))
			if g.observer != nil {
				g.observer.Rotated(op, AuthFailure)
			}
			continue
		}

		g.failed(op, err)
		return zero, err
	}

	g.failed(op, lastErr)
	return zero, lastErr
}

// attempt builds a handle for the current key and runs call against it. It
// returns the key it used.
func attempt[T any](ctx context.Context, g *RotatingGenerator, call func(ContentGenerator) (T, error)) (T, string, error) {
	key := g.keys.Current()
	h, err := g.factory(ctx, key)
	if err != nil {
		var zero T
		return zero, key, err
	}
	res, err := call(h)
	return res, key, err
}

func (g *RotatingGenerator) failed(op string, err error) {
	if g.observer != nil {
		g.observer.Failed(op, Classify(err))
	}
}

func (g *RotatingGenerator) logf(format string, args ...any) {
	if g.sink == nil {
		return
	}
	g.sink.Append(fmt.Sprintf(format, args...))
}

// primedStream replays the chunk read while the stream was being opened and
// closes the underlying client once the stream ends. The error that ended
// the stream is returned by every later Next.
type primedStream struct {
	first    *genai.GenerateContentResponse
	firstErr error
	started  bool
	inner    ResponseStream
	handle   ContentGenerator
	closed   bool
	err      error
}

func (s *primedStream) Next() (*genai.GenerateContentResponse, error) {
	if !s.started {
		s.started = true
		if s.firstErr != nil {
			return nil, s.finish(s.firstErr)
		}
		return s.first, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.closed {
		return nil, iterator.Done
	}
	resp, err := s.inner.Next()
	if err != nil {
		return nil, s.finish(err)
	}
	return resp, nil
}

func (s *primedStream) finish(err error) error {
	s.err = err
	_ = s.Close()
	return err
}

func (s *primedStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.inner.Close()
	release(s.handle)
	return err
}
