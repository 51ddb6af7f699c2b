package jwks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jamestelfer/casting-gate/internal/failure"
	"github.com/rs/zerolog"
)

const (
	// DefaultFetchTimeout bounds a key set fetch when no timeout is configured.
	DefaultFetchTimeout = 5 * time.Second

	// key set documents are small; anything larger is not a key set
	maxDocumentBytes = 1 << 20
)

// Source supplies the issuer's current key set. Implementations report every
// retrieval problem as a KeySourceUnavailable failure.
type Source interface {
	KeySet(ctx context.Context) (KeySet, error)
}

// Invalidator is implemented by sources that hold keys between calls.
// Invalidate discards held keys so the next call fetches a fresh set. It
// returns false if the keys were not discarded, for example when they were
// fetched too recently to be worth refreshing.
type Invalidator interface {
	Invalidate(ctx context.Context) bool
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (KeySet, error)

func (f SourceFunc) KeySet(ctx context.Context) (KeySet, error) {
	return f(ctx)
}

// URLForDomain returns the well-known key set location for an issuer domain.
func URLForDomain(domain string) string {
	return "https://" + domain + "/.well-known/jwks.json"
}

// HTTPSource fetches the key set from a URL on every call.
type HTTPSource struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

type HTTPOption func(*HTTPSource)

// WithClient sets the HTTP client used for the fetch. The default is
// http.DefaultClient.
func WithClient(client *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		s.client = client
	}
}

// WithTimeout bounds each fetch. Values <= 0 are ignored.
func WithTimeout(timeout time.Duration) HTTPOption {
	return func(s *HTTPSource) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

func NewHTTPSource(url string, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		url:     url,
		client:  http.DefaultClient,
		timeout: DefaultFetchTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// URL is the location the key set is fetched from.
func (s *HTTPSource) URL() string {
	return s.url
}

// KeySet performs a GET of the key set document. The fetch is abandoned when
// either the timeout expires or ctx is cancelled.
func (s *HTTPSource) KeySet(ctx context.Context) (KeySet, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()

	ks, err := s.fetch(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("url", s.url).
			Dur("duration", time.Since(start)).
			Msg("key set fetch failed")

		return KeySet{}, failure.Wrap(failure.KeySourceUnavailable, err)
	}

	zerolog.Ctx(ctx).Debug().
		Str("url", s.url).
		Strs("kids", ks.KeyIDs()).
		Dur("duration", time.Since(start)).
		Msg("key set fetched")

	return ks, nil
}

func (s *HTTPSource) fetch(ctx context.Context) (KeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return KeySet{}, fmt.Errorf("key set request could not be created: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return KeySet{}, fmt.Errorf("key set request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDocumentBytes))
		return KeySet{}, fmt.Errorf("key set request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return KeySet{}, fmt.Errorf("key set response could not be read: %w", err)
	}

	return Parse(body)
}
