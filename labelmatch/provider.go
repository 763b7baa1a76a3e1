package labelmatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ProviderState is the lifecycle position of a Provider.
type ProviderState int

const (
	StateUninitialized ProviderState = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s ProviderState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("ProviderState(%d)", int(s))
}

// Loader constructs the embedding backend. It is called at most once at a time.
type Loader func(ctx context.Context) (Embedder, error)

// EmbedResult is the outcome for one input of Provider.Embed.
type EmbedResult struct {
	Vector []float32
	Err    error
}

const unitTolerance = 1e-3

// Provider is the process-wide gateway to an embedding backend. The backend is
// loaded lazily on first use; concurrent callers share a single load, and a failed
// load is forgotten so the next call tries again.
type Provider struct {
	load   Loader
	logger *log.Logger

	flight singleflight.Group

	mu      sync.RWMutex
	state   ProviderState
	backend Embedder
	lastErr error
	dims    int
}

// NewProvider returns a provider that calls load on first use.
func NewProvider(load Loader, logger *log.Logger) *Provider {
	return &Provider{load: load, logger: logger}
}

// NewStaticProvider wraps an already constructed backend.
func NewStaticProvider(backend Embedder, logger *log.Logger) *Provider {
	return NewProvider(func(context.Context) (Embedder, error) { return backend, nil }, logger)
}

// State reports the current lifecycle state.
func (p *Provider) State() ProviderState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// LastError returns the error of the most recent failed load, if any.
func (p *Provider) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// Acquire returns the ready backend, loading it if needed. A caller whose context
// ends stops waiting; the shared load keeps running for the others.
func (p *Provider) Acquire(ctx context.Context) (Embedder, error) {
	p.mu.RLock()
	backend := p.backend
	p.mu.RUnlock()
	if backend != nil {
		return backend, nil
	}
	if p.load == nil {
		return nil, fmt.Errorf("%w: no loader configured", ErrProvider)
	}
	ch := p.flight.DoChan("load", func() (any, error) {
		return p.doLoad(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrProvider, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProvider, res.Err)
		}
		return res.Val.(Embedder), nil
	}
}

func (p *Provider) doLoad(ctx context.Context) (Embedder, error) {
	p.mu.Lock()
	if p.backend != nil {
		b := p.backend
		p.mu.Unlock()
		return b, nil
	}
	p.state = StateInitializing
	p.mu.Unlock()

	p.logf("loading embedding backend")
	backend, err := p.load(ctx)
	if err == nil && backend == nil {
		err = errors.New("loader returned no backend")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.state = StateFailed
		p.lastErr = err
		p.logf("embedding backend failed to load: %v", err)
		return nil, err
	}
	p.backend = backend
	p.state = StateReady
	p.lastErr = nil
	p.logf("embedding backend ready: %s", backend.ModelID())
	return backend, nil
}

// ModelID acquires the backend and reports its model.
func (p *Provider) ModelID(ctx context.Context) (string, error) {
	backend, err := p.Acquire(ctx)
	if err != nil {
		return "", err
	}
	return backend.ModelID(), nil
}

// Embed returns one result per text in input order. Blank texts get a per-item
// ErrEmptyText without reaching the backend. The returned error is set only when
// the backend could not be acquired or failed for the whole batch.
func (p *Provider) Embed(ctx context.Context, texts []string) ([]EmbedResult, error) {
	backend, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]EmbedResult, len(texts))
	idx := make([]int, 0, len(texts))
	batch := make([]string, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			results[i].Err = ErrEmptyText
			continue
		}
		idx = append(idx, i)
		batch = append(batch, t)
	}
	if len(batch) == 0 {
		return results, nil
	}
	vecs, err := backend.EmbedTexts(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("%w: backend returned %d vectors for %d texts", ErrProvider, len(vecs), len(batch))
	}
	dims := p.expectedDims()
	for k, i := range idx {
		vec := vecs[k]
		switch {
		case len(vec) == 0:
			results[i].Err = fmt.Errorf("%w: empty vector for %q", ErrProvider, batch[k])
		case dims > 0 && len(vec) != dims:
			results[i].Err = fmt.Errorf("%w: got %d values, want %d", ErrDimensionMismatch, len(vec), dims)
		default:
			if !IsUnit(vec, unitTolerance) {
				vec = L2Normalize(cloneVector(vec))
			}
			results[i].Vector = vec
		}
	}
	return results, nil
}

// EmbedOne embeds a single text.
func (p *Provider) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	results, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if results[0].Err != nil {
		return nil, results[0].Err
	}
	return results[0].Vector, nil
}

// Verify checks that the live backend serves the model and dimensionality the
// catalog was built with. Mismatches are ErrConfiguration.
func (p *Provider) Verify(ctx context.Context, cat *Catalog) error {
	backend, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	sample := "email"
	if len(cat.Groups) > 0 && len(cat.Groups[0].Labels) > 0 {
		sample = cat.Groups[0].Labels[0].NormalizedText
	}
	// Embed first: a remote backend only learns its peer's model from a response.
	vec, err := p.EmbedOne(ctx, sample)
	if err != nil {
		return fmt.Errorf("sample embedding: %w", err)
	}
	if err := cat.CheckModel(backend.ModelID()); err != nil {
		return err
	}
	if err := cat.CheckDimensions(len(vec)); err != nil {
		return err
	}
	p.mu.Lock()
	p.dims = cat.Dimensions
	p.mu.Unlock()
	return nil
}

// Close releases the backend. A later call loads it again.
func (p *Provider) Close() error {
	p.mu.Lock()
	backend := p.backend
	p.backend = nil
	p.state = StateUninitialized
	p.dims = 0
	p.mu.Unlock()
	if backend == nil {
		return nil
	}
	return backend.Close()
}

func (p *Provider) expectedDims() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dims
}

func (p *Provider) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}
