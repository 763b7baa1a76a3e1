package labelmatch

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Embedder is the backend contract behind a Provider. Implementations return one
// vector per input text, in input order.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Close() error
	ModelID() string
}

// CachedEmbedder memoizes another Embedder in memory and optionally on disk.
type CachedEmbedder struct {
	inner    Embedder
	cacheDir string

	mu       sync.RWMutex
	memCache map[uint64][]float32
}

// NewCachedEmbedder wraps inner. An empty cacheDir keeps the cache in memory only.
func NewCachedEmbedder(inner Embedder, cacheDir string) (*CachedEmbedder, error) {
	if inner == nil {
		return nil, errors.New("embedder is required")
	}
	if cacheDir != "" {
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	return &CachedEmbedder{
		inner:    inner,
		cacheDir: cacheDir,
		memCache: make(map[uint64][]float32),
	}, nil
}

// ModelID reports the wrapped model.
func (c *CachedEmbedder) ModelID() string {
	return c.inner.ModelID()
}

// Close releases the wrapped embedder and drops the memory cache.
func (c *CachedEmbedder) Close() error {
	c.mu.Lock()
	c.memCache = make(map[uint64][]float32)
	c.mu.Unlock()
	return c.inner.Close()
}

// EmbedText embeds a single string with caching.
func (c *CachedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts serves cached vectors and forwards only the misses to the wrapped embedder.
func (c *CachedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]uint64, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		keys[i] = c.cacheKey(t)
		if vec := c.getFromCache(keys[i]); vec != nil {
			out[i] = vec
			continue
		}
		if vec, err := c.loadFromDisk(keys[i]); err == nil {
			c.storeInMemory(keys[i], vec)
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	vecs, err := c.inner.EmbedTexts(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missTexts))
	}
	for k, i := range missIdx {
		vec := vecs[k]
		out[i] = cloneVector(vec)
		if len(vec) == 0 {
			continue
		}
		c.storeInMemory(keys[i], vec)
		_ = c.saveToDisk(keys[i], vec)
	}
	return out, nil
}

func (c *CachedEmbedder) cacheKey(text string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(c.inner.ModelID())
	_, _ = d.WriteString("|")
	_, _ = d.WriteString(text)
	return d.Sum64()
}

func (c *CachedEmbedder) getFromCache(key uint64) []float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if vec, ok := c.memCache[key]; ok {
		return cloneVector(vec)
	}
	return nil
}

func (c *CachedEmbedder) storeInMemory(key uint64, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memCache[key] = cloneVector(vec)
}

func (c *CachedEmbedder) cachePath(key uint64) string {
	return filepath.Join(c.cacheDir, fmt.Sprintf("%016x.bin", key))
}

func (c *CachedEmbedder) loadFromDisk(key uint64) ([]float32, error) {
	if c.cacheDir == "" {
		return nil, os.ErrNotExist
	}
	path := c.cachePath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("cache file too small: %s", path)
	}
	length := int(binary.LittleEndian.Uint32(data[:4]))
	data = data[4:]
	if length == 0 || len(data) != length*4 {
		return nil, fmt.Errorf("cache length mismatch: %s", path)
	}
	vec := make([]float32, length)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}

func (c *CachedEmbedder) saveToDisk(key uint64, vec []float32) error {
	if c.cacheDir == "" {
		return nil
	}
	path := c.cachePath(key)
	tmp := path + ".tmp"
	buf := make([]byte, 4+len(vec)*4)
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(vec)))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4+i*4:], math.Float32bits(v))
	}
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
