package labelmatch

import (
	"context"
	"sync"
)

// fakeBackend is a deterministic in-memory Embedder.
type fakeBackend struct {
	mu      sync.Mutex
	model   string
	dims    int
	vectors map[string][]float32
	err     error
	calls   int
	seen    []string
	closed  bool
}

func newFakeBackend(model string, dims int) *fakeBackend {
	return &fakeBackend{model: model, dims: dims, vectors: make(map[string][]float32)}
}

func (f *fakeBackend) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeBackend) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.seen = append(f.seen, texts...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = cloneVector(v)
			continue
		}
		out[i] = textVector(t, f.dims)
	}
	return out, nil
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeBackend) ModelID() string { return f.model }

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// textVector derives a stable unit vector from text.
func textVector(text string, dims int) []float32 {
	vec := make([]float32, dims)
	for i, r := range text {
		vec[i%dims] += float32(r%7 + 1)
	}
	return L2Normalize(vec)
}

func unit(values ...float32) []float32 {
	return L2Normalize(values)
}

func label(text string, threshold float64, vec ...float32) LabelEntry {
	return LabelEntry{
		Text:           text,
		NormalizedText: Normalize(text, ModeCatalog),
		Threshold:      threshold,
		Embedding:      vec,
	}
}

func group(key string, types []QuestionType, labels ...LabelEntry) *ConceptGroup {
	return &ConceptGroup{Key: key, Types: types, Labels: labels}
}

func catalogOf(dims int, groups ...*ConceptGroup) *Catalog {
	return &Catalog{
		Version:       1,
		Model:         "test-model",
		EmbeddingType: "semantic",
		Normalized:    true,
		Dimensions:    dims,
		Groups:        groups,
	}
}
