package rpc

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubBackend embeds a text as a one-hot vector picked by its first byte.
type stubBackend struct {
	dims int
	err  error
}

func (s stubBackend) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (s stubBackend) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, s.dims)
		vec[int(t[0])%s.dims] = 1
		out[i] = vec
	}
	return out, nil
}

func (stubBackend) Close() error { return nil }

func (stubBackend) ModelID() string { return "stub-model" }

var errBackendDown = errors.New("backend down")
