package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"yashubustudio/labelmatch/emb"
	"yashubustudio/labelmatch/internal/rpc"
	"yashubustudio/labelmatch/labelmatch"
)

// newProvider returns a provider that opens the configured backend on first use.
func newProvider(ec labelmatch.EmbedderConfig, logger *log.Logger) *labelmatch.Provider {
	return labelmatch.NewProvider(func(ctx context.Context) (labelmatch.Embedder, error) {
		backend, err := openBackend(ctx, ec, logger)
		if err != nil {
			return nil, err
		}
		cached, err := labelmatch.NewCachedEmbedder(backend, ec.CacheDir)
		if err != nil {
			_ = backend.Close()
			return nil, err
		}
		return cached, nil
	}, logger)
}

func openBackend(ctx context.Context, ec labelmatch.EmbedderConfig, logger *log.Logger) (labelmatch.Embedder, error) {
	switch strings.ToLower(ec.Backend) {
	case labelmatch.BackendONNX:
		enc := &emb.Encoder{}
		if err := enc.Init(emb.Config{
			OrtDLL:        ec.OrtDLL,
			ModelPath:     ec.ModelPath,
			TokenizerPath: ec.TokenizerPath,
			MaxSeqLen:     ec.MaxSeqLen,
			ModelID:       ec.ModelID,
		}); err != nil {
			return nil, fmt.Errorf("init onnx encoder: %w", err)
		}
		return enc, nil
	case labelmatch.BackendGemini:
		enc, err := emb.NewGeminiEncoder(ctx, emb.GeminiConfig{
			APIKey:     ec.Gemini.APIKey,
			Model:      ec.Gemini.Model,
			Dimensions: ec.Gemini.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		return enc, nil
	case labelmatch.BackendProcess:
		proc, err := rpc.StartProcess(ec.Command, ec.ModelID, logger)
		if err != nil {
			return nil, err
		}
		return proc, nil
	}
	return nil, fmt.Errorf("unknown embedder backend %q", ec.Backend)
}

func loadCatalog(path string) (*labelmatch.Catalog, error) {
	if path == "" {
		path = cfg.CatalogPath
	}
	return labelmatch.LoadFile(path)
}
