package labelmatch

import (
	"context"
	"fmt"
	"log"
	"time"
)

const defaultGenerateBatch = 32

// Generator embeds label definitions into a catalog.
type Generator struct {
	provider  *Provider
	batchSize int
	logger    *log.Logger
	now       func() time.Time
}

// NewGenerator returns a generator that embeds batchSize labels per provider call.
func NewGenerator(provider *Provider, batchSize int, logger *log.Logger) *Generator {
	if batchSize <= 0 {
		batchSize = defaultGenerateBatch
	}
	return &Generator{provider: provider, batchSize: batchSize, logger: logger, now: time.Now}
}

type pendingLabel struct {
	group int
	label int
	text  string
}

// Generate embeds every label of defs. Any failed label aborts the whole run.
func (g *Generator) Generate(ctx context.Context, defs *Definitions) (*Catalog, error) {
	if err := defs.Validate(); err != nil {
		return nil, err
	}
	modelID, err := g.provider.ModelID(ctx)
	if err != nil {
		return nil, err
	}
	if defs.Model != "" && modelID != "" && defs.Model != modelID {
		return nil, fmt.Errorf("%w: definitions target %q, provider serves %q", ErrModelMismatch, defs.Model, modelID)
	}
	if modelID == "" {
		modelID = defs.Model
	}

	cat := &Catalog{
		Version:       defs.Version,
		Model:         modelID,
		EmbeddingType: "semantic",
		Normalized:    true,
		GeneratedAt:   g.now().UTC().Format(time.RFC3339),
		Groups:        make([]*ConceptGroup, len(defs.Groups)),
	}
	var pending []pendingLabel
	for gi, gd := range defs.Groups {
		group := &ConceptGroup{
			Key:    gd.Key,
			Types:  append([]QuestionType(nil), gd.Types...),
			Labels: make([]LabelEntry, len(gd.Labels)),
		}
		for li, ld := range gd.Labels {
			normalized := Normalize(ld.Text, ModeCatalog)
			group.Labels[li] = LabelEntry{
				Text:           ld.Text,
				NormalizedText: normalized,
				Threshold:      ld.InitialThreshold(),
			}
			pending = append(pending, pendingLabel{group: gi, label: li, text: normalized})
		}
		cat.Groups[gi] = group
	}

	for start := 0; start < len(pending); start += g.batchSize {
		end := min(start+g.batchSize, len(pending))
		chunk := pending[start:end]
		texts := make([]string, len(chunk))
		for i, p := range chunk {
			texts[i] = p.text
		}
		results, err := g.provider.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed labels %d-%d: %w", start, end, err)
		}
		for i, res := range results {
			p := chunk[i]
			entry := &cat.Groups[p.group].Labels[p.label]
			if res.Err != nil {
				return nil, fmt.Errorf("embed %s label %q: %w", cat.Groups[p.group].Key, entry.Text, res.Err)
			}
			if cat.Dimensions == 0 {
				cat.Dimensions = len(res.Vector)
			}
			if len(res.Vector) != cat.Dimensions {
				return nil, fmt.Errorf("%w: %s label %q has %d values, expected %d",
					ErrDimensionMismatch, cat.Groups[p.group].Key, entry.Text, len(res.Vector), cat.Dimensions)
			}
			entry.Embedding = res.Vector
		}
		g.logf("embedded %d/%d labels", end, len(pending))
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

func (g *Generator) logf(format string, args ...any) {
	if g.logger != nil {
		g.logger.Printf(format, args...)
	}
}
