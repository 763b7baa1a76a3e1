package labelmatch

import (
	"context"
	"errors"
	"log"
	"sort"

	"golang.org/x/sync/errgroup"
)

// QueryEmbedder embeds one normalized label for the semantic pass.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// EmbedFunc adapts a function to QueryEmbedder.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// EmbedOne calls f.
func (f EmbedFunc) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

type matchGroup struct {
	group *ConceptGroup
	exact []string
}

// Matcher resolves discovered questions to concept groups of a catalog.
// It is safe for concurrent use.
type Matcher struct {
	catalog  *Catalog
	embedder QueryEmbedder
	sim      func(a, b []float32) float64

	groups []matchGroup
	byKey  map[string]int

	logger *log.Logger
}

// NewMatcher prepares a matcher over cat. The catalog must not be modified afterwards.
func NewMatcher(cat *Catalog, embedder QueryEmbedder, logger *log.Logger) (*Matcher, error) {
	if cat == nil {
		return nil, errors.New("catalog is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	m := &Matcher{
		catalog:  cat,
		embedder: embedder,
		sim:      similarityFunc(cat.Normalized),
		groups:   make([]matchGroup, len(cat.Groups)),
		byKey:    make(map[string]int, len(cat.Groups)),
		logger:   logger,
	}
	for i, g := range cat.Groups {
		exact := make([]string, len(g.Labels))
		for j, l := range g.Labels {
			exact[j] = Normalize(l.Text, ModeCatalog)
		}
		m.groups[i] = matchGroup{group: g, exact: exact}
		m.byKey[g.Key] = i
	}
	return m, nil
}

// Catalog returns the catalog the matcher was built on.
func (m *Matcher) Catalog() *Catalog {
	return m.catalog
}

// Match returns the concept groups q most likely belongs to, best first.
// It returns nil when nothing qualifies; embedding failures are logged, not returned.
func (m *Matcher) Match(ctx context.Context, q Question, sel Selection, opts MatchOptions) []MatchResult {
	if sel.IsNone() {
		return nil
	}
	label := Normalize(q.LabelText, ModeDiscovered)
	if label == "" {
		m.debugf(opts, "skip empty label %q", q.LabelText)
		return nil
	}
	if IsBlacklisted(label) {
		m.debugf(opts, "skip blacklisted label %q", label)
		return nil
	}
	eligible := m.eligible(sel, q.Type)
	if len(eligible) == 0 {
		return nil
	}

	for _, mg := range eligible {
		for i, text := range mg.exact {
			if text == label {
				m.debugf(opts, "exact %q -> %s (label %q)", label, mg.group.Key, mg.group.Labels[i].Text)
				return []MatchResult{{GroupKey: mg.group.Key, SimilarityScore: 1}}
			}
		}
	}

	vec, err := m.embedder.EmbedOne(ctx, label)
	if err != nil {
		m.logf("embed %q: %v", label, err)
		return nil
	}
	if len(vec) != m.catalog.Dimensions {
		m.logf("embed %q: got %d values, catalog declares %d", label, len(vec), m.catalog.Dimensions)
		return nil
	}

	var results []MatchResult
	for _, mg := range eligible {
		var best float64
		found := false
		for _, l := range mg.group.Labels {
			score := m.sim(vec, l.Embedding)
			if score < l.Threshold {
				continue
			}
			m.debugf(opts, "semantic %q ~ %q = %.4f (threshold %.3f) -> %s", label, l.Text, score, l.Threshold, mg.group.Key)
			if opts.EarlyExit {
				return []MatchResult{{GroupKey: mg.group.Key, SimilarityScore: score}}
			}
			if !found || score > best {
				best = score
				found = true
			}
		}
		if found {
			results = append(results, MatchResult{GroupKey: mg.group.Key, SimilarityScore: best})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].SimilarityScore > results[j].SimilarityScore
	})
	return results
}

// MatchAll matches every question with up to workers concurrent calls.
// Results are returned in question order.
func (m *Matcher) MatchAll(ctx context.Context, questions []Question, sel Selection, opts MatchOptions, workers int) [][]MatchResult {
	out := make([][]MatchResult, len(questions))
	if workers <= 0 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i, q := range questions {
		g.Go(func() error {
			out[i] = m.Match(ctx, q, sel, opts)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (m *Matcher) eligible(sel Selection, t QuestionType) []matchGroup {
	var out []matchGroup
	if sel.IsAll() {
		for _, mg := range m.groups {
			if mg.group.Allows(t) {
				out = append(out, mg)
			}
		}
		return out
	}
	for _, key := range sel.keys {
		i, ok := m.byKey[key]
		if !ok {
			continue
		}
		if mg := m.groups[i]; mg.group.Allows(t) {
			out = append(out, mg)
		}
	}
	return out
}

func (m *Matcher) debugf(opts MatchOptions, format string, args ...any) {
	if opts.Debug {
		m.logf(format, args...)
	}
}

func (m *Matcher) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
