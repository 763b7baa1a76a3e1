package labelmatch

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// DefaultLabelThreshold applies to labels persisted without a threshold.
const DefaultLabelThreshold = 0.85

// LabelEntry is one phrasing of a concept together with its embedding and acceptance threshold.
type LabelEntry struct {
	Text           string
	NormalizedText string
	Threshold      float64
	Embedding      []float32
}

// ConceptGroup is a named question concept with the question types it applies to.
type ConceptGroup struct {
	Key    string
	Types  []QuestionType
	Labels []LabelEntry
}

// Allows reports whether the group applies to questions of type t.
func (g *ConceptGroup) Allows(t QuestionType) bool {
	for _, allowed := range g.Types {
		if allowed == t {
			return true
		}
	}
	return false
}

// Catalog is the persisted collection of concept groups. It is read-only once loaded.
type Catalog struct {
	Version       int
	Model         string
	EmbeddingType string
	Normalized    bool
	Dimensions    int
	GeneratedAt   string
	Groups        []*ConceptGroup
}

// Group returns the group stored under key.
func (c *Catalog) Group(key string) (*ConceptGroup, bool) {
	for _, g := range c.Groups {
		if g.Key == key {
			return g, true
		}
	}
	return nil, false
}

// Keys lists group keys in document order.
func (c *Catalog) Keys() []string {
	out := make([]string, len(c.Groups))
	for i, g := range c.Groups {
		out[i] = g.Key
	}
	return out
}

// LabelCount is the total number of labels across all groups.
func (c *Catalog) LabelCount() int {
	n := 0
	for _, g := range c.Groups {
		n += len(g.Labels)
	}
	return n
}

// Clone returns a deep copy that can be modified without affecting c.
func (c *Catalog) Clone() *Catalog {
	out := *c
	out.Groups = make([]*ConceptGroup, len(c.Groups))
	for i, g := range c.Groups {
		ng := &ConceptGroup{
			Key:    g.Key,
			Types:  append([]QuestionType(nil), g.Types...),
			Labels: make([]LabelEntry, len(g.Labels)),
		}
		for j, l := range g.Labels {
			l.Embedding = cloneVector(l.Embedding)
			ng.Labels[j] = l
		}
		out.Groups[i] = ng
	}
	return &out
}

// Validate checks the structural invariants a catalog must hold before it is used.
func (c *Catalog) Validate() error {
	if c.Dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got %d", ErrMalformedCatalog, c.Dimensions)
	}
	if len(c.Groups) == 0 {
		return fmt.Errorf("%w: no question groups", ErrMalformedCatalog)
	}
	seen := make(map[string]struct{}, len(c.Groups))
	for _, g := range c.Groups {
		if g.Key == "" {
			return fmt.Errorf("%w: group with empty key", ErrMalformedCatalog)
		}
		if _, dup := seen[g.Key]; dup {
			return fmt.Errorf("%w: duplicate group %s", ErrMalformedCatalog, g.Key)
		}
		seen[g.Key] = struct{}{}
		if len(g.Labels) == 0 {
			return fmt.Errorf("%w: group %s has no labels", ErrMalformedCatalog, g.Key)
		}
		for i, l := range g.Labels {
			if l.Text == "" {
				return fmt.Errorf("%w: group %s label %d has no text", ErrMalformedCatalog, g.Key, i)
			}
			if len(l.Embedding) == 0 {
				return fmt.Errorf("%w: group %s label %q has no embedding", ErrMalformedCatalog, g.Key, l.Text)
			}
			if len(l.Embedding) != c.Dimensions {
				return fmt.Errorf("%w: group %s label %q has %d values, catalog declares %d",
					ErrDimensionMismatch, g.Key, l.Text, len(l.Embedding), c.Dimensions)
			}
			if c.Normalized && !IsUnit(l.Embedding, unitTolerance) {
				return fmt.Errorf("%w: group %s label %q is not unit length in a normalized catalog",
					ErrMalformedCatalog, g.Key, l.Text)
			}
		}
	}
	return nil
}

// CheckModel fails when the catalog was generated by a different embedding model.
func (c *Catalog) CheckModel(modelID string) error {
	if c.Model != "" && modelID != "" && c.Model != modelID {
		return fmt.Errorf("%w: catalog built with %q, provider serves %q", ErrModelMismatch, c.Model, modelID)
	}
	return nil
}

// CheckDimensions fails when the provider produces vectors of a different length.
func (c *Catalog) CheckDimensions(dims int) error {
	if dims != c.Dimensions {
		return fmt.Errorf("%w: catalog declares %d, provider returns %d", ErrDimensionMismatch, c.Dimensions, dims)
	}
	return nil
}

// Load decodes and validates a catalog document.
func Load(r io.Reader) (*Catalog, error) {
	var doc catalogDoc
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCatalog, err)
	}
	cat := &Catalog{
		Version:       doc.Version,
		Model:         doc.Model,
		EmbeddingType: doc.EmbeddingType,
		Normalized:    doc.Normalized,
		Dimensions:    doc.Dimensions,
		GeneratedAt:   doc.GeneratedAt,
		Groups:        make([]*ConceptGroup, 0, len(doc.Questions)),
	}
	for _, gd := range doc.Questions {
		g := &ConceptGroup{
			Key:    gd.key,
			Types:  gd.Type,
			Labels: make([]LabelEntry, 0, len(gd.Labels)),
		}
		for _, ld := range gd.Labels {
			vec, err := decodeVector(ld.Embedding)
			if err != nil {
				return nil, fmt.Errorf("%w: group %s label %q: %v", ErrMalformedCatalog, gd.key, ld.Text, err)
			}
			entry := LabelEntry{
				Text:           ld.Text,
				NormalizedText: ld.NormalizedText,
				Threshold:      ld.Threshold,
				Embedding:      vec,
			}
			if entry.NormalizedText == "" {
				entry.NormalizedText = Normalize(entry.Text, ModeCatalog)
			}
			if entry.Threshold <= 0 {
				entry.Threshold = DefaultLabelThreshold
			}
			g.Labels = append(g.Labels, entry)
		}
		cat.Groups = append(cat.Groups, g)
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

// LoadFile reads a catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	cat, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	return cat, nil
}

// SaveOptions controls how a catalog is written.
type SaveOptions struct {
	// Compact stores embeddings as base64 little-endian float32 instead of number arrays.
	Compact bool
}

// Save encodes the catalog as indented JSON, keeping group order.
func (c *Catalog) Save(w io.Writer, opts SaveOptions) error {
	doc := catalogDoc{
		Version:       c.Version,
		Model:         c.Model,
		EmbeddingType: c.EmbeddingType,
		Normalized:    c.Normalized,
		Dimensions:    c.Dimensions,
		GeneratedAt:   c.GeneratedAt,
		Questions:     make(groupList, len(c.Groups)),
	}
	for i, g := range c.Groups {
		gd := groupDoc{key: g.Key, Type: g.Types, Labels: make([]labelDoc, len(g.Labels))}
		if gd.Type == nil {
			gd.Type = []QuestionType{}
		}
		for j, l := range g.Labels {
			raw, err := encodeVector(l.Embedding, opts.Compact)
			if err != nil {
				return fmt.Errorf("encode %s label %q: %w", g.Key, l.Text, err)
			}
			gd.Labels[j] = labelDoc{
				Text:           l.Text,
				NormalizedText: l.NormalizedText,
				Threshold:      l.Threshold,
				Embedding:      raw,
			}
		}
		doc.Questions[i] = gd
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// SaveFile writes the catalog atomically through a temporary file.
func (c *Catalog) SaveFile(path string, opts SaveOptions) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create catalog dir: %w", err)
	}
	var buf bytes.Buffer
	if err := c.Save(&buf, opts); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write temp catalog: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename catalog: %w", err)
	}
	return nil
}

type catalogDoc struct {
	Version       int       `json:"version"`
	Model         string    `json:"model"`
	EmbeddingType string    `json:"embeddingType,omitempty"`
	Normalized    bool      `json:"normalized"`
	Dimensions    int       `json:"dimensions"`
	GeneratedAt   string    `json:"generatedAt,omitempty"`
	Questions     groupList `json:"questions"`
}

type groupDoc struct {
	key    string
	Type   []QuestionType `json:"type"`
	Labels []labelDoc     `json:"labels"`
}

type labelDoc struct {
	Text           string          `json:"text"`
	NormalizedText string          `json:"normalizedText,omitempty"`
	Threshold      float64         `json:"threshold"`
	Embedding      json.RawMessage `json:"embedding"`
}

// groupList is the "questions" object decoded in document order.
type groupList []groupDoc

func (gl *groupList) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("questions must be an object")
	}
	seen := make(map[string]struct{})
	var out groupList
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate group %s", key)
		}
		seen[key] = struct{}{}
		var gd groupDoc
		if err := dec.Decode(&gd); err != nil {
			return fmt.Errorf("group %s: %w", key, err)
		}
		gd.key = key
		out = append(out, gd)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*gl = out
	return nil
}

func (gl groupList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, gd := range gl {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(gd.key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		body, err := json.Marshal(gd)
		if err != nil {
			return nil, err
		}
		buf.Write(body)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func decodeVector(raw json.RawMessage) ([]float32, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, err
		}
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode base64 embedding: %w", err)
		}
		if len(data)%4 != 0 {
			return nil, fmt.Errorf("embedding byte length %d is not a multiple of 4", len(data))
		}
		vec := make([]float32, len(data)/4)
		for i := range vec {
			vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
		return vec, nil
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, err
	}
	return vec, nil
}

func encodeVector(vec []float32, compact bool) (json.RawMessage, error) {
	if !compact {
		if vec == nil {
			vec = []float32{}
		}
		return json.Marshal(vec)
	}
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return json.Marshal(base64.StdEncoding.EncodeToString(buf))
}
