package labelmatch

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `{
  "version": 1,
  "model": "bge-base-en-v1.5",
  "normalized": true,
  "dimensions": 2,
  "questions": {
    "PHONE_NUMBER": {
      "type": ["tel", "text"],
      "labels": [
        {"text": "Phone number*", "threshold": 0.9, "embedding": [0, 1]}
      ]
    },
    "EMAIL": {
      "type": ["email"],
      "labels": [
        {"text": "Email", "normalizedText": "email", "threshold": 0.85, "embedding": [1, 0]},
        {"text": "E-mail", "embedding": [0.6, 0.8]}
      ]
    }
  }
}`

func TestLoadKeepsDocumentOrder(t *testing.T) {
	cat, err := Load(strings.NewReader(sampleCatalog))
	require.NoError(t, err)

	assert.Equal(t, []string{"PHONE_NUMBER", "EMAIL"}, cat.Keys())
	assert.Equal(t, 3, cat.LabelCount())
	assert.Equal(t, "bge-base-en-v1.5", cat.Model)

	phone, ok := cat.Group("PHONE_NUMBER")
	require.True(t, ok)
	assert.Equal(t, []QuestionType{TypeTel, TypeText}, phone.Types)
	assert.True(t, phone.Allows(TypeTel))
	assert.False(t, phone.Allows(TypeEmail))
	assert.Equal(t, "phone number", phone.Labels[0].NormalizedText)

	email, _ := cat.Group("EMAIL")
	assert.Equal(t, "e-mail", email.Labels[1].NormalizedText)
	assert.Equal(t, DefaultLabelThreshold, email.Labels[1].Threshold)
	assert.Equal(t, []float32{0.6, 0.8}, email.Labels[1].Embedding)

	_, ok = cat.Group("NOPE")
	assert.False(t, ok)
}

func TestLoadRejectsMalformedDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"not json", `{`, ErrMalformedCatalog},
		{"questions not object", `{"dimensions": 2, "questions": []}`, ErrMalformedCatalog},
		{"duplicate group", `{"dimensions": 2, "questions": {
			"A": {"type": ["text"], "labels": [{"text": "a", "embedding": [1, 0]}]},
			"A": {"type": ["text"], "labels": [{"text": "b", "embedding": [0, 1]}]}}}`, ErrMalformedCatalog},
		{"no dimensions", `{"questions": {"A": {"type": ["text"], "labels": [{"text": "a", "embedding": [1, 0]}]}}}`, ErrMalformedCatalog},
		{"no questions", `{"version": 1, "model": "m", "dimensions": 3, "normalized": true}`, ErrMalformedCatalog},
		{"empty questions", `{"dimensions": 3, "questions": {}}`, ErrMalformedCatalog},
		{"non-unit embedding in normalized catalog", `{"dimensions": 2, "normalized": true, "questions": {"A": {"type": ["text"], "labels": [{"text": "a", "embedding": [10, 0]}]}}}`, ErrMalformedCatalog},
		{"no labels", `{"dimensions": 2, "questions": {"A": {"type": ["text"], "labels": []}}}`, ErrMalformedCatalog},
		{"no embedding", `{"dimensions": 2, "questions": {"A": {"type": ["text"], "labels": [{"text": "a"}]}}}`, ErrMalformedCatalog},
		{"bad base64", `{"dimensions": 2, "questions": {"A": {"type": ["text"], "labels": [{"text": "a", "embedding": "!!"}]}}}`, ErrMalformedCatalog},
		{"wrong length", `{"dimensions": 3, "questions": {"A": {"type": ["text"], "labels": [{"text": "a", "embedding": [1, 0]}]}}}`, ErrDimensionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadAcceptsRawVectorsWhenNotNormalized(t *testing.T) {
	cat, err := Load(strings.NewReader(`{"dimensions": 2, "normalized": false, "questions": {
		"A": {"type": ["text"], "labels": [{"text": "a", "threshold": 0.8, "embedding": [10, 0]}]}}}`))
	require.NoError(t, err)

	m, err := NewMatcher(cat, EmbedFunc(func(context.Context, string) ([]float32, error) {
		return []float32{0.1, 0.995}, nil
	}), nil)
	require.NoError(t, err)
	assert.Empty(t, m.Match(context.Background(), Question{Type: TypeText, LabelText: "b"}, SelectAll(), MatchOptions{}))
}

func TestDimensionMismatchIsConfigurationError(t *testing.T) {
	cat, err := Load(strings.NewReader(sampleCatalog))
	require.NoError(t, err)

	err = cat.CheckDimensions(768)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.NoError(t, cat.CheckDimensions(2))

	err = cat.CheckModel("all-MiniLM-L6-v2")
	assert.ErrorIs(t, err, ErrModelMismatch)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.NoError(t, cat.CheckModel("bge-base-en-v1.5"))
	assert.NoError(t, cat.CheckModel(""))
}

func TestSaveRoundTrip(t *testing.T) {
	for _, compact := range []bool{false, true} {
		cat, err := Load(strings.NewReader(sampleCatalog))
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, cat.Save(&buf, SaveOptions{Compact: compact}))
		assert.True(t, strings.HasSuffix(buf.String(), "\n"))

		var raw map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
		assert.Less(t, strings.Index(buf.String(), `"PHONE_NUMBER"`), strings.Index(buf.String(), `"EMAIL"`))
		if compact {
			assert.Contains(t, buf.String(), `"embedding": "`)
		}

		back, err := Load(&buf)
		require.NoError(t, err)
		assert.Equal(t, cat, back, "compact=%v", compact)
	}
}

func TestSaveFileLoadFile(t *testing.T) {
	cat, err := Load(strings.NewReader(sampleCatalog))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "labelEmbeddings.json")
	require.NoError(t, cat.SaveFile(path, SaveOptions{Compact: true}))

	back, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cat.Keys(), back.Keys())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSaveFileRemovesTempFileOnFailure(t *testing.T) {
	cat, err := Load(strings.NewReader(sampleCatalog))
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.MkdirAll(filepath.Join(path, "occupied"), 0o755))

	assert.Error(t, cat.SaveFile(path, SaveOptions{}))
	assert.NoFileExists(t, path+".tmp")
}

func TestCloneIsDeep(t *testing.T) {
	cat, err := Load(strings.NewReader(sampleCatalog))
	require.NoError(t, err)

	cp := cat.Clone()
	cp.Groups[0].Labels[0].Threshold = 0.5
	cp.Groups[0].Labels[0].Embedding[0] = 42
	cp.Groups[0].Types[0] = TypeFile

	assert.Equal(t, 0.9, cat.Groups[0].Labels[0].Threshold)
	assert.Equal(t, float32(0), cat.Groups[0].Labels[0].Embedding[0])
	assert.Equal(t, TypeTel, cat.Groups[0].Types[0])
}
