package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/labelmatch/labelmatch"
)

func TestSelectionFromFlags(t *testing.T) {
	saved := matchOpts
	t.Cleanup(func() { matchOpts = saved })

	matchOpts.none, matchOpts.keys = false, nil
	assert.True(t, selectionFromFlags().IsAll())

	matchOpts.keys = []string{"PHONE_NUMBER", "EMAIL"}
	assert.Equal(t, []string{"PHONE_NUMBER", "EMAIL"}, selectionFromFlags().Keys())

	matchOpts.keys, matchOpts.none = nil, true
	assert.True(t, selectionFromFlags().IsNone())
}

func TestWriteMatchesAndAccuracy(t *testing.T) {
	records := []labelmatch.QuestionRecord{
		{Question: labelmatch.Question{Type: labelmatch.TypeEmail, LabelText: "Email*"}, Expected: "EMAIL"},
		{Question: labelmatch.Question{Type: labelmatch.TypeText, LabelText: "Pronouns"}, Expected: "PRONOUNS"},
		{Question: labelmatch.Question{Type: labelmatch.TypeText, LabelText: "Search"}},
	}
	results := [][]labelmatch.MatchResult{
		{{GroupKey: "EMAIL", SimilarityScore: 1}},
		{{GroupKey: "GENDER", SimilarityScore: 0.87}},
		nil,
	}

	var buf bytes.Buffer
	require.NoError(t, writeMatches(&buf, records, results))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.JSONEq(t, `{"label":"Email*","type":"email","expected":"EMAIL","matches":[{"key":"EMAIL","similarityScore":1}]}`, lines[0])
	assert.JSONEq(t, `{"label":"Search","type":"text","matches":[]}`, lines[2])

	summary, ok := accuracy(records, results)
	require.True(t, ok)
	assert.Equal(t, "top-1 accuracy: 1/2 (50.0%)", summary)

	_, ok = accuracy(records[2:], results[2:])
	assert.False(t, ok)
}

func TestThresholdRange(t *testing.T) {
	cat := &labelmatch.Catalog{Groups: []*labelmatch.ConceptGroup{
		{Key: "A", Labels: []labelmatch.LabelEntry{{Threshold: 0.8}, {Threshold: 0.93}}},
		{Key: "B", Labels: []labelmatch.LabelEntry{{Threshold: 0.75}}},
	}}
	lo, hi := thresholdRange(cat)
	assert.Equal(t, 0.75, lo)
	assert.Equal(t, 0.93, hi)
}
