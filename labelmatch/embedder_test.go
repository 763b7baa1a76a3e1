package labelmatch

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbedderServesRepeatsFromMemory(t *testing.T) {
	inner := newFakeBackend("test-model", 4)
	c, err := NewCachedEmbedder(inner, "")
	require.NoError(t, err)

	first, err := c.EmbedTexts(context.Background(), []string{"email", "phone"})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.callCount())

	second, err := c.EmbedTexts(context.Background(), []string{"phone", "city", "email"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.callCount())
	assert.Equal(t, []string{"email", "phone", "city"}, inner.seen)
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])

	// Callers may modify returned vectors without poisoning the cache.
	second[0][0] = 99
	again, err := c.EmbedText(context.Background(), "phone")
	require.NoError(t, err)
	assert.Equal(t, first[1], again)
	assert.Equal(t, "test-model", c.ModelID())
}

func TestCachedEmbedderPersistsToDisk(t *testing.T) {
	dir := t.TempDir()
	inner := newFakeBackend("test-model", 4)
	c, err := NewCachedEmbedder(inner, dir)
	require.NoError(t, err)
	want, err := c.EmbedText(context.Background(), "postal code")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Regexp(t, `^[0-9a-f]{16}\.bin$`, entries[0].Name())

	fresh := newFakeBackend("test-model", 4)
	c2, err := NewCachedEmbedder(fresh, dir)
	require.NoError(t, err)
	got, err := c2.EmbedText(context.Background(), "postal code")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Zero(t, fresh.callCount())

	// A different model never shares cache entries.
	other := newFakeBackend("other-model", 4)
	c3, err := NewCachedEmbedder(other, dir)
	require.NoError(t, err)
	_, err = c3.EmbedText(context.Background(), "postal code")
	require.NoError(t, err)
	assert.Equal(t, 1, other.callCount())
}

func TestCachedEmbedderPropagatesErrors(t *testing.T) {
	inner := newFakeBackend("test-model", 4)
	inner.err = assert.AnError
	c, err := NewCachedEmbedder(inner, "")
	require.NoError(t, err)

	_, err = c.EmbedTexts(context.Background(), []string{"email"})
	assert.ErrorIs(t, err, assert.AnError)

	_, err = NewCachedEmbedder(nil, "")
	assert.Error(t, err)

	require.NoError(t, c.Close())
	assert.True(t, inner.closed)
}
