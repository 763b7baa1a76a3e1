package rpc

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartProcessRequiresCommand(t *testing.T) {
	_, err := StartProcess(nil, "", nil)
	assert.Error(t, err)

	_, err = StartProcess([]string{"/nonexistent/embed-server"}, "", nil)
	assert.Error(t, err)
}

func TestProcessEchoPeer(t *testing.T) {
	cat, err := exec.LookPath("cat")
	if err != nil {
		t.Skip("cat not available")
	}
	// cat echoes each request back; a request decodes as a failed response with the same id.
	p, err := StartProcess([]string{cat}, "echo", nil)
	require.NoError(t, err)

	_, err = p.EmbedText(context.Background(), "email")
	assert.EqualError(t, err, "rpc: request failed")
	assert.Equal(t, "echo", p.ModelID())

	require.NoError(t, p.Close())
}
