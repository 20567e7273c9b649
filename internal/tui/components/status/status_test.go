package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_MessageLifecycle(t *testing.T) {
	c := New()
	c.SetSize(80, 1)

	cmd := c.ShowWarning("slow down")
	require.NotNil(t, cmd)
	require.NotNil(t, c.Message())
	assert.Equal(t, Warning, c.Message().Type)
	assert.Contains(t, c.View(), "slow down")

	stale := clearMessageMsg{timestamp: c.Message().Timestamp.Add(-1)}
	c.Update(stale)
	assert.NotNil(t, c.Message(), "a stale clear must not remove a newer message")

	c.Update(clearMessageMsg{timestamp: c.Message().Timestamp})
	assert.Nil(t, c.Message())
}

func TestStatus_LeftContent(t *testing.T) {
	c := New()
	assert.Empty(t, c.View(), "zero width renders nothing")

	c.SetSize(40, 1)
	c.SetLeftContent("idle  notes.md")
	assert.Contains(t, c.View(), "idle  notes.md")
}
