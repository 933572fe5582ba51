package buildinfo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentFallsBackToDev(t *testing.T) {
	prev := CommitHash
	t.Cleanup(func() { CommitHash = prev })

	CommitHash = ""
	info := Current()
	assert.Equal(t, "ok", info.Status)
	assert.Equal(t, "dev", info.CommitHash)
	assert.Equal(t, "dev", Version())

	_, err := time.Parse(time.RFC3339, info.StartTime)
	require.NoError(t, err)

	CommitHash = "a1b2c3d"
	assert.Equal(t, "a1b2c3d", Current().CommitHash)
	assert.Equal(t, "a1b2c3d", Version())
}
