//go:build unix

package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner(t *testing.T) {
	stdout, stderr, err := execRunner{}.Run(context.Background(), t.TempDir(), "sh", "-c", "pwd; echo oops >&2")
	require.NoError(t, err)
	assert.NotEmpty(t, stdout)
	assert.Equal(t, "oops\n", string(stderr))
}

func TestExecRunnerStopsOnTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, err := execRunner{}.Run(ctx, "", "sh", "-c", "sleep 30")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
}
