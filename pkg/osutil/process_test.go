//go:build unix

package osutil

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func groupCommand(ctx context.Context, script string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	SetProcessGroup(cmd)
	SetProcessGroupKill(cmd)
	return cmd
}

func TestSetProcessGroup(t *testing.T) {
	cmd := exec.Command("true")
	SetProcessGroup(cmd)

	require.NotNil(t, cmd.SysProcAttr)
	assert.True(t, cmd.SysProcAttr.Setpgid)
}

func TestCancelStopsProcessThatHandlesTerm(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := groupCommand(ctx, `trap 'exit 0' TERM; while true; do sleep 0.1; done`)
	require.NoError(t, cmd.Start())

	time.Sleep(200 * time.Millisecond)
	start := time.Now()
	cancel()

	assert.Error(t, cmd.Wait(), "a cancelled command reports an error")
	assert.Less(t, time.Since(start), GracefulShutdownDelay)
}

func TestCancelKillsWholeGroup(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the graceful shutdown delay")
	}
	if runtime.GOOS != "linux" {
		t.Skip("inspects /proc")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := groupCommand(ctx, `(trap '' TERM; while true; do sleep 0.1; done) &
echo "$!"
trap '' TERM
while true; do sleep 0.1; done`)
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())

	line, err := bufio.NewReader(stdout).ReadString('\n')
	require.NoError(t, err)
	child, err := strconv.Atoi(strings.TrimSpace(line))
	require.NoError(t, err)
	require.True(t, alive(child), "child should be running")

	cancel()
	_ = cmd.Wait()

	assert.Eventually(t, func() bool {
		return !alive(child)
	}, 2*time.Second, 50*time.Millisecond, "child should be killed with its group")
}

// alive reports whether pid exists and is not a zombie waiting to be reaped
func alive(pid int) bool {
	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	// the state follows the parenthesised command name
	fields := strings.Fields(string(stat[strings.LastIndexByte(string(stat), ')')+1:]))
	return len(fields) > 0 && fields[0] != "Z"
}

func TestCancelAfterExit(t *testing.T) {
	cmd := groupCommand(context.Background(), "true")
	require.NoError(t, cmd.Start())
	require.NoError(t, cmd.Wait())

	assert.NoError(t, cmd.Cancel())
}
