//go:build unix

package procutil_test

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dontbeterm/dontbeterm/internal/procutil"
)

func TestKillGroupTakesDownGrandchildren(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "sleep 60 & echo $!; wait")
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	procutil.Prepare(cmd)
	require.NoError(t, procutil.Start(cmd))

	line, err := bufio.NewReader(stdout).ReadString('\n')
	require.NoError(t, err)
	grandchild, err := strconv.Atoi(strings.TrimSpace(line))
	require.NoError(t, err)

	require.NoError(t, procutil.KillGroup(cmd))
	_ = cmd.Wait()

	assert.Eventually(t, func() bool {
		return !processAlive(grandchild)
	}, 3*time.Second, 50*time.Millisecond, "grandchild %d survived group kill", grandchild)
}

func TestDeadlineKillsGroup(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", "sleep 60")
	cmd.WaitDelay = time.Second
	procutil.Prepare(cmd)
	require.NoError(t, procutil.Start(cmd))

	start := time.Now()
	err := cmd.Wait()
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}

func TestKillGroupAfterExit(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "exit 0")
	procutil.Prepare(cmd)
	require.NoError(t, procutil.Start(cmd))
	require.NoError(t, cmd.Wait())

	err := procutil.KillGroup(cmd)
	assert.True(t, err == nil || errors.Is(err, os.ErrProcessDone), "unexpected error: %v", err)
}

func TestKillGroupNotStarted(t *testing.T) {
	assert.NoError(t, procutil.KillGroup(exec.Command("true")))
}

// processAlive treats zombies as dead: the reaper may not have collected
// the reparented grandchild yet.
func processAlive(pid int) bool {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		if os.IsNotExist(err) {
			return false
		}
		// No procfs (macOS): fall back to signal 0.
		return exec.Command("kill", "-0", strconv.Itoa(pid)).Run() == nil
	}
	fields := strings.Fields(string(data))
	return len(fields) > 2 && fields[2] != "Z"
}
