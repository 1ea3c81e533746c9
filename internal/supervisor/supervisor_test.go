package supervisor

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisor_Status_NotRunningWithNoPidFile(t *testing.T) {
	s := New(t.TempDir())
	status := s.Status()
	assert.False(t, status.Running)
}

func TestSupervisor_Status_StalePidFileReportsNotRunning(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	// A PID no live process will plausibly hold: spawn and immediately
	// reap a short-lived child, then reuse its now-dead PID.
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	deadPID := cmd.ProcessState.Pid()

	require.NoError(t, os.WriteFile(filepath.Join(dir, pidFileName), []byte(strconv.Itoa(deadPID)), 0o644))

	status := s.Status()
	assert.False(t, status.Running)
}

func TestSupervisor_StartThenStop_FullLifecycle(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	logPath := filepath.Join(dir, "out.log")

	pid, err := s.Start("sleep", []string{"5"}, logPath)
	require.NoError(t, err)
	assert.Greater(t, pid, 0)

	status := s.Status()
	assert.True(t, status.Running)
	assert.Equal(t, pid, status.PID)

	_, err = s.Start("sleep", []string{"5"}, logPath)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, s.Stop(5*time.Second))

	status = s.Status()
	assert.False(t, status.Running)

	assert.ErrorIs(t, s.Stop(time.Second), ErrNotRunning)
}
