package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stalePID is above the default pid_max on Linux.
const stalePID = 4194304

func TestPIDFile_WriteReadRemove(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "nested", "conceptrank.pid")
	pf := NewPIDFile(pidPath)

	require.NoError(t, pf.Write())
	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, pf.IsRunning())
	require.NoError(t, pf.Signal(syscall.Signal(0)))

	require.NoError(t, pf.Remove())
	require.NoError(t, pf.Remove())
	_, err = pf.Read()
	assert.ErrorIs(t, err, ErrPIDFileNotFound)
	assert.False(t, pf.IsRunning())
}

func TestPIDFile_ReadTrimsAndRejectsGarbage(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")
	require.NoError(t, os.WriteFile(pidPath, []byte("12345\n"), 0o644))

	pid, err := NewPIDFile(pidPath).Read()
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)

	require.NoError(t, os.WriteFile(pidPath, []byte("not-a-number"), 0o644))
	_, err = NewPIDFile(pidPath).Read()
	assert.Error(t, err)
}

func TestPIDFile_AcquireReplacesStaleFile(t *testing.T) {
	// Given: a PID file left by a dead process
	pidPath := filepath.Join(t.TempDir(), "test.pid")
	require.NoError(t, os.WriteFile(pidPath, []byte(strconv.Itoa(stalePID)), 0o644))
	pf := NewPIDFile(pidPath)
	assert.False(t, pf.IsRunning())

	// When: acquiring
	require.NoError(t, pf.Acquire())

	// Then: the file names this process
	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_AcquireGarbageIsStale(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")
	require.NoError(t, os.WriteFile(pidPath, []byte("garbage"), 0o644))
	require.NoError(t, NewPIDFile(pidPath).Acquire())
}

func TestPIDFile_AcquireRefusesLiveProcess(t *testing.T) {
	// Given: the parent process (alive) owns the file
	pidPath := filepath.Join(t.TempDir(), "test.pid")
	require.NoError(t, os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getppid())), 0o644))

	err := NewPIDFile(pidPath).Acquire()
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestPIDFile_SignalNoProcess(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")
	require.NoError(t, os.WriteFile(pidPath, []byte(strconv.Itoa(stalePID)), 0o644))
	assert.Error(t, NewPIDFile(pidPath).Signal(syscall.Signal(0)))
}
