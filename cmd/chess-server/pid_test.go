package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquirePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chess.pid")

	pf, err := acquirePIDFile(path, true)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(data)))

	pf.Release()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestAcquirePIDFileRefusesLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chess.pid")
	// The parent of the test binary is alive for the duration of the test
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getppid())), 0644))

	_, err := acquirePIDFile(path, true)
	assert.ErrorIs(t, err, errInstanceRunning)

	// The refused file is left to its owner
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getppid()), strings.TrimSpace(string(data)))
}

func TestReadPIDOwner(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}

	_, owner := readPIDOwner(filepath.Join(dir, "missing.pid"))
	assert.Equal(t, ownerNone, owner)

	_, owner = readPIDOwner(write("garbage.pid", "garbage\n"))
	assert.Equal(t, ownerNone, owner)

	_, owner = readPIDOwner(write("self.pid", fmt.Sprintf("%d\n", os.Getpid())))
	assert.Equal(t, ownerNone, owner)

	pid, owner := readPIDOwner(write("parent.pid", fmt.Sprintf("%d\n", os.Getppid())))
	assert.Equal(t, ownerLive, owner)
	assert.Equal(t, os.Getppid(), pid)
}

func TestAcquirePIDFileTakesOverStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chess.pid")
	require.NoError(t, os.WriteFile(path, []byte("garbage\n"), 0644))

	pf, err := acquirePIDFile(path, true)
	require.NoError(t, err)
	defer pf.Release()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(data)))
}

func TestAcquirePIDFileWithoutLockOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chess.pid")
	require.NoError(t, os.WriteFile(path, []byte("1\n"), 0644))

	pf, err := acquirePIDFile(path, false)
	require.NoError(t, err)
	pf.Release()
}
