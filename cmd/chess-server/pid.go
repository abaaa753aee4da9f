package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

var errInstanceRunning = errors.New("another instance is running")

// pidOwner describes who a PID file names
type pidOwner int

const (
	ownerNone  pidOwner = iota // missing, corrupt, dead, or this process
	ownerLive                  // another live process
	ownerAlien                 // a process we may not signal
)

// pidFile is a PID file held for the life of the server
type pidFile struct {
	path string
	file *os.File
	lock bool
}

// acquirePIDFile writes the current PID to path. With lock, the file is
// flock'ed and a file naming another live process is refused.
func acquirePIDFile(path string, lock bool) (*pidFile, error) {
	if lock {
		pid, owner := readPIDOwner(path)
		switch owner {
		case ownerLive:
			return nil, fmt.Errorf("%w (pid %d)", errInstanceRunning, pid)
		case ownerAlien:
			return nil, fmt.Errorf("process %d named by %s exists but cannot be verified", pid, path)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("cannot open PID file: %w", err)
	}
	p := &pidFile{path: path, file: file, lock: lock}

	if lock {
		if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
			file.Close()
			if errors.Is(err, syscall.EWOULDBLOCK) {
				return nil, fmt.Errorf("%w: %s is locked", errInstanceRunning, path)
			}
			return nil, fmt.Errorf("lock failed: %w", err)
		}
	}

	if err := p.write(os.Getpid()); err != nil {
		p.Release()
		return nil, err
	}
	return p, nil
}

func (p *pidFile) write(pid int) error {
	if _, err := p.file.WriteString(strconv.Itoa(pid) + "\n"); err != nil {
		return fmt.Errorf("cannot write PID: %w", err)
	}
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("cannot sync PID file: %w", err)
	}
	return nil
}

// Release unlocks and removes the file
func (p *pidFile) Release() {
	if p.lock {
		syscall.Flock(int(p.file.Fd()), syscall.LOCK_UN)
	}
	p.file.Close()
	os.Remove(p.path)
}

// readPIDOwner classifies the process named by the file at path
func readPIDOwner(path string) (int, pidOwner) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, ownerNone
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 || pid == os.Getpid() {
		return 0, ownerNone
	}

	err = syscall.Kill(pid, 0)
	switch {
	case err == nil:
		return pid, ownerLive
	case errors.Is(err, syscall.ESRCH):
		return pid, ownerNone
	default:
		return pid, ownerAlien
	}
}
