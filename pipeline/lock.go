package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// LockSuffix is appended to an artifact path to name its lock directory.
const LockSuffix = ".lock"

const ownerFile = "owner.json"

// OwnerGrace is how long a lock directory may lack its owner record
// before FindStaleLocks reports it. Acquire writes the record right
// after creating the directory.
const OwnerGrace = 10 * time.Second

// ErrLockHeld is returned by Acquire when another worker holds the lock.
// Losing the race is expected and not a failure.
var ErrLockHeld = errors.New("lock held by another worker")

// Owner identifies the worker holding a lock.
type Owner struct {
	Host    string    `json:"host"`
	PID     int       `json:"pid"`
	Token   string    `json:"token"`
	Started time.Time `json:"started"`
}

// DirLock is a cross-process mutex on a path, held by whoever created the
// lock directory. Locks never expire; see FindStaleLocks.
type DirLock struct {
	path     string
	owner    Owner
	acquired bool
}

// NewDirLock returns an unacquired lock on the directory path.
func NewDirLock(path string) *DirLock {
	return &DirLock{path: path}
}

// Path returns the lock directory.
func (l *DirLock) Path() string { return l.path }

// Acquired reports whether this DirLock holds the lock.
func (l *DirLock) Acquired() bool { return l.acquired }

// Acquire creates the lock directory and records the owner in it. It
// returns ErrLockHeld if the directory already exists.
func (l *DirLock) Acquire() error {
	if l.acquired {
		return nil
	}
	if err := os.Mkdir(l.path, 0755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrLockHeld
		}
		return fmt.Errorf("Acquire: %w", err)
	}

	host, _ := os.Hostname()
	l.owner = Owner{Host: host, PID: os.Getpid(), Token: uuid.NewString(), Started: time.Now().UTC()}
	buf, err := json.MarshalIndent(l.owner, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(l.path, ownerFile), buf, 0644)
	}
	if err != nil {
		os.RemoveAll(l.path)
		return fmt.Errorf("Acquire: %w", err)
	}
	l.acquired = true
	return nil
}

// Release removes the lock directory if this DirLock still owns it.
func (l *DirLock) Release() error {
	if !l.acquired {
		return nil
	}
	l.acquired = false
	owner, err := ReadOwner(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err == nil && owner.Token != l.owner.Token {
		return fmt.Errorf("Release: lock %v was taken over by %v/%v", l.path, owner.Host, owner.PID)
	}
	if err := os.RemoveAll(l.path); err != nil {
		return fmt.Errorf("Release: %w", err)
	}
	return nil
}

// ReadOwner returns the owner recorded in a lock directory.
func ReadOwner(lockDir string) (Owner, error) {
	var o Owner
	buf, err := os.ReadFile(filepath.Join(lockDir, ownerFile))
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(buf, &o); err != nil {
		return o, fmt.Errorf("ReadOwner %v: %w", lockDir, err)
	}
	return o, nil
}

// StaleLock is a lock directory whose owner is gone.
type StaleLock struct {
	Path   string
	Owner  Owner
	Reason string
}

// FindStaleLocks walks root for lock directories that no live process
// owns: those without a readable owner record and those whose owner ran
// on this host and has exited. A directory younger than OwnerGrace with
// no record yet is being acquired and is skipped. Locks held from other
// hosts are never reported. Nothing is removed.
func FindStaleLocks(root string) ([]StaleLock, error) {
	host, _ := os.Hostname()
	var stale []StaleLock
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || !strings.HasSuffix(d.Name(), LockSuffix) {
			return nil
		}
		owner, err := ReadOwner(p)
		switch {
		case errors.Is(err, fs.ErrNotExist) && acquiring(d):
		case err != nil:
			stale = append(stale, StaleLock{Path: p, Reason: fmt.Sprintf("no owner record: %v", err)})
		case owner.Host == host && !processAlive(owner.PID):
			stale = append(stale, StaleLock{Path: p, Owner: owner, Reason: fmt.Sprintf("process %v has exited", owner.PID)})
		}
		return filepath.SkipDir
	})
	if err != nil {
		return nil, fmt.Errorf("FindStaleLocks: %w", err)
	}
	return stale, nil
}

func acquiring(d fs.DirEntry) bool {
	info, err := d.Info()
	return err == nil && time.Since(info.ModTime()) < OwnerGrace
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
