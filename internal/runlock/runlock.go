// Package runlock implements the single-writer lease file (.run.lock)
// that serializes orchestrator ticks and tool-call mutations against one
// run root, styled after codenerd/internal/session's acquire/heartbeat/
// release lifecycle but backed by a plain JSON file instead of a session
// directory lock.
package runlock

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"researchrun/internal/model"
	"researchrun/internal/store"
	"researchrun/internal/toolsurface"
)

const lockFileName = ".run.lock"

// Lock holds an acquired run lease and renews it on a timer until Release
// is called.
type Lock struct {
	path     string
	holderID string
	leaseDur time.Duration

	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

// Acquire takes the run lock at runRoot/.run.lock. If the existing lock is
// unexpired and held by a different holder, it fails with RUN_LOCKED. A
// lock whose lease has expired is treated as stale and is taken over.
func Acquire(runRoot string, leaseSeconds int, reason string) (*Lock, error) {
	if leaseSeconds <= 0 {
		leaseSeconds = 30
	}
	path := filepath.Join(runRoot, lockFileName)

	existing, err := readLock(path)
	if err == nil && existing != nil {
		if time.Now().Before(existing.LeaseExpiresAt) {
			return nil, toolsurface.NewError(toolsurface.CodeRunLocked,
				"run is locked by another holder", map[string]interface{}{
					"holder_id":        existing.HolderID,
					"lease_expires_at": existing.LeaseExpiresAt,
				})
		}
	}

	now := time.Now().UTC()
	holderID := uuid.NewString()
	lock := &model.RunLock{
		HolderID:        holderID,
		AcquiredAt:      now,
		LeaseExpiresAt:  now.Add(time.Duration(leaseSeconds) * time.Second),
		LastHeartbeatAt: now,
		Reason:          reason,
	}
	if err := store.WriteJSONAtomic(path, lock); err != nil {
		return nil, fmt.Errorf("runlock: write: %w", err)
	}

	l := &Lock{
		path:     path,
		holderID: holderID,
		leaseDur: time.Duration(leaseSeconds) * time.Second,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go l.heartbeatLoop()
	return l, nil
}

func readLock(path string) (*model.RunLock, error) {
	if !store.Exists(path) {
		return nil, nil
	}
	var l model.RunLock
	if err := store.ReadJSON(path, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// heartbeatLoop renews the lease at roughly lease/4 intervals (spec.md
// §4.9).
func (l *Lock) heartbeatLoop() {
	defer close(l.doneCh)
	interval := l.leaseDur / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			_ = l.renew()
		}
	}
}

func (l *Lock) renew() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now().UTC()
	lock := &model.RunLock{
		HolderID:        l.holderID,
		AcquiredAt:      now,
		LeaseExpiresAt:  now.Add(l.leaseDur),
		LastHeartbeatAt: now,
	}
	return store.WriteJSONAtomic(l.path, lock)
}

// Release stops the heartbeat and removes the lock file, provided it is
// still held by this holder.
func (l *Lock) Release() error {
	close(l.stopCh)
	<-l.doneCh

	existing, err := readLock(l.path)
	if err != nil {
		return err
	}
	if existing == nil || existing.HolderID != l.holderID {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("runlock: release: %w", err)
	}
	return nil
}

// HolderID returns the lease holder's identifier.
func (l *Lock) HolderID() string { return l.holderID }

// Status reports whether runRoot currently carries a live lock, without
// acquiring it.
func Status(runRoot string) (locked bool, holder *model.RunLock, err error) {
	path := filepath.Join(runRoot, lockFileName)
	existing, err := readLock(path)
	if err != nil {
		return false, nil, err
	}
	if existing == nil {
		return false, nil, nil
	}
	if time.Now().After(existing.LeaseExpiresAt) {
		return false, existing, nil
	}
	return true, existing, nil
}

// Wait blocks until runRoot's lock is released (removed or its lease
// expires) or timeout elapses, whichever comes first. It uses fsnotify to
// block on the filesystem event rather than polling Status in a loop; the
// CLI's lock-wait command uses it to await a lock transition between
// ticks. A lock root with no lock present returns immediately.
func Wait(runRoot string, timeout time.Duration) (unlocked bool, err error) {
	locked, held, err := Status(runRoot)
	if err != nil {
		return false, err
	}
	if !locked {
		return true, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return false, fmt.Errorf("runlock: wait: new watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(runRoot); err != nil {
		return false, fmt.Errorf("runlock: wait: watch %s: %w", runRoot, err)
	}

	path := filepath.Join(runRoot, lockFileName)
	deadline := time.Now().Add(timeout)
	if held != nil && held.LeaseExpiresAt.Before(deadline) {
		deadline = held.LeaseExpiresAt
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		remaining = 0
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return false, fmt.Errorf("runlock: wait: watcher closed")
			}
			if ev.Name != path {
				continue
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				return true, nil
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return false, fmt.Errorf("runlock: wait: watcher closed")
			}
			return false, fmt.Errorf("runlock: wait: %w", werr)
		case <-timer.C:
			locked, _, err := Status(runRoot)
			if err != nil {
				return false, err
			}
			return !locked, nil
		}
	}
}
