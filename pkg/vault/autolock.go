package vault

import (
	"time"

	"go.uber.org/zap"
)

// DefaultAutoLockTimeout applies when no configuration overrides it.
const DefaultAutoLockTimeout = 5 * time.Minute

// maxPollInterval caps how long the watcher sleeps between checks.
const maxPollInterval = 30 * time.Second

// Clock abstracts the time source so tests can drive auto-lock without
// sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// RecordActivity resets the inactivity timer. No-op unless Unlocked.
func (v *Vault) RecordActivity() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == Unlocked {
		v.lastActivity = v.clock.Now()
	}
}

// SetAutoLockTimeout changes the inactivity timeout and re-arms the watcher.
// Zero disables auto-lock entirely.
func (v *Vault) SetAutoLockTimeout(d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.timeout = d
	if v.state != Unlocked {
		return
	}
	v.stopAutoLockLocked()
	v.lastActivity = v.clock.Now()
	v.startAutoLockLocked()
}

// AutoLockTimeout returns the configured inactivity timeout.
func (v *Vault) AutoLockTimeout() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.timeout
}

// startAutoLockLocked launches the watcher goroutine. Caller must hold v.mu
// and have the vault Unlocked.
func (v *Vault) startAutoLockLocked() {
	v.lastActivity = v.clock.Now()
	if v.timeout <= 0 {
		return
	}

	stop := make(chan struct{})
	v.stopAutoLock = stop

	interval := v.timeout / 4
	if interval > maxPollInterval {
		interval = maxPollInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if v.CheckAutoLock() {
					return
				}
			}
		}
	}()
}

// stopAutoLockLocked cancels the watcher, if any. Caller must hold v.mu.
func (v *Vault) stopAutoLockLocked() {
	if v.stopAutoLock != nil {
		close(v.stopAutoLock)
		v.stopAutoLock = nil
	}
}

// CheckAutoLock locks the vault if the inactivity timeout has elapsed and
// reports whether it did. The watcher calls this on every tick; tests call
// it directly after advancing a fake clock.
func (v *Vault) CheckAutoLock() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != Unlocked || v.timeout <= 0 {
		return false
	}
	idle := v.clock.Now().Sub(v.lastActivity)
	if idle < v.timeout {
		return false
	}

	v.log.Info("auto-lock triggered", zap.Duration("idle", idle))
	v.lockLocked(LockAuto)
	return true
}
