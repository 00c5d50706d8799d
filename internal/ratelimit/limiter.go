package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"auth-service/internal/clock"
)

const (
	DefaultMaxAttempts     = 5
	DefaultLockoutDuration = 15 * time.Minute

	// Sweep threshold for the attempt map; entries older than the lockout
	// window are dropped once the map grows past this.
	maxTrackedPrincipals = 10000
)

// TooManyAttemptsError reports an active lockout and how long the caller
// has to wait before the next attempt is admitted.
type TooManyAttemptsError struct {
	RetryAfter time.Duration
}

func (e *TooManyAttemptsError) Error() string {
	return fmt.Sprintf("too many attempts, retry in %d seconds", e.RetryAfterSeconds())
}

func (e *TooManyAttemptsError) RetryAfterSeconds() int64 {
	secs := int64((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

type attempt struct {
	failures     int
	lockoutStart time.Time // zero until the threshold is reached
	updatedAt    time.Time
}

func (a *attempt) locked(maxAttempts int) bool {
	return a.failures >= maxAttempts
}

// Limiter counts consecutive failed login attempts per principal and locks
// a principal out once the threshold is reached. All state is in-process;
// per-key updates are linearized under one mutex.
type Limiter struct {
	mu          sync.Mutex
	clock       clock.Clock
	maxAttempts int
	lockout     time.Duration
	attempts    map[string]*attempt
}

func New(maxAttempts int, lockout time.Duration, clk clock.Clock) *Limiter {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if lockout <= 0 {
		lockout = DefaultLockoutDuration
	}

	return &Limiter{
		clock:       clk,
		maxAttempts: maxAttempts,
		lockout:     lockout,
		attempts:    make(map[string]*attempt),
	}
}

// Check fails with *TooManyAttemptsError while a lockout is active. An
// elapsed lockout clears the record.
func (l *Limiter) Check(principal string) error {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.attempts[principal]
	if !ok {
		return nil
	}

	if a.locked(l.maxAttempts) {
		elapsed := now.Sub(a.lockoutStart)
		if elapsed >= l.lockout {
			delete(l.attempts, principal)
			return nil
		}
		return &TooManyAttemptsError{RetryAfter: l.lockout - elapsed}
	}

	return nil
}

func (l *Limiter) RecordFailure(principal string) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.attempts[principal]
	if !ok || (a.locked(l.maxAttempts) && now.Sub(a.lockoutStart) >= l.lockout) {
		a = &attempt{}
		l.attempts[principal] = a
	}

	a.failures++
	a.updatedAt = now
	if a.failures >= l.maxAttempts && a.lockoutStart.IsZero() {
		a.lockoutStart = now
	}

	if len(l.attempts) > maxTrackedPrincipals {
		l.sweepLocked(now)
	}
}

func (l *Limiter) Reset(principal string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, principal)
}

func (l *Limiter) sweepLocked(now time.Time) {
	for principal, a := range l.attempts {
		if now.Sub(a.updatedAt) >= l.lockout {
			delete(l.attempts, principal)
		}
	}
}
