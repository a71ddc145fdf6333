package store

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

// retryPolicy bounds retries of ledger writes that hit SQLite lock contention.
type retryPolicy struct {
	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
}

var ledgerRetry = retryPolicy{
	attempts:  4,
	baseDelay: 50 * time.Millisecond,
	maxDelay:  500 * time.Millisecond,
}

var transientSQLiteMarkers = []string{
	"SQLITE_BUSY",
	"SQLITE_LOCKED",
	"IOERR_SHORT_READ",
	"database is locked",
	"database table is locked",
	"(5)",
	"(6)",
	"(522)",
}

// isBusy reports whether err is a SQLite lock or short-read error that a
// retry can clear. modernc.org/sqlite only exposes these through the message.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range transientSQLiteMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// withRetry runs fn until it succeeds, fails with a non-busy error, the
// attempts run out or ctx is done.
func withRetry(ctx context.Context, policy retryPolicy, fn func() error) error {
	var err error
	for attempt := 0; attempt < max(1, policy.attempts); attempt++ {
		if err = fn(); err == nil || !isBusy(err) {
			return err
		}
		if attempt == policy.attempts-1 {
			break
		}
		timer := time.NewTimer(policy.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// delay is baseDelay*2^attempt capped at maxDelay, plus up to baseDelay of
// jitter.
func (p retryPolicy) delay(attempt int) time.Duration {
	d := p.baseDelay << uint(attempt)
	if d > p.maxDelay {
		d = p.maxDelay
	}
	if p.baseDelay > 0 {
		d += time.Duration(rand.Int63n(int64(p.baseDelay)))
	}
	return d
}
