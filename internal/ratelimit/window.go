// Package ratelimit implements the per-sender fixed-window gate of the
// ingestion pipeline.
//
// Window state lives in the rate_windows table rather than in process
// memory, so limits hold across restarts and across multiple processes
// sharing one store. Each Allow call runs a single short transaction; a
// per-sender mutex serializes concurrent calls for the same sender inside
// this process so bursts are never undercounted.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-task-assistant/internal/domain"
	"github.com/tbourn/go-task-assistant/internal/repo"
)

// ErrRateLimited is returned when a sender exceeds the configured number of
// accepted messages within one window.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter counts accepted messages per sender per fixed window.
//
// The counter increments even on the call that overflows, so a sender
// hammering the webhook does not leak capacity back mid-window.
type Limiter struct {
	DB     *gorm.DB
	Limit  int           // accepted messages per window, >= 1
	Window time.Duration // window length, > 0

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLimiter constructs a Limiter over db.
func NewLimiter(db *gorm.DB, limit int, window time.Duration) *Limiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		DB:     db,
		Limit:  limit,
		Window: window,
		locks:  make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex guarding one sender's window, creating it on
// first use. Sender cardinality is the allowlist size, so the map stays tiny.
func (l *Limiter) lockFor(sender string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[sender]
	if !ok {
		m = &sync.Mutex{}
		l.locks[sender] = m
	}
	return m
}

// Allow loads or initializes the sender's window, rolls it over when now has
// passed the window end, increments the counter, and persists the result.
// It returns ErrRateLimited when the incremented count exceeds the limit.
func (l *Limiter) Allow(ctx context.Context, sender string, now time.Time) error {
	mu := l.lockFor(sender)
	mu.Lock()
	defer mu.Unlock()

	var count int
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := repo.GetRateWindow(tx, sender)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			w = &domain.RateWindow{Sender: sender, WindowStart: now, Count: 0}
		case err != nil:
			return err
		}

		if now.Sub(w.WindowStart) >= l.Window {
			w.WindowStart = now
			w.Count = 0
		}
		w.Count++
		count = w.Count

		return repo.SaveRateWindow(tx, w)
	})
	if err != nil {
		return err
	}
	if count > l.Limit {
		return ErrRateLimited
	}
	return nil
}
