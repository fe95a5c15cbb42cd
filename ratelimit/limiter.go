// Package ratelimit throttles outbound calls with a sliding-window quota,
// a concurrency cap and exponential backoff after rate-limit failures.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxRequests   = 60
	defaultWindow        = time.Minute
	defaultMaxConcurrent = 1
	defaultMaxRetries    = 5
	defaultBatchSize     = 2
)

// ErrRateLimited marks an error caused by the remote side rejecting a request for
// exceeding its quota. Errors matching it with errors.Is trigger backoff and a retry.
var ErrRateLimited = errors.New("rate limited")

// Options configures a Limiter
type Options struct {
	MaxRequests   int           // requests allowed per window
	Window        time.Duration // sliding window length
	MaxConcurrent int           // callers allowed inside Wait at once
	MinDelay      time.Duration // base delay between requests, doubled per consecutive error
	MaxRetries    int           // rate-limited retries of one batch before giving up
}

// Limiter implements a sliding-window rate limiter with exponential backoff
type Limiter struct {
	maxRequests int
	window      time.Duration
	minDelay    time.Duration
	maxRetries  int

	// slots is the pending queue: a caller holds a slot while it waits for quota
	slots chan struct{}

	mutex             sync.Mutex
	requests          []time.Time // start times inside the window, oldest first
	lastRequest       time.Time
	consecutiveErrors int

	log *logrus.Logger
	now func() time.Time
}

// New creates a new Limiter; zero values in opts fall back to defaults,
// except MinDelay which is used as given.
func New(opts Options, log *logrus.Logger) *Limiter {
	if opts.MaxRequests <= 0 {
		opts.MaxRequests = defaultMaxRequests
	}
	if opts.Window <= 0 {
		opts.Window = defaultWindow
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.MinDelay < 0 {
		opts.MinDelay = 0
	}

	return &Limiter{
		maxRequests: opts.MaxRequests,
		window:      opts.Window,
		minDelay:    opts.MinDelay,
		maxRetries:  opts.MaxRetries,
		slots:       make(chan struct{}, opts.MaxConcurrent),
		requests:    make([]time.Time, 0, opts.MaxRequests),
		log:         log,
		now:         time.Now,
	}
}

// Wait blocks until the caller may issue one request
func (l *Limiter) Wait(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.slots }()

	l.mutex.Lock()
	delay := l.backoffDelayLocked() - l.now().Sub(l.lastRequest)
	l.mutex.Unlock()

	if err := sleep(ctx, delay); err != nil {
		return err
	}

	for {
		l.mutex.Lock()
		now := l.now()
		l.pruneLocked(now)

		if len(l.requests) < l.maxRequests {
			l.requests = append(l.requests, now)
			l.lastRequest = now
			l.mutex.Unlock()
			return nil
		}

		// window is full; sleep until the oldest request ages out and check again
		wait := l.requests[0].Add(l.window).Sub(now)
		l.mutex.Unlock()

		l.log.WithFields(logrus.Fields{
			"wait_ms":      wait.Milliseconds(),
			"max_requests": l.maxRequests,
			"window_sec":   l.window.Seconds(),
		}).Debug("Rate limit window full, waiting")

		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// BackoffDelay returns MinDelay * 2^consecutiveErrors
func (l *Limiter) BackoffDelay() time.Duration {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.backoffDelayLocked()
}

// RecordRateLimited doubles the backoff delay
func (l *Limiter) RecordRateLimited() {
	l.mutex.Lock()
	l.consecutiveErrors++
	delay := l.backoffDelayLocked()
	l.mutex.Unlock()

	l.log.WithField("backoff_ms", delay.Milliseconds()).Warn("Rate limit hit, increasing backoff delay")
}

// RecordSuccess halves the backoff delay, never going below MinDelay
func (l *Limiter) RecordSuccess() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.consecutiveErrors > 0 {
		l.consecutiveErrors--
	}
}

func (l *Limiter) backoffDelayLocked() time.Duration {
	// cap the exponent so the shift cannot overflow
	exp := l.consecutiveErrors
	if exp > 20 {
		exp = 20
	}
	return l.minDelay * time.Duration(1<<exp)
}

func (l *Limiter) pruneLocked(now time.Time) {
	i := 0
	for i < len(l.requests) && now.Sub(l.requests[i]) >= l.window {
		i++
	}
	if i > 0 {
		l.requests = append(l.requests[:0], l.requests[i:]...)
	}
}

// ProcessBatch runs worker over items in chunks of batchSize. Items of a chunk run
// concurrently, each one after Wait; chunks run one after another. When a chunk fails
// with ErrRateLimited the backoff grows and the same chunk is retried, up to the
// limiter's MaxRetries. Any other error is returned immediately.
func ProcessBatch[T any](ctx context.Context, l *Limiter, items []T, worker func(context.Context, T) error, batchSize int) error {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	retries := 0
	for start := 0; start < len(items); {
		end := min(start+batchSize, len(items))

		g, gctx := errgroup.WithContext(ctx)
		for _, item := range items[start:end] {
			item := item
			g.Go(func() error {
				if err := l.Wait(gctx); err != nil {
					return err
				}
				if err := worker(gctx, item); err != nil {
					return err
				}
				l.RecordSuccess()
				return nil
			})
		}

		err := g.Wait()
		switch {
		case err == nil:
			retries = 0
			start = end
			if start < len(items) {
				if err := sleep(ctx, l.BackoffDelay()); err != nil {
					return err
				}
			}
		case errors.Is(err, ErrRateLimited):
			l.RecordRateLimited()
			retries++
			if retries > l.maxRetries {
				return fmt.Errorf("batch at offset %d: giving up after %d retries: %w", start, l.maxRetries, err)
			}

			l.log.WithFields(logrus.Fields{
				"offset":  start,
				"attempt": retries,
			}).Warn("Batch hit rate limit, retrying")

			if err := sleep(ctx, l.BackoffDelay()); err != nil {
				return err
			}
		default:
			return err
		}
	}

	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
