package errors

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// RetryConfig configures retry behavior for failed crawl requests.
type RetryConfig struct {
	MaxRetries   int           // Maximum number of retries (0 = single attempt)
	InitialDelay time.Duration // Delay before the first retry
	MaxDelay     time.Duration // Upper bound for a single delay
	Multiplier   float64       // Exponential backoff multiplier
	Jitter       float64       // Random jitter factor (0-1)
}

// DefaultRetryConfig returns the request retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// Retrier implements retry logic with exponential backoff.
type Retrier struct {
	config  RetryConfig
	mu      sync.Mutex
	rng     *rand.Rand
	onRetry func(attempt int, err error)
}

// NewRetrier creates a new retrier.
func NewRetrier(config RetryConfig) *Retrier {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.Multiplier < 1 {
		config.Multiplier = 1
	}
	return &Retrier{
		config: config,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewDefaultRetrier creates a retrier with default configuration.
func NewDefaultRetrier() *Retrier {
	return NewRetrier(DefaultRetryConfig())
}

// OnRetry registers a callback invoked before each retry.
func (r *Retrier) OnRetry(fn func(attempt int, err error)) {
	r.onRetry = fn
}

// RetryFunc is a function that can be retried.
type RetryFunc func(ctx context.Context) error

// RetryResult holds the result of a retry operation.
type RetryResult struct {
	Attempts  int           // Number of attempts made
	LastError error         // The last error encountered
	Duration  time.Duration // Total time spent
	Success   bool          // Whether the operation succeeded
}

// Do executes fn until it succeeds, fails permanently, or retries run out.
func (r *Retrier) Do(ctx context.Context, operation string, url string, fn RetryFunc) *RetryResult {
	result := &RetryResult{}
	start := time.Now()
	delay := r.config.InitialDelay

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		result.Attempts++

		err := fn(ctx)
		if err == nil {
			result.Success = true
			result.Duration = time.Since(start)
			return result
		}
		result.LastError = err

		if ctx.Err() != nil {
			result.LastError = NewCancelledError(url, operation)
			break
		}

		if attempt >= r.config.MaxRetries || !IsRetryable(err) {
			break
		}

		if r.onRetry != nil {
			r.onRetry(attempt+1, err)
		}

		select {
		case <-ctx.Done():
			result.LastError = NewCancelledError(url, operation)
			result.Duration = time.Since(start)
			return result
		case <-time.After(r.jittered(delay)):
		}

		delay = r.nextDelay(delay)
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Retrier) jittered(base time.Duration) time.Duration {
	if r.config.Jitter <= 0 || base <= 0 {
		return base
	}

	r.mu.Lock()
	f := r.rng.Float64()
	r.mu.Unlock()

	jitter := r.config.Jitter * float64(base)
	return time.Duration(float64(base) + (f*2*jitter - jitter))
}

func (r *Retrier) nextDelay(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * r.config.Multiplier)
	if r.config.MaxDelay > 0 && next > r.config.MaxDelay {
		return r.config.MaxDelay
	}
	return next
}
