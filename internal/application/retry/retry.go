package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Config configures retry behavior. Zero fields fall back to DefaultConfig.
type Config struct {
	MaxAttempts       int           `yaml:"maxAttempts"`
	BaseDelay         time.Duration `yaml:"baseDelay"`
	MaxDelay          time.Duration `yaml:"maxDelay"`
	BackoffMultiplier float64       `yaml:"backoffMultiplier"`
	MaxJitter         time.Duration `yaml:"maxJitter"`
}

// DefaultConfig: 3 attempts, 1s base, 10s cap, x2, up to 1s jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		BaseDelay:         time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
		MaxJitter:         time.Second,
	}
}

// Merge overlays the non-zero fields of c onto base.
func (c Config) Merge(base Config) Config {
	if c.MaxAttempts > 0 {
		base.MaxAttempts = c.MaxAttempts
	}
	if c.BaseDelay > 0 {
		base.BaseDelay = c.BaseDelay
	}
	if c.MaxDelay > 0 {
		base.MaxDelay = c.MaxDelay
	}
	if c.BackoffMultiplier > 0 {
		base.BackoffMultiplier = c.BackoffMultiplier
	}
	if c.MaxJitter > 0 {
		base.MaxJitter = c.MaxJitter
	}
	return base
}

// Backoff is the delay before the retry that follows the given failed
// attempt (1-based), without jitter.
func (c Config) Backoff(attempt int) time.Duration {
	d := float64(c.BaseDelay) * math.Pow(c.BackoffMultiplier, float64(attempt-1))
	if d > float64(c.MaxDelay) || math.IsInf(d, 0) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// Predicate decides whether an error is worth another attempt.
type Predicate func(err error) bool

// Always retries every error.
func Always(error) bool { return true }

type settings struct {
	cfg       Config
	retryable Predicate
	sleep     func(ctx context.Context, d time.Duration) error
	jitter    func(max time.Duration) time.Duration
	onRetry   func(attempt int, err error, delay time.Duration)
}

// Option tweaks a single Do call.
type Option func(*settings)

// WithConfig overrides the non-zero fields of the default config.
func WithConfig(c Config) Option {
	return func(s *settings) { s.cfg = c.Merge(s.cfg) }
}

// WithMaxAttempts caps the total number of attempts.
func WithMaxAttempts(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.cfg.MaxAttempts = n
		}
	}
}

// WithPredicate sets the retry predicate.
func WithPredicate(p Predicate) Option {
	return func(s *settings) {
		if p != nil {
			s.retryable = p
		}
	}
}

// WithOnRetry registers a hook called before each backoff sleep.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(s *settings) { s.onRetry = fn }
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *settings) { s.sleep = fn }
}

// WithJitter replaces the jitter source, mainly for tests.
func WithJitter(fn func(max time.Duration) time.Duration) Option {
	return func(s *settings) { s.jitter = fn }
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func uniformJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}

// Do runs op until it succeeds, the predicate rejects its error, or the
// attempts run out. The last error is returned unmodified; ctx
// cancellation during a backoff returns ctx.Err().
func Do[T any](ctx context.Context, op func(context.Context) (T, error), opts ...Option) (T, error) {
	s := settings{
		cfg:       DefaultConfig(),
		retryable: Always,
		sleep:     sleepCtx,
		jitter:    uniformJitter,
	}
	for _, o := range opts {
		o(&s)
	}

	var zero T
	for attempt := 1; ; attempt++ {
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		if attempt >= s.cfg.MaxAttempts || !s.retryable(err) {
			return zero, err
		}

		delay := s.cfg.Backoff(attempt) + s.jitter(s.cfg.MaxJitter)
		if s.onRetry != nil {
			s.onRetry(attempt, err, delay)
		}
		if serr := s.sleep(ctx, delay); serr != nil {
			return zero, serr
		}
	}
}

// Wrap binds options to op so the result can be called repeatedly.
func Wrap[T any](op func(context.Context) (T, error), opts ...Option) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		return Do(ctx, op, opts...)
	}
}
