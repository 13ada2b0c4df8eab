package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/GPTx-global/gora/oracle/log"
	"github.com/GPTx-global/gora/x/gora/types"
)

// Config describes an exponential backoff schedule.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultConfig submits once, the protocol core never retries on its own.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 1,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
	}
}

// SubmitConfig is the schedule used when the caller opts into retries.
func SubmitConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
	}
}

func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.BaseDelay < 0 || c.MaxDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("multiplier must be at least 1, got %v", c.Multiplier)
	}
	return nil
}

// Func is one attempt; attempt counts from 1.
type Func func(attempt int) error

// IsRetryable decides whether a failed attempt may be repeated.
type IsRetryable func(error) bool

var transientReasons = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"temporary failure",
	"network is unreachable",
	"broken pipe",
	"i/o timeout",
	"insufficient deposit",
	"box already exists",
}

// DispatchIsRetryable retries only runtime rejections whose reason looks
// transient. Invalid requests fail the same way every time.
func DispatchIsRetryable(err error) bool {
	if err == nil || !errors.Is(err, types.ErrDispatchFailed) {
		return false
	}
	msg := err.Error()
	for _, reason := range transientReasons {
		if strings.Contains(msg, reason) {
			return true
		}
	}
	return false
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts
// run out or ctx is done.
func Do(ctx context.Context, cfg Config, fn Func, isRetryable IsRetryable) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	var (
		lastErr  error
		attempts int
	)
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		attempts = attempt
		err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				log.Debugf("retry: succeeded on attempt %d/%d", attempt, cfg.MaxAttempts)
			}
			return nil
		}
		lastErr = err

		if attempt == cfg.MaxAttempts || !isRetryable(err) {
			break
		}

		delay := Delay(cfg, attempt)
		log.Errorf("retry: attempt %d/%d failed, next in %v: %v", attempt, cfg.MaxAttempts, delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}

// Delay returns the wait after the given failed attempt.
func Delay(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
