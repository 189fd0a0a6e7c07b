// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ld2402

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	// Sleep waits between attempts. Nil uses a timer; the Device installs a
	// scheduler-backed wait so retries keep yielding to the host loop.
	Sleep func(ctx context.Context, d time.Duration) error
	// RetryIf decides whether an error is worth another attempt. Nil uses IsRetryable.
	RetryIf func(err error) bool
	// MaxAttempts is the maximum number of attempts (0 = no retry)
	MaxAttempts int
	// InitialBackoff is the initial backoff duration
	InitialBackoff time.Duration
	// MaxBackoff is the maximum backoff duration
	MaxBackoff time.Duration
	// BackoffMultiplier is the factor by which the backoff increases
	BackoffMultiplier float64
	// Jitter adds randomness to backoff to avoid thundering herd
	Jitter float64
	// RetryTimeout is the overall timeout for all retry attempts
	RetryTimeout time.Duration
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        1 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryTimeout:      5 * time.Second,
	}
}

// EnterConfigRetryConfig returns the fixed-delay policy used when opening a
// configuration session. The sensor often misses the first command after a
// long stretch of streaming, so every failure except a transport error is retried.
func EnterConfigRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       EnterConfigAttempts,
		InitialBackoff:    EnterConfigRetryDelay,
		MaxBackoff:        EnterConfigRetryDelay,
		BackoffMultiplier: 1.0,
		RetryIf: func(err error) bool {
			var te *TransportError
			return !errors.As(err, &te)
		},
	}
}

// RetryableFunc is a function that can be retried
type RetryableFunc func() error

// RetryWithConfig calls fn until it succeeds, returns an error RetryIf
// rejects, or MaxAttempts is used up. A nil config selects
// DefaultRetryConfig; MaxAttempts <= 0 calls fn exactly once. When the
// retry context ends between attempts the last attempt's error is returned.
func RetryWithConfig(ctx context.Context, config *RetryConfig, fn RetryableFunc) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxAttempts <= 0 {
		return fn()
	}

	if config.RetryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.RetryTimeout)
		defer cancel()
	}
	retryIf := config.RetryIf
	if retryIf == nil {
		retryIf = IsRetryable
	}
	sleep := config.Sleep
	if sleep == nil {
		sleep = timerSleep
	}

	var lastErr error
	backoff := config.InitialBackoff
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			if lastErr != nil {
				return lastErr
			}
			return fmt.Errorf("retry context cancelled: %w", ctx.Err())
		}

		lastErr = fn()
		if lastErr == nil || !retryIf(lastErr) {
			return lastErr
		}
		if attempt == config.MaxAttempts {
			break
		}

		Debugf("attempt %d/%d failed: %v", attempt, config.MaxAttempts, lastErr)
		if sleep(ctx, withJitter(backoff, config.Jitter)) != nil {
			return lastErr
		}
		backoff = nextBackoff(backoff, config)
	}
	return lastErr
}

func timerSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// schedulerSleep returns a wait that polls the scheduler clock and yields
// until d has elapsed.
func schedulerSleep(s Scheduler) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		deadline := s.Now().Add(d)
		for s.Now().Before(deadline) {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.Yield()
		}
		return nil
	}
}

// nextBackoff grows backoff by the multiplier, capped at MaxBackoff.
func nextBackoff(backoff time.Duration, config *RetryConfig) time.Duration {
	return min(time.Duration(float64(backoff)*config.BackoffMultiplier), config.MaxBackoff)
}

// withJitter adds up to factor*d of random delay.
func withJitter(d time.Duration, factor float64) time.Duration {
	if factor <= 0 || d <= 0 {
		return d
	}
	return d + time.Duration(rand.Float64()*factor*float64(d)) //nolint:gosec // jitter, not crypto
}
