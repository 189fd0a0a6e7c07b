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

package polling

import (
	"context"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-ld2402"
	"github.com/ZaparooProject/go-ld2402/internal/syncutil"
)

// DeviceRecoverer brings a silent or failed sensor back.
type DeviceRecoverer interface {
	// AttemptRecovery returns nil once GetDevice holds a working device.
	AttemptRecovery(ctx context.Context) error
	// GetDevice returns the device to drive, which may be a new one after
	// AttemptRecovery reconnected.
	GetDevice() *ld2402.Device
}

// ReopenFunc opens a fresh device connection.
type ReopenFunc func(ctx context.Context) (*ld2402.Device, error)

const (
	defaultRecoveryAttempts = 3
	defaultRecoveryBackoff  = 500 * time.Millisecond
	// recoveryBackoffCeiling bounds backoff growth as a multiple of the initial wait.
	recoveryBackoffCeiling = 4
)

// DefaultRecoverer first pings the sensor with a firmware query, which also
// closes any configuration session it was left in. When that fails and a
// ReopenFunc is set, the old device is closed and replaced by a new one.
// Both steps repeat with growing backoff until maxAttempts is used up.
type DefaultRecoverer struct {
	device      *ld2402.Device
	reopenFunc  ReopenFunc
	backoff     time.Duration
	maxAttempts int
	mu          syncutil.Mutex
}

// NewDefaultRecoverer creates a DefaultRecoverer. Non-positive backoff or
// maxAttempts select 500ms and 3. A nil reopenFunc limits recovery to the ping.
func NewDefaultRecoverer(
	device *ld2402.Device,
	reopenFunc ReopenFunc,
	backoff time.Duration,
	maxAttempts int,
) *DefaultRecoverer {
	r := &DefaultRecoverer{
		device:      device,
		reopenFunc:  reopenFunc,
		backoff:     backoff,
		maxAttempts: maxAttempts,
	}
	if r.backoff <= 0 {
		r.backoff = defaultRecoveryBackoff
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultRecoveryAttempts
	}
	return r
}

// AttemptRecovery implements DeviceRecoverer.
func (r *DefaultRecoverer) AttemptRecovery(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	policy := &ld2402.RetryConfig{
		MaxAttempts:       r.maxAttempts,
		InitialBackoff:    r.backoff,
		MaxBackoff:        recoveryBackoffCeiling * r.backoff,
		BackoffMultiplier: 2,
		RetryIf:           func(error) bool { return true },
	}

	attempt := 0
	err := ld2402.RetryWithConfig(ctx, policy, func() error {
		attempt++
		return r.revive(ctx, attempt)
	})
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("recovery interrupted: %w", ctx.Err())
	}
	return err
}

// revive runs one ping-then-reopen round.
func (r *DefaultRecoverer) revive(ctx context.Context, attempt int) error {
	_, err := r.device.ReadFirmwareVersion(ctx)
	if err == nil {
		return nil
	}
	ld2402.Debugf("recovery %d/%d: sensor did not answer: %v", attempt, r.maxAttempts, err)
	if r.reopenFunc == nil {
		return err
	}

	_ = r.device.Close()
	fresh, err := r.reopenFunc(ctx)
	if err != nil {
		ld2402.Debugf("recovery %d/%d: reopen failed: %v", attempt, r.maxAttempts, err)
		return err
	}
	r.device = fresh
	return nil
}

// GetDevice implements DeviceRecoverer.
func (r *DefaultRecoverer) GetDevice() *ld2402.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.device
}
