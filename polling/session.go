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
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-ld2402"
	"github.com/ZaparooProject/go-ld2402/internal/syncutil"
)

// Session monitors occupancy on top of a DeviceActor. It turns the reading
// stream into occupied/vacant transitions and routes configuration actions
// through the loop that owns the device.
type Session struct {
	OnReading  func(r ld2402.Reading)
	OnOccupied func(r ld2402.Reading)
	OnVacant   func()
	OnError    func(err error)
	config     *Config
	actor      *DeviceActor
	state      OccupancyState
	stateMutex syncutil.RWMutex
	closed     atomic.Bool
}

// NewSession creates a new occupancy monitoring session
func NewSession(device *ld2402.Device, config *Config) *Session {
	if config == nil {
		config = DefaultConfig()
	}
	session := &Session{config: config}
	session.actor = NewDeviceActor(device, config, DeviceCallbacks{
		OnReading: session.handleReading,
		OnTick:    session.handleTick,
		OnError:   session.handleError,
	})
	return session
}

// Run drives the sensor on the calling goroutine until ctx is done or the
// device fails beyond recovery.
func (s *Session) Run(ctx context.Context) error {
	return s.actor.Run(ctx)
}

// Start drives the sensor in the background.
func (s *Session) Start(ctx context.Context) error {
	return s.actor.Start(ctx)
}

// Err returns the error that ended a background session.
func (s *Session) Err() error {
	return s.actor.Err()
}

// GetState returns the current occupancy state
func (s *Session) GetState() OccupancyState {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	return s.state
}

// GetDevice returns the device currently being driven.
func (s *Session) GetDevice() *ld2402.Device {
	return s.actor.GetDevice()
}

// GetDeviceActor returns the underlying device actor
func (s *Session) GetDeviceActor() *DeviceActor {
	return s.actor
}

// SetRecoverer installs the recovery strategy.
func (s *Session) SetRecoverer(r DeviceRecoverer) {
	s.actor.SetRecoverer(r)
}

// SetOnReading sets the callback for every reading
func (s *Session) SetOnReading(callback func(ld2402.Reading)) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.OnReading = callback
}

// SetOnOccupied sets the callback for when a target appears
func (s *Session) SetOnOccupied(callback func(ld2402.Reading)) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.OnOccupied = callback
}

// SetOnVacant sets the callback for when the area becomes vacant
func (s *Session) SetOnVacant(callback func()) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.OnVacant = callback
}

// SetOnError sets the callback for loop errors
func (s *Session) SetOnError(callback func(error)) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.OnError = callback
}

// Close stops a background session. It is safe to call more than once.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.actor.Stop(context.Background()); err != nil {
		return fmt.Errorf("failed to stop device actor: %w", err)
	}
	return nil
}

// Do runs fn against the device between host ticks.
func (s *Session) Do(ctx context.Context, fn func(context.Context, *ld2402.Device) error) error {
	if s.closed.Load() {
		return ErrNotRunning
	}
	return s.actor.Do(ctx, fn)
}

// Calibrate starts a background calibration; progress keeps flowing
// through the device's calibration sensor while the session runs.
func (s *Session) Calibrate(ctx context.Context, coeffs ...ld2402.Coefficients) error {
	return s.Do(ctx, func(ctx context.Context, d *ld2402.Device) error {
		return d.Calibrate(ctx, coeffs...)
	})
}

// StartAutoGain starts auto-gain adjustment.
func (s *Session) StartAutoGain(ctx context.Context) error {
	return s.Do(ctx, func(ctx context.Context, d *ld2402.Device) error {
		return d.StartAutoGain(ctx)
	})
}

// SaveConfiguration saves the sensor parameters to flash.
func (s *Session) SaveConfiguration(ctx context.Context) error {
	return s.Do(ctx, func(ctx context.Context, d *ld2402.Device) error {
		return d.SaveConfiguration(ctx)
	})
}

func (s *Session) handleReading(r ld2402.Reading, now time.Time) {
	s.stateMutex.Lock()
	entered := s.state.Observe(r, now)
	onReading, onOccupied := s.OnReading, s.OnOccupied
	s.stateMutex.Unlock()

	if onReading != nil {
		safeCall("OnReading", func() { onReading(r) })
	}
	if entered && onOccupied != nil {
		safeCall("OnOccupied", func() { onOccupied(r) })
	}
}

func (s *Session) handleTick(now time.Time) {
	s.stateMutex.Lock()
	left := s.state.Expire(now, s.config.VacancyDelay)
	onVacant := s.OnVacant
	s.stateMutex.Unlock()

	if left && onVacant != nil {
		safeCall("OnVacant", onVacant)
	}
}

// handleError reports loop errors. A lost link means nobody can vouch for
// the area any more, so it is cleared.
func (s *Session) handleError(err error) {
	s.stateMutex.Lock()
	left := ld2402.IsFatal(err) && s.state.Clear(time.Now())
	onVacant, onError := s.OnVacant, s.OnError
	s.stateMutex.Unlock()

	if left && onVacant != nil {
		safeCall("OnVacant", onVacant)
	}
	if onError != nil {
		safeCall("OnError", func() { onError(err) })
	}
}

// safeCall executes a callback with panic recovery
func safeCall(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			ld2402.Debugf("Warning: %s callback panicked: %v", name, r)
		}
	}()
	fn()
}
