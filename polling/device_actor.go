// go-ld2402
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-ld2402.
//
// go-ld2402 is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-ld2402 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-ld2402; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package polling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-ld2402"
	"github.com/ZaparooProject/go-ld2402/internal/syncutil"
)

var (
	// ErrNotRunning is returned by Do when no loop is driving the device.
	ErrNotRunning = errors.New("device actor not running")
	// ErrAlreadyRunning is returned by Run when another loop owns the device.
	ErrAlreadyRunning = errors.New("device actor already running")
	// ErrNoDevice is returned by Run without a device.
	ErrNoDevice = errors.New("no device")
	// ErrSensorSilent is reported when no reading arrived within the silence timeout.
	ErrSensorSilent = errors.New("sensor silent")
	// ErrRecoveryFailed wraps the last recovery error once all attempts are spent.
	ErrRecoveryFailed = errors.New("device recovery failed")
)

// DeviceCallbacks defines callback functions for device events. All of
// them run on the loop goroutine.
type DeviceCallbacks struct {
	OnReading   func(r ld2402.Reading, now time.Time)
	OnTick      func(now time.Time)
	OnError     func(err error)
	OnRecovered func(device *ld2402.Device)
}

// DeviceMetrics tracks operational metrics for DeviceActor
type DeviceMetrics struct {
	Ticks           int64         // Total number of host ticks
	TickErrors      int64         // Number of ticks where Loop failed
	Readings        int64         // Number of readings delivered
	Requests        int64         // Number of Do requests served
	Recoveries      int64         // Number of recovery attempts
	LastTickLatency time.Duration // Duration of the last Loop call
}

// request is a function to run against the device on the loop goroutine.
type request struct {
	ctx    context.Context
	fn     func(context.Context, *ld2402.Device) error
	result chan error
}

// DeviceActor owns a Device and drives its host tick from one goroutine.
// Everything else that wants to talk to the sensor sends a request through
// Do, so the Device itself never sees concurrent calls.
type DeviceActor struct {
	lastTick  time.Time
	lastInput time.Time
	recoverer DeviceRecoverer
	device    *ld2402.Device
	config    *Config
	requests  chan request
	done      chan struct{}
	cancel    context.CancelFunc
	runErr    error
	callbacks DeviceCallbacks
	wg        sync.WaitGroup
	mu        syncutil.Mutex
	// Atomic counters for metrics
	ticks           int64
	tickErrors      int64
	readings        int64
	requestsServed  int64
	recoveries      int64
	lastTickLatency int64 // in nanoseconds
	running         atomic.Bool
}

// NewDeviceActor creates a device actor. A nil config selects DefaultConfig.
func NewDeviceActor(device *ld2402.Device, config *Config, callbacks DeviceCallbacks) *DeviceActor {
	if config == nil {
		config = DefaultConfig()
	}
	return &DeviceActor{
		device:    device,
		config:    config,
		callbacks: callbacks,
		requests:  make(chan request),
	}
}

// SetRecoverer installs the recovery strategy used after transport
// failures, host sleep and sensor silence. Without one, a fatal transport
// error ends the loop.
func (da *DeviceActor) SetRecoverer(r DeviceRecoverer) {
	da.mu.Lock()
	da.recoverer = r
	da.mu.Unlock()
}

// GetDevice returns the device currently driven by the actor.
func (da *DeviceActor) GetDevice() *ld2402.Device {
	da.mu.Lock()
	defer da.mu.Unlock()
	return da.device
}

// IsRunning reports whether a loop is driving the device.
func (da *DeviceActor) IsRunning() bool {
	return da.running.Load()
}

// Start runs the loop in a background goroutine. It is a no-op while a
// loop started this way is still running.
func (da *DeviceActor) Start(ctx context.Context) error {
	da.mu.Lock()
	if da.cancel != nil {
		da.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	da.cancel = cancel
	da.runErr = nil
	da.mu.Unlock()

	da.wg.Add(1)
	go func() {
		defer da.wg.Done()
		err := da.Run(runCtx)

		da.mu.Lock()
		if err != nil && !errors.Is(err, context.Canceled) {
			da.runErr = err
		}
		da.cancel = nil
		da.mu.Unlock()
		cancel()
	}()
	return nil
}

// Stop cancels a loop started with Start and waits for it to exit.
func (da *DeviceActor) Stop(ctx context.Context) error {
	da.mu.Lock()
	cancel := da.cancel
	da.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	exited := make(chan struct{})
	go func() {
		da.wg.Wait()
		close(exited)
	}()
	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for device loop: %w", ctx.Err())
	}
}

// Err returns the error that ended the last background loop, if any.
func (da *DeviceActor) Err() error {
	da.mu.Lock()
	defer da.mu.Unlock()
	return da.runErr
}

// Run drives the device until ctx is done or an unrecoverable error occurs.
// The first tick happens immediately.
func (da *DeviceActor) Run(ctx context.Context) error {
	if !da.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer da.running.Store(false)

	device := da.GetDevice()
	if device == nil {
		return ErrNoDevice
	}

	done := make(chan struct{})
	da.mu.Lock()
	da.done = done
	da.mu.Unlock()
	defer func() {
		da.mu.Lock()
		da.done = nil
		da.mu.Unlock()
		close(done)
	}()

	da.attach(device)
	da.lastTick = time.Time{}
	da.lastInput = time.Now()

	ticker := time.NewTicker(da.config.TickInterval)
	defer ticker.Stop()

	if err := da.tick(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-da.requests:
			req.result <- da.serve(req)
		case <-ticker.C:
			if err := da.tick(ctx); err != nil {
				return err
			}
		}
	}
}

// Do runs fn against the device on the loop goroutine and returns its
// error. Readings that arrive while fn waits for responses are still
// delivered through the callbacks.
func (da *DeviceActor) Do(ctx context.Context, fn func(context.Context, *ld2402.Device) error) error {
	da.mu.Lock()
	done := da.done
	da.mu.Unlock()
	if done == nil {
		return ErrNotRunning
	}

	req := request{ctx: ctx, fn: fn, result: make(chan error, 1)}
	select {
	case da.requests <- req:
	case <-done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	// The loop finishes a request before it can exit.
	return <-req.result
}

func (da *DeviceActor) serve(req request) error {
	atomic.AddInt64(&da.requestsServed, 1)
	if err := req.ctx.Err(); err != nil {
		return err
	}
	err := da.device.Loop(req.ctx)
	if err == nil {
		err = req.fn(req.ctx, da.device)
	}
	// A long exchange is not a host sleep and the sensor is quiet while
	// configuration is open.
	now := time.Now()
	da.lastTick = now
	da.lastInput = now
	return err
}

// tick runs one host tick: sleep detection, Device.Loop, then the silence
// check.
func (da *DeviceActor) tick(ctx context.Context) error {
	start := time.Now()
	if !da.lastTick.IsZero() {
		elapsed := start.Sub(da.lastTick)
		if da.config.SleepRecovery.DetectSleep(elapsed, da.config.TickInterval) {
			ld2402.Debugf("host sleep detected (%v since last tick)", elapsed)
			if err := da.recover(ctx, "host sleep"); err != nil {
				return err
			}
		}
	}

	err := da.device.Loop(ctx)
	latency := time.Since(start)
	atomic.AddInt64(&da.ticks, 1)
	atomic.StoreInt64(&da.lastTickLatency, latency.Nanoseconds())

	switch {
	case err != nil:
		atomic.AddInt64(&da.tickErrors, 1)
		da.report(err)
		if !ld2402.IsFatal(err) {
			break
		}
		if da.currentRecoverer() == nil {
			return fmt.Errorf("device loop: %w", err)
		}
		if rerr := da.recover(ctx, "transport failure"); rerr != nil {
			return rerr
		}
	case da.silent(start):
		da.report(fmt.Errorf("%w for %v", ErrSensorSilent, start.Sub(da.lastInput)))
		if rerr := da.recover(ctx, "sensor silent"); rerr != nil {
			return rerr
		}
	}

	now := time.Now()
	if da.callbacks.OnTick != nil {
		da.callbacks.OnTick(now)
	}
	da.lastTick = now
	return nil
}

// silent reports whether the sensor has said nothing for longer than the
// silence timeout. Configuration sessions pause the clock.
func (da *DeviceActor) silent(now time.Time) bool {
	if da.config.SilenceTimeout <= 0 {
		return false
	}
	if da.device.ConfigurationActive() {
		da.lastInput = now
		return false
	}
	return now.Sub(da.lastInput) > da.config.SilenceTimeout
}

func (da *DeviceActor) currentRecoverer() DeviceRecoverer {
	da.mu.Lock()
	defer da.mu.Unlock()
	return da.recoverer
}

// recover runs the recoverer and adopts the device it hands back.
func (da *DeviceActor) recover(ctx context.Context, reason string) error {
	recoverer := da.currentRecoverer()
	if recoverer == nil {
		da.lastInput = time.Now()
		return nil
	}

	atomic.AddInt64(&da.recoveries, 1)
	ld2402.Debugf("attempting device recovery: %s", reason)
	if err := recoverer.AttemptRecovery(ctx); err != nil {
		return fmt.Errorf("%w after %s: %w", ErrRecoveryFailed, reason, err)
	}

	if device := recoverer.GetDevice(); device != nil && device != da.device {
		da.attach(device)
	}
	da.lastInput = time.Now()
	ld2402.Debugf("device recovered after %s", reason)
	if da.callbacks.OnRecovered != nil {
		da.callbacks.OnRecovered(da.device)
	}
	return nil
}

func (da *DeviceActor) attach(device *ld2402.Device) {
	da.mu.Lock()
	da.device = device
	da.mu.Unlock()
	device.SetReadingHandler(da.handleReading)
}

func (da *DeviceActor) handleReading(r ld2402.Reading) {
	now := time.Now()
	da.lastInput = now
	atomic.AddInt64(&da.readings, 1)
	if da.callbacks.OnReading != nil {
		da.callbacks.OnReading(r, now)
	}
}

func (da *DeviceActor) report(err error) {
	if da.callbacks.OnError != nil {
		da.callbacks.OnError(err)
	}
}

// GetMetrics returns current operational metrics
func (da *DeviceActor) GetMetrics() DeviceMetrics {
	return DeviceMetrics{
		Ticks:           atomic.LoadInt64(&da.ticks),
		TickErrors:      atomic.LoadInt64(&da.tickErrors),
		Readings:        atomic.LoadInt64(&da.readings),
		Requests:        atomic.LoadInt64(&da.requestsServed),
		Recoveries:      atomic.LoadInt64(&da.recoveries),
		LastTickLatency: time.Duration(atomic.LoadInt64(&da.lastTickLatency)),
	}
}
