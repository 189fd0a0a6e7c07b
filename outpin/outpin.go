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

// Package outpin watches the LD2402 OUT pin. The module drives it high
// while a target is present, which gives presence without the UART.
package outpin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-ld2402"
	"github.com/ZaparooProject/go-ld2402/internal/syncutil"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// DefaultEdgeTimeout bounds each edge wait so Run notices cancellation.
const DefaultEdgeTimeout = 250 * time.Millisecond

// ErrPinNotFound is returned when no GPIO is registered under the name.
var ErrPinNotFound = errors.New("gpio pin not found")

// Option configures a Watcher.
type Option func(*Watcher)

// WithSink publishes presence to sink.
func WithSink(sink ld2402.BinarySink) Option {
	return func(w *Watcher) {
		w.sink = sink
	}
}

// WithHandler calls fn on every presence change.
func WithHandler(fn func(present bool)) Option {
	return func(w *Watcher) {
		w.handler = fn
	}
}

// WithEdgeTimeout sets how long a single edge wait may block.
func WithEdgeTimeout(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.edgeTimeout = d
		}
	}
}

// WithDebounce waits d after an edge before sampling the level.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithPull overrides the input pull. The default is gpio.PullDown so an
// unpowered sensor reads as absent.
func WithPull(pull gpio.Pull) Option {
	return func(w *Watcher) {
		w.pull = pull
	}
}

// Watcher publishes the OUT pin level as presence.
type Watcher struct {
	pin         gpio.PinIn
	sink        ld2402.BinarySink
	handler     func(bool)
	edgeTimeout time.Duration
	debounce    time.Duration
	pull        gpio.Pull
	mu          syncutil.Mutex
	present     bool
	known       bool
}

// New initializes the periph host and watches the named pin, for example
// "GPIO17".
func New(name string, opts ...Option) (*Watcher, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: %s", ErrPinNotFound, name)
	}
	return NewWithPin(pin, opts...)
}

// NewWithPin watches an already resolved pin.
func NewWithPin(pin gpio.PinIn, opts ...Option) (*Watcher, error) {
	w := &Watcher{
		pin:         pin,
		edgeTimeout: DefaultEdgeTimeout,
		pull:        gpio.PullDown,
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := pin.In(w.pull, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("failed to configure %s as input: %w", pin, err)
	}
	return w, nil
}

// Present samples the pin.
func (w *Watcher) Present() bool {
	return w.pin.Read() == gpio.High
}

// Run publishes the current level, then every change, until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	w.publish(w.Present())
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !w.pin.WaitForEdge(w.edgeTimeout) {
			continue
		}
		if w.debounce > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.debounce):
			}
		}
		w.publish(w.Present())
	}
}

func (w *Watcher) publish(present bool) {
	w.mu.Lock()
	changed := !w.known || present != w.present
	w.present = present
	w.known = true
	w.mu.Unlock()

	if !changed {
		return
	}
	ld2402.Debugf("OUT pin %s: presence=%t", w.pin, present)
	if w.sink != nil {
		w.sink.PublishBinary(present)
	}
	if w.handler != nil {
		w.handler(present)
	}
}

// Close stops edge detection on the pin.
func (w *Watcher) Close() error {
	if err := w.pin.Halt(); err != nil {
		return fmt.Errorf("failed to halt %s: %w", w.pin, err)
	}
	return nil
}
