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

package testing

import (
	"io"
	"math/rand/v2"
	"time"
)

// usbPacketSize is the bulk endpoint packet size of CH340 and CP2102 bridges.
const usbPacketSize = 64

// JitterConfig shapes how a JitteryConnection hands out bytes.
type JitterConfig struct {
	// MaxLatencyMs adds a random 0..MaxLatencyMs delay before every read.
	MaxLatencyMs int
	// FragmentMinBytes is the smallest fragment FragmentReads produces.
	FragmentMinBytes int
	// Seed makes the fragment sizes reproducible. Zero picks a random seed.
	Seed uint64
	// FragmentReads truncates every read to a random length.
	FragmentReads bool
	// USBBoundaryStress never lets a read cross a 64-byte packet boundary.
	USBBoundaryStress bool
}

// DefaultJitterConfig fragments reads down to single bytes without latency.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{FragmentReads: true, FragmentMinBytes: 1}
}

// JitteryConnection sits between a reader and the simulator and splits the
// sensor's output the way USB-UART bridges do: frames and text lines arrive
// in arbitrary pieces. Nothing the backend produced is ever lost.
type JitteryConnection struct {
	backend   io.ReadWriter
	rng       *rand.Rand
	pending   []byte
	config    JitterConfig
	delivered int
}

// NewJitteryConnection wraps backend.
func NewJitteryConnection(backend io.ReadWriter, config JitterConfig) *JitteryConnection {
	config.FragmentMinBytes = max(config.FragmentMinBytes, 1)

	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // test jitter
	}
	return &JitteryConnection{
		backend: backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, ^seed)), //nolint:gosec // test jitter
	}
}

// Write forwards to the backend unchanged.
func (j *JitteryConnection) Write(data []byte) (int, error) {
	return j.backend.Write(data) //nolint:wrapcheck // pass-through
}

// Read hands out a slice of the pending backend output.
func (j *JitteryConnection) Read(buf []byte) (int, error) {
	j.stall()

	if len(j.pending) == 0 {
		if err := j.fill(); err != nil {
			return 0, err
		}
	}

	n := j.chunk(min(len(j.pending), len(buf)))
	copy(buf, j.pending[:n])
	j.pending = j.pending[n:]
	j.delivered += n
	return n, nil
}

func (j *JitteryConnection) stall() {
	if j.config.MaxLatencyMs <= 0 {
		return
	}
	time.Sleep(time.Duration(j.rng.IntN(j.config.MaxLatencyMs+1)) * time.Millisecond)
}

func (j *JitteryConnection) fill() error {
	var tmp [1024]byte
	n, err := j.backend.Read(tmp[:])
	if err != nil {
		return err //nolint:wrapcheck // pass-through
	}
	j.pending = append(j.pending, tmp[:n]...)
	return nil
}

// chunk picks how many of the n available bytes this read returns.
func (j *JitteryConnection) chunk(n int) int {
	if n == 0 {
		return 0
	}
	if j.config.USBBoundaryStress {
		n = min(n, usbPacketSize-j.delivered%usbPacketSize)
	}
	if lo := j.config.FragmentMinBytes; j.config.FragmentReads && n > lo {
		n = lo + j.rng.IntN(n-lo+1)
	}
	return n
}

// Buffered returns how many backend bytes have not been handed out yet.
func (j *JitteryConnection) Buffered() int {
	return len(j.pending)
}

// ClearBuffer discards the pending backend bytes.
func (j *JitteryConnection) ClearBuffer() {
	j.pending = j.pending[:0]
}
