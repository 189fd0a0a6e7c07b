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

package testing

import (
	"errors"
	"io"

	"github.com/ZaparooProject/go-ld2402/internal/syncutil"
)

// TransportType mirrors ld2402.TransportType to avoid an import cycle
type TransportType string

const (
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// ErrTransportClosed is returned after Close.
var ErrTransportClosed = errors.New("simulator transport closed")

// SimulatorTransport exposes a VirtualLD2402 (optionally behind a
// JitteryConnection) through the byte-level transport contract: ReadByte,
// Available, Write and Close. Bytes are pulled from the backend whenever
// Available is asked.
type SimulatorTransport struct {
	backend io.ReadWriter
	sim     *VirtualLD2402
	rx      []byte
	mu      syncutil.Mutex
	closed  bool
}

// NewSimulatorTransport creates a transport backed directly by sim.
func NewSimulatorTransport(sim *VirtualLD2402) *SimulatorTransport {
	return &SimulatorTransport{backend: sim, sim: sim}
}

// NewJitterySimulatorTransport creates a transport that reads sim through
// a JitteryConnection.
func NewJitterySimulatorTransport(sim *VirtualLD2402, config JitterConfig) *SimulatorTransport {
	return &SimulatorTransport{backend: NewJitteryConnection(sim, config), sim: sim}
}

// Write forwards data to the simulator.
func (t *SimulatorTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrTransportClosed
	}
	return t.backend.Write(p) //nolint:wrapcheck // Pass-through wrapper
}

// Available pulls whatever the backend delivers in one read and reports
// the number of buffered bytes.
func (t *SimulatorTransport) Available() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0
	}
	buf := make([]byte, 256)
	if n, err := t.backend.Read(buf); err == nil && n > 0 {
		t.rx = append(t.rx, buf[:n]...)
	}
	return len(t.rx)
}

// ReadByte returns the next buffered byte.
func (t *SimulatorTransport) ReadByte() (byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrTransportClosed
	}
	if len(t.rx) == 0 {
		return 0, io.EOF
	}
	b := t.rx[0]
	t.rx = t.rx[1:]
	return b, nil
}

// Close marks the transport closed.
func (t *SimulatorTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

// IsConnected returns false after Close.
func (t *SimulatorTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// GetSimulator returns the backing simulator.
func (t *SimulatorTransport) GetSimulator() *VirtualLD2402 {
	return t.sim
}
