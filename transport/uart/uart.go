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

package uart

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ZaparooProject/go-ld2402"
	"github.com/ZaparooProject/go-ld2402/internal/syncutil"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the LD2402's factory UART speed.
	DefaultBaudRate = 115200

	// maxBuffered caps unread input. The sensor streams continuously, so a
	// host that stops pumping would otherwise grow the buffer without bound.
	maxBuffered = 8192

	readChunk = 256
)

// Option configures a Transport at open time.
type Option func(*options)

type options struct {
	baudRate    int
	readTimeout time.Duration
}

// WithBaudRate overrides DefaultBaudRate.
func WithBaudRate(baud int) Option {
	return func(o *options) {
		if baud > 0 {
			o.baudRate = baud
		}
	}
}

// WithReadTimeout sets the serial read timeout used by the reader goroutine.
// It bounds how long Close waits for the reader to notice.
func WithReadTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.readTimeout = timeout
		}
	}
}

// Transport implements the ld2402.Transport interface over a serial port.
// A background goroutine drains the port into a buffer so that Available
// and ReadByte never block the host loop.
type Transport struct {
	port     serial.Port
	readErr  error
	done     chan struct{}
	portName string
	rx       []byte
	wg       sync.WaitGroup
	mu       syncutil.Mutex
	writeMu  syncutil.Mutex
	dropped  uint64
	closed   bool
}

// defaultReadTimeout is the platform serial read timeout. usbser.sys
// returns short reads noticeably later than the Linux and macOS drivers.
func defaultReadTimeout() time.Duration {
	if runtime.GOOS == "windows" {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// writeSettle is how long Write waits for the driver to push bytes out.
func writeSettle() time.Duration {
	if runtime.GOOS == "windows" {
		return 15 * time.Millisecond
	}
	return 0
}

// New opens portName at 8N1 and starts the reader goroutine.
func New(portName string, opts ...Option) (*Transport, error) {
	o := options{baudRate: DefaultBaudRate, readTimeout: defaultReadTimeout()}
	for _, opt := range opts {
		opt(&o)
	}

	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: o.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(o.readTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	return newWithPort(port, portName), nil
}

// newWithPort wraps an already configured port.
func newWithPort(port serial.Port, portName string) *Transport {
	t := &Transport{
		port:     port,
		portName: portName,
		rx:       make([]byte, 0, readChunk),
		done:     make(chan struct{}),
	}
	t.wg.Add(1)
	go t.readLoop()
	return t
}

func (t *Transport) readLoop() {
	defer t.wg.Done()
	buf := make([]byte, readChunk)
	for {
		select {
		case <-t.done:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if n > 0 {
			t.appendInput(buf[:n])
		}
		if err == nil {
			continue
		}
		if isInterruptedSystemCall(err) {
			continue
		}

		select {
		case <-t.done:
			return
		default:
		}
		ld2402.Debugf("UART %s reader stopped: %v", t.portName, err)
		t.mu.Lock()
		t.readErr = err
		t.mu.Unlock()
		return
	}
}

func (t *Transport) appendInput(p []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rx = append(t.rx, p...)
	if over := len(t.rx) - maxBuffered; over > 0 {
		t.rx = append(t.rx[:0], t.rx[over:]...)
		t.dropped += uint64(over)
	}
}

// Available implements ld2402.Transport
func (t *Transport) Available() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rx)
}

// ReadByte implements io.ByteReader. It returns io.EOF when nothing is
// buffered, and the reader's error once the port has failed and the buffer
// is drained.
func (t *Transport) ReadByte() (byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.rx) == 0 {
		switch {
		case t.closed:
			return 0, ld2402.NewTransportClosedError("ReadByte", t.portName)
		case t.readErr != nil:
			return 0, ld2402.NewTransportError("ReadByte", t.portName, t.readErr, ld2402.ErrorTypePermanent)
		default:
			return 0, io.EOF
		}
	}
	b := t.rx[0]
	t.rx = t.rx[1:]
	return b, nil
}

// Write implements io.Writer. The whole frame is written and drained
// before returning.
func (t *Transport) Write(p []byte) (int, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return 0, ld2402.NewTransportClosedError("Write", t.portName)
	}

	n, err := t.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("UART write failed: %w", err)
	} else if n != len(p) {
		return n, ld2402.NewTransportWriteError("Write", t.portName)
	}

	if err := t.drainWithRetry("write"); err != nil {
		return n, err
	}
	if d := writeSettle(); d > 0 {
		time.Sleep(d)
	}
	return n, nil
}

// Dropped returns how many unread bytes were discarded because the host
// fell behind.
func (t *Transport) Dropped() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Flush discards buffered input.
func (t *Transport) Flush() error {
	t.mu.Lock()
	t.rx = t.rx[:0]
	t.mu.Unlock()
	if err := t.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("UART reset input buffer failed: %w", err)
	}
	return nil
}

// SetTimeout sets the read timeout of the underlying port
func (t *Transport) SetTimeout(timeout time.Duration) error {
	if err := t.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("UART set timeout failed: %w", err)
	}
	return nil
}

// Close stops the reader and closes the port. It is safe to call twice.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()

	err := t.port.Close()
	t.wg.Wait()
	if err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// IsConnected returns true until Close is called or the port fails
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed && t.readErr == nil
}

// Type returns the transport type
func (*Transport) Type() ld2402.TransportType {
	return ld2402.TransportUART
}

// PortName returns the path the transport was opened on
func (t *Transport) PortName() string {
	return t.portName
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

var errDrainRetries = errors.New("drain retries exhausted")

// drainWithRetry performs port drain with retry logic for interrupted system calls
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := t.port.Drain()
		if err == nil {
			return nil
		}

		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt)) // 2ms, 4ms
			continue
		}

		return fmt.Errorf("UART %s drain failed: %w", operation, err)
	}

	return fmt.Errorf("UART %s: %w after %d attempts", operation, errDrainRetries, maxRetries)
}

// Ensure Transport implements ld2402.Transport
var _ ld2402.Transport = (*Transport)(nil)
