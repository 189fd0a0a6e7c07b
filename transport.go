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

package ld2402

import (
	"errors"
	"io"
	"time"

	"github.com/ZaparooProject/go-ld2402/internal/frame"
	"github.com/ZaparooProject/go-ld2402/internal/syncutil"
)

// Transport is the byte-level link to the sensor. Implementations must
// never block in ReadByte: callers only read after Available reports data.
type Transport interface {
	io.ByteReader
	io.Writer

	// Available returns the number of bytes that can be read without blocking.
	Available() int

	// Close closes the transport connection
	Close() error

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// Scheduler is the host's cooperative scheduling hook. Now is read at the
// start of every wait and re-checked on each poll iteration; Yield hands
// control back to the host so other duties keep running while the driver
// waits for the sensor.
type Scheduler interface {
	Now() time.Time
	Yield()
}

// SystemScheduler is a Scheduler backed by the wall clock. Yield sleeps for
// the poll interval.
type SystemScheduler struct {
	interval time.Duration
}

// NewSystemScheduler returns a wall-clock scheduler. A non-positive
// interval selects DefaultPollInterval.
func NewSystemScheduler(interval time.Duration) *SystemScheduler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &SystemScheduler{interval: interval}
}

// Now implements Scheduler
func (*SystemScheduler) Now() time.Time {
	return time.Now()
}

// Yield implements Scheduler
func (s *SystemScheduler) Yield() {
	time.Sleep(s.interval)
}

// Interval returns the poll interval.
func (s *SystemScheduler) Interval() time.Duration {
	return s.interval
}

// ManualScheduler is a Scheduler with a virtual clock. Every Yield advances
// the clock by Step and then runs OnYield, which tests use to make bytes
// "arrive" while a command is waiting.
type ManualScheduler struct {
	now     time.Time
	OnYield func(now time.Time)
	Step    time.Duration
	yields  int
	mu      syncutil.Mutex
}

// NewManualScheduler creates a virtual clock starting at start.
func NewManualScheduler(start time.Time, step time.Duration) *ManualScheduler {
	return &ManualScheduler{now: start, Step: step}
}

// Now implements Scheduler
func (s *ManualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Yield implements Scheduler
func (s *ManualScheduler) Yield() {
	s.mu.Lock()
	s.now = s.now.Add(s.Step)
	s.yields++
	now := s.now
	hook := s.OnYield
	s.mu.Unlock()
	if hook != nil {
		hook(now)
	}
}

// Advance moves the clock forward without counting a yield.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	s.mu.Unlock()
}

// Yields returns how many times Yield was called.
func (s *ManualScheduler) Yields() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.yields
}

// Responder builds the bytes a MockTransport queues in reply to a command.
// It receives the request data after the opcode.
type Responder func(data []byte) []byte

// MockTransport provides a scriptable in-memory Transport for testing.
// Command frames written to it are decoded; each opcode can be answered
// with a canned response, a Responder, or an error.
type MockTransport struct {
	responders map[Opcode]Responder
	callCount  map[Opcode]int
	errorMap   map[Opcode]error
	decoder    *frame.Decoder
	rx         []byte
	written    []byte
	requests   []*frame.Frame
	mu         syncutil.Mutex
	closed     bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		responders: make(map[Opcode]Responder),
		callCount:  make(map[Opcode]int),
		errorMap:   make(map[Opcode]error),
		decoder:    frame.NewDecoder(),
	}
}

// errMockClosed is returned by a closed MockTransport.
var errMockClosed = errors.New("mock transport closed")

// Write implements Transport. Complete command frames trigger the
// configured response for their opcode.
func (m *MockTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, errMockClosed
	}

	for _, b := range p {
		res := m.decoder.Feed(b)
		if res.Frame == nil || res.Frame.Family != frame.FamilyCommand {
			continue
		}
		op := Opcode(res.Frame.Opcode)
		m.callCount[op]++
		m.requests = append(m.requests, res.Frame)
		if err, ok := m.errorMap[op]; ok {
			return 0, err
		}
		if responder, ok := m.responders[op]; ok {
			m.rx = append(m.rx, responder(res.Frame.Data)...)
		}
	}
	m.written = append(m.written, p...)
	return len(p), nil
}

// ReadByte implements io.ByteReader
func (m *MockTransport) ReadByte() (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.rx) == 0 {
		if m.closed {
			return 0, errMockClosed
		}
		return 0, io.EOF
	}
	b := m.rx[0]
	m.rx = m.rx[1:]
	return b, nil
}

// Available implements Transport
func (m *MockTransport) Available() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rx)
}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Type implements Transport
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// SetResponse answers every op request with an acknowledgement frame
// carrying data after the echoed opcode.
func (m *MockTransport) SetResponse(op Opcode, data []byte) {
	resp := frame.Encode(uint16(op.Ack()), data)
	m.SetResponder(op, func([]byte) []byte { return resp })
}

// SetRawResponse answers every op request with raw bytes.
func (m *MockTransport) SetRawResponse(op Opcode, raw []byte) {
	m.SetResponder(op, func([]byte) []byte { return raw })
}

// SetResponder installs a dynamic responder for op.
func (m *MockTransport) SetResponder(op Opcode, fn Responder) {
	m.mu.Lock()
	m.responders[op] = fn
	m.mu.Unlock()
}

// ClearResponse makes op go unanswered.
func (m *MockTransport) ClearResponse(op Opcode) {
	m.mu.Lock()
	delete(m.responders, op)
	m.mu.Unlock()
}

// SetError makes writes of op fail with err.
func (m *MockTransport) SetError(op Opcode, err error) {
	m.mu.Lock()
	m.errorMap[op] = err
	m.mu.Unlock()
}

// ClearError removes error injection for a command
func (m *MockTransport) ClearError(op Opcode) {
	m.mu.Lock()
	delete(m.errorMap, op)
	m.mu.Unlock()
}

// Inject queues bytes as if the sensor had sent them.
func (m *MockTransport) Inject(data []byte) {
	m.mu.Lock()
	m.rx = append(m.rx, data...)
	m.mu.Unlock()
}

// InjectString queues text as if the sensor had printed it.
func (m *MockTransport) InjectString(s string) {
	m.Inject([]byte(s))
}

// GetCallCount returns how many requests for op were written.
func (m *MockTransport) GetCallCount(op Opcode) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount[op]
}

// Requests returns the decoded command frames written so far.
func (m *MockTransport) Requests() []*frame.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*frame.Frame(nil), m.requests...)
}

// Written returns every byte written so far.
func (m *MockTransport) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.written...)
}

// Reset clears call counts, captured writes and pending input.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.callCount = make(map[Opcode]int)
	m.requests = nil
	m.written = nil
	m.rx = nil
	m.closed = false
	m.decoder.Reset()
	m.mu.Unlock()
}
