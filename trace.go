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
	"errors"
	"fmt"
	"strings"
	"time"
)

// traceHexLimit caps how many bytes of a frame a trace line shows.
const traceHexLimit = 32

// TraceDirection tells whether a traced frame went to or came from the sensor.
type TraceDirection string

const (
	TraceTX TraceDirection = "TX"
	TraceRX TraceDirection = "RX"
)

// TraceEntry is one frame or event of a command exchange.
type TraceEntry struct {
	Timestamp time.Time
	Direction TraceDirection
	Note      string
	Data      []byte
}

func (e TraceEntry) String() string {
	s := fmt.Sprintf("[%s] %s: %s", e.Timestamp.Format(traceStamp), e.Direction, formatHexBytes(e.Data))
	if e.Note != "" {
		s += " (" + e.Note + ")"
	}
	return s
}

// TraceableError carries the frames exchanged before a command failed.
//
//	if te := ld2402.GetTrace(err); te != nil {
//	    log.Print(te.FormatTrace())
//	}
type TraceableError struct {
	Err       error
	Transport string
	Trace     []TraceEntry
}

func (e *TraceableError) Error() string {
	return e.Err.Error()
}

func (e *TraceableError) Unwrap() error {
	return e.Err
}

// FormatTrace renders the trace one entry per line, ">" for frames sent and
// "<" for frames received.
func (e *TraceableError) FormatTrace() string {
	if len(e.Trace) == 0 {
		return fmt.Sprintf("[%s] (no trace data)", e.Transport)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] Wire trace (%d entries):\n", e.Transport, len(e.Trace))
	for _, entry := range e.Trace {
		arrow := ">"
		if entry.Direction == TraceRX {
			arrow = "<"
		}
		sb.WriteString("  " + arrow + " " + formatHexBytes(entry.Data))
		if entry.Note != "" {
			sb.WriteString(" (" + entry.Note + ")")
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// GetTrace returns the TraceableError inside err, or nil.
func GetTrace(err error) *TraceableError {
	var te *TraceableError
	if errors.As(err, &te) {
		return te
	}
	return nil
}

func formatHexBytes(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	shown := data[:min(len(data), traceHexLimit)]
	s := fmt.Sprintf("% X", shown)
	if len(shown) < len(data) {
		s += fmt.Sprintf(" ... (%d bytes total)", len(data))
	}
	return s
}

// TraceBuffer records the newest frames of one command exchange.
type TraceBuffer struct {
	now       func() time.Time
	transport string
	entries   []TraceEntry
	limit     int
}

// NewTraceBuffer keeps up to limit entries (16 when limit <= 0), stamped
// with now, or the wall clock when now is nil.
func NewTraceBuffer(transport string, limit int, now func() time.Time) *TraceBuffer {
	if limit <= 0 {
		limit = 16
	}
	if now == nil {
		now = time.Now
	}
	return &TraceBuffer{now: now, transport: transport, limit: limit}
}

// RecordTX records a frame sent to the sensor.
func (tb *TraceBuffer) RecordTX(data []byte, note string) {
	tb.add(TraceTX, data, note)
}

// RecordRX records a frame received from the sensor.
func (tb *TraceBuffer) RecordRX(data []byte, note string) {
	tb.add(TraceRX, data, note)
}

// RecordTimeout records that the response never came.
func (tb *TraceBuffer) RecordTimeout(note string) {
	tb.add(TraceRX, nil, "TIMEOUT: "+note)
}

func (tb *TraceBuffer) add(dir TraceDirection, data []byte, note string) {
	if len(tb.entries) == tb.limit {
		tb.entries = append(tb.entries[:0], tb.entries[1:]...)
	}
	tb.entries = append(tb.entries, TraceEntry{
		Timestamp: tb.now(),
		Direction: dir,
		Note:      note,
		Data:      append([]byte(nil), data...),
	})
}

// Len returns the number of entries held.
func (tb *TraceBuffer) Len() int {
	return len(tb.entries)
}

// Clear drops all entries.
func (tb *TraceBuffer) Clear() {
	tb.entries = tb.entries[:0]
}

// WrapError attaches a copy of the trace to err. A nil err stays nil.
func (tb *TraceBuffer) WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &TraceableError{
		Err:       err,
		Transport: tb.transport,
		Trace:     append([]TraceEntry(nil), tb.entries...),
	}
}
