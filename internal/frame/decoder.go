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

package frame

import "encoding/binary"

// Phase reports where the decoder currently is inside a frame.
type Phase int

const (
	// PhaseIdle means no header byte is pending.
	PhaseIdle Phase = iota
	// PhaseHeader means a header is partially matched.
	PhaseHeader
	// PhaseBody means a header matched and the length, payload or footer is being read.
	PhaseBody
)

type decoderState int

const (
	stateSeekingHeader decoderState = iota
	stateReadingLength
	stateInPayload
	stateSeekingFooter
)

// Result is the outcome of feeding one byte to the Decoder.
type Result struct {
	// Frame is set when the byte completed a frame.
	Frame *Frame
	// Rejected holds header bytes that were matched speculatively and turned
	// out not to start a frame. They belong to whatever the caller was
	// collecting before the header candidate started.
	Rejected []byte
	// Consumed reports whether the byte itself is part of frame framing.
	// When false the caller owns the byte.
	Consumed bool
}

// Stats counts decoder outcomes since construction or the last ResetStats.
type Stats struct {
	Frames    uint64 // complete frames emitted
	Malformed uint64 // frames dropped for an impossible length or short payload
	Dropped   uint64 // frames dropped because the footer never showed up under the cap
	Extended  uint64 // footer mismatches folded back into the payload
}

// Decoder is a single-byte state machine recovering frames of both
// families from an unbounded stream. It never needs outside help to
// resynchronize: every failure path ends in header search.
//
// Decoder is not safe for concurrent use.
type Decoder struct {
	payload  []byte
	stats    Stats
	family   Family
	state    decoderState
	match    int
	lenRead  int
	expected int
	lenBuf   [LengthBytes]byte
	extended bool
}

// NewDecoder creates a decoder waiting for a header.
func NewDecoder() *Decoder {
	return &Decoder{payload: make([]byte, 0, MaxFrameSize)}
}

// leadFamily reports which family a byte could start, if any.
func leadFamily(b byte) Family {
	switch b {
	case CommandHeader[0]:
		return FamilyCommand
	case TelemetryHeader[0]:
		return FamilyTelemetry
	default:
		return 0
	}
}

// IsHeaderLead reports whether b is the first byte of either header.
func IsHeaderLead(b byte) bool {
	return leadFamily(b) != 0
}

// Phase returns the decoder's current phase.
func (d *Decoder) Phase() Phase {
	switch {
	case d.state != stateSeekingHeader:
		return PhaseBody
	case d.match > 0:
		return PhaseHeader
	default:
		return PhaseIdle
	}
}

// Family returns the family of the frame being matched or collected.
// It is zero while idle.
func (d *Decoder) Family() Family {
	return d.family
}

// Stats returns a copy of the decoder counters.
func (d *Decoder) Stats() Stats {
	return d.stats
}

// Reset abandons any partial frame and returns to header search.
func (d *Decoder) Reset() {
	d.state = stateSeekingHeader
	d.family = 0
	d.match = 0
	d.lenRead = 0
	d.expected = 0
	d.extended = false
	d.payload = d.payload[:0]
}

// Feed advances the decoder by one byte.
func (d *Decoder) Feed(b byte) Result {
	switch d.state {
	case stateReadingLength:
		d.feedLength(b)
		return Result{Consumed: true}
	case stateInPayload:
		d.payload = append(d.payload, b)
		if len(d.payload) == d.expected {
			d.state = stateSeekingFooter
			d.match = 0
		}
		return Result{Consumed: true}
	case stateSeekingFooter:
		return Result{Frame: d.feedFooter(b), Consumed: true}
	default:
		return d.feedHeader(b)
	}
}

func (d *Decoder) feedHeader(b byte) Result {
	if d.match > 0 {
		header, _ := markersFor(d.family)
		if b == header[d.match] {
			d.match++
			if d.match == MarkerLength {
				d.state = stateReadingLength
				d.match = 0
				d.lenRead = 0
			}
			return Result{Consumed: true}
		}

		// Headers are rare sentinels: drop the candidate entirely and give
		// the mismatching byte a chance to start a new header.
		rejected := make([]byte, d.match)
		copy(rejected, header[:d.match])
		d.match = 0
		d.family = 0
		res := d.startHeader(b)
		res.Rejected = rejected
		return res
	}
	return d.startHeader(b)
}

func (d *Decoder) startHeader(b byte) Result {
	fam := leadFamily(b)
	if fam == 0 {
		return Result{}
	}
	d.family = fam
	d.match = 1
	return Result{Consumed: true}
}

func (d *Decoder) feedLength(b byte) {
	d.lenBuf[d.lenRead] = b
	d.lenRead++
	if d.lenRead < LengthBytes {
		return
	}

	d.expected = int(binary.LittleEndian.Uint16(d.lenBuf[:]))
	if d.expected > MaxPayloadLength {
		d.stats.Malformed++
		d.Reset()
		return
	}

	d.payload = d.payload[:0]
	d.extended = false
	d.match = 0
	if d.expected == 0 {
		d.state = stateSeekingFooter
		return
	}
	d.state = stateInPayload
}

func (d *Decoder) feedFooter(b byte) *Frame {
	_, footer := markersFor(d.family)
	if b == footer[d.match] {
		d.match++
		if d.match < MarkerLength {
			return nil
		}
		return d.emit()
	}

	// The partial footer was payload after all. Keep it and keep looking;
	// the declared length already told us where the frame should end, so
	// this only happens on corrupt or unusual frames and is capped below.
	d.payload = append(d.payload, footer[:d.match]...)
	d.match = 0
	if b == footer[0] {
		d.match = 1
	} else {
		d.payload = append(d.payload, b)
	}
	d.extended = true
	d.stats.Extended++

	if MarkerLength+LengthBytes+len(d.payload)+d.match+MarkerLength > MaxFrameSize {
		d.stats.Dropped++
		d.Reset()
	}
	return nil
}

func (d *Decoder) emit() *Frame {
	payload := make([]byte, len(d.payload))
	copy(payload, d.payload)
	f := newFrame(d.family, payload, d.expected, d.extended)
	if f == nil {
		d.stats.Malformed++
	} else {
		d.stats.Frames++
	}
	d.Reset()
	return f
}
