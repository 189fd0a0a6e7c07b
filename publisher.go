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

import "time"

// NumericSink receives numeric sensor values.
type NumericSink interface {
	PublishNumeric(value float64)
}

// BinarySink receives boolean sensor values.
type BinarySink interface {
	PublishBinary(value bool)
}

// TextSink receives text sensor values.
type TextSink interface {
	PublishText(value string)
}

// NumericFunc adapts a function to NumericSink.
type NumericFunc func(value float64)

// PublishNumeric implements NumericSink
func (f NumericFunc) PublishNumeric(value float64) { f(value) }

// BinaryFunc adapts a function to BinarySink.
type BinaryFunc func(value bool)

// PublishBinary implements BinarySink
func (f BinaryFunc) PublishBinary(value bool) { f(value) }

// TextFunc adapts a function to TextSink.
type TextFunc func(value string)

// PublishText implements TextSink
func (f TextFunc) PublishText(value string) { f(value) }

// Sensors holds the optional publication targets. Nil entries are skipped.
type Sensors struct {
	Distance            NumericSink
	Presence            BinarySink
	Movement            BinarySink
	Micromovement       BinarySink
	PowerInterference   TextSink
	CalibrationProgress NumericSink
	FirmwareVersion     TextSink
	OperatingMode       TextSink
	// GateEnergy receives per-gate motion energy in dB from engineering frames.
	GateEnergy [GateCount]NumericSink
}

// publisher applies the publication policy: the distance value is
// throttled, boolean states are published when they change.
type publisher struct {
	lastDistanceAt time.Time
	sensors        *Sensors
	throttle       time.Duration
	presence       binaryState
	movement       binaryState
	micromovement  binaryState
	published      bool
}

// binaryState remembers the last value sent to a BinarySink.
type binaryState struct {
	value bool
	set   bool
}

func newPublisher(sensors *Sensors, throttle time.Duration) *publisher {
	return &publisher{
		sensors:  sensors,
		throttle: throttle,
	}
}

func (p *publisher) reading(r *Reading, now time.Time) {
	s := p.sensors
	if s.Distance != nil && (!p.published || now.Sub(p.lastDistanceAt) >= p.throttle) {
		s.Distance.PublishNumeric(r.DistanceCM)
		p.lastDistanceAt = now
		p.published = true
	}
	p.binary(s.Presence, &p.presence, r.Presence)
	p.binary(s.Movement, &p.movement, r.Movement)
	p.binary(s.Micromovement, &p.micromovement, r.Micromovement)

	for _, g := range r.Gates {
		if g.Gate < GateCount && s.GateEnergy[g.Gate] != nil {
			s.GateEnergy[g.Gate].PublishNumeric(g.DB)
		}
	}
}

func (*publisher) binary(sink BinarySink, state *binaryState, v bool) {
	if sink == nil || (state.set && state.value == v) {
		return
	}
	state.value = v
	state.set = true
	sink.PublishBinary(v)
}

func (*publisher) text(sink TextSink, v string) {
	if sink != nil {
		sink.PublishText(v)
	}
}

func (*publisher) numeric(sink NumericSink, v float64) {
	if sink != nil {
		sink.PublishNumeric(v)
	}
}
