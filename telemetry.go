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
	"encoding/binary"
	"math"
	"strconv"
	"strings"
)

// Telemetry frame types
const (
	FrameTypeDistance    byte = 0x01
	FrameTypeEngineering byte = 0x02
)

// Detection states carried by telemetry frames
const (
	DetectionNone       byte = 0x00
	DetectionMoving     byte = 0x01
	DetectionStationary byte = 0x02
)

// distanceScaleCM converts the telemetry distance field to centimetres.
const distanceScaleCM = 1.0

// ReadingSource tells where a Reading came from.
type ReadingSource int

// Reading sources
const (
	SourceText ReadingSource = iota
	SourceDistanceFrame
	SourceEngineeringFrame
)

func (s ReadingSource) String() string {
	switch s {
	case SourceText:
		return "text"
	case SourceDistanceFrame:
		return "distance frame"
	case SourceEngineeringFrame:
		return "engineering frame"
	default:
		return "unknown"
	}
}

// GateEnergy is one distance gate of an engineering frame.
type GateEnergy struct {
	Gate      int
	DistanceM float64
	Raw       uint32
	DB        float64
}

// Reading is one decoded telemetry report.
type Reading struct {
	Gates      []GateEnergy
	DistanceCM float64
	Source     ReadingSource
	Presence   bool
	Movement   bool
	// Micromovement is a stationary target for frames, or a target inside
	// the micromovement range for text lines.
	Micromovement bool
	// StaticPresence is a target within the static detection range.
	StaticPresence bool
	// InMicromovementRange is a target within the micromovement range.
	InMicromovementRange bool
}

// Ranges are the host-side distance limits used for derived flags.
type Ranges struct {
	StaticM        float64
	MicromovementM float64
}

// DefaultRanges returns the default static and micromovement ranges.
func DefaultRanges() Ranges {
	return Ranges{
		StaticM:        DefaultStaticRangeMeters,
		MicromovementM: DefaultMicromovementRangeMeters,
	}
}

func (r Ranges) derive(reading *Reading) {
	if !reading.Presence {
		return
	}
	reading.StaticPresence = reading.DistanceCM <= r.StaticM*100
	reading.InMicromovementRange = reading.DistanceCM <= r.MicromovementM*100
}

const distancePrefix = "distance:"

// ParseTextLine decodes a text telemetry line. It recognizes
// "distance:<n>" and "distance:<n> cm" in centimetres, "distance:<n>m" and
// "distance:<n> m" in metres, and "OFF" for no target.
func ParseTextLine(line string, ranges Ranges) (Reading, bool) {
	line = strings.TrimSpace(line)
	if line == "OFF" {
		return Reading{Source: SourceText}, true
	}
	if !strings.HasPrefix(line, distancePrefix) {
		return Reading{}, false
	}

	value := strings.TrimSpace(line[len(distancePrefix):])
	scale := 1.0
	switch {
	case strings.HasSuffix(value, "cm"):
		value = strings.TrimSpace(strings.TrimSuffix(value, "cm"))
	case strings.HasSuffix(value, "m"):
		value = strings.TrimSpace(strings.TrimSuffix(value, "m"))
		scale = 100
	}

	n, err := strconv.ParseFloat(value, 64)
	if err != nil || n < 0 || math.IsInf(n, 0) || math.IsNaN(n) {
		Debugf("Warning: invalid distance value %q", line[len(distancePrefix):])
		return Reading{}, false
	}

	reading := Reading{
		Source:     SourceText,
		DistanceCM: math.Round(n*scale*100) / 100,
		Presence:   true,
	}
	ranges.derive(&reading)
	reading.Movement = !reading.StaticPresence
	reading.Micromovement = reading.InMicromovementRange
	return reading, true
}

// ParseTelemetryFrame decodes the data of a telemetry frame (everything
// after the type byte).
func ParseTelemetryFrame(frameType byte, data []byte, ranges Ranges) (Reading, bool) {
	const header = 3 // state byte + LE16 distance
	if len(data) < header {
		return Reading{}, false
	}

	state := data[0]
	reading := Reading{
		Source:        SourceDistanceFrame,
		DistanceCM:    float64(binary.LittleEndian.Uint16(data[1:3])) * distanceScaleCM,
		Presence:      state == DetectionMoving || state == DetectionStationary,
		Movement:      state == DetectionMoving,
		Micromovement: state == DetectionStationary,
	}

	switch frameType {
	case FrameTypeDistance:
	case FrameTypeEngineering:
		gates := data[header:]
		if len(gates) < GateCount*4 {
			return Reading{}, false
		}
		reading.Source = SourceEngineeringFrame
		reading.Gates = make([]GateEnergy, GateCount)
		for i := range GateCount {
			raw := binary.LittleEndian.Uint32(gates[i*4:])
			reading.Gates[i] = GateEnergy{
				Gate:      i,
				DistanceM: float64(i) * GateSizeMeters,
				Raw:       raw,
				DB:        RawToDB(raw),
			}
		}
	default:
		return Reading{}, false
	}

	ranges.derive(&reading)
	return reading, true
}

// EncodeDistanceReport builds the data of a distance telemetry frame, type
// byte included. Simulators and tests use it.
func EncodeDistanceReport(state byte, distanceCM uint16) []byte {
	out := []byte{FrameTypeDistance, state}
	return binary.LittleEndian.AppendUint16(out, distanceCM)
}

// EncodeEngineeringReport builds the data of an engineering telemetry frame,
// type byte included.
func EncodeEngineeringReport(state byte, distanceCM uint16, energies []uint32) []byte {
	out := []byte{FrameTypeEngineering, state}
	out = binary.LittleEndian.AppendUint16(out, distanceCM)
	for i := range GateCount {
		var e uint32
		if i < len(energies) {
			e = energies[i]
		}
		out = binary.LittleEndian.AppendUint32(out, e)
	}
	return out
}
