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

// Family identifies which of the two framing families a frame belongs to.
type Family int

const (
	// FamilyCommand frames carry command requests and responses.
	FamilyCommand Family = iota + 1
	// FamilyTelemetry frames carry distance and engineering reports.
	FamilyTelemetry
)

// String returns a short name for the family.
func (f Family) String() string {
	switch f {
	case FamilyCommand:
		return "command"
	case FamilyTelemetry:
		return "telemetry"
	default:
		return "unknown"
	}
}

// Frame markers
var (
	CommandHeader   = [4]byte{0xFD, 0xFC, 0xFB, 0xFA}
	CommandFooter   = [4]byte{0x04, 0x03, 0x02, 0x01}
	TelemetryHeader = [4]byte{0xF4, 0xF3, 0xF2, 0xF1}
	TelemetryFooter = [4]byte{0xF8, 0xF7, 0xF6, 0xF5}
)

// Frame size limits
const (
	MarkerLength = 4 // Header and footer length
	LengthBytes  = 2 // Little-endian payload length field
	OpcodeBytes  = 2 // Little-endian opcode at the start of a command payload

	// MaxPayloadLength caps the declared LENGTH field. Anything larger is
	// treated as a corrupt length and the decoder goes back to header search.
	MaxPayloadLength = 128

	// MaxFrameSize is the hard cap on a frame including markers and any
	// payload continuation picked up while searching for the footer.
	MaxFrameSize = MarkerLength + LengthBytes + MaxPayloadLength + 2*MarkerLength

	// MaxCommandData is the largest request data Encode accepts after the opcode.
	MaxCommandData = MaxPayloadLength - OpcodeBytes
)

// markersFor returns the header and footer for a family.
func markersFor(f Family) (header, footer [4]byte) {
	if f == FamilyTelemetry {
		return TelemetryHeader, TelemetryFooter
	}
	return CommandHeader, CommandFooter
}
