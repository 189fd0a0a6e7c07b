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

// Package frame implements the LD2402 wire framing: encoding of outbound
// command frames and a byte-at-a-time decoder for the inbound stream.
//
// Both framing families share the layout
//
//	HEADER(4) | LENGTH(2, little-endian) | PAYLOAD(LENGTH) | FOOTER(4)
//
// Command frames use FD FC FB FA / 04 03 02 01 and their payload starts
// with a little-endian opcode. Telemetry frames use F4 F3 F2 F1 /
// F8 F7 F6 F5 and their payload starts with a frame type byte.
package frame

import "encoding/binary"

// Frame is a complete frame recovered from the stream.
type Frame struct {
	// Payload holds everything between the length field and the footer.
	Payload []byte
	// Data is the payload after the opcode (command) or type byte (telemetry).
	Data []byte
	// DeclaredLength is the LENGTH field as received.
	DeclaredLength int
	Family         Family
	// Opcode is set for command frames.
	Opcode uint16
	// Type is set for telemetry frames.
	Type byte
	// Extended is true when bytes past DeclaredLength were taken as payload
	// while searching for the footer.
	Extended bool
}

// Encode builds a command frame for opcode with the given request data.
// Callers keep len(data) within MaxCommandData.
func Encode(opcode uint16, data []byte) []byte {
	payloadLen := OpcodeBytes + len(data)
	out := make([]byte, 0, MarkerLength+LengthBytes+payloadLen+MarkerLength)
	out = append(out, CommandHeader[:]...)
	out = binary.LittleEndian.AppendUint16(out, uint16(payloadLen)) //nolint:gosec // bounded by MaxCommandData
	out = binary.LittleEndian.AppendUint16(out, opcode)
	out = append(out, data...)
	out = append(out, CommandFooter[:]...)
	return out
}

// EncodeTelemetry builds a telemetry frame around payload. The device is the
// only real producer of these; the encoder exists for simulators and tests.
func EncodeTelemetry(payload []byte) []byte {
	out := make([]byte, 0, MarkerLength+LengthBytes+len(payload)+MarkerLength)
	out = append(out, TelemetryHeader[:]...)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(payload))) //nolint:gosec // test helper
	out = append(out, payload...)
	out = append(out, TelemetryFooter[:]...)
	return out
}

// newFrame splits a raw payload into a Frame. It returns nil when the
// payload is too short to carry an opcode or type byte.
func newFrame(family Family, payload []byte, declared int, extended bool) *Frame {
	f := &Frame{
		Family:         family,
		Payload:        payload,
		DeclaredLength: declared,
		Extended:       extended,
	}
	switch family {
	case FamilyCommand:
		if len(payload) < OpcodeBytes {
			return nil
		}
		f.Opcode = binary.LittleEndian.Uint16(payload[:OpcodeBytes])
		f.Data = payload[OpcodeBytes:]
	case FamilyTelemetry:
		if len(payload) < 1 {
			return nil
		}
		f.Type = payload[0]
		f.Data = payload[1:]
	default:
		return nil
	}
	return f
}
