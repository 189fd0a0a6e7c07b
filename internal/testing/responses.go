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
	"encoding/binary"

	"github.com/ZaparooProject/go-ld2402/internal/frame"
)

// BuildDistanceReport returns a distance telemetry payload: the frame type,
// the detection state and the distance in centimetres.
func BuildDistanceReport(state byte, cm uint16) []byte {
	out := []byte{FrameTypeDistance, state}
	return binary.LittleEndian.AppendUint16(out, cm)
}

// BuildEngineeringReport returns an engineering telemetry payload carrying
// one little-endian 32-bit energy per gate after the distance report.
func BuildEngineeringReport(state byte, cm uint16, energies [GateCount]uint32) []byte {
	out := []byte{FrameTypeEngineering, state}
	out = binary.LittleEndian.AppendUint16(out, cm)
	for _, e := range energies {
		out = binary.LittleEndian.AppendUint32(out, e)
	}
	return out
}

// BuildStatusResponse returns a complete response frame for op with status
// 00 00 followed by body.
func BuildStatusResponse(op uint16, body []byte) []byte {
	return frame.Encode(op|ackFlag, append([]byte{0x00, 0x00}, body...))
}

// BuildErrorResponse returns a response frame carrying a failure status.
func BuildErrorResponse(op, status uint16) []byte {
	return frame.Encode(op|ackFlag, binary.LittleEndian.AppendUint16(nil, status))
}

// BuildParameterResponse returns a get-parameter response for value.
func BuildParameterResponse(value uint32) []byte {
	return BuildStatusResponse(cmdGetParameter, binary.LittleEndian.AppendUint32(nil, value))
}

// BuildVersionResponse returns a get-version response carrying version.
func BuildVersionResponse(version string) []byte {
	return BuildStatusResponse(cmdGetVersion, lengthPrefixed([]byte(version)))
}
