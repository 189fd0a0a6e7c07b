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
	"fmt"
)

// Response is a command response that matched one of the shapes its
// command accepts.
type Response struct {
	// Data is the payload after the echoed opcode.
	Data []byte
	// Value is what the matching shape extracted from Data.
	Value []byte
	// Shape names the layout that matched.
	Shape string
	// Opcode is the opcode as echoed by the device.
	Opcode Opcode
}

// Uint32 decodes Value as a little-endian 32-bit word.
func (r *Response) Uint32() (uint32, error) {
	if len(r.Value) < 4 {
		return 0, fmt.Errorf("%w: %d byte value for %s", ErrInvalidResponse, len(r.Value), r.Opcode)
	}
	return binary.LittleEndian.Uint32(r.Value), nil
}

// responseShape is one accepted layout of a response. match returns the
// extracted value and whether data has this layout.
type responseShape struct {
	match func(data []byte) ([]byte, bool)
	name  string
}

// status decodes the leading status word of a response.
func status(data []byte) (uint16, bool) {
	if len(data) < 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(data), true
}

// statusOK accepts a 00 00 status followed by at least minValue bytes.
func statusOK(minValue int) responseShape {
	return responseShape{
		name: "status",
		match: func(data []byte) ([]byte, bool) {
			st, ok := status(data)
			if !ok || st != 0 || len(data) < 2+minValue {
				return nil, false
			}
			return data[2:], true
		},
	}
}

// bareAck accepts an echo with no status at all, which some firmware
// builds send for commands that carry no result.
var bareAck = responseShape{
	name: "bare",
	match: func(data []byte) ([]byte, bool) {
		return nil, len(data) == 0
	},
}

// statusIDValue accepts 00 00 | id | value32 where id echoes the request.
func statusIDValue(id uint16) responseShape {
	return responseShape{
		name: "status+id+value",
		match: func(data []byte) ([]byte, bool) {
			st, ok := status(data)
			if !ok || st != 0 || len(data) < 8 {
				return nil, false
			}
			if binary.LittleEndian.Uint16(data[2:4]) != id {
				return nil, false
			}
			return data[4:8], true
		},
	}
}

// statusValue accepts exactly 00 00 | value32. A longer reply carries an
// id echo and is left to statusIDValue.
var statusValue = responseShape{
	name: "status+value",
	match: func(data []byte) ([]byte, bool) {
		st, ok := status(data)
		if !ok || st != 0 || len(data) != 6 {
			return nil, false
		}
		return data[2:6], true
	},
}

// statusLengthBytes accepts 00 00 | len16 | bytes[len], used by the
// version and serial number queries.
var statusLengthBytes = responseShape{
	name: "status+length+bytes",
	match: func(data []byte) ([]byte, bool) {
		st, ok := status(data)
		if !ok || st != 0 || len(data) < 4 {
			return nil, false
		}
		n := int(binary.LittleEndian.Uint16(data[2:4]))
		if n == 0 || len(data) < 4+n {
			return nil, false
		}
		return data[4 : 4+n], true
	},
}

// modeEcho accepts a response whose first byte echoes the requested mode
// instead of a status word.
func modeEcho(mode WorkMode) responseShape {
	return responseShape{
		name: "mode echo",
		match: func(data []byte) ([]byte, bool) {
			if len(data) < 1 || data[0] != byte(mode) {
				return nil, false
			}
			return data, true
		},
	}
}

// anyPayload hands the whole payload to a dedicated parser.
var anyPayload = responseShape{
	name: "raw",
	match: func(data []byte) ([]byte, bool) {
		return data, len(data) > 0
	},
}

// shapesFor lists, in order of preference, the layouts accepted for a
// response to op sent with request data req.
func shapesFor(op Opcode, req []byte) []responseShape {
	switch op {
	case CmdGetParameter:
		var id uint16
		if len(req) >= 2 {
			id = binary.LittleEndian.Uint16(req)
		}
		return []responseShape{statusIDValue(id), statusValue}
	case CmdSetWorkMode:
		var mode WorkMode
		if len(req) >= 6 {
			mode = WorkMode(binary.LittleEndian.Uint32(req[2:6]))
		}
		return []responseShape{statusOK(0), modeEcho(mode)}
	case CmdGetVersion, CmdGetSerialHex, CmdGetSerialChar:
		return []responseShape{statusLengthBytes, statusOK(1)}
	case CmdGetCalibrationStatus:
		return []responseShape{anyPayload}
	case CmdEnterConfig, CmdExitConfig, CmdSaveParameters, CmdEnableAutoGain,
		CmdSetParameter, CmdStartCalibration:
		return []responseShape{statusOK(0), bareAck}
	default:
		return []responseShape{statusOK(0), bareAck}
	}
}

// matchResponse tries each shape in order. When none matches, a non-zero
// status word means the device refused the command; anything else is a
// layout the driver does not understand.
func matchResponse(op, echoed Opcode, data []byte, shapes []responseShape) (*Response, error) {
	for _, shape := range shapes {
		if value, ok := shape.match(data); ok {
			return &Response{
				Opcode: echoed,
				Data:   data,
				Value:  value,
				Shape:  shape.name,
			}, nil
		}
	}
	if st, ok := status(data); ok && st != 0 {
		return nil, newRejectedError(op, st)
	}
	err := newCommandError(op, ErrProtocolMismatch)
	Debugf("Warning: %s response % X matches no known layout", op, data)
	return nil, err
}

// isResponseTo reports whether a command frame answers op. The device
// normally sets the response flag; some builds echo the bare opcode.
func isResponseTo(op Opcode, got uint16) bool {
	return Opcode(got) == op.Ack() || Opcode(got) == op
}

// CalibrationStatus is the decoded calibration progress.
type CalibrationStatus struct {
	// Format names the response layout that was recognized.
	Format  string
	Percent int
	Done    bool
}

// ParseCalibrationStatus decodes a calibration status response. Several
// layouts are seen in the field and all map to the same result:
//
//	06 00 0A 01 00 00 32 00   length | opcode echo | status | percent
//	0A 01 00 00 32 00         opcode echo | status | percent
//	00 00 19 00               status | percent
//
// A two-byte reply is a bare status word: zero is an unexpected layout and
// anything else a refusal.
//
// Anything else is reported as ErrInvalidResponse so the caller can log it
// and poll again.
func ParseCalibrationStatus(b []byte) (CalibrationStatus, error) {
	le := binary.LittleEndian
	switch {
	case len(b) == 8 && int(le.Uint16(b)) == len(b)-2 && isResponseTo(CmdGetCalibrationStatus, le.Uint16(b[2:])):
		if st := le.Uint16(b[4:]); st != 0 {
			return CalibrationStatus{}, newRejectedError(CmdGetCalibrationStatus, st)
		}
		return newCalibrationStatus("length+echo+status+percent", le.Uint16(b[6:]))
	case len(b) == 6 && isResponseTo(CmdGetCalibrationStatus, le.Uint16(b)):
		if st := le.Uint16(b[2:]); st != 0 {
			return CalibrationStatus{}, newRejectedError(CmdGetCalibrationStatus, st)
		}
		return newCalibrationStatus("echo+status+percent", le.Uint16(b[4:]))
	case len(b) == 4 && le.Uint16(b) == 0:
		return newCalibrationStatus("status+percent", le.Uint16(b[2:]))
	case len(b) == 2 && le.Uint16(b) != 0:
		return CalibrationStatus{}, newRejectedError(CmdGetCalibrationStatus, le.Uint16(b))
	default:
		return CalibrationStatus{}, fmt.Errorf("%w: calibration status % X", ErrInvalidResponse, b)
	}
}

func newCalibrationStatus(format string, percent uint16) (CalibrationStatus, error) {
	if percent > 100 {
		return CalibrationStatus{}, fmt.Errorf("%w: calibration progress %d%%", ErrInvalidResponse, percent)
	}
	return CalibrationStatus{
		Format:  format,
		Percent: int(percent),
		Done:    percent == 100,
	}, nil
}
