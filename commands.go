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
	"fmt"
	"math"
)

// Opcode is a 16-bit LD2402 command word.
type Opcode uint16

// LD2402 command words
const (
	CmdGetVersion           Opcode = 0x0000
	CmdSetParameter         Opcode = 0x0007
	CmdGetParameter         Opcode = 0x0008
	CmdStartCalibration     Opcode = 0x0009
	CmdGetCalibrationStatus Opcode = 0x000A
	CmdGetSerialHex         Opcode = 0x0011
	CmdSetWorkMode          Opcode = 0x0012
	CmdGetSerialChar        Opcode = 0x0016
	CmdEnableAutoGain       Opcode = 0x00EE
	CmdAutoGainComplete     Opcode = 0x00F0 // sent by the device, never by the host
	CmdSaveParameters       Opcode = 0x00FD
	CmdExitConfig           Opcode = 0x00FE
	CmdEnterConfig          Opcode = 0x00FF
)

// ackFlag is OR-ed into the opcode of every response.
const ackFlag Opcode = 0x0100

// Ack returns the opcode the device uses when answering op.
func (op Opcode) Ack() Opcode {
	return op | ackFlag
}

// Base strips the response flag.
func (op Opcode) Base() Opcode {
	return op &^ ackFlag
}

var opcodeNames = map[Opcode]string{
	CmdGetVersion:           "GetVersion",
	CmdSetParameter:         "SetParameter",
	CmdGetParameter:         "GetParameter",
	CmdStartCalibration:     "StartCalibration",
	CmdGetCalibrationStatus: "GetCalibrationStatus",
	CmdGetSerialHex:         "GetSerialHex",
	CmdSetWorkMode:          "SetWorkMode",
	CmdGetSerialChar:        "GetSerialChar",
	CmdEnableAutoGain:       "EnableAutoGain",
	CmdAutoGainComplete:     "AutoGainComplete",
	CmdSaveParameters:       "SaveParameters",
	CmdExitConfig:           "ExitConfig",
	CmdEnterConfig:          "EnterConfig",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op.Base()]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(0x%04X)", uint16(op))
}

// enterConfigPayload is the fixed argument of CmdEnterConfig.
var enterConfigPayload = []byte{0x01, 0x00}

// ParameterID is a 16-bit parameter identifier used with get/set parameter.
type ParameterID uint16

// LD2402 parameter identifiers
const (
	// ParamMaxDistance is the maximum detection distance in decimetres.
	ParamMaxDistance ParameterID = 0x0001
	// ParamTimeout is the target disappearance delay in seconds.
	ParamTimeout ParameterID = 0x0004
	// ParamPowerInterference is read-only, see PowerInterference.
	ParamPowerInterference ParameterID = 0x0005
	// ParamMotionThresholdBase plus the gate index addresses a motion trigger threshold.
	ParamMotionThresholdBase ParameterID = 0x0010
	// ParamMicromotionThresholdBase plus the gate index addresses a micromotion threshold.
	ParamMicromotionThresholdBase ParameterID = 0x0030
)

// GateCount is the number of distance gates the device reports.
const GateCount = 16

// GateSizeMeters is the width of one distance gate.
const GateSizeMeters = 0.7

// MotionThresholdParam returns the parameter ID of a gate's motion threshold.
func MotionThresholdParam(gate int) (ParameterID, error) {
	if gate < 0 || gate >= GateCount {
		return 0, fmt.Errorf("%w: gate %d out of range 0-%d", ErrInvalidParameter, gate, GateCount-1)
	}
	return ParamMotionThresholdBase + ParameterID(gate), nil //nolint:gosec // range checked above
}

// MicromotionThresholdParam returns the parameter ID of a gate's micromotion threshold.
func MicromotionThresholdParam(gate int) (ParameterID, error) {
	if gate < 0 || gate >= GateCount {
		return 0, fmt.Errorf("%w: gate %d out of range 0-%d", ErrInvalidParameter, gate, GateCount-1)
	}
	return ParamMicromotionThresholdBase + ParameterID(gate), nil //nolint:gosec // range checked above
}

func (id ParameterID) String() string {
	switch {
	case id == ParamMaxDistance:
		return "MaxDistance"
	case id == ParamTimeout:
		return "Timeout"
	case id == ParamPowerInterference:
		return "PowerInterference"
	case id >= ParamMotionThresholdBase && id < ParamMotionThresholdBase+GateCount:
		return fmt.Sprintf("MotionThreshold[%d]", id-ParamMotionThresholdBase)
	case id >= ParamMicromotionThresholdBase && id < ParamMicromotionThresholdBase+GateCount:
		return fmt.Sprintf("MicromotionThreshold[%d]", id-ParamMicromotionThresholdBase)
	default:
		return fmt.Sprintf("Parameter(0x%04X)", uint16(id))
	}
}

// WorkMode is the device operating mode.
type WorkMode uint32

// Work modes
const (
	// WorkModeNormal is the nominal normal mode. The firmware does not act on
	// it; SetWorkMode sends WorkModeProduction instead.
	WorkModeNormal WorkMode = 0x00000000
	// WorkModeConfigAck is reported while a configuration session is being acknowledged.
	WorkModeConfigAck WorkMode = 0x00000001
	// WorkModeEngineering streams per-gate energy frames. The device only keeps
	// sending them while the configuration session stays open.
	WorkModeEngineering WorkMode = 0x00000004
	// WorkModeProduction is what the firmware actually uses for normal operation.
	WorkModeProduction WorkMode = 0x00000064
)

func (m WorkMode) String() string {
	switch m {
	case WorkModeNormal, WorkModeProduction:
		return "normal"
	case WorkModeConfigAck:
		return "config"
	case WorkModeEngineering:
		return "engineering"
	default:
		return fmt.Sprintf("WorkMode(0x%08X)", uint32(m))
	}
}

// PowerInterference is the result of the device's supply noise self-test.
type PowerInterference uint32

// Power interference states
const (
	PowerInterferenceNotTested PowerInterference = 0
	PowerInterferenceClear     PowerInterference = 1
	PowerInterferenceDetected  PowerInterference = 2
)

func (p PowerInterference) String() string {
	switch p {
	case PowerInterferenceNotTested:
		return "not tested"
	case PowerInterferenceClear:
		return "no interference"
	case PowerInterferenceDetected:
		return "interference detected"
	default:
		return fmt.Sprintf("unknown (%d)", uint32(p))
	}
}

// Configuration limits accepted by the device.
const (
	MinMaxDistanceMeters = 0.7
	MaxMaxDistanceMeters = 10.0
	MaxTimeoutSeconds    = 65535

	// Calibration coefficients are sent as fixed-point x10 values.
	MinCalibrationCoefficient     = 1.0
	MaxCalibrationCoefficient     = 20.0
	DefaultCalibrationCoefficient = 3.0
)

// Factory defaults written by Device.FactoryReset.
const (
	DefaultMaxDistanceMeters          = 5.0
	DefaultTimeoutSeconds             = 5
	DefaultMotionThresholdDB          = 30.0
	DefaultMicromotionThresholdDB     = 25.0
	DefaultStaticRangeMeters          = 5.0
	DefaultMicromovementRangeMeters   = 3.0
	defaultCalibrationFixedPointScale = 10
)

// DBToRaw converts a threshold in decibels to the device's raw linear value.
func DBToRaw(db float64) uint32 {
	if db <= 0 {
		return 1
	}
	raw := math.Round(math.Pow(10, db/10))
	if raw > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(raw)
}

// RawToDB converts a raw linear energy or threshold value to decibels.
// A raw value of zero maps to 0 dB.
func RawToDB(raw uint32) float64 {
	if raw == 0 {
		return 0
	}
	return 10 * math.Log10(float64(raw))
}

// MetersToDecimeters converts a distance for ParamMaxDistance.
func MetersToDecimeters(m float64) uint32 {
	if m <= 0 {
		return 0
	}
	return uint32(math.Round(m * 10))
}

// DecimetersToMeters converts a ParamMaxDistance value back to metres.
func DecimetersToMeters(dm uint32) float64 {
	return float64(dm) / 10
}

// clampCoefficient limits a calibration coefficient and converts it to fixed point.
func clampCoefficient(v float64) uint16 {
	if math.IsNaN(v) || v < MinCalibrationCoefficient {
		v = MinCalibrationCoefficient
	}
	if v > MaxCalibrationCoefficient {
		v = MaxCalibrationCoefficient
	}
	return uint16(math.Round(v * defaultCalibrationFixedPointScale))
}
