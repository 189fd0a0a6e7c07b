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

// Package testing provides test utilities including a wire-level LD2402
// simulator.
//
// VirtualLD2402 implements io.ReadWriter and behaves like the sensor on its
// UART: it decodes command frames written by the host, answers them while a
// configuration session is open, and lets tests push telemetry (text lines
// or binary report frames) into the stream the host reads.
package testing

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ZaparooProject/go-ld2402/internal/frame"
	"github.com/ZaparooProject/go-ld2402/internal/syncutil"
)

// LD2402 command words understood by the simulator.
const (
	cmdGetVersion           = 0x0000
	cmdSetParameter         = 0x0007
	cmdGetParameter         = 0x0008
	cmdStartCalibration     = 0x0009
	cmdGetCalibrationStatus = 0x000A
	cmdGetSerialHex         = 0x0011
	cmdSetWorkMode          = 0x0012
	cmdGetSerialChar        = 0x0016
	cmdEnableAutoGain       = 0x00EE
	cmdAutoGainComplete     = 0x00F0
	cmdSaveParameters       = 0x00FD
	cmdExitConfig           = 0x00FE
	cmdEnterConfig          = 0x00FF

	ackFlag = 0x0100
)

// Parameter identifiers.
const (
	ParamMaxDistance              = 0x0001
	ParamTimeout                  = 0x0004
	ParamPowerInterference        = 0x0005
	ParamMotionThresholdBase      = 0x0010
	ParamMicromotionThresholdBase = 0x0030
)

// Work modes.
const (
	WorkModeEngineering = 0x00000004
	WorkModeProduction  = 0x00000064
)

// Telemetry frame types.
const (
	FrameTypeDistance    = 0x01
	FrameTypeEngineering = 0x02
)

// GateCount is the number of distance gates the simulated sensor reports.
const GateCount = 16

// CalibrationFormat selects the layout of calibration status responses.
type CalibrationFormat int

const (
	// CalibrationFormatLengthEcho is length | opcode echo | status | percent.
	CalibrationFormatLengthEcho CalibrationFormat = iota
	// CalibrationFormatStatus is status | percent.
	CalibrationFormatStatus
	// CalibrationFormatEcho is opcode echo | status | percent.
	CalibrationFormatEcho
)

// SimulatorState is a snapshot of the simulated sensor.
type SimulatorState struct {
	WorkMode            uint32
	CalibrationPercent  int
	ConfigMode          bool
	Calibrating         bool
	AutoGainRunning     bool
	ParametersSaved     bool
	EngineeringFrames   bool
	CommandsIgnoredLive int
}

// VirtualLD2402 simulates an HLK-LD2402 at the wire protocol level.
// It implements io.ReadWriter to plug directly into transport layer tests.
//
// Like the real sensor it ignores every command except enter-config while
// no configuration session is open.
type VirtualLD2402 struct {
	params          map[uint16]uint32
	rejected        map[uint16]uint16
	decoder         *frame.Decoder
	commands        []uint16
	firmware        string
	serial          []byte
	txBuffer        bytes.Buffer
	state           SimulatorState
	calibrationStep int
	calFormat       CalibrationFormat
	dropResponses   int
	mu              syncutil.Mutex
	bareAcks        bool
	omitAckFlag     bool
	includeParamID  bool
	autoGainAuto    bool
}

// NewVirtualLD2402 creates a simulator with factory parameters, firmware
// v3.3.5 and calibration advancing 25% per status query.
func NewVirtualLD2402() *VirtualLD2402 {
	v := &VirtualLD2402{
		decoder:         frame.NewDecoder(),
		firmware:        "v3.3.5",
		serial:          []byte{0x12, 0x34, 0xAB, 0xCD},
		calibrationStep: 25,
		autoGainAuto:    true,
	}
	v.resetParams()
	v.state.WorkMode = WorkModeProduction
	return v
}

func (v *VirtualLD2402) resetParams() {
	v.params = map[uint16]uint32{
		ParamMaxDistance:       50,
		ParamTimeout:           5,
		ParamPowerInterference: 1,
	}
	for g := range uint16(GateCount) {
		v.params[ParamMotionThresholdBase+g] = dbToRaw(30)
		v.params[ParamMicromotionThresholdBase+g] = dbToRaw(25)
	}
	v.rejected = make(map[uint16]uint16)
}

func dbToRaw(db float64) uint32 {
	return uint32(math.Round(math.Pow(10, db/10)))
}

// Write implements io.Writer - receives data from the host.
func (v *VirtualLD2402) Write(data []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, b := range data {
		res := v.decoder.Feed(b)
		if res.Frame != nil && res.Frame.Family == frame.FamilyCommand {
			v.processCommand(res.Frame.Opcode, res.Frame.Data)
		}
	}
	return len(data), nil
}

// Read implements io.Reader - returns sensor output to the host. It returns
// 0, nil when nothing is pending, like a serial read that timed out.
func (v *VirtualLD2402) Read(buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.txBuffer.Len() == 0 {
		return 0, nil
	}
	n, err := v.txBuffer.Read(buf)
	if err != nil {
		return n, fmt.Errorf("read from tx buffer: %w", err)
	}
	return n, nil
}

// Pending returns the number of bytes waiting to be read.
func (v *VirtualLD2402) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.txBuffer.Len()
}

// SetFirmwareVersion sets the version string reported by GetVersion.
func (v *VirtualLD2402) SetFirmwareVersion(version string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.firmware = version
}

// SetSerialNumber sets the raw serial number bytes.
func (v *VirtualLD2402) SetSerialNumber(sn []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.serial = append([]byte(nil), sn...)
}

// SetParameter changes a stored parameter directly.
func (v *VirtualLD2402) SetParameter(id uint16, value uint32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.params[id] = value
}

// Parameter returns a stored parameter.
func (v *VirtualLD2402) Parameter(id uint16) (uint32, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	val, ok := v.params[id]
	return val, ok
}

// RejectParameter makes get/set of id fail with the given status word.
func (v *VirtualLD2402) RejectParameter(id, status uint16) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rejected[id] = status
}

// DropResponses makes the simulator swallow the next n commands without
// answering, like a sensor too busy streaming to notice them.
func (v *VirtualLD2402) DropResponses(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dropResponses = n
}

// SetBareAcks makes status-only responses omit the status word.
func (v *VirtualLD2402) SetBareAcks(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bareAcks = enabled
}

// SetOmitAckFlag makes responses echo the request opcode without 0x0100.
func (v *VirtualLD2402) SetOmitAckFlag(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.omitAckFlag = enabled
}

// SetIncludeParamID makes get-parameter responses echo the parameter id
// between the status word and the value.
func (v *VirtualLD2402) SetIncludeParamID(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.includeParamID = enabled
}

// SetCalibration configures calibration status responses.
func (v *VirtualLD2402) SetCalibration(format CalibrationFormat, stepPercent int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calFormat = format
	v.calibrationStep = stepPercent
}

// SetAutoGainCompletes controls whether the completion notification is
// queued right after EnableAutoGain is acknowledged. When disabled, call
// CompleteAutoGain.
func (v *VirtualLD2402) SetAutoGainCompletes(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.autoGainAuto = enabled
}

// CompleteAutoGain queues the auto-gain completion notification.
func (v *VirtualLD2402) CompleteAutoGain() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.AutoGainRunning = false
	v.txBuffer.Write(frame.Encode(cmdAutoGainComplete|ackFlag, []byte{0x00, 0x00}))
}

// EmitLine queues a text line terminated with CRLF.
func (v *VirtualLD2402) EmitLine(line string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.txBuffer.WriteString(line + "\r\n")
}

// EmitDistance queues a "distance:<cm>" line.
func (v *VirtualLD2402) EmitDistance(cm int) {
	v.EmitLine(fmt.Sprintf("distance:%d", cm))
}

// EmitOff queues the no-target line.
func (v *VirtualLD2402) EmitOff() {
	v.EmitLine("OFF")
}

// EmitRaw queues arbitrary bytes.
func (v *VirtualLD2402) EmitRaw(data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.txBuffer.Write(data)
}

// EmitDistanceFrame queues a binary distance report.
func (v *VirtualLD2402) EmitDistanceFrame(state byte, cm uint16) {
	v.EmitRaw(frame.EncodeTelemetry(BuildDistanceReport(state, cm)))
}

// EmitEngineeringFrame queues an engineering report with per-gate energies.
func (v *VirtualLD2402) EmitEngineeringFrame(state byte, cm uint16, energies [GateCount]uint32) {
	v.EmitRaw(frame.EncodeTelemetry(BuildEngineeringReport(state, cm, energies)))
}

// Commands returns the opcodes received so far, answered or not.
func (v *VirtualLD2402) Commands() []uint16 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]uint16(nil), v.commands...)
}

// CommandCount returns how many times op was received.
func (v *VirtualLD2402) CommandCount(op uint16) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, c := range v.commands {
		if c == op {
			n++
		}
	}
	return n
}

// GetState returns the current simulator state.
func (v *VirtualLD2402) GetState() SimulatorState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Reset restores factory parameters and clears buffers and fault injection.
func (v *VirtualLD2402) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.txBuffer.Reset()
	v.decoder.Reset()
	v.commands = nil
	v.resetParams()
	v.state = SimulatorState{WorkMode: WorkModeProduction}
	v.dropResponses = 0
	v.bareAcks = false
	v.omitAckFlag = false
	v.includeParamID = false
	v.autoGainAuto = true
	v.calFormat = CalibrationFormatLengthEcho
	v.calibrationStep = 25
}

func (v *VirtualLD2402) processCommand(op uint16, data []byte) {
	v.commands = append(v.commands, op)

	if v.dropResponses > 0 {
		v.dropResponses--
		return
	}
	if !v.state.ConfigMode && op != cmdEnterConfig {
		v.state.CommandsIgnoredLive++
		return
	}

	switch op {
	case cmdEnterConfig:
		v.state.ConfigMode = true
		// protocol version 1, buffer size 0x40
		v.sendStatus(op, []byte{0x01, 0x00, 0x40, 0x00})
	case cmdExitConfig:
		v.state.ConfigMode = false
		v.state.EngineeringFrames = false
		v.sendStatus(op, nil)
	case cmdGetVersion:
		v.sendStatus(op, lengthPrefixed([]byte(v.firmware)))
	case cmdGetSerialHex:
		v.sendStatus(op, lengthPrefixed(v.serial))
	case cmdGetSerialChar:
		v.sendStatus(op, lengthPrefixed([]byte(fmt.Sprintf("%X", v.serial))))
	case cmdGetParameter:
		v.handleGetParameter(op, data)
	case cmdSetParameter:
		v.handleSetParameter(op, data)
	case cmdSetWorkMode:
		v.handleSetWorkMode(op, data)
	case cmdStartCalibration:
		v.state.Calibrating = true
		v.state.CalibrationPercent = 0
		v.sendStatus(op, nil)
	case cmdGetCalibrationStatus:
		v.handleCalibrationStatus(op)
	case cmdEnableAutoGain:
		v.state.AutoGainRunning = true
		v.sendStatus(op, nil)
		if v.autoGainAuto {
			v.state.AutoGainRunning = false
			v.txBuffer.Write(frame.Encode(cmdAutoGainComplete|ackFlag, []byte{0x00, 0x00}))
		}
	case cmdSaveParameters:
		v.state.ParametersSaved = true
		v.sendStatus(op, nil)
	default:
		v.sendFailure(op, 0x0001)
	}
}

func (v *VirtualLD2402) handleGetParameter(op uint16, data []byte) {
	if len(data) < 2 {
		v.sendFailure(op, 0x0001)
		return
	}
	id := binary.LittleEndian.Uint16(data)
	if st, ok := v.rejected[id]; ok {
		v.sendFailure(op, st)
		return
	}
	val, ok := v.params[id]
	if !ok {
		v.sendFailure(op, 0x0001)
		return
	}
	var out []byte
	if v.includeParamID {
		out = binary.LittleEndian.AppendUint16(out, id)
	}
	out = binary.LittleEndian.AppendUint32(out, val)
	v.sendStatus(op, out)
}

func (v *VirtualLD2402) handleSetParameter(op uint16, data []byte) {
	if len(data) < 6 {
		v.sendFailure(op, 0x0001)
		return
	}
	id := binary.LittleEndian.Uint16(data)
	if st, ok := v.rejected[id]; ok || id == ParamPowerInterference {
		if !ok {
			st = 0x0001
		}
		v.sendFailure(op, st)
		return
	}
	v.params[id] = binary.LittleEndian.Uint32(data[2:])
	v.sendStatus(op, nil)
}

func (v *VirtualLD2402) handleSetWorkMode(op uint16, data []byte) {
	if len(data) < 6 {
		v.sendFailure(op, 0x0001)
		return
	}
	mode := binary.LittleEndian.Uint32(data[2:])
	if mode != WorkModeEngineering && mode != WorkModeProduction {
		v.sendFailure(op, 0x0001)
		return
	}
	v.state.WorkMode = mode
	v.state.EngineeringFrames = mode == WorkModeEngineering
	v.sendStatus(op, nil)
}

func (v *VirtualLD2402) handleCalibrationStatus(op uint16) {
	if v.state.Calibrating {
		v.state.CalibrationPercent += v.calibrationStep
		if v.state.CalibrationPercent >= 100 {
			v.state.CalibrationPercent = 100
			v.state.Calibrating = false
		}
	}
	pct := uint16(v.state.CalibrationPercent) //nolint:gosec // 0-100

	var out []byte
	switch v.calFormat {
	case CalibrationFormatLengthEcho:
		out = binary.LittleEndian.AppendUint16(out, 6)
		out = binary.LittleEndian.AppendUint16(out, op|ackFlag)
		out = append(out, 0x00, 0x00)
		out = binary.LittleEndian.AppendUint16(out, pct)
	case CalibrationFormatEcho:
		out = binary.LittleEndian.AppendUint16(out, op|ackFlag)
		out = append(out, 0x00, 0x00)
		out = binary.LittleEndian.AppendUint16(out, pct)
	default:
		out = append(out, 0x00, 0x00)
		out = binary.LittleEndian.AppendUint16(out, pct)
	}
	v.txBuffer.Write(frame.Encode(v.echo(op), out))
}

func (v *VirtualLD2402) echo(op uint16) uint16 {
	if v.omitAckFlag {
		return op
	}
	return op | ackFlag
}

// sendStatus queues a successful response: status 00 00 followed by body.
func (v *VirtualLD2402) sendStatus(op uint16, body []byte) {
	if v.bareAcks && len(body) == 0 {
		v.txBuffer.Write(frame.Encode(v.echo(op), nil))
		return
	}
	out := append([]byte{0x00, 0x00}, body...)
	v.txBuffer.Write(frame.Encode(v.echo(op), out))
}

func (v *VirtualLD2402) sendFailure(op, status uint16) {
	out := binary.LittleEndian.AppendUint16(nil, status)
	v.txBuffer.Write(frame.Encode(v.echo(op), out))
}

func lengthPrefixed(b []byte) []byte {
	out := binary.LittleEndian.AppendUint16(nil, uint16(len(b))) //nolint:gosec // short strings
	return append(out, b...)
}
