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
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/ZaparooProject/go-ld2402/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var autoGainCompleteFrame = frame.Encode(uint16(CmdAutoGainComplete.Ack()), statusOKData)

func TestCoefficients_Encode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		coeffs Coefficients
		want   []byte
	}{
		{
			name:   "Defaults",
			coeffs: DefaultCoefficients(),
			want:   []byte{0x1E, 0x00, 0x1E, 0x00, 0x1E, 0x00},
		},
		{
			name:   "Clamped",
			coeffs: Coefficients{Trigger: 0.5, Hold: 25, Micromotion: 2.5},
			want:   []byte{0x0A, 0x00, 0xC8, 0x00, 0x19, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.coeffs.encode())
		})
	}
}

func TestDevice_Calibrate(t *testing.T) {
	t.Parallel()

	var progress []float64
	device, mock, sched := createMockDeviceWithTransport(t,
		WithCalibrationProgressSensor(NumericFunc(func(v float64) { progress = append(progress, v) })))
	mock.SetResponse(CmdStartCalibration, statusOKData)
	ctx := context.Background()

	require.NoError(t, device.Calibrate(ctx))
	assert.True(t, device.ConfigurationActive())
	assert.Equal(t, PhaseRequested, device.Calibration().Phase)

	reqs := mock.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, uint16(CmdStartCalibration), reqs[1].Opcode)
	assert.Equal(t, []byte{0x1E, 0x00, 0x1E, 0x00, 0x1E, 0x00}, reqs[1].Data)

	// nothing is due yet
	require.NoError(t, device.Loop(ctx))
	assert.Zero(t, mock.GetCallCount(CmdGetCalibrationStatus))

	mock.SetResponse(CmdGetCalibrationStatus, []byte{0x06, 0x00, 0x0A, 0x01, 0x00, 0x00, 0x32, 0x00})
	sched.Advance(CalibrationPollInterval)
	require.NoError(t, device.Loop(ctx))
	assert.Equal(t, 1, mock.GetCallCount(CmdGetCalibrationStatus))
	assert.Equal(t, PhaseInProgress, device.Calibration().Phase)
	assert.Equal(t, 50, device.Calibration().Percent)
	assert.True(t, device.ConfigurationActive())

	mock.SetResponse(CmdGetCalibrationStatus, []byte{0x00, 0x00, 0x64, 0x00})
	sched.Advance(CalibrationPollInterval)
	require.NoError(t, device.Loop(ctx))
	assert.Equal(t, PhaseComplete, device.Calibration().Phase)
	assert.False(t, device.ConfigurationActive())
	assert.Equal(t, 1, mock.GetCallCount(CmdExitConfig))

	assert.Equal(t, []float64{0, 50, 100}, progress)
}

func TestDevice_Calibrate_CustomCoefficients(t *testing.T) {
	t.Parallel()

	device, mock, _ := createMockDeviceWithTransport(t)
	mock.SetResponse(CmdStartCalibration, statusOKData)

	coeffs := Coefficients{Trigger: 4, Hold: 2.5, Micromotion: 20}
	require.NoError(t, device.Calibrate(context.Background(), coeffs))
	assert.Equal(t, coeffs, device.Calibration().Coefficients)

	reqs := mock.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, []byte{0x28, 0x00, 0x19, 0x00, 0xC8, 0x00}, reqs[1].Data)
}

func TestDevice_Calibrate_StartRejected(t *testing.T) {
	t.Parallel()

	device, mock, _ := createMockDeviceWithTransport(t)
	mock.SetResponse(CmdStartCalibration, []byte{0x01, 0x00})

	err := device.Calibrate(context.Background())
	require.Error(t, err)
	assert.True(t, IsRejected(err))
	assert.Equal(t, PhaseIdle, device.Calibration().Phase)
	assert.False(t, device.ConfigurationActive())
	assert.Equal(t, 1, mock.GetCallCount(CmdExitConfig))
}

func TestDevice_Calibrate_AlreadyActive(t *testing.T) {
	t.Parallel()

	device, mock, _ := createMockDeviceWithTransport(t)
	mock.SetResponse(CmdStartCalibration, statusOKData)
	ctx := context.Background()

	require.NoError(t, device.Calibrate(ctx))
	require.ErrorIs(t, device.StartCalibration(ctx, DefaultCoefficients()), ErrCalibrationActive)
	assert.Equal(t, 1, mock.GetCallCount(CmdStartCalibration))
}

func TestDevice_Calibrate_UnparseableStatusRetried(t *testing.T) {
	t.Parallel()

	device, mock, sched := createMockDeviceWithTransport(t)
	mock.SetResponse(CmdStartCalibration, statusOKData)
	mock.SetResponse(CmdGetCalibrationStatus, []byte{0x01, 0x02, 0x03})
	ctx := context.Background()

	require.NoError(t, device.Calibrate(ctx))
	sched.Advance(CalibrationPollInterval)
	require.NoError(t, device.Loop(ctx))

	cal := device.Calibration()
	require.ErrorIs(t, cal.LastErr, ErrInvalidResponse)
	assert.Equal(t, PhaseRequested, cal.Phase)
	assert.True(t, cal.NextCheckDueAt.After(sched.Now()))

	mock.SetResponse(CmdGetCalibrationStatus, []byte{0x00, 0x00, 0x19, 0x00})
	sched.Advance(CalibrationPollInterval)
	require.NoError(t, device.Loop(ctx))
	cal = device.Calibration()
	require.NoError(t, cal.LastErr)
	assert.Equal(t, 25, cal.Percent)
}

func TestDevice_Calibrate_RefusedStatusRetried(t *testing.T) {
	t.Parallel()

	device, mock, sched := createMockDeviceWithTransport(t)
	mock.SetResponse(CmdStartCalibration, statusOKData)
	mock.SetResponse(CmdGetCalibrationStatus, []byte{0x01, 0x00})
	ctx := context.Background()

	require.NoError(t, device.Calibrate(ctx))
	sched.Advance(CalibrationPollInterval)
	require.NoError(t, device.Loop(ctx))

	cal := device.Calibration()
	require.Error(t, cal.LastErr)
	assert.True(t, IsRejected(cal.LastErr))
	assert.Equal(t, PhaseRequested, cal.Phase)
	assert.Zero(t, cal.Percent)
	assert.True(t, cal.NextCheckDueAt.After(sched.Now()))
	assert.Equal(t, 1, mock.GetCallCount(CmdGetCalibrationStatus))
}

func TestDevice_Calibrate_TimesOut(t *testing.T) {
	t.Parallel()

	device, mock, sched := createMockDeviceWithTransport(t,
		WithCalibrationTiming(5*time.Second, 12*time.Second))
	mock.SetResponse(CmdStartCalibration, statusOKData)
	mock.SetResponse(CmdGetCalibrationStatus, []byte{0x00, 0x00, 0x0A, 0x00})
	ctx := context.Background()

	require.NoError(t, device.Calibrate(ctx))
	for range 3 {
		sched.Advance(5 * time.Second)
		require.NoError(t, device.Loop(ctx))
	}

	cal := device.Calibration()
	assert.Equal(t, PhaseTimedOut, cal.Phase)
	assert.Equal(t, 10, cal.Percent)
	assert.Equal(t, 2, mock.GetCallCount(CmdGetCalibrationStatus))
	assert.False(t, device.ConfigurationActive())
}

func TestDevice_AutoGain_Completes(t *testing.T) {
	t.Parallel()

	device, mock, _ := createMockDeviceWithTransport(t)
	mock.SetResponder(CmdEnableAutoGain, func([]byte) []byte {
		ack := frame.Encode(uint16(CmdEnableAutoGain.Ack()), statusOKData)
		return append(ack, autoGainCompleteFrame...)
	})
	ctx := context.Background()

	require.NoError(t, device.StartAutoGain(ctx))
	assert.True(t, device.ConfigurationActive())

	require.NoError(t, device.Loop(ctx))
	assert.Equal(t, PhaseComplete, device.AutoGain().Phase)
	assert.False(t, device.ConfigurationActive())
	assert.Equal(t, 1, mock.GetCallCount(CmdExitConfig))
}

func TestDevice_AutoGain_CompletionDuringOtherCommand(t *testing.T) {
	t.Parallel()

	device, mock, _ := createMockDeviceWithTransport(t)
	mock.SetResponse(CmdEnableAutoGain, statusOKData)
	ctx := context.Background()

	require.NoError(t, device.StartAutoGain(ctx))

	versionAck := frame.Encode(uint16(CmdGetVersion.Ack()), lengthData([]byte("v3.3.5")))
	mock.SetRawResponse(CmdGetVersion, append(append([]byte(nil), autoGainCompleteFrame...), versionAck...))

	v, err := device.FirmwareVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v3.3.5", v)
	assert.Equal(t, PhaseComplete, device.AutoGain().Phase)
	// the session is closed by the next tick, not from inside the command
	assert.True(t, device.ConfigurationActive())

	require.NoError(t, device.Loop(ctx))
	assert.False(t, device.ConfigurationActive())
}

func TestDevice_AutoGain_TimesOut(t *testing.T) {
	t.Parallel()

	device, mock, sched := createMockDeviceWithTransport(t)
	mock.SetResponse(CmdEnableAutoGain, statusOKData)
	ctx := context.Background()

	require.NoError(t, device.StartAutoGain(ctx))
	require.ErrorIs(t, device.EnableAutoGain(ctx), ErrAutoGainActive)

	require.NoError(t, device.Loop(ctx))
	assert.Equal(t, PhaseRequested, device.AutoGain().Phase)

	sched.Advance(AutoGainCompletionTimeout)
	require.NoError(t, device.Loop(ctx))
	assert.Equal(t, PhaseTimedOut, device.AutoGain().Phase)
	assert.False(t, device.ConfigurationActive())
}

func TestDevice_AutoGain_Rejected(t *testing.T) {
	t.Parallel()

	device, mock, _ := createMockDeviceWithTransport(t)
	mock.SetResponse(CmdEnableAutoGain, []byte{0x01, 0x00})

	require.Error(t, device.StartAutoGain(context.Background()))
	assert.Equal(t, PhaseFailed, device.AutoGain().Phase)
	assert.False(t, device.ConfigurationActive())
}

func TestDevice_BackgroundOperationsShareSession(t *testing.T) {
	t.Parallel()

	device, mock, sched := createMockDeviceWithTransport(t)
	mock.SetResponse(CmdStartCalibration, statusOKData)
	mock.SetResponse(CmdEnableAutoGain, statusOKData)
	mock.SetResponse(CmdGetCalibrationStatus, []byte{0x00, 0x00, 0x64, 0x00})
	ctx := context.Background()

	require.NoError(t, device.Calibrate(ctx))
	require.NoError(t, device.StartAutoGain(ctx))
	assert.Equal(t, 1, mock.GetCallCount(CmdEnterConfig))

	mock.Inject(autoGainCompleteFrame)
	require.NoError(t, device.Loop(ctx))
	assert.Equal(t, PhaseComplete, device.AutoGain().Phase)
	assert.True(t, device.ConfigurationActive(), "calibration still needs the session")

	sched.Advance(CalibrationPollInterval)
	require.NoError(t, device.Loop(ctx))
	assert.Equal(t, PhaseComplete, device.Calibration().Phase)
	assert.False(t, device.ConfigurationActive())
	assert.Equal(t, 1, mock.GetCallCount(CmdExitConfig))
}

func TestDevice_EngineeringMode(t *testing.T) {
	t.Parallel()

	var modes []string
	var gate3 []float64
	device, mock, _ := createMockDeviceWithTransport(t,
		WithOperatingModeSensor(TextFunc(func(s string) { modes = append(modes, s) })),
		WithGateEnergySensor(3, NumericFunc(func(v float64) { gate3 = append(gate3, v) })),
	)
	mock.SetResponse(CmdSetWorkMode, statusOKData)
	ctx := context.Background()

	require.NoError(t, device.SwitchToEngineeringMode(ctx))
	assert.True(t, device.ConfigurationActive())
	assert.Equal(t, WorkModeEngineering, device.WorkMode())

	energies := make([]uint32, GateCount)
	energies[3] = 1000
	mock.Inject(frame.EncodeTelemetry(EncodeEngineeringReport(DetectionStationary, 210, energies)))
	require.NoError(t, device.Loop(ctx))

	r := device.LastReading()
	assert.Equal(t, SourceEngineeringFrame, r.Source)
	require.Len(t, r.Gates, GateCount)
	assert.Equal(t, uint32(1000), r.Gates[3].Raw)
	assert.InDelta(t, 2.1, r.Gates[3].DistanceM, 1e-9)
	assert.True(t, r.Micromovement)
	require.Len(t, gate3, 1)
	assert.InDelta(t, 30.0, gate3[0], 1e-9)

	require.NoError(t, device.SwitchToNormalMode(ctx))
	assert.False(t, device.ConfigurationActive())
	assert.Equal(t, WorkModeProduction, device.WorkMode())
	assert.Equal(t, []string{"engineering", "normal"}, modes)

	reqs := mock.Requests()
	last := reqs[len(reqs)-2]
	assert.Equal(t, uint16(CmdSetWorkMode), last.Opcode)
	assert.Equal(t, []byte{0x00, 0x00, 0x64, 0x00, 0x00, 0x00}, last.Data)
}

func TestDevice_SaveConfiguration(t *testing.T) {
	t.Parallel()

	device, mock, _ := createMockDeviceWithTransport(t)
	mock.SetResponse(CmdSaveParameters, statusOKData)

	require.NoError(t, device.SaveConfiguration(context.Background()))

	var ops []uint16
	for _, r := range mock.Requests() {
		ops = append(ops, r.Opcode)
	}
	assert.Equal(t, []uint16{uint16(CmdEnterConfig), uint16(CmdSaveParameters), uint16(CmdExitConfig)}, ops)
	assert.False(t, device.ConfigurationActive())
}

func TestDevice_FactoryReset(t *testing.T) {
	t.Parallel()

	device, mock, _ := createMockDeviceWithTransport(t)
	mock.SetResponse(CmdSaveParameters, statusOKData)
	mock.SetResponder(CmdSetParameter, func(data []byte) []byte {
		if ParameterID(binary.LittleEndian.Uint16(data)) == ParamMotionThresholdBase+3 {
			return frame.Encode(uint16(CmdSetParameter.Ack()), []byte{0x01, 0x00})
		}
		return frame.Encode(uint16(CmdSetParameter.Ack()), statusOKData)
	})

	err := device.FactoryReset(context.Background())
	require.Error(t, err)
	assert.True(t, IsRejected(err))

	assert.Equal(t, 2+2*GateCount, mock.GetCallCount(CmdSetParameter))
	assert.Equal(t, 1, mock.GetCallCount(CmdSaveParameters))
	assert.Equal(t, 1, mock.GetCallCount(CmdExitConfig))
	assert.InDelta(t, DefaultMaxDistanceMeters, device.Info().MaxDistanceM, 1e-9)
}

func TestDevice_ReadIdentity(t *testing.T) {
	t.Parallel()

	var firmware []string
	device, mock, _ := createMockDeviceWithTransport(t,
		WithFirmwareVersionSensor(TextFunc(func(s string) { firmware = append(firmware, s) })))
	mock.SetResponse(CmdGetVersion, lengthData([]byte("v3.3.5")))
	mock.SetResponse(CmdGetSerialHex, lengthData([]byte{0x01, 0x02}))
	ctx := context.Background()

	v, err := device.ReadFirmwareVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v3.3.5", v)

	sn, err := device.ReadSerialNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0102", sn)

	info := device.Info()
	assert.Equal(t, "v3.3.5", info.FirmwareVersion)
	assert.Equal(t, "0102", info.SerialNumber)
	assert.Equal(t, []string{"v3.3.5"}, firmware)
	assert.Equal(t, 2, mock.GetCallCount(CmdEnterConfig))
	assert.Equal(t, 2, mock.GetCallCount(CmdExitConfig))
}
