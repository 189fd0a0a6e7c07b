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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpcode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		op   Opcode
		ack  Opcode
	}{
		{name: "GetVersion", op: CmdGetVersion, ack: 0x0100},
		{name: "SetParameter", op: CmdSetParameter, ack: 0x0107},
		{name: "GetCalibrationStatus", op: CmdGetCalibrationStatus, ack: 0x010A},
		{name: "AutoGainComplete", op: CmdAutoGainComplete, ack: 0x01F0},
		{name: "EnterConfig", op: CmdEnterConfig, ack: 0x01FF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.ack, tt.op.Ack())
			assert.Equal(t, tt.op, tt.ack.Base())
			assert.Equal(t, tt.name, tt.op.String())
			assert.Equal(t, tt.name, tt.ack.String())
		})
	}

	assert.Equal(t, "Opcode(0x0042)", Opcode(0x0042).String())
}

func TestParameterID_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "MaxDistance", ParamMaxDistance.String())
	assert.Equal(t, "Timeout", ParamTimeout.String())
	assert.Equal(t, "PowerInterference", ParamPowerInterference.String())
	assert.Equal(t, "MotionThreshold[0]", ParamMotionThresholdBase.String())
	assert.Equal(t, "MotionThreshold[15]", (ParamMotionThresholdBase + 15).String())
	assert.Equal(t, "MicromotionThreshold[7]", (ParamMicromotionThresholdBase + 7).String())
	assert.Equal(t, "Parameter(0x0020)", ParameterID(0x0020).String())
}

func TestThresholdParams(t *testing.T) {
	t.Parallel()

	id, err := MotionThresholdParam(3)
	require.NoError(t, err)
	assert.Equal(t, ParameterID(0x0013), id)

	id, err = MicromotionThresholdParam(15)
	require.NoError(t, err)
	assert.Equal(t, ParameterID(0x003F), id)

	for _, gate := range []int{-1, GateCount} {
		_, err = MotionThresholdParam(gate)
		require.ErrorIs(t, err, ErrInvalidParameter)
		_, err = MicromotionThresholdParam(gate)
		require.ErrorIs(t, err, ErrInvalidParameter)
	}
}

func TestWorkMode_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "normal", WorkModeNormal.String())
	assert.Equal(t, "normal", WorkModeProduction.String())
	assert.Equal(t, "engineering", WorkModeEngineering.String())
	assert.Equal(t, "config", WorkModeConfigAck.String())
	assert.Equal(t, "WorkMode(0x00000009)", WorkMode(9).String())
}

func TestPowerInterference_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "not tested", PowerInterferenceNotTested.String())
	assert.Equal(t, "no interference", PowerInterferenceClear.String())
	assert.Equal(t, "interference detected", PowerInterferenceDetected.String())
	assert.Equal(t, "unknown (7)", PowerInterference(7).String())
}

func TestDBConversions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		db  float64
		raw uint32
	}{
		{db: 0, raw: 1},
		{db: 10, raw: 10},
		{db: 25, raw: 316},
		{db: 30, raw: 1000},
		{db: 60, raw: 1000000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.raw, DBToRaw(tt.db), "DBToRaw(%v)", tt.db)
	}

	assert.Equal(t, uint32(1), DBToRaw(-5))
	assert.Equal(t, uint32(math.MaxUint32), DBToRaw(200))

	assert.Zero(t, RawToDB(0))
	assert.InDelta(t, 30.0, RawToDB(1000), 1e-9)
	assert.InDelta(t, 25.0, RawToDB(DBToRaw(25)), 0.01)
}

func TestDistanceConversions(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint32(50), MetersToDecimeters(5))
	assert.Equal(t, uint32(7), MetersToDecimeters(0.7))
	assert.Equal(t, uint32(100), MetersToDecimeters(9.96))
	assert.Zero(t, MetersToDecimeters(-1))
	assert.InDelta(t, 4.5, DecimetersToMeters(45), 1e-9)
}

func TestClampCoefficient(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint16(30), clampCoefficient(DefaultCalibrationCoefficient))
	assert.Equal(t, uint16(10), clampCoefficient(0))
	assert.Equal(t, uint16(10), clampCoefficient(math.NaN()))
	assert.Equal(t, uint16(200), clampCoefficient(99))
	assert.Equal(t, uint16(25), clampCoefficient(2.5))
	assert.Equal(t, uint16(13), clampCoefficient(1.26))
}
