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

package polling

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZaparooProject/go-ld2402"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startSession(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	require.Eventually(t, s.GetDeviceActor().IsRunning, waitFor, tick)
}

func TestSession_OccupiedThenVacant(t *testing.T) {
	t.Parallel()

	device, sim := createSimulatedDevice(t)
	cfg := testConfig()
	cfg.VacancyDelay = 30 * time.Millisecond
	session := NewSession(device, cfg)

	var occupied, vacant, readings atomic.Int32
	var firstDistance atomic.Int64
	session.SetOnReading(func(ld2402.Reading) { readings.Add(1) })
	session.SetOnOccupied(func(r ld2402.Reading) {
		occupied.Add(1)
		firstDistance.Store(int64(r.DistanceCM))
	})
	session.SetOnVacant(func() { vacant.Add(1) })
	startSession(t, session)

	sim.EmitDistance(240)
	sim.EmitDistance(230)
	require.Eventually(t, func() bool { return readings.Load() == 2 }, waitFor, tick)
	assert.Equal(t, int32(1), occupied.Load())
	assert.Equal(t, int64(240), firstDistance.Load())
	assert.Equal(t, StateOccupied, session.GetState().Phase)

	sim.EmitOff()
	require.Eventually(t, func() bool { return vacant.Load() == 1 }, waitFor, tick)
	state := session.GetState()
	assert.Equal(t, StateVacant, state.Phase)
	assert.False(t, state.LastReading.Presence)
	assert.Equal(t, int32(1), occupied.Load())
}

func TestSession_PanickingCallbackKeepsLoopAlive(t *testing.T) {
	t.Parallel()

	device, sim := createSimulatedDevice(t)
	session := NewSession(device, testConfig())

	var occupied atomic.Int32
	session.SetOnReading(func(ld2402.Reading) { panic("boom") })
	session.SetOnOccupied(func(ld2402.Reading) { occupied.Add(1) })
	startSession(t, session)

	sim.EmitDistance(100)
	require.Eventually(t, func() bool { return occupied.Load() == 1 }, waitFor, tick)
	sim.EmitOff()
	require.Eventually(t, func() bool { return !session.GetState().Present() }, waitFor, tick)
	sim.EmitDistance(110)
	require.Eventually(t, func() bool { return occupied.Load() == 2 }, waitFor, tick)
	assert.Equal(t, int64(3), session.GetDeviceActor().GetMetrics().Readings)
	assert.True(t, session.GetDeviceActor().IsRunning())
}

func TestSession_SaveConfiguration(t *testing.T) {
	t.Parallel()

	device, sim := createSimulatedDevice(t)
	session := NewSession(device, testConfig())
	startSession(t, session)

	require.NoError(t, session.SaveConfiguration(context.Background()))
	assert.True(t, sim.GetState().ParametersSaved)
	assert.Equal(t, 1, sim.CommandCount(uint16(ld2402.CmdSaveParameters)))
	assert.False(t, sim.GetState().ConfigMode)
}

func TestSession_CalibrateRunsInBackground(t *testing.T) {
	t.Parallel()

	device, sim := createSimulatedDevice(t, ld2402.WithCalibrationTiming(10*time.Millisecond, 5*time.Second))
	session := NewSession(device, testConfig())
	startSession(t, session)

	require.NoError(t, session.Calibrate(context.Background()))
	require.Eventually(t, func() bool {
		return sim.CommandCount(uint16(ld2402.CmdGetCalibrationStatus)) >= 4 && !sim.GetState().ConfigMode
	}, waitFor, tick)
	assert.False(t, sim.GetState().Calibrating)
	assert.Equal(t, 1, sim.CommandCount(uint16(ld2402.CmdStartCalibration)))
}

func TestSession_StartAutoGain(t *testing.T) {
	t.Parallel()

	device, sim := createSimulatedDevice(t)
	session := NewSession(device, testConfig())
	startSession(t, session)

	require.NoError(t, session.StartAutoGain(context.Background()))
	assert.Equal(t, 1, sim.CommandCount(uint16(ld2402.CmdEnableAutoGain)))
	require.Eventually(t, func() bool { return !sim.GetState().ConfigMode }, waitFor, tick)
}

func TestSession_Close(t *testing.T) {
	t.Parallel()

	device, _ := createSimulatedDevice(t)
	session := NewSession(device, testConfig())
	startSession(t, session)

	require.NoError(t, session.Close())
	require.NoError(t, session.Close())
	assert.False(t, session.GetDeviceActor().IsRunning())

	err := session.Do(context.Background(), func(context.Context, *ld2402.Device) error { return nil })
	require.ErrorIs(t, err, ErrNotRunning)
}

func TestSession_FatalErrorClearsOccupancy(t *testing.T) {
	t.Parallel()

	device, _ := createSimulatedDevice(t)
	session := NewSession(device, nil)

	var vacant atomic.Int32
	var lastErr atomic.Value
	session.SetOnVacant(func() { vacant.Add(1) })
	session.SetOnError(func(err error) { lastErr.Store(err) })

	session.handleReading(present(75), time.Now())
	require.True(t, session.GetState().Present())

	session.handleError(ld2402.ErrTimeout)
	assert.Zero(t, vacant.Load(), "a timeout says nothing about the area")
	assert.True(t, session.GetState().Present())

	gone := ld2402.NewTransportClosedError("ReadByte", "/dev/ttyUSB0")
	session.handleError(gone)
	assert.Equal(t, int32(1), vacant.Load())
	assert.False(t, session.GetState().Present())
	assert.Equal(t, gone, lastErr.Load())
}

func TestSession_DefaultConfig(t *testing.T) {
	t.Parallel()

	device, _ := createSimulatedDevice(t)
	session := NewSession(device, nil)
	assert.Equal(t, DefaultConfig(), session.config)
	assert.Same(t, device, session.GetDevice())
}
