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
	"testing"
	"time"

	"github.com/ZaparooProject/go-ld2402"
	"github.com/stretchr/testify/assert"
)

func TestSleepRecoveryConfig_DetectSleep(t *testing.T) {
	t.Parallel()

	cfg := DefaultSleepRecoveryConfig()
	disabled := cfg
	disabled.Enabled = false

	tests := []struct {
		name     string
		cfg      SleepRecoveryConfig
		elapsed  time.Duration
		expected bool
	}{
		{name: "NormalTick", cfg: cfg, elapsed: 20 * time.Millisecond, expected: false},
		{name: "SlowTick", cfg: cfg, elapsed: 1500 * time.Millisecond, expected: false},
		{name: "AtThreshold", cfg: cfg, elapsed: 2*time.Second + 20*time.Millisecond, expected: false},
		{name: "Sleep", cfg: cfg, elapsed: 30 * time.Second, expected: true},
		{name: "Disabled", cfg: disabled, elapsed: time.Hour, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.cfg.DetectSleep(tt.elapsed, 20*time.Millisecond))
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Equal(t, 20*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 5*time.Second, cfg.SilenceTimeout)
	assert.Zero(t, cfg.VacancyDelay)
	assert.True(t, cfg.SleepRecovery.Enabled)
}

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func present(cm float64) ld2402.Reading {
	return ld2402.Reading{DistanceCM: cm, Presence: true}
}

func TestOccupancyState_Transitions(t *testing.T) {
	t.Parallel()

	var s OccupancyState
	assert.False(t, s.Present())
	assert.Equal(t, "vacant", s.Phase.String())

	assert.True(t, s.Observe(present(120), t0), "first target occupies")
	assert.Equal(t, StateOccupied, s.Phase)
	assert.Equal(t, t0, s.Since)

	assert.False(t, s.Observe(present(110), t0.Add(time.Second)), "already occupied")
	assert.Equal(t, t0.Add(time.Second), s.LastSeen)
	assert.InDelta(t, 110, s.LastReading.DistanceCM, 1e-9)

	assert.False(t, s.Observe(ld2402.Reading{}, t0.Add(2*time.Second)))
	assert.Equal(t, StateVacating, s.Phase)
	assert.True(t, s.Present(), "vacating still counts as present")

	assert.False(t, s.Expire(t0.Add(2500*time.Millisecond), time.Second))
	assert.True(t, s.Expire(t0.Add(3*time.Second), time.Second))
	assert.Equal(t, StateVacant, s.Phase)
	assert.False(t, s.Present())
	assert.False(t, s.Expire(t0.Add(4*time.Second), time.Second), "vacancy is reported once")
}

func TestOccupancyState_TargetReturnsWhileVacating(t *testing.T) {
	t.Parallel()

	var s OccupancyState
	s.Observe(present(80), t0)
	s.Observe(ld2402.Reading{}, t0.Add(time.Second))
	assert.Equal(t, StateVacating, s.Phase)

	assert.False(t, s.Observe(present(90), t0.Add(1500*time.Millisecond)), "return is not a new arrival")
	assert.Equal(t, StateOccupied, s.Phase)
	assert.False(t, s.Expire(t0.Add(time.Hour), 0))
}

func TestOccupancyState_VacantIgnoresOff(t *testing.T) {
	t.Parallel()

	var s OccupancyState
	assert.False(t, s.Observe(ld2402.Reading{}, t0))
	assert.Equal(t, StateVacant, s.Phase)
	assert.False(t, s.Expire(t0.Add(time.Hour), 0))
}

func TestOccupancyState_Clear(t *testing.T) {
	t.Parallel()

	var s OccupancyState
	assert.False(t, s.Clear(t0))

	s.Observe(present(50), t0)
	assert.True(t, s.Clear(t0.Add(time.Second)))
	assert.Equal(t, StateVacant, s.Phase)
	assert.Equal(t, t0.Add(time.Second), s.Since)
}

func TestOccupancyPhase_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "occupied", StateOccupied.String())
	assert.Equal(t, "vacating", StateVacating.String())
	assert.Equal(t, "unknown", OccupancyPhase(9).String())
}
