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
	"errors"
	"testing"
	"time"

	"github.com/ZaparooProject/go-ld2402"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultRecoverer(t *testing.T) {
	t.Parallel()

	device, _ := createSimulatedDevice(t)

	t.Run("WithDefaults", func(t *testing.T) {
		t.Parallel()
		r := NewDefaultRecoverer(device, nil, 0, 0)
		assert.NotNil(t, r)
		assert.Equal(t, 3, r.maxAttempts)
		assert.Equal(t, 500*time.Millisecond, r.backoff)
	})

	t.Run("WithCustomValues", func(t *testing.T) {
		t.Parallel()
		r := NewDefaultRecoverer(device, nil, 100*time.Millisecond, 5)
		assert.Equal(t, 5, r.maxAttempts)
		assert.Equal(t, 100*time.Millisecond, r.backoff)
	})
}

func TestDefaultRecoverer_SoftCheckSuccess(t *testing.T) {
	t.Parallel()

	device, sim := createSimulatedDevice(t)
	r := NewDefaultRecoverer(device, nil, 10*time.Millisecond, 3)

	require.NoError(t, r.AttemptRecovery(context.Background()))
	assert.Same(t, device, r.GetDevice())
	assert.Equal(t, 1, sim.CommandCount(uint16(ld2402.CmdGetVersion)))
	assert.False(t, sim.GetState().ConfigMode, "configuration session closed again")
	assert.False(t, device.ConfigurationActive())
}

func TestDefaultRecoverer_SoftCheckFailsNoReopen(t *testing.T) {
	t.Parallel()

	device, _ := createSimulatedDevice(t)
	require.NoError(t, device.Close())

	r := NewDefaultRecoverer(device, nil, 10*time.Millisecond, 2)

	err := r.AttemptRecovery(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "simulator transport closed")
	assert.Same(t, device, r.GetDevice())
}

func TestDefaultRecoverer_FullReconnectSuccess(t *testing.T) {
	t.Parallel()

	device, _ := createSimulatedDevice(t)
	require.NoError(t, device.Close())
	newDevice, _ := createSimulatedDevice(t)

	reopens := 0
	r := NewDefaultRecoverer(device, func(context.Context) (*ld2402.Device, error) {
		reopens++
		return newDevice, nil
	}, 10*time.Millisecond, 3)

	require.NoError(t, r.AttemptRecovery(context.Background()))
	assert.Equal(t, 1, reopens)
	assert.Same(t, newDevice, r.GetDevice())
}

func TestDefaultRecoverer_ReconnectFails(t *testing.T) {
	t.Parallel()

	device, _ := createSimulatedDevice(t)
	require.NoError(t, device.Close())

	reopens := 0
	errPortGone := errors.New("port gone")
	r := NewDefaultRecoverer(device, func(context.Context) (*ld2402.Device, error) {
		reopens++
		return nil, errPortGone
	}, time.Millisecond, 3)

	err := r.AttemptRecovery(context.Background())
	require.ErrorIs(t, err, errPortGone)
	assert.Equal(t, 3, reopens)
	assert.Same(t, device, r.GetDevice())
}

func TestDefaultRecoverer_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	device, _ := createSimulatedDevice(t)
	require.NoError(t, device.Close())

	r := NewDefaultRecoverer(device, nil, time.Hour, 5)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := r.AttemptRecovery(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
