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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestConnectionBackoffBudget checks that one Setup attempt that hits every
// timeout, plus all connection backoff, fits in ConnectionRetryTimeout.
func TestConnectionBackoffBudget(t *testing.T) {
	t.Parallel()

	cfg := &RetryConfig{
		BackoffMultiplier: ConnectionBackoffMultiplier,
		MaxBackoff:        ConnectionMaxBackoff,
	}
	var waits time.Duration
	backoff := ConnectionInitialBackoff
	for range DefaultConnectionRetries - 1 {
		waits += time.Duration(float64(backoff) * (1 + ConnectionJitter))
		backoff = nextBackoff(backoff, cfg)
	}
	// Setup opens a configuration session, reads the firmware version and
	// the parameters, and closes the session again.
	perAttempt := EnterConfigAttempts*(DefaultCommandTimeout+EnterConfigRetryDelay) +
		PowerInterferenceTimeout + 4*DefaultCommandTimeout

	assert.Less(t, waits+perAttempt, ConnectionRetryTimeout)
	assert.LessOrEqual(t, backoff, ConnectionMaxBackoff)
	assert.InDelta(t, 0.1, ConnectionJitter, 1e-9)
}

// TestProtocolTiming pins the waits the sensor firmware needs.
func TestProtocolTiming(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Second, DefaultCommandTimeout)
	assert.Equal(t, 3*time.Second, PowerInterferenceTimeout)
	assert.Equal(t, 3, EnterConfigAttempts)
	assert.Equal(t, 500*time.Millisecond, EnterConfigRetryDelay)
	assert.Equal(t, 5*time.Second, CalibrationPollInterval)
	assert.Equal(t, 30*time.Second, CalibrationMaxDuration)
	assert.Equal(t, 2*time.Second, DefaultDistanceThrottle)
	assert.Less(t, DefaultPollInterval, DefaultCommandTimeout)
	assert.Greater(t, AutoGainCompletionTimeout, PowerInterferenceTimeout)
}
