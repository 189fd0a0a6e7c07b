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

//go:build !prod

package ld2402

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testEpoch is the start of every virtual clock in tests.
var testEpoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// testPollStep is how far the virtual clock moves per Yield.
const testPollStep = 5 * time.Millisecond

// createMockDeviceWithTransport creates a device on a MockTransport driven
// by a ManualScheduler, with factory responses for entering and leaving
// configuration mode already installed.
func createMockDeviceWithTransport(t *testing.T, opts ...Option) (*Device, *MockTransport, *ManualScheduler) {
	t.Helper()
	mockTransport := NewMockTransport()
	mockTransport.SetResponse(CmdEnterConfig, []byte{0x00, 0x00, 0x01, 0x00, 0x40, 0x00})
	mockTransport.SetResponse(CmdExitConfig, []byte{0x00, 0x00})

	sched := NewManualScheduler(testEpoch, testPollStep)
	opts = append([]Option{WithScheduler(sched)}, opts...)
	device, err := New(mockTransport, opts...)
	require.NoError(t, err)
	return device, mockTransport, sched
}

// statusOKData is the data of a plain success response.
var statusOKData = []byte{0x00, 0x00}

// paramData is the data of a get-parameter success response.
func paramData(v uint32) []byte {
	return []byte{0x00, 0x00, byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

// lengthData is the data of a version or serial response.
func lengthData(b []byte) []byte {
	out := []byte{0x00, 0x00, byte(len(b)), byte(len(b) >> 8)}
	return append(out, b...)
}
