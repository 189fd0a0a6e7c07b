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
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err       error
		name      string
		retryable bool
		fatal     bool
	}{
		{name: "nil"},
		{name: "timeout", err: ErrTimeout, retryable: true},
		{name: "mismatch", err: ErrProtocolMismatch, retryable: true},
		{name: "malformed frame", err: ErrMalformedFrame, retryable: true},
		{name: "read failure", err: ErrTransportRead, retryable: true},
		{name: "command timeout", err: newCommandError(CmdEnterConfig, ErrTimeout), retryable: true},
		{name: "rejected", err: newRejectedError(CmdSetParameter, 1)},
		{name: "invalid parameter", err: ErrInvalidParameter},
		{name: "too large", err: ErrDataTooLarge},
		{name: "unknown", err: errors.New("boom")},
		{name: "closed", err: ErrTransportClosed, fatal: true},
		{name: "not found", err: ErrDeviceNotFound, fatal: true},
		{name: "eof", err: io.EOF, fatal: true},
		{name: "closed pipe", err: fmt.Errorf("write: %w", io.ErrClosedPipe), fatal: true},
		{name: "EIO", err: syscall.EIO, fatal: true},
		{name: "ENXIO wrapped twice", err: fmt.Errorf("a: %w", fmt.Errorf("b: %w", syscall.ENXIO)), fatal: true},
		{name: "ENODEV", err: syscall.ENODEV, fatal: true},
		{name: "EAGAIN", err: syscall.EAGAIN},
		{name: "EINTR", err: syscall.EINTR},
		{name: "transient transport", err: NewTransportReadError("ReadByte", "/dev/ttyUSB0"), retryable: true},
		{name: "write transport", err: NewTransportWriteError("Write", "/dev/ttyUSB0"), retryable: true},
		{
			name:      "timeout transport",
			err:       NewTransportError("Write", "", errors.New("stalled"), ErrorTypeTimeout),
			retryable: true,
		},
		{name: "closed transport", err: NewTransportClosedError("Write", "/dev/ttyUSB0"), fatal: true},
		{name: "oversized request", err: NewDataTooLargeError("SetParameter", "mock"), fatal: true},
		{
			name:  "permanent transport wrapping eio",
			err:   &TransportError{Op: "ReadByte", Err: syscall.EIO, Type: ErrorTypePermanent},
			fatal: true,
		},
		{
			name: "transient transport wrapping eof",
			err:  &TransportError{Op: "ReadByte", Err: io.EOF, Type: ErrorTypeTransient},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.retryable, IsRetryable(tt.err), "IsRetryable")
			assert.Equal(t, tt.fatal, IsFatal(tt.err), "IsFatal")
		})
	}
}

func TestTransportError(t *testing.T) {
	t.Parallel()

	pipe := errors.New("broken pipe")
	assert.Equal(t, "Write /dev/ttyUSB0: broken pipe",
		NewTransportError("Write", "/dev/ttyUSB0", pipe, ErrorTypeTransient).Error())
	assert.Equal(t, "Write: broken pipe", NewTransportError("Write", "", pipe, ErrorTypeTransient).Error())

	closed := NewTransportClosedError("ReadByte", "uart")
	require.ErrorIs(t, closed, ErrTransportClosed)
	assert.False(t, closed.Retryable)
	assert.True(t, NewTransportError("Write", "", pipe, ErrorTypeTimeout).Retryable)
}

func TestCommandError(t *testing.T) {
	t.Parallel()

	timeout := newCommandError(CmdGetVersion, ErrTimeout)
	assert.Equal(t, "GetVersion (0x0000): command timeout", timeout.Error())
	assert.True(t, IsTimeout(timeout))
	assert.False(t, IsRejected(timeout))

	rejected := newRejectedError(CmdSetParameter, 0x0001)
	assert.Equal(t, "SetParameter (0x0007): device rejected command (status 0x0001)", rejected.Error())

	wrapped := fmt.Errorf("set MaxDistance: %w", rejected)
	assert.True(t, IsRejected(wrapped))
	assert.False(t, IsTimeout(wrapped))

	var cmdErr *CommandError
	require.ErrorAs(t, wrapped, &cmdErr)
	assert.True(t, cmdErr.HasStatus)
	assert.Equal(t, uint16(1), cmdErr.Status)
	assert.Equal(t, CmdSetParameter, cmdErr.Opcode)
}
