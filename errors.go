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
	"runtime"
	"syscall"
)

// Link errors.
var (
	ErrTransportWrite    = errors.New("transport write failed")
	ErrTransportRead     = errors.New("transport read failed")
	ErrTransportClosed   = errors.New("transport is closed")
	ErrTransportNotReady = errors.New("transport not ready")
)

// Exchange errors. A retry usually clears them.
var (
	ErrTimeout          = errors.New("command timeout")
	ErrProtocolMismatch = errors.New("response did not match request")
	ErrMalformedFrame   = errors.New("malformed frame")
)

// Device-side errors.
var (
	ErrParameterRejected = errors.New("device rejected command")
	ErrDeviceNotFound    = errors.New("device not found")
	ErrInvalidResponse   = errors.New("invalid response format")
	ErrCalibrationActive = errors.New("calibration already in progress")
	ErrAutoGainActive    = errors.New("auto gain already in progress")
)

// Caller errors.
var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrDataTooLarge     = errors.New("data too large")
)

// ErrorType classifies a TransportError.
type ErrorType int

const (
	// ErrorTypeTransient errors may succeed on the next attempt.
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent errors mean the link is unusable.
	ErrorTypePermanent
	// ErrorTypeTimeout errors are retryable waits that ran out.
	ErrorTypeTimeout
)

// TransportError is a failure of the byte link under a command.
type TransportError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

func (e *TransportError) Error() string {
	if e.Port == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError builds a TransportError. Transient and timeout errors
// are marked retryable.
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Err:       err,
		Op:        op,
		Port:      port,
		Type:      errType,
		Retryable: errType != ErrorTypePermanent,
	}
}

// NewTransportWriteError reports a short or failed write.
func NewTransportWriteError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportWrite, ErrorTypeTransient)
}

// NewTransportReadError reports a failed read.
func NewTransportReadError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportRead, ErrorTypeTransient)
}

// NewTransportClosedError reports use of a closed link.
func NewTransportClosedError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportClosed, ErrorTypePermanent)
}

// NewDataTooLargeError reports a request that does not fit in one frame.
func NewDataTooLargeError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrDataTooLarge, ErrorTypePermanent)
}

// CommandError describes a failed command exchange. Err is one of
// ErrTimeout, ErrProtocolMismatch or ErrParameterRejected.
type CommandError struct {
	Err    error
	Op     string
	Opcode Opcode
	// Status is the raw status word of the response, when one was received.
	Status    uint16
	HasStatus bool
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s (0x%04X): %v", e.Op, uint16(e.Opcode), e.Err)
	if e.HasStatus {
		msg += fmt.Sprintf(" (status 0x%04X)", e.Status)
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func newCommandError(op Opcode, err error) *CommandError {
	return &CommandError{Op: op.String(), Opcode: op, Err: err}
}

func newRejectedError(op Opcode, status uint16) *CommandError {
	e := newCommandError(op, ErrParameterRejected)
	e.Status = status
	e.HasStatus = true
	return e
}

// IsRetryable reports whether repeating the command could succeed.
// A TransportError decides for itself; otherwise timeouts, mismatched or
// malformed responses and read failures are retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if te := (*TransportError)(nil); errors.As(err, &te) {
		return te.Retryable
	}
	for _, target := range []error{ErrTimeout, ErrProtocolMismatch, ErrMalformedFrame, ErrTransportRead} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsTimeout reports whether a command gave up waiting for its response.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsRejected reports whether the device answered with a failure status.
func IsRejected(err error) bool {
	return errors.Is(err, ErrParameterRejected)
}

// IsFatal reports whether the sensor or its link is gone, so the host loop
// should stop driving the device and recover instead. Unlike IsRetryable
// it says nothing about repeating a single command.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if te := (*TransportError)(nil); errors.As(err, &te) {
		return te.Type == ErrorTypePermanent
	}
	if unplugged(err) {
		return true
	}
	for _, target := range []error{ErrTransportClosed, ErrDeviceNotFound, io.EOF, io.ErrClosedPipe} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Windows errnos seen when a USB serial adapter disappears. The syscall
// package only names them on Windows.
const (
	winAccessDenied syscall.Errno = 5
	winGenFailure   syscall.Errno = 31
	winNoSuchDevice syscall.Errno = 433
)

// unplugged matches the OS errors a read or write returns after the
// adapter was pulled mid-transfer.
func unplugged(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	if errno == syscall.EIO || errno == syscall.ENXIO || errno == syscall.ENODEV {
		return true
	}
	return runtime.GOOS == "windows" &&
		(errno == winAccessDenied || errno == winGenFailure || errno == winNoSuchDevice)
}
