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

package ld2402

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-ld2402/detection"
	"github.com/ZaparooProject/go-ld2402/internal/frame"
)

// maxBytesPerPump bounds how much input one pump drains so that a flooding
// sensor cannot hold the host tick indefinitely.
const maxBytesPerPump = 4096

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// RetryConfig is the policy for entering configuration mode
	RetryConfig *RetryConfig
	// Timeout is the default command timeout
	Timeout time.Duration
	// DistanceThrottle is the minimum spacing of distance publications
	DistanceThrottle time.Duration
	// Ranges are the static and micromovement ranges for derived flags
	Ranges Ranges
	// MaxDistanceM is written during Setup when positive
	MaxDistanceM float64
	// TimeoutSeconds is written during Setup when non-negative
	TimeoutSeconds int
	// CalibrationPollInterval spaces calibration status queries
	CalibrationPollInterval time.Duration
	// CalibrationMaxDuration caps a calibration session
	CalibrationMaxDuration time.Duration
	// AutoGainTimeout bounds the wait for auto-gain completion
	AutoGainTimeout time.Duration
}

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		RetryConfig:             EnterConfigRetryConfig(),
		Timeout:                 DefaultCommandTimeout,
		DistanceThrottle:        DefaultDistanceThrottle,
		Ranges:                  DefaultRanges(),
		TimeoutSeconds:          -1,
		CalibrationPollInterval: CalibrationPollInterval,
		CalibrationMaxDuration:  CalibrationMaxDuration,
		AutoGainTimeout:         AutoGainCompletionTimeout,
	}
}

// pendingCommand is the request a Send is waiting on.
type pendingCommand struct {
	response   *frame.Frame
	op         Opcode
	mismatched int
}

// Device represents an HLK-LD2402 radar sensor.
//
// Thread Safety: Device is NOT thread-safe. It is designed to be driven from
// a single host loop: Loop and every command method must be called from the
// same goroutine. Commands block the caller but yield to the Scheduler on
// every poll iteration.
type Device struct {
	transport     Transport
	scheduler     Scheduler
	config        *DeviceConfig
	sensors       *Sensors
	publisher     *publisher
	classifier    *Classifier
	pending       *pendingCommand
	onReading     func(Reading)
	lastReading   Reading
	info          DeviceInfo
	calibration   CalibrationSession
	autoGain      AutoGainSession
	workMode      WorkMode
	unsolicited   uint64
	configActive  bool
	finishPending bool
}

// New creates a new LD2402 device with the given transport
func New(transport Transport, opts ...Option) (*Device, error) {
	device := &Device{
		transport: transport,
		config:    DefaultDeviceConfig(),
		sensors:   &Sensors{},
		workMode:  WorkModeProduction,
	}

	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, err
		}
	}

	if device.scheduler == nil {
		device.scheduler = NewSystemScheduler(DefaultPollInterval)
	}
	device.publisher = newPublisher(device.sensors, device.config.DistanceThrottle)
	device.classifier = NewClassifier(ClassifierHandlers{
		CommandFrame:   device.handleCommandFrame,
		TelemetryFrame: device.handleTelemetryFrame,
		Line:           device.handleLine,
	})
	return device, nil
}

// Transport returns the underlying transport
func (d *Device) Transport() Transport {
	return d.transport
}

// Scheduler returns the scheduler the device yields to.
func (d *Device) Scheduler() Scheduler {
	return d.scheduler
}

// Classifier returns the stream classifier, mainly for its statistics.
func (d *Device) Classifier() *Classifier {
	return d.classifier
}

// Info returns what Setup learned about the sensor.
func (d *Device) Info() DeviceInfo {
	return d.info
}

// LastReading returns the most recent telemetry reading.
func (d *Device) LastReading() Reading {
	return d.lastReading
}

// ConfigurationActive reports whether the driver believes a configuration
// session is open.
func (d *Device) ConfigurationActive() bool {
	return d.configActive
}

// SetReadingHandler replaces the handler installed with WithReadingHandler.
func (d *Device) SetReadingHandler(fn func(Reading)) {
	d.onReading = fn
}

// WorkMode returns the last work mode the driver set.
func (d *Device) WorkMode() WorkMode {
	return d.workMode
}

// Close closes the device connection
func (d *Device) Close() error {
	if d.transport != nil {
		if err := d.transport.Close(); err != nil {
			return fmt.Errorf("failed to close transport: %w", err)
		}
	}
	return nil
}

// String summarizes the sensor configuration.
func (d *Device) String() string {
	return fmt.Sprintf("HLK-LD2402 firmware=%q serial=%q max distance=%.1f m timeout=%d s",
		d.info.FirmwareVersion, d.info.SerialNumber, d.info.MaxDistanceM, d.info.TimeoutSeconds)
}

// Loop is the host tick. It drains available input through the classifier
// and advances background calibration and auto-gain sessions.
func (d *Device) Loop(ctx context.Context) error {
	if err := d.pump(); err != nil {
		return err
	}
	now := d.scheduler.Now()
	d.tickAutoGain(ctx, now)
	d.tickCalibration(ctx, now)
	if d.finishPending {
		d.finishPending = false
		d.finishSession(ctx)
	}
	return nil
}

// pump feeds available bytes to the classifier. It stops early once the
// pending command has its response so later bytes are left for the next
// tick.
func (d *Device) pump() error {
	for range maxBytesPerPump {
		if d.transport.Available() <= 0 {
			return nil
		}
		b, err := d.transport.ReadByte()
		if err != nil {
			return NewTransportError("ReadByte", string(d.transport.Type()), err, errorTypeFor(err))
		}
		d.classifier.Feed(b)
		if d.pending != nil && d.pending.response != nil {
			return nil
		}
	}
	return nil
}

func errorTypeFor(err error) ErrorType {
	if IsFatal(err) {
		return ErrorTypePermanent
	}
	return ErrorTypeTransient
}

// Send writes a command and waits for its response using the configured
// default timeout.
func (d *Device) Send(ctx context.Context, op Opcode, data []byte) (*Response, error) {
	return d.SendWithTimeout(ctx, op, data, d.config.Timeout)
}

// SendWithTimeout writes a command and polls for the matching response
// until timeout elapses on the scheduler clock. Each poll iteration drains
// the transport through the classifier and then yields.
//
// Errors are wrapped in a *TraceableError carrying the exchanged frames.
func (d *Device) SendWithTimeout(
	ctx context.Context, op Opcode, data []byte, timeout time.Duration,
) (*Response, error) {
	trace := NewTraceBuffer(string(d.transport.Type()), 16, d.scheduler.Now)
	if len(data) > frame.MaxCommandData {
		return nil, trace.WrapError(NewDataTooLargeError(op.String(), string(d.transport.Type())))
	}

	// Anything already buffered belongs to earlier traffic.
	if err := d.pump(); err != nil {
		return nil, trace.WrapError(err)
	}

	pending := &pendingCommand{op: op}
	d.pending = pending
	defer func() { d.pending = nil }()

	req := frame.Encode(uint16(op), data)
	trace.RecordTX(req, op.String())
	Debugf("TX %s: % X", op, req)
	n, err := d.transport.Write(req)
	if err != nil {
		return nil, trace.WrapError(NewTransportError(op.String(), string(d.transport.Type()), err, ErrorTypeTransient))
	}
	if n != len(req) {
		return nil, trace.WrapError(NewTransportWriteError(op.String(), string(d.transport.Type())))
	}

	deadline := d.scheduler.Now().Add(timeout)
	for {
		if err := d.pump(); err != nil {
			return nil, trace.WrapError(err)
		}
		if f := pending.response; f != nil {
			trace.RecordRX(f.Payload, Opcode(f.Opcode).String())
			Debugf("RX %s: % X", op, f.Payload)
			resp, err := matchResponse(op, Opcode(f.Opcode), f.Data, shapesFor(op, data))
			if err != nil {
				return nil, trace.WrapError(err)
			}
			return resp, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, trace.WrapError(fmt.Errorf("%s: %w", op, err))
		}
		if !d.scheduler.Now().Before(deadline) {
			trace.RecordTimeout(fmt.Sprintf("%s after %s", op, timeout))
			if pending.mismatched > 0 {
				return nil, trace.WrapError(newCommandError(op, ErrProtocolMismatch))
			}
			return nil, trace.WrapError(newCommandError(op, ErrTimeout))
		}
		d.scheduler.Yield()
	}
}

// handleCommandFrame routes a command frame to the waiting Send, or treats
// it as an unsolicited notification.
func (d *Device) handleCommandFrame(f *frame.Frame) {
	if p := d.pending; p != nil && p.response == nil {
		if isResponseTo(p.op, f.Opcode) {
			p.response = f
			return
		}
		p.mismatched++
	}

	switch Opcode(f.Opcode).Base() {
	case CmdAutoGainComplete:
		d.autoGainCompleted()
	default:
		d.unsolicited++
		Debugf("unsolicited command frame 0x%04X: % X", f.Opcode, f.Data)
	}
}

func (d *Device) handleTelemetryFrame(f *frame.Frame) {
	reading, ok := ParseTelemetryFrame(f.Type, f.Data, d.config.Ranges)
	if !ok {
		Debugf("Warning: unrecognized telemetry frame type 0x%02X (%d bytes)", f.Type, len(f.Data))
		return
	}
	d.deliver(&reading)
}

func (d *Device) handleLine(line string) {
	reading, ok := ParseTextLine(line, d.config.Ranges)
	if !ok {
		Debugf("ignoring line %q", line)
		return
	}
	d.deliver(&reading)
}

func (d *Device) deliver(r *Reading) {
	d.lastReading = *r
	d.publisher.reading(r, d.scheduler.Now())
	if d.onReading != nil {
		d.onReading(*r)
	}
}

// TransportFactory is a function type for creating transports
type TransportFactory func(path string) (Transport, error)

// TransportFromDeviceFactory is a function type for creating transports from detected devices
type TransportFromDeviceFactory func(device detection.DeviceInfo) (Transport, error)

// ConnectOption represents a functional option for ConnectDevice
type ConnectOption func(*connectConfig) error

// connectConfig holds configuration options for device connection
type connectConfig struct {
	transportFactory       TransportFactory
	transportDeviceFactory TransportFromDeviceFactory
	deviceDetector         func(context.Context, *detection.Options) ([]detection.DeviceInfo, error)
	deviceOptions          []Option
	autoDetect             bool
	connectionRetries      int
}

// WithAutoDetection enables automatic device detection instead of using a specific path
func WithAutoDetection() ConnectOption {
	return func(c *connectConfig) error {
		c.autoDetect = true
		return nil
	}
}

// WithDeviceOptions adds device-level options
func WithDeviceOptions(opts ...Option) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceOptions = append(c.deviceOptions, opts...)
		return nil
	}
}

// WithTransportFactory sets the transport factory function
func WithTransportFactory(factory TransportFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportFactory = factory
		return nil
	}
}

// WithTransportFromDeviceFactory sets the transport from device factory function
func WithTransportFromDeviceFactory(factory TransportFromDeviceFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportDeviceFactory = factory
		return nil
	}
}

// WithConnectionRetries sets the number of Setup attempts
func WithConnectionRetries(maxAttempts int) ConnectOption {
	return func(c *connectConfig) error {
		if maxAttempts < 1 {
			return fmt.Errorf("connection retries must be at least 1, got %d", maxAttempts)
		}
		c.connectionRetries = maxAttempts
		return nil
	}
}

// WithDeviceDetector sets a custom device detector function for auto-detection
func WithDeviceDetector(detector func(context.Context, *detection.Options) ([]detection.DeviceInfo, error)) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceDetector = detector
		return nil
	}
}

// ConnectDevice opens a transport for path (or the first detected sensor
// with WithAutoDetection), creates the Device and runs Setup.
//
// Example usage:
//
//	device, err := ld2402.ConnectDevice(ctx, "/dev/ttyUSB0",
//	    ld2402.WithTransportFactory(func(p string) (ld2402.Transport, error) {
//	        return uart.New(p)
//	    }))
func ConnectDevice(ctx context.Context, path string, opts ...ConnectOption) (*Device, error) {
	config := &connectConfig{connectionRetries: DefaultConnectionRetries}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply connect option: %w", err)
		}
	}

	var transport Transport
	var err error
	if config.autoDetect || path == "" {
		transport, err = createAutoDetectedTransport(ctx, config.transportDeviceFactory, config.deviceDetector)
	} else {
		transport, err = createManualTransport(path, config.transportFactory)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	device, err := New(transport, config.deviceOptions...)
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	retryConfig := &RetryConfig{
		MaxAttempts:       config.connectionRetries,
		InitialBackoff:    ConnectionInitialBackoff,
		MaxBackoff:        ConnectionMaxBackoff,
		BackoffMultiplier: ConnectionBackoffMultiplier,
		Jitter:            ConnectionJitter,
		RetryTimeout:      ConnectionRetryTimeout,
		Sleep:             schedulerSleep(device.scheduler),
	}
	err = RetryWithConfig(ctx, retryConfig, func() error {
		return device.Setup(ctx)
	})
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("failed to set up device after %d attempts: %w", config.connectionRetries, err)
	}
	return device, nil
}

// createManualTransport handles creation of transport for a specific path
func createManualTransport(path string, factory TransportFactory) (Transport, error) {
	if factory == nil {
		return nil, errors.New("transport factory not provided")
	}

	transport, err := factory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for path %s: %w", path, err)
	}
	return transport, nil
}

// createAutoDetectedTransport opens the first detected sensor
func createAutoDetectedTransport(
	ctx context.Context,
	factory TransportFromDeviceFactory,
	detector func(context.Context, *detection.Options) ([]detection.DeviceInfo, error),
) (Transport, error) {
	opts := detection.DefaultOptions()

	var devices []detection.DeviceInfo
	var err error
	if detector != nil {
		devices, err = detector(ctx, &opts)
	} else {
		devices, err = detection.DetectAll(ctx, &opts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to detect devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: no LD2402 serial adapters found", ErrDeviceNotFound)
	}
	if factory == nil {
		return nil, errors.New("transport device factory not provided")
	}
	return factory(devices[0])
}
