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

// Package mqtt publishes LD2402 sensor values to an MQTT broker, one topic
// per sensor under a common prefix.
package mqtt

import (
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-ld2402"
	"github.com/ZaparooProject/go-ld2402/internal/syncutil"
	paho "github.com/eclipse/paho.mqtt.golang"
)

// Topic suffixes under the prefix.
const (
	TopicDistance            = "distance"
	TopicPresence            = "presence"
	TopicMovement            = "movement"
	TopicMicromovement       = "micromovement"
	TopicPowerInterference   = "power_interference"
	TopicCalibrationProgress = "calibration_progress"
	TopicFirmwareVersion     = "firmware_version"
	TopicOperatingMode       = "operating_mode"
	TopicAvailability        = "availability"
	TopicOutPin              = "out_pin"
	topicGateEnergyFmt       = "gate_energy/%02d"
)

// Binary and availability payloads.
const (
	PayloadOn      = "ON"
	PayloadOff     = "OFF"
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// ErrConnectTimeout is returned when the broker does not answer in time.
var ErrConnectTimeout = errors.New("mqtt connect timeout")

// Client is the part of paho's mqtt.Client the publisher needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload any) paho.Token
	IsConnectionOpen() bool
	Disconnect(quiesce uint)
}

// Config describes the broker connection.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	ConnectTimeout time.Duration
	QoS            byte
	Retain         bool
}

// DefaultConfig returns a local broker configuration.
func DefaultConfig() Config {
	return Config{
		Broker:         "tcp://localhost:1883",
		ClientID:       "ld2402",
		TopicPrefix:    "ld2402",
		ConnectTimeout: 10 * time.Second,
		Retain:         true,
	}
}

// clientOptions builds the paho options. The availability topic doubles as
// the last will so the broker reports a dead host as offline.
func clientOptions(cfg Config) *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetAutoReconnect(true).
		SetKeepAlive(60*time.Second).
		SetPingTimeout(10*time.Second).
		SetWill(cfg.TopicPrefix+"/"+TopicAvailability, PayloadOffline, cfg.QoS, true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	return opts
}

// Connect dials the broker and returns a publisher that has announced
// itself online.
func Connect(cfg Config) (*Publisher, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConfig().ConnectTimeout
	}
	client := paho.NewClient(clientOptions(cfg))
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("%w: %s", ErrConnectTimeout, cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	ld2402.Debugf("connected to MQTT broker %s", cfg.Broker)

	p := New(client, cfg.TopicPrefix, WithQoS(cfg.QoS), WithRetain(cfg.Retain))
	p.publish(TopicAvailability, PayloadOnline, true)
	return p, nil
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithQoS sets the publish QoS.
func WithQoS(qos byte) Option {
	return func(p *Publisher) {
		p.qos = qos
	}
}

// WithRetain sets the retained flag for sensor values.
func WithRetain(retain bool) Option {
	return func(p *Publisher) {
		p.retain = retain
	}
}

// Publisher maps sensor sinks onto MQTT topics. Publishing never blocks
// the caller: delivery failures are counted and the last one is kept.
type Publisher struct {
	client  Client
	lastErr error
	prefix  string
	mu      syncutil.Mutex
	sent    atomic.Int64
	failed  atomic.Int64
	qos     byte
	retain  bool
}

// New wraps a connected client.
func New(client Client, prefix string, opts ...Option) *Publisher {
	p := &Publisher{client: client, prefix: prefix}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Topic returns the full topic for a suffix.
func (p *Publisher) Topic(name string) string {
	if p.prefix == "" {
		return name
	}
	return p.prefix + "/" + name
}

// Sensors returns sinks for every value the driver publishes.
func (p *Publisher) Sensors() ld2402.Sensors {
	s := ld2402.Sensors{
		Distance:            p.Numeric(TopicDistance),
		Presence:            p.Binary(TopicPresence),
		Movement:            p.Binary(TopicMovement),
		Micromovement:       p.Binary(TopicMicromovement),
		PowerInterference:   p.Text(TopicPowerInterference),
		CalibrationProgress: p.Numeric(TopicCalibrationProgress),
		FirmwareVersion:     p.Text(TopicFirmwareVersion),
		OperatingMode:       p.Text(TopicOperatingMode),
	}
	for gate := range ld2402.GateCount {
		s.GateEnergy[gate] = p.Numeric(fmt.Sprintf(topicGateEnergyFmt, gate))
	}
	return s
}

// Numeric returns a sink publishing decimal values to name.
func (p *Publisher) Numeric(name string) ld2402.NumericSink {
	return ld2402.NumericFunc(func(v float64) {
		p.publish(name, strconv.FormatFloat(v, 'f', -1, 64), p.retain)
	})
}

// Binary returns a sink publishing ON/OFF to name.
func (p *Publisher) Binary(name string) ld2402.BinarySink {
	return ld2402.BinaryFunc(func(v bool) {
		payload := PayloadOff
		if v {
			payload = PayloadOn
		}
		p.publish(name, payload, p.retain)
	})
}

// Text returns a sink publishing strings to name.
func (p *Publisher) Text(name string) ld2402.TextSink {
	return ld2402.TextFunc(func(v string) {
		p.publish(name, v, p.retain)
	})
}

func (p *Publisher) publish(name, payload string, retain bool) {
	topic := p.Topic(name)
	token := p.client.Publish(topic, p.qos, retain, payload)
	p.sent.Add(1)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			p.failed.Add(1)
			p.mu.Lock()
			p.lastErr = fmt.Errorf("publish %s: %w", topic, err)
			p.mu.Unlock()
			ld2402.Debugf("Warning: MQTT publish to %s failed: %v", topic, err)
		}
	}()
}

// Stats returns how many messages were handed to the client and how many
// of them failed.
func (p *Publisher) Stats() (sent, failed int64) {
	return p.sent.Load(), p.failed.Load()
}

// Err returns the last delivery failure.
func (p *Publisher) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Close announces the host offline and disconnects.
func (p *Publisher) Close() error {
	if !p.client.IsConnectionOpen() {
		return nil
	}
	token := p.client.Publish(p.Topic(TopicAvailability), p.qos, true, PayloadOffline)
	token.WaitTimeout(time.Second)
	p.client.Disconnect(250)
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish offline: %w", err)
	}
	return nil
}
