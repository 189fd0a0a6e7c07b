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

// Package config loads the ld2402 command's YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ZaparooProject/go-ld2402"
	"github.com/ZaparooProject/go-ld2402/polling"
	"github.com/ZaparooProject/go-ld2402/publish/mqtt"
	"github.com/ZaparooProject/go-ld2402/transport/uart"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// SerialConfig selects the UART.
type SerialConfig struct {
	// Port is the serial device. Empty means auto-detect.
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// MQTTConfig enables publication when Broker is set.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	Retain      bool   `yaml:"retain"`
}

// SensorConfig holds the values written to the sensor during setup and the
// host-side publication policy.
type SensorConfig struct {
	// MaxDistance in metres. Zero leaves the sensor's value alone.
	MaxDistance float64 `yaml:"max_distance"`
	// Timeout in seconds. Negative leaves the sensor's value alone.
	Timeout            int           `yaml:"timeout"`
	DistanceThrottle   time.Duration `yaml:"distance_throttle"`
	StaticRange        float64       `yaml:"static_range"`
	MicromovementRange float64       `yaml:"micromovement_range"`
}

// HostConfig tunes the host loop.
type HostConfig struct {
	TickInterval   time.Duration `yaml:"tick_interval"`
	VacancyDelay   time.Duration `yaml:"vacancy_delay"`
	SilenceTimeout time.Duration `yaml:"silence_timeout"`
}

// Config is the whole file.
type Config struct {
	Serial SerialConfig `yaml:"serial"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	Sensor SensorConfig `yaml:"sensor"`
	Host   HostConfig   `yaml:"host"`
	// OutPin is the periph GPIO name wired to the OUT pin, e.g. GPIO17.
	OutPin string `yaml:"out_pin"`
	Debug  bool   `yaml:"debug"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	mq := mqtt.DefaultConfig()
	host := polling.DefaultConfig()
	return &Config{
		Serial: SerialConfig{BaudRate: uart.DefaultBaudRate},
		MQTT: MQTTConfig{
			ClientID:    mq.ClientID,
			TopicPrefix: mq.TopicPrefix,
			Retain:      mq.Retain,
		},
		Sensor: SensorConfig{
			Timeout:            -1,
			DistanceThrottle:   ld2402.DefaultDistanceThrottle,
			StaticRange:        ld2402.DefaultStaticRangeMeters,
			MicromovementRange: ld2402.DefaultMicromovementRangeMeters,
		},
		Host: HostConfig{
			TickInterval:   host.TickInterval,
			VacancyDelay:   host.VacancyDelay,
			SilenceTimeout: host.SilenceTimeout,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := cfg.decode(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse reads YAML from data over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if len(data) == 0 {
		return cfg, nil
	}
	if err := cfg.decode(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return c.Validate()
}

// Validate checks the ranges the sensor and the libraries accept.
func (c *Config) Validate() error {
	var errs []error
	if c.Serial.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("%w: serial.baud_rate %d", ErrInvalid, c.Serial.BaudRate))
	}
	if d := c.Sensor.MaxDistance; d != 0 && (d < ld2402.MinMaxDistanceMeters || d > ld2402.MaxMaxDistanceMeters) {
		errs = append(errs, fmt.Errorf("%w: sensor.max_distance %.1f outside %.1f-%.1f m",
			ErrInvalid, d, ld2402.MinMaxDistanceMeters, ld2402.MaxMaxDistanceMeters))
	}
	if c.Sensor.Timeout > ld2402.MaxTimeoutSeconds {
		errs = append(errs, fmt.Errorf("%w: sensor.timeout %d above %d s",
			ErrInvalid, c.Sensor.Timeout, ld2402.MaxTimeoutSeconds))
	}
	if c.Sensor.DistanceThrottle < 0 {
		errs = append(errs, fmt.Errorf("%w: sensor.distance_throttle is negative", ErrInvalid))
	}
	if c.Sensor.StaticRange < 0 || c.Sensor.MicromovementRange < 0 {
		errs = append(errs, fmt.Errorf("%w: sensor ranges must not be negative", ErrInvalid))
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("%w: mqtt.qos %d", ErrInvalid, c.MQTT.QoS))
	}
	if c.Host.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: host.tick_interval must be positive", ErrInvalid))
	}
	return errors.Join(errs...)
}

// DeviceOptions translates the sensor section into driver options.
func (c *Config) DeviceOptions() []ld2402.Option {
	opts := []ld2402.Option{
		ld2402.WithDistanceThrottle(c.Sensor.DistanceThrottle),
		ld2402.WithStaticRange(c.Sensor.StaticRange),
		ld2402.WithMicromovementRange(c.Sensor.MicromovementRange),
	}
	if c.Sensor.MaxDistance > 0 {
		opts = append(opts, ld2402.WithMaxDistance(c.Sensor.MaxDistance))
	}
	if c.Sensor.Timeout >= 0 {
		opts = append(opts, ld2402.WithInactivityTimeout(c.Sensor.Timeout))
	}
	return opts
}

// PollingConfig returns the host loop settings.
func (c *Config) PollingConfig() *polling.Config {
	pc := polling.DefaultConfig()
	pc.TickInterval = c.Host.TickInterval
	pc.VacancyDelay = c.Host.VacancyDelay
	pc.SilenceTimeout = c.Host.SilenceTimeout
	return pc
}

// MQTTEnabled reports whether a broker is configured.
func (c *Config) MQTTEnabled() bool {
	return c.MQTT.Broker != ""
}

// MQTTConfig returns the broker settings.
func (c *Config) MQTTConfig() mqtt.Config {
	mc := mqtt.DefaultConfig()
	mc.Broker = c.MQTT.Broker
	mc.ClientID = c.MQTT.ClientID
	mc.Username = c.MQTT.Username
	mc.Password = c.MQTT.Password
	mc.TopicPrefix = c.MQTT.TopicPrefix
	mc.QoS = c.MQTT.QoS
	mc.Retain = c.MQTT.Retain
	return mc
}
