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

package detection

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Mode is how intrusive detection may be.
type Mode int

const (
	// Passive only looks at USB descriptors and never opens a port.
	Passive Mode = iota
	// Safe opens ports and listens for the sensor's own output without
	// sending anything.
	Safe
	// Full also sends a firmware version query.
	Full
)

var modeNames = [...]string{Passive: "passive", Safe: "safe", Full: "full"}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode is the inverse of Mode.String, ignoring case.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if strings.EqualFold(s, name) {
			return Mode(m), nil
		}
	}
	return Passive, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Confidence rates how sure a detector is that a port holds a sensor.
type Confidence int

const (
	// Low is an unrecognised serial port.
	Low Confidence = iota
	// Medium is a USB-UART bridge of the kind LD2402 boards carry.
	Medium
	// High means the sensor answered or streamed recognisable output.
	High
)

func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// DeviceInfo describes one detected sensor.
type DeviceInfo struct {
	// Metadata holds the USB identity: vidpid, manufacturer, product, serial.
	Metadata   map[string]string
	Transport  string
	Path       string // e.g. /dev/ttyUSB0 or COM3
	Name       string
	Confidence Confidence
}

func (d DeviceInfo) String() string {
	where := d.Path
	if vidpid := d.Metadata["vidpid"]; vidpid != "" {
		where += " [" + vidpid + "]"
	}
	return fmt.Sprintf("%s device at %s (confidence: %s)", d.Transport, where, d.Confidence)
}

// Options controls a detection run.
type Options struct {
	// Blocklist holds VID:PID pairs to skip, e.g. "1D50:6018".
	Blocklist []string
	// IgnorePaths holds ports to skip, e.g. "/dev/ttyUSB0" or "COM2".
	IgnorePaths []string
	// Transports limits detection to these detectors. Empty means all.
	Transports []string
	CacheTTL   time.Duration
	// Timeout bounds the whole run.
	Timeout time.Duration
	// ProbeTimeout bounds the listen or query on each port.
	ProbeTimeout time.Duration
	BaudRate     int
	Mode         Mode
	EnableCache  bool
}

// DefaultOptions returns safe-mode detection at 115200 baud with caching
// and the default blocklist.
func DefaultOptions() Options {
	return Options{
		Mode:         Safe,
		Timeout:      5 * time.Second,
		ProbeTimeout: 1500 * time.Millisecond,
		BaudRate:     115200,
		Blocklist:    DefaultBlocklist(),
		EnableCache:  true,
		CacheTTL:     30 * time.Second,
	}
}

// Detector interface for transport-specific device detection
type Detector interface {
	// Detect searches for devices using the given options
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
	// Transport returns the transport type this detector handles
	Transport() string
}

// Errors
var (
	// ErrNoDevicesFound indicates no LD2402 sensors were detected
	ErrNoDevicesFound = errors.New("no LD2402 sensors found")
	// ErrDetectionTimeout indicates detection timed out
	ErrDetectionTimeout = errors.New("detection timeout")
	// ErrUnsupportedPlatform indicates the platform doesn't support this detection method
	ErrUnsupportedPlatform = errors.New("platform not supported")
	// ErrUnknownMode is returned by ParseMode.
	ErrUnknownMode = errors.New("unknown detection mode")
)

var (
	registryMu sync.Mutex
	registry   []Detector
)

// RegisterDetector adds a detector. Transport packages call it from init.
func RegisterDetector(d Detector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, d)
}

// getDetectors returns the registered detectors for transports, or all of
// them when transports is empty.
func getDetectors(transports []string) []Detector {
	registryMu.Lock()
	defer registryMu.Unlock()
	if len(transports) == 0 {
		return slices.Clone(registry)
	}
	var out []Detector
	for _, d := range registry {
		if slices.Contains(transports, d.Transport()) {
			out = append(out, d)
		}
	}
	return out
}

// DetectAll runs every registered detector concurrently and returns what
// they found, highest confidence first. Devices are returned even when
// some detectors fail; the first failure is reported only when nothing
// was found.
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	detectors := getDetectors(opts.Transports)
	if len(detectors) == 0 {
		return nil, errors.New("no detectors available for specified transports")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	type result struct {
		err     error
		devices []DeviceInfo
	}
	results := make([]result, len(detectors))
	var wg sync.WaitGroup
	for i, d := range detectors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i].devices, results[i].err = detectCached(ctx, d, opts)
		}()
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		return nil, ErrDetectionTimeout
	}

	var found []DeviceInfo
	var firstErr error
	for _, r := range results {
		found = append(found, r.devices...)
		if firstErr == nil {
			firstErr = r.err
		}
	}
	switch {
	case len(found) > 0:
		slices.SortStableFunc(found, func(a, b DeviceInfo) int {
			return cmp.Compare(b.Confidence, a.Confidence)
		})
		return found, nil
	case ctx.Err() != nil:
		// A probe that gave up at the deadline reports the context error.
		return nil, ErrDetectionTimeout
	case firstErr != nil:
		return nil, firstErr
	default:
		return nil, ErrNoDevicesFound
	}
}

// detectCached consults the cache before running d. Cached entries are
// filtered again because the options may have changed since they were
// stored.
func detectCached(ctx context.Context, d Detector, opts *Options) ([]DeviceInfo, error) {
	if opts.EnableCache {
		if cached, ok := getCached(d.Transport(), opts.Mode, opts.CacheTTL); ok {
			return filterDevices(cached, opts), nil
		}
	}

	devices, err := d.Detect(ctx, opts)
	if err != nil && !errors.Is(err, ErrNoDevicesFound) {
		return nil, err
	}
	if opts.EnableCache {
		if len(devices) > 0 {
			setCached(d.Transport(), opts.Mode, devices)
		} else {
			// An unplugged sensor must not be served from the cache.
			clearCacheForTransport(d.Transport())
		}
	}
	return devices, nil
}

// filterDevices drops ignored paths and blocked adapters.
func filterDevices(devices []DeviceInfo, opts *Options) []DeviceInfo {
	return slices.DeleteFunc(slices.Clone(devices), func(d DeviceInfo) bool {
		if IsPathIgnored(d.Path, opts.IgnorePaths) {
			return true
		}
		vidpid, ok := d.Metadata["vidpid"]
		return ok && IsBlocked(vidpid, opts.Blocklist)
	})
}

// ClearDetectionCache removes all cached detection results
func ClearDetectionCache() {
	clearCache()
}

// ClearDetectionCacheForTransport removes cached results for a specific transport
func ClearDetectionCacheForTransport(transport string) {
	clearCacheForTransport(transport)
}
