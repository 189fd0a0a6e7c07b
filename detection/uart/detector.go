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

package uart

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ZaparooProject/go-ld2402"
	"github.com/ZaparooProject/go-ld2402/detection"
	"github.com/ZaparooProject/go-ld2402/transport/uart"
)

// probeInterval is the host tick used while probing a port.
const probeInterval = 10 * time.Millisecond

// serialPort is one enumerated port and its USB identity, when known.
type serialPort struct {
	Path         string
	Name         string
	VIDPID       string
	Manufacturer string
	Product      string
	SerialNumber string
}

// metadata returns the non-empty identity fields keyed as in DeviceInfo.Metadata.
func (p *serialPort) metadata() map[string]string {
	md := make(map[string]string, 4)
	for key, val := range map[string]string{
		"vidpid":       p.VIDPID,
		"manufacturer": p.Manufacturer,
		"product":      p.Product,
		"serial":       p.SerialNumber,
	} {
		if val != "" {
			md[key] = val
		}
	}
	return md
}

var (
	// sensorBridges are the USB-UART chips found on LD2402 carrier boards
	// and evaluation kits.
	sensorBridges = []string{
		"1A86:7523", // QinHeng CH340
		"1A86:55D4", // QinHeng CH9102
		"10C4:EA60", // Silicon Labs CP210x
		"0403:6001", // FTDI FT232R
		"067B:2303", // Prolific PL2303
	}
	sensorKeywords = []string{"ld2402", "hlk", "hi-link", "radar", "mmwave"}

	// serialNames are device names of bridges and on-board UARTs a sensor
	// is commonly wired to.
	serialNames = []string{
		"usbserial",      // macOS FTDI and similar
		"wchusbserial",   // macOS CH34x
		"slab_usbtouart", // macOS CP210x
		"ttyusb",
		"ttyama", // Raspberry Pi PL011
		"serial0",
		"ttyths", // Jetson
	}
	bridgeVendors = []string{"qinheng", "wch", "silicon labs", "ftdi", "prolific"}
)

func containsAny(s string, needles []string) bool {
	s = strings.ToLower(s)
	return slices.ContainsFunc(needles, func(n string) bool { return strings.Contains(s, n) })
}

// isLikelyLD2402 reports whether the USB identity points at a sensor board.
func isLikelyLD2402(port *serialPort) bool {
	if slices.Contains(sensorBridges, strings.ToUpper(port.VIDPID)) {
		return true
	}
	return containsAny(port.Product, sensorKeywords) || containsAny(port.Manufacturer, sensorKeywords)
}

// isSerialCandidate reports whether the port looks like a UART at all.
func isSerialCandidate(port *serialPort) bool {
	return containsAny(port.Name, serialNames) ||
		containsAny(port.Path, serialNames) ||
		containsAny(port.Manufacturer, bridgeVendors)
}

type detector struct{}

// New returns the serial port detector.
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

func (*detector) Transport() string {
	return "uart"
}

// Detect lists serial ports and reports the ones that hold, or in passive
// mode plausibly hold, a sensor.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := getSerialPorts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, port := range d.filterPorts(ports, opts) {
		if ctx.Err() != nil {
			break
		}
		if info, ok := d.processPort(ctx, &port, opts); ok {
			devices = append(devices, info)
		}
	}
	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// filterPorts keeps ports that are neither blocked nor ignored and that
// look like a UART or a sensor.
func (*detector) filterPorts(ports []serialPort, opts *detection.Options) []serialPort {
	var kept []serialPort
	for _, port := range ports {
		switch {
		case port.VIDPID != "" && detection.IsBlocked(port.VIDPID, opts.Blocklist):
		case detection.IsPathIgnored(port.Path, opts.IgnorePaths):
		case isSerialCandidate(&port) || isLikelyLD2402(&port):
			kept = append(kept, port)
		}
	}
	return kept
}

// processPort rates one port. Passive mode reports identity matches at
// medium confidence without opening anything. Safe and full modes probe
// every port and keep only those that answer, at high confidence: a
// bridge chip alone proves nothing once the port can be opened.
func (*detector) processPort(ctx context.Context, port *serialPort, opts *detection.Options) (detection.DeviceInfo, bool) {
	info := detection.DeviceInfo{
		Transport:  "uart",
		Path:       port.Path,
		Name:       port.Name,
		Confidence: detection.Low,
		Metadata:   port.metadata(),
	}

	switch opts.Mode {
	case detection.Passive:
		if !isLikelyLD2402(port) {
			return detection.DeviceInfo{}, false
		}
		info.Confidence = detection.Medium
		return info, true
	case detection.Safe, detection.Full:
		if !probeDeviceFn(ctx, port.Path, opts) {
			return detection.DeviceInfo{}, false
		}
		info.Confidence = detection.High
		return info, true
	default:
		return detection.DeviceInfo{}, false
	}
}

var (
	probeDeviceFn = probeDevice
	openTransport = func(path string, baud int) (ld2402.Transport, error) {
		return uart.New(path, uart.WithBaudRate(baud))
	}
)

// probeDevice opens path and probes it once. Ports are not retried: most
// of them are not sensors, and the chosen port gets retries at connect time.
func probeDevice(ctx context.Context, path string, opts *detection.Options) bool {
	transport, err := openTransport(path, opts.BaudRate)
	if err != nil {
		ld2402.Debugf("probe %s: open failed: %v", path, err)
		return false
	}
	defer func() { _ = transport.Close() }()

	probeCtx, cancel := context.WithTimeout(ctx, opts.ProbeTimeout)
	defer cancel()
	return probeTransport(probeCtx, transport, opts.Mode)
}

// probeTransport decides whether a sensor is on the other end. Safe mode
// only listens, since a running LD2402 prints a distance or OFF line
// several times a second. Full mode asks for the firmware version, which
// also finds sensors configured to stay quiet.
func probeTransport(ctx context.Context, transport ld2402.Transport, mode detection.Mode) bool {
	heard := false
	device, err := ld2402.New(transport,
		ld2402.WithScheduler(ld2402.NewSystemScheduler(probeInterval)),
		ld2402.WithReadingHandler(func(ld2402.Reading) { heard = true }),
	)
	if err != nil {
		return false
	}

	switch mode {
	case detection.Safe:
		for ctx.Err() == nil {
			if device.Loop(ctx) != nil {
				return false
			}
			if heard {
				return true
			}
			device.Scheduler().Yield()
		}
		return false
	case detection.Full:
		if _, err := device.ReadFirmwareVersion(ctx); err != nil {
			ld2402.Debugf("probe: firmware query failed: %v", err)
			return false
		}
		return true
	default:
		return false
	}
}
