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

//nolint:paralleltest // Tests swap package-level hooks
package uart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ZaparooProject/go-ld2402"
	"github.com/ZaparooProject/go-ld2402/detection"
	virt "github.com/ZaparooProject/go-ld2402/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
)

// simTransport adapts the simulator transport to ld2402.Transport.
type simTransport struct {
	*virt.SimulatorTransport
}

func (simTransport) Type() ld2402.TransportType {
	return ld2402.TransportMock
}

func stubProbe(t *testing.T, result bool) *int {
	t.Helper()
	calls := 0
	orig := probeDeviceFn
	probeDeviceFn = func(context.Context, string, *detection.Options) bool {
		calls++
		return result
	}
	t.Cleanup(func() { probeDeviceFn = orig })
	return &calls
}

func TestProcessPort_SafeMode_FailedProbeDiscardsLikelyDevice(t *testing.T) {
	// A CH340 is on half the hobby boards in a drawer; once the port has
	// been opened, only an answering sensor counts.
	stubProbe(t, false)

	det := &detector{}
	port := &serialPort{Path: "/dev/ttyUSB0", Name: "ttyUSB0", VIDPID: "1A86:7523"}
	opts := &detection.Options{Mode: detection.Safe}

	_, included := det.processPort(context.Background(), port, opts)
	assert.False(t, included)
}

func TestProcessPort_SafeMode_SuccessfulProbeReturnsDevice(t *testing.T) {
	calls := stubProbe(t, true)

	det := &detector{}
	port := &serialPort{
		Path:         "/dev/ttyUSB0",
		Name:         "ttyUSB0",
		VIDPID:       "1A86:7523",
		Manufacturer: "QinHeng Electronics",
		SerialNumber: "5A3C",
	}
	opts := &detection.Options{Mode: detection.Safe}

	device, included := det.processPort(context.Background(), port, opts)
	require.True(t, included)
	assert.Equal(t, 1, *calls)
	assert.Equal(t, detection.High, device.Confidence)
	assert.Equal(t, "uart", device.Transport)
	assert.Equal(t, "1A86:7523", device.Metadata["vidpid"])
	assert.Equal(t, "QinHeng Electronics", device.Metadata["manufacturer"])
	assert.Equal(t, "5A3C", device.Metadata["serial"])
}

func TestProcessPort_PassiveMode(t *testing.T) {
	calls := stubProbe(t, true)
	det := &detector{}
	opts := &detection.Options{Mode: detection.Passive}

	device, included := det.processPort(context.Background(),
		&serialPort{Path: "/dev/ttyUSB0", VIDPID: "10C4:EA60"}, opts)
	require.True(t, included)
	assert.Equal(t, detection.Medium, device.Confidence)

	_, included = det.processPort(context.Background(),
		&serialPort{Path: "/dev/ttyAMA0", Name: "ttyAMA0"}, opts)
	assert.False(t, included, "passive mode cannot vouch for an unidentified UART")
	assert.Zero(t, *calls)
}

func TestFilterPorts(t *testing.T) {
	det := &detector{}
	ports := []serialPort{
		{Path: "/dev/ttyUSB0", Name: "ttyUSB0", VIDPID: "1A86:7523"},
		{Path: "/dev/ttyACM0", Name: "ttyACM0", VIDPID: "1D50:6018"},
		{Path: "/dev/ttyUSB1", Name: "ttyUSB1", VIDPID: "0403:6001"},
		{Path: "/dev/ttyAMA0", Name: "ttyAMA0"},
		{Path: "/dev/ttyS0", Name: "ttyS0"},
		{Path: "/dev/ttyACM1", Name: "ttyACM1", Manufacturer: "Silicon Labs"},
	}
	opts := &detection.Options{
		Blocklist:   detection.DefaultBlocklist(),
		IgnorePaths: []string{"/dev/ttyUSB1"},
	}

	var paths []string
	for _, p := range det.filterPorts(ports, opts) {
		paths = append(paths, p.Path)
	}
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyAMA0", "/dev/ttyACM1"}, paths)
}

func TestIsLikelyLD2402(t *testing.T) {
	tests := []struct {
		name string
		port serialPort
		want bool
	}{
		{"CH340", serialPort{VIDPID: "1a86:7523"}, true},
		{"CH9102", serialPort{VIDPID: "1A86:55D4"}, true},
		{"CP2102", serialPort{VIDPID: "10C4:EA60"}, true},
		{"ProductName", serialPort{Product: "HLK-LD2402 Radar"}, true},
		{"Unknown", serialPort{VIDPID: "2341:0043", Product: "Arduino Uno"}, false},
		{"Empty", serialPort{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isLikelyLD2402(&tt.port))
		})
	}
}

func TestDetect(t *testing.T) {
	origList := listPorts
	t.Cleanup(func() { listPorts = origList })
	stubProbe(t, true)

	listPorts = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1a86", PID: "7523", SerialNumber: "A1"},
			{Name: "/dev/ttyUSB0"},
			{Name: "/dev/ttyACM0", IsUSB: true, VID: "1d50", PID: "6018"},
			nil,
		}, nil
	}

	opts := detection.DefaultOptions()
	devices, err := New().Detect(context.Background(), &opts)
	require.NoError(t, err)
	require.NotEmpty(t, devices)
	assert.Equal(t, "/dev/ttyUSB0", devices[0].Path)
	assert.Equal(t, "1A86:7523", devices[0].Metadata["vidpid"])
	for _, d := range devices {
		assert.NotEqual(t, "/dev/ttyACM0", d.Path, "blocked debug probe must not be returned")
	}
}

func TestDetect_EnumerationError(t *testing.T) {
	origList := listPorts
	t.Cleanup(func() { listPorts = origList })
	errList := errors.New("enumeration unsupported")
	listPorts = func() ([]*enumerator.PortDetails, error) { return nil, errList }

	ports, err := getSerialPorts(context.Background())
	if len(ports) > 0 {
		// On-board UARTs of the test host are still listed.
		require.NoError(t, err)
		return
	}
	require.ErrorIs(t, err, errList)
}

func TestProbeTransport(t *testing.T) {
	tests := []struct {
		setup func(*virt.VirtualLD2402)
		name  string
		mode  detection.Mode
		want  bool
	}{
		{
			name:  "SafeHearsDistance",
			mode:  detection.Safe,
			setup: func(sim *virt.VirtualLD2402) { sim.EmitDistance(120) },
			want:  true,
		},
		{
			name:  "SafeHearsOff",
			mode:  detection.Safe,
			setup: func(sim *virt.VirtualLD2402) { sim.EmitOff() },
			want:  true,
		},
		{
			name:  "SafeIgnoresNoise",
			mode:  detection.Safe,
			setup: func(sim *virt.VirtualLD2402) { sim.EmitLine("AT+OK") },
			want:  false,
		},
		{
			name: "FullQueriesFirmware",
			mode: detection.Full,
			want: true,
		},
		{
			name:  "FullSilentDevice",
			mode:  detection.Full,
			setup: func(sim *virt.VirtualLD2402) { sim.DropResponses(1000) },
			want:  false,
		},
		{
			name: "PassiveNeverProbes",
			mode: detection.Passive,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := virt.NewVirtualLD2402()
			if tt.setup != nil {
				tt.setup(sim)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
			defer cancel()

			got := probeTransport(ctx, simTransport{virt.NewSimulatorTransport(sim)}, tt.mode)
			assert.Equal(t, tt.want, got)
			assert.False(t, sim.GetState().ConfigMode, "probe must not leave a configuration session open")
		})
	}
}

func TestProbeDevice_OpenFailure(t *testing.T) {
	orig := openTransport
	t.Cleanup(func() { openTransport = orig })
	openTransport = func(string, int) (ld2402.Transport, error) {
		return nil, errors.New("permission denied")
	}

	opts := detection.DefaultOptions()
	assert.False(t, probeDevice(context.Background(), "/dev/ttyUSB0", &opts))
}

func TestProbeDevice_ClosesTransport(t *testing.T) {
	sim := virt.NewVirtualLD2402()
	sim.EmitDistance(80)
	st := virt.NewSimulatorTransport(sim)

	orig := openTransport
	t.Cleanup(func() { openTransport = orig })
	var gotBaud int
	openTransport = func(_ string, baud int) (ld2402.Transport, error) {
		gotBaud = baud
		return simTransport{st}, nil
	}

	opts := detection.DefaultOptions()
	opts.BaudRate = 256000
	assert.True(t, probeDevice(context.Background(), "/dev/ttyUSB0", &opts))
	assert.Equal(t, 256000, gotBaud)
	assert.False(t, st.IsConnected())
}
