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
	"path/filepath"
	"strings"

	"go.bug.st/serial/enumerator"
)

// listPorts is swapped out in tests.
var listPorts = enumerator.GetDetailedPortsList

// getSerialPorts lists serial ports with whatever USB metadata the platform
// exposes, plus on-board UARTs the enumerator may miss.
func getSerialPorts(ctx context.Context) ([]serialPort, error) {
	details, listErr := listPorts()

	seen := make(map[string]bool)
	var ports []serialPort
	for _, d := range details {
		if d == nil || d.Name == "" || seen[d.Name] {
			continue
		}
		seen[d.Name] = true
		ports = append(ports, portFromDetails(d))
	}

	extra, err := platformPorts(ctx)
	if err == nil {
		for _, p := range extra {
			if !seen[p.Path] {
				seen[p.Path] = true
				ports = append(ports, p)
			}
		}
	}

	if len(ports) == 0 && listErr != nil {
		return nil, fmt.Errorf("list serial ports: %w", listErr)
	}
	return ports, nil
}

func portFromDetails(d *enumerator.PortDetails) serialPort {
	port := serialPort{
		Path: d.Name,
		Name: filepath.Base(d.Name),
	}
	if d.IsUSB {
		if d.VID != "" && d.PID != "" {
			port.VIDPID = strings.ToUpper(d.VID + ":" + d.PID)
		}
		port.Product = d.Product
		port.SerialNumber = d.SerialNumber
	}
	enrichPort(&port)
	return port
}
