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
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// DefaultBlocklist returns USB devices that expose a serial port but must
// never be opened during detection. Opening a debug probe's virtual COM
// port can reset the attached target.
// Format: VID:PID in hexadecimal (case-insensitive).
func DefaultBlocklist() []string {
	return []string{
		"1D50:6018", // Black Magic Probe GDB server
		"0483:374B", // ST-LINK/V2-1 virtual COM port
		"0483:374E", // STLINK-V3
		"1366:0105", // SEGGER J-Link CDC
	}
}

// NormalizeBlocklist converts user supplied entries in any format accepted
// by ParseVIDPID to canonical "VVVV:PPPP" form, dropping unparseable ones.
func NormalizeBlocklist(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if vidpid := ParseVIDPID(e); vidpid != "" {
			out = append(out, vidpid)
		}
	}
	return out
}

// IsBlocked reports whether vidpid is on the blocklist. Both sides are
// compared in canonical form.
func IsBlocked(vidpid string, blocklist []string) bool {
	want := ParseVIDPID(vidpid)
	if want == "" {
		return false
	}
	return slices.ContainsFunc(blocklist, func(entry string) bool {
		return ParseVIDPID(entry) == want
	})
}

var (
	// "VID:1A86 PID:7523", "VID_1A86&PID_7523" (Windows hardware IDs),
	// "vendor=1a86 product=7523"
	vidPattern = regexp.MustCompile(`(?:VID[:_=]|VENDOR=)\s*([0-9A-F]{1,4})`)
	pidPattern = regexp.MustCompile(`(?:PID[:_=]|PRODUCT=)\s*([0-9A-F]{1,4})`)
	// bare "1a86:7523"
	pairPattern = regexp.MustCompile(`^([0-9A-F]{1,4}):([0-9A-F]{1,4})$`)
)

// ParseVIDPID extracts a canonical "VVVV:PPPP" pair from a USB descriptor
// or user supplied entry. It returns "" when no pair is found.
func ParseVIDPID(descriptor string) string {
	descriptor = strings.ToUpper(strings.TrimSpace(descriptor))

	vid := vidPattern.FindStringSubmatch(descriptor)
	pid := pidPattern.FindStringSubmatch(descriptor)
	if vid != nil && pid != nil {
		return padID(vid[1]) + ":" + padID(pid[1])
	}
	if m := pairPattern.FindStringSubmatch(descriptor); m != nil {
		return padID(m[1]) + ":" + padID(m[2])
	}
	return ""
}

func padID(id string) string {
	return strings.Repeat("0", 4-len(id)) + id
}

// IsPathIgnored reports whether devicePath matches one of ignorePaths.
// Paths are cleaned and compared case-insensitively so "COM3" matches
// "com3" and "/dev/../dev/ttyUSB0" matches "/dev/ttyUSB0".
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	device := normalizedPath(devicePath)
	return slices.ContainsFunc(ignorePaths, func(p string) bool {
		return p != "" && normalizedPath(p) == device
	})
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
