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
	"fmt"
	"strings"
)

// DeviceInfo is what Setup learns about the attached sensor.
type DeviceInfo struct {
	FirmwareVersion   string
	SerialNumber      string
	MaxDistanceM      float64
	TimeoutSeconds    uint32
	PowerInterference PowerInterference
}

// parseVersionString turns the byte string returned by the version query
// into text. Firmware pads the field with NULs on some builds.
func parseVersionString(value []byte) string {
	s := strings.TrimRight(string(value), "\x00 ")
	if isPrintable(s) {
		return s
	}
	return formatSerialHex(value)
}

// formatSerialHex renders a binary serial number as upper-case hex.
func formatSerialHex(value []byte) string {
	var sb strings.Builder
	for _, b := range value {
		_, _ = fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

func isPrintable(s string) bool {
	if s == "" {
		return false
	}
	for i := range len(s) {
		if s[i] < 0x20 || s[i] > 0x7E {
			return false
		}
	}
	return true
}
