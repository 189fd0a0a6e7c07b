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
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlatformTiming(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		assert.Equal(t, 100*time.Millisecond, defaultReadTimeout())
		assert.Equal(t, 15*time.Millisecond, writeSettle())
		return
	}
	assert.Equal(t, 50*time.Millisecond, defaultReadTimeout())
	assert.Zero(t, writeSettle())
}

func TestOptions(t *testing.T) {
	t.Parallel()

	defaults := options{baudRate: DefaultBaudRate, readTimeout: defaultReadTimeout()}

	o := defaults
	WithBaudRate(0)(&o)
	WithBaudRate(-9600)(&o)
	WithReadTimeout(-time.Second)(&o)
	WithReadTimeout(0)(&o)
	assert.Equal(t, defaults, o, "non-positive values keep defaults")

	WithBaudRate(9600)(&o)
	WithReadTimeout(10 * time.Millisecond)(&o)
	assert.Equal(t, options{baudRate: 9600, readTimeout: 10 * time.Millisecond}, o)
}
