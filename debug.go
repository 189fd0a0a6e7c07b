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
	"io"
	"os"
	"time"

	"github.com/ZaparooProject/go-ld2402/internal/syncutil"
)

// traceStamp is the clock format prefixed to session log lines.
const traceStamp = "15:04:05.000"

// debugLog fans driver trace messages out to the session log, an optional
// sink and the console.
type debugLog struct {
	session io.Writer // nil when no session log is open
	sink    func(msg string)
	file    *os.File
	path    string
	mu      syncutil.Mutex
	console bool
}

var driverLog = &debugLog{
	console: os.Getenv("LD2402_DEBUG") != "" || os.Getenv("DEBUG") != "",
}

func (l *debugLog) emit(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.session != nil {
		_, _ = fmt.Fprintf(l.session, "%s DEBUG: %s\n", time.Now().Format(traceStamp), msg)
	}
	switch {
	case l.sink != nil:
		l.sink(msg)
	case l.console:
		_, _ = fmt.Fprintln(os.Stdout, "DEBUG:", msg)
	}
}

// Debugf logs a formatted trace message. Messages always reach an open
// session log; the console only sees them while debug output is enabled.
func Debugf(format string, args ...any) {
	driverLog.emit(fmt.Sprintf(format, args...))
}

// Debugln is Debugf with fmt.Sprint formatting.
func Debugln(args ...any) {
	driverLog.emit(fmt.Sprint(args...))
}

// SetDebugEnabled toggles console trace output.
func SetDebugEnabled(enabled bool) {
	driverLog.mu.Lock()
	driverLog.console = enabled
	driverLog.mu.Unlock()
}

// SetDebugSink routes trace messages to fn instead of the console.
// A nil fn restores console output.
func SetDebugSink(fn func(msg string)) {
	driverLog.mu.Lock()
	driverLog.sink = fn
	driverLog.mu.Unlock()
}
