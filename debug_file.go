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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// InitSessionLog opens ld2402_<timestamp>.log in dir (the working directory
// when dir is empty) and starts copying every trace message into it,
// whether or not console output is enabled. A previously open session log
// is closed first. It returns the file's path.
func InitSessionLog(dir string) (string, error) {
	name := filepath.Join(dir, "ld2402_"+time.Now().Format("20060102_150405")+".log")
	f, err := os.Create(name) //nolint:gosec // name is built from a timestamp
	if err != nil {
		return "", fmt.Errorf("create session log: %w", err)
	}
	writeSessionBanner(f)

	driverLog.mu.Lock()
	prev := driverLog.file
	driverLog.file = f
	driverLog.path = name
	driverLog.session = f
	driverLog.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return name, nil
}

// CloseSessionLog writes a closing marker and closes the session log.
// It is a no-op when none is open.
func CloseSessionLog() error {
	driverLog.mu.Lock()
	f := driverLog.file
	if f == nil {
		driverLog.mu.Unlock()
		return nil
	}
	_, _ = fmt.Fprintf(f, "\n%s --- end of session ---\n", time.Now().Format(traceStamp))
	driverLog.file = nil
	driverLog.path = ""
	driverLog.session = nil
	driverLog.mu.Unlock()

	if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("close session log: %w", err)
	}
	return nil
}

// GetSessionLogPath returns the open session log's path, or "".
func GetSessionLogPath() string {
	driverLog.mu.Lock()
	defer driverLog.mu.Unlock()
	return driverLog.path
}

func writeSessionBanner(w io.Writer) {
	exe, _ := os.Executable()
	_, _ = fmt.Fprintf(w, "# ld2402 session log\n# started  %s\n# pid      %d\n# platform %s/%s (%s)\n",
		time.Now().Format(time.RFC3339), os.Getpid(), runtime.GOOS, runtime.GOARCH, runtime.Version())
	if exe != "" {
		_, _ = fmt.Fprintf(w, "# binary   %s\n", exe)
	}
	_, _ = fmt.Fprintf(w, "# args     %q\n\n", os.Args[1:])
}
