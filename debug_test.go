//nolint:paralleltest // tests swap the package trace logger
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
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureTrace points the trace logger at a buffer with the console off and
// restores the previous logger when the test ends.
func captureTrace(t *testing.T) *bytes.Buffer {
	t.Helper()

	prev := driverLog
	buf := &bytes.Buffer{}
	driverLog = &debugLog{session: buf}
	t.Cleanup(func() {
		_ = CloseSessionLog()
		driverLog = prev
	})
	return buf
}

var traceLine = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}\.\d{3} DEBUG: `)

func TestDebugf(t *testing.T) {
	buf := captureTrace(t)

	Debugf("TX %s: % X", CmdEnterConfig, []byte{0xFD, 0xFC})
	Debugf("gate %d = %.1f dB", 3, 41.25)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Regexp(t, traceLine, lines[0])
	assert.True(t, strings.HasSuffix(lines[0], "TX EnterConfig: FD FC"))
	assert.True(t, strings.HasSuffix(lines[1], "gate 3 = 41.2 dB"))
}

func TestDebugln(t *testing.T) {
	buf := captureTrace(t)

	Debugln("calibration ", 50, "%")
	assert.Regexp(t, traceLine, buf.String())
	assert.Contains(t, buf.String(), "DEBUG: calibration 50%")
}

func TestDebug_NoSessionLog(t *testing.T) {
	captureTrace(t)
	driverLog.session = nil

	assert.NotPanics(t, func() {
		Debugf("dropped %d", 1)
		Debugln("dropped")
	})
}

func TestSetDebugEnabled(t *testing.T) {
	captureTrace(t)

	SetDebugEnabled(true)
	assert.True(t, driverLog.console)
	SetDebugEnabled(false)
	assert.False(t, driverLog.console)
}

func TestSetDebugSink(t *testing.T) {
	buf := captureTrace(t)
	SetDebugEnabled(true)

	var got []string
	SetDebugSink(func(msg string) { got = append(got, msg) })

	Debugf("TX %s: % X", CmdEnterConfig, []byte{0xFD, 0xFC})
	Debugln("auto gain complete")

	assert.Equal(t, []string{"TX EnterConfig: FD FC", "auto gain complete"}, got)
	assert.Contains(t, buf.String(), "DEBUG: TX EnterConfig: FD FC")

	SetDebugSink(nil)
	assert.Nil(t, driverLog.sink)
}

func TestSessionLog_Lifecycle(t *testing.T) {
	captureTrace(t)
	dir := t.TempDir()

	assert.Empty(t, GetSessionLogPath())

	path, err := InitSessionLog(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Regexp(t, `ld2402_\d{8}_\d{6}\.log$`, path)
	assert.Equal(t, path, GetSessionLogPath())

	SetDebugEnabled(false)
	Debugf("max distance %d dm", 50)
	require.NoError(t, CloseSessionLog())
	assert.Empty(t, GetSessionLogPath())

	content, err := os.ReadFile(path) //nolint:gosec // path comes from InitSessionLog
	require.NoError(t, err)
	text := string(content)
	assert.True(t, strings.HasPrefix(text, "# ld2402 session log\n"))
	assert.Contains(t, text, "# pid")
	assert.Contains(t, text, "DEBUG: max distance 50 dm")
	assert.Contains(t, text, "--- end of session ---")

	Debugf("after close")
	content, err = os.ReadFile(path) //nolint:gosec // path comes from InitSessionLog
	require.NoError(t, err)
	assert.NotContains(t, string(content), "after close")
}

func TestSessionLog_ReinitReplacesOpenLog(t *testing.T) {
	captureTrace(t)
	dir := t.TempDir()

	first, err := InitSessionLog(dir)
	require.NoError(t, err)
	firstFile := driverLog.file

	second, err := InitSessionLog(dir)
	require.NoError(t, err)
	assert.Equal(t, second, GetSessionLogPath())
	assert.Equal(t, filepath.Dir(first), filepath.Dir(second))
	assert.NotSame(t, firstFile, driverLog.file)

	_, err = firstFile.Write([]byte("x"))
	require.ErrorIs(t, err, os.ErrClosed)
	require.NoError(t, CloseSessionLog())
}

func TestCloseSessionLog_NothingOpen(t *testing.T) {
	captureTrace(t)

	require.NoError(t, CloseSessionLog())
	require.NoError(t, CloseSessionLog())
}

func TestInitSessionLog_MissingDirectory(t *testing.T) {
	captureTrace(t)

	_, err := InitSessionLog(filepath.Join(t.TempDir(), "missing", "dir"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create session log")
	assert.Empty(t, GetSessionLogPath())
}

func TestWriteSessionBanner(t *testing.T) {
	var buf strings.Builder
	writeSessionBanner(&buf)

	text := buf.String()
	for _, key := range []string{"# started", "# pid", "# platform", "# args"} {
		assert.Contains(t, text, key)
	}
	assert.True(t, strings.HasSuffix(text, "\n\n"))
}
