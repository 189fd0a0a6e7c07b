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

package main

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZaparooProject/go-ld2402"
)

const (
	defaultSoakIterations = 100
	// maxOpLog bounds how much history a crash report carries.
	maxOpLog = 64
)

// SoakResult summarizes a soak run.
type SoakResult struct {
	CrashFile string
	Passed    int
	Failed    int
	Duration  time.Duration
}

// CrashReport contains all information for debugging a failure.
type CrashReport struct {
	Timestamp    time.Time  `json:"timestamp"`
	Device       string     `json:"device"`
	Operation    string     `json:"operation"`
	Error        string     `json:"error"`
	ExpectedHex  string     `json:"expected_hex,omitempty"`
	ActualHex    string     `json:"actual_hex,omitempty"`
	OperationLog []LogEntry `json:"operation_log"`
	Iteration    int        `json:"iteration"`
}

// LogEntry represents a single operation in the log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	DataHex   string    `json:"data_hex,omitempty"`
	Error     string    `json:"error,omitempty"`
	Success   bool      `json:"success"`
}

// soakState carries the baseline every iteration is compared against.
type soakState struct {
	device      *ld2402.Device
	version     string
	opLog       []LogEntry
	maxDistance uint32
}

func (s *soakState) record(entry LogEntry) {
	entry.Timestamp = time.Now()
	s.opLog = append(s.opLog, entry)
	if len(s.opLog) > maxOpLog {
		s.opLog = s.opLog[len(s.opLog)-maxOpLog:]
	}
}

// soakFailure describes the first mismatch or error of an iteration.
type soakFailure struct {
	err       error
	operation string
	expected  []byte
	actual    []byte
}

// runSoak repeats a version query and a parameter read, comparing each
// answer with the first one. The first failure stops the run and writes a
// crash report.
func runSoak(ctx context.Context, device *ld2402.Device, cfg *cliConfig) error {
	iterations := cfg.iterations
	if iterations <= 0 {
		iterations = defaultSoakIterations
	}
	_, _ = fmt.Fprintf(stdout, "Soak test: %d configuration round trips on %s\n", iterations, device)

	state := &soakState{device: device, opLog: make([]LogEntry, 0, maxOpLog)}
	if err := soakBaseline(ctx, state); err != nil {
		return err
	}

	result := &SoakResult{}
	started := time.Now()
	for i := range iterations {
		if err := ctx.Err(); err != nil {
			break
		}
		if failure := soakIteration(ctx, state); failure != nil {
			result.Failed++
			report := createCrashReport(state, failure, i)
			if path, err := writeCrashReportToFile(report, cfg.logDir); err == nil {
				result.CrashFile = path
			} else {
				_, _ = fmt.Fprintf(stdout, "  [!] %v\n", err)
			}
			break
		}
		result.Passed++
	}
	result.Duration = time.Since(started)

	printSoakSummary(result)
	if result.Failed > 0 {
		return fmt.Errorf("soak test failed after %d passes", result.Passed)
	}
	return ctx.Err()
}

func soakBaseline(ctx context.Context, s *soakState) error {
	version, err := s.device.ReadFirmwareVersion(ctx)
	if err != nil {
		return fmt.Errorf("baseline firmware query: %w", err)
	}
	maxDistance, err := readMaxDistance(ctx, s.device)
	if err != nil {
		return fmt.Errorf("baseline parameter query: %w", err)
	}
	s.version = version
	s.maxDistance = maxDistance
	return nil
}

func soakIteration(ctx context.Context, s *soakState) *soakFailure {
	version, err := s.device.ReadFirmwareVersion(ctx)
	s.record(LogEntry{Operation: "firmware_version", DataHex: hex.EncodeToString([]byte(version)),
		Success: err == nil && version == s.version, Error: errString(err)})
	if err != nil {
		return &soakFailure{operation: "firmware_version", err: err}
	}
	if version != s.version {
		return &soakFailure{
			operation: "firmware_version",
			err:       fmt.Errorf("version changed from %q to %q", s.version, version),
			expected:  []byte(s.version),
			actual:    []byte(version),
		}
	}

	value, err := readMaxDistance(ctx, s.device)
	s.record(LogEntry{Operation: "max_distance", DataHex: hex.EncodeToString(le32(value)),
		Success: err == nil && value == s.maxDistance, Error: errString(err)})
	if err != nil {
		return &soakFailure{operation: "max_distance", err: err}
	}
	if value != s.maxDistance {
		return &soakFailure{
			operation: "max_distance",
			err:       fmt.Errorf("max distance changed from %d to %d", s.maxDistance, value),
			expected:  le32(s.maxDistance),
			actual:    le32(value),
		}
	}
	return nil
}

func readMaxDistance(ctx context.Context, device *ld2402.Device) (uint32, error) {
	if err := device.EnterConfiguration(ctx); err != nil {
		return 0, err
	}
	value, err := device.GetParameter(ctx, ld2402.ParamMaxDistance)
	if exitErr := device.ExitConfiguration(ctx); err == nil {
		err = exitErr
	}
	return value, err
}

func le32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func createCrashReport(s *soakState, failure *soakFailure, iteration int) *CrashReport {
	report := &CrashReport{
		Timestamp:    time.Now(),
		Device:       s.device.String(),
		Operation:    failure.operation,
		Error:        failure.err.Error(),
		Iteration:    iteration,
		OperationLog: append([]LogEntry(nil), s.opLog...),
	}
	if len(failure.expected) > 0 {
		report.ExpectedHex = formatHexString(failure.expected)
	}
	if len(failure.actual) > 0 {
		report.ActualHex = formatHexString(failure.actual)
	}
	return report
}

func writeCrashReportToFile(report *CrashReport, dir string) (string, error) {
	timestamp := report.Timestamp.Format("20060102_150405")
	filename := filepath.Join(dir, fmt.Sprintf("soak_crash_%s_%s.json", report.Operation, timestamp))

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal crash report: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write crash report: %w", err)
	}

	return filename, nil
}

func formatHexString(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

func printSoakSummary(result *SoakResult) {
	status := "PASS"
	if result.Failed > 0 {
		status = "FAIL"
	}
	_, _ = fmt.Fprintf(stdout, "[%s] %d passed, %d failed - %s\n",
		status, result.Passed, result.Failed, result.Duration.Round(100*time.Millisecond))
	if result.CrashFile != "" {
		_, _ = fmt.Fprintf(stdout, "Crash report written: %s\n", result.CrashFile)
	}
}
