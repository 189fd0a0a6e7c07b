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
	"unicode/utf8"

	"github.com/ZaparooProject/go-ld2402/internal/frame"
)

// MaxLineLength caps a text line. Longer lines are discarded up to the next
// newline.
const MaxLineLength = 1024

// noiseThreshold is the fraction of control or invalid bytes above which a line
// is treated as binary garbage rather than text.
const noiseThreshold = 0.25

// ClassifierState is what the classifier is currently collecting.
type ClassifierState int

// Classifier states
const (
	StateIdle ClassifierState = iota
	StateMatchingCommandHeader
	StateMatchingTelemetryHeader
	StateCollectingFrame
	StateCollectingLine
)

func (s ClassifierState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMatchingCommandHeader:
		return "matching command header"
	case StateMatchingTelemetryHeader:
		return "matching telemetry header"
	case StateCollectingFrame:
		return "collecting frame"
	case StateCollectingLine:
		return "collecting line"
	default:
		return "unknown"
	}
}

// ClassifierHandlers receives what the classifier recognizes. Nil handlers
// are skipped.
type ClassifierHandlers struct {
	CommandFrame   func(f *frame.Frame)
	TelemetryFrame func(f *frame.Frame)
	Line           func(line string)
}

// ClassifierStats counts classification outcomes.
type ClassifierStats struct {
	Frame         frame.Stats
	Lines         uint64
	NoiseLines    uint64
	OverflowLines uint64
}

// Classifier splits the inbound byte stream into command frames, telemetry
// frames and text lines. Frame bytes never reach the line buffer, and the
// line buffer is left alone while a frame is collected, so a frame that
// arrives in the middle of a text line does not corrupt it.
//
// Classifier is not safe for concurrent use.
type Classifier struct {
	handlers ClassifierHandlers
	decoder  *frame.Decoder
	line     []byte
	stats    ClassifierStats
	skipping bool
}

// NewClassifier creates a classifier that reports to h.
func NewClassifier(h ClassifierHandlers) *Classifier {
	return &Classifier{
		handlers: h,
		decoder:  frame.NewDecoder(),
		line:     make([]byte, 0, 64),
	}
}

// Feed classifies one byte.
func (c *Classifier) Feed(b byte) {
	res := c.decoder.Feed(b)
	for _, r := range res.Rejected {
		c.lineByte(r)
	}
	if res.Frame != nil {
		c.dispatch(res.Frame)
	}
	if !res.Consumed {
		c.lineByte(b)
	}
}

// Write feeds p and always succeeds. It lets the classifier sit behind an
// io.Writer, e.g. when replaying a capture.
func (c *Classifier) Write(p []byte) (int, error) {
	for _, b := range p {
		c.Feed(b)
	}
	return len(p), nil
}

// State reports what the classifier is collecting.
func (c *Classifier) State() ClassifierState {
	switch c.decoder.Phase() {
	case frame.PhaseBody:
		return StateCollectingFrame
	case frame.PhaseHeader:
		if c.decoder.Family() == frame.FamilyTelemetry {
			return StateMatchingTelemetryHeader
		}
		return StateMatchingCommandHeader
	default:
		if len(c.line) > 0 || c.skipping {
			return StateCollectingLine
		}
		return StateIdle
	}
}

// Stats returns classification counters.
func (c *Classifier) Stats() ClassifierStats {
	s := c.stats
	s.Frame = c.decoder.Stats()
	return s
}

// Reset drops any partial line or frame.
func (c *Classifier) Reset() {
	c.decoder.Reset()
	c.line = c.line[:0]
	c.skipping = false
}

func (c *Classifier) dispatch(f *frame.Frame) {
	switch f.Family {
	case frame.FamilyCommand:
		if c.handlers.CommandFrame != nil {
			c.handlers.CommandFrame(f)
		}
	case frame.FamilyTelemetry:
		if c.handlers.TelemetryFrame != nil {
			c.handlers.TelemetryFrame(f)
		}
	}
}

func (c *Classifier) lineByte(b byte) {
	switch {
	case b == '\n':
		c.endLine()
	case b == '\r':
	case c.skipping:
	case len(c.line) >= MaxLineLength:
		Debugf("Warning: text line exceeds %d bytes, discarding", MaxLineLength)
		c.stats.OverflowLines++
		c.line = c.line[:0]
		c.skipping = true
	default:
		c.line = append(c.line, b)
	}
}

func (c *Classifier) endLine() {
	if c.skipping {
		c.skipping = false
		return
	}
	if len(c.line) == 0 {
		return
	}
	line := c.line
	c.line = c.line[:0]

	if isBinaryNoise(line) {
		c.stats.NoiseLines++
		Debugf("dropping %d byte binary line", len(line))
		return
	}
	c.stats.Lines++
	if c.handlers.Line != nil {
		c.handlers.Line(string(line))
	}
}

// isBinaryNoise reports whether more than a quarter of the line's bytes
// are control characters or not valid UTF-8. Tab and CR are allowed.
func isBinaryNoise(line []byte) bool {
	bad := 0
	for i := 0; i < len(line); {
		r, size := utf8.DecodeRune(line[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			bad++
		case r == '\t' || r == '\r':
		case r < 0x20 || r == 0x7F:
			bad++
		}
		i += size
	}
	return float64(bad) > noiseThreshold*float64(len(line))
}
