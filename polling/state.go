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

package polling

import (
	"time"

	"github.com/ZaparooProject/go-ld2402"
)

// OccupancyPhase is the host-side view of the monitored area.
type OccupancyPhase int

const (
	// StateVacant means no target has been reported since the last vacancy.
	StateVacant OccupancyPhase = iota
	// StateOccupied means the last reading reported a target.
	StateOccupied
	// StateVacating means the sensor reported no target and the vacancy
	// delay is running.
	StateVacating
)

func (p OccupancyPhase) String() string {
	switch p {
	case StateVacant:
		return "vacant"
	case StateOccupied:
		return "occupied"
	case StateVacating:
		return "vacating"
	default:
		return "unknown"
	}
}

// OccupancyState tracks presence across readings.
type OccupancyState struct {
	// Since is when the current phase started.
	Since time.Time
	// LastSeen is the time of the last reading that reported a target.
	LastSeen time.Time
	// LastReading is the most recent reading, with or without a target.
	LastReading ld2402.Reading
	Phase       OccupancyPhase
}

// Present reports whether the area counts as occupied. A vacating area is
// still occupied until the delay runs out.
func (s OccupancyState) Present() bool {
	return s.Phase != StateVacant
}

// Observe folds one reading into the state and reports whether the area
// just became occupied.
func (s *OccupancyState) Observe(r ld2402.Reading, now time.Time) bool {
	s.LastReading = r
	if r.Presence {
		s.LastSeen = now
		switch s.Phase {
		case StateVacant:
			s.Phase = StateOccupied
			s.Since = now
			return true
		case StateVacating:
			s.Phase = StateOccupied
		case StateOccupied:
		}
		return false
	}

	if s.Phase == StateOccupied {
		s.Phase = StateVacating
		s.Since = now
	}
	return false
}

// Expire ends a vacating phase once delay has passed and reports whether
// the area just became vacant.
func (s *OccupancyState) Expire(now time.Time, delay time.Duration) bool {
	if s.Phase != StateVacating || now.Sub(s.Since) < delay {
		return false
	}
	s.Phase = StateVacant
	s.Since = now
	return true
}

// Clear forces the area vacant, for example after the link to the sensor
// was lost. It reports whether the area was occupied.
func (s *OccupancyState) Clear(now time.Time) bool {
	if s.Phase == StateVacant {
		return false
	}
	s.Phase = StateVacant
	s.Since = now
	return true
}
