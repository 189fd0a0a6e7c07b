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

package testing

import (
	"bytes"
	"testing"
	"time"

	"github.com/ZaparooProject/go-ld2402/internal/frame"
)

// enterConfigFrame is the host's enter-config request.
var enterConfigFrame = frame.Encode(cmdEnterConfig, []byte{0x01, 0x00})

func readUntil(t *testing.T, r interface{ Read([]byte) (int, error) }, want int) ([]byte, int) {
	t.Helper()
	buf := make([]byte, 512)
	total, reads := 0, 0
	for total < want && reads < 1000 {
		n, err := r.Read(buf[total:])
		if err != nil {
			t.Fatalf("Read %d failed: %v", reads, err)
		}
		total += n
		reads++
	}
	return buf[:total], reads
}

func TestJitteryConnection_BasicReadWrite(t *testing.T) {
	t.Parallel()

	sim := NewVirtualLD2402()
	jittery := NewJitteryConnection(sim, JitterConfig{Seed: 12345})

	written, err := jittery.Write(enterConfigFrame)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if written != len(enterConfigFrame) {
		t.Fatalf("Write returned wrong count: got %d, want %d", written, len(enterConfigFrame))
	}

	want := BuildStatusResponse(cmdEnterConfig, []byte{0x01, 0x00, 0x40, 0x00})
	got, _ := readUntil(t, jittery, len(want))
	if !bytes.Equal(got, want) {
		t.Errorf("Expected % X, got % X", want, got)
	}
}

func TestJitteryConnection_Fragmentation(t *testing.T) {
	t.Parallel()

	sim := NewVirtualLD2402()
	jittery := NewJitteryConnection(sim, JitterConfig{
		FragmentReads:    true,
		FragmentMinBytes: 1,
		Seed:             42,
	})

	sim.EmitDistance(123)
	sim.EmitOff()
	want := []byte("distance:123\r\nOFF\r\n")

	got, reads := readUntil(t, jittery, len(want))
	if !bytes.Equal(got, want) {
		t.Errorf("Expected %q, got %q", want, got)
	}
	t.Logf("Read %d bytes in %d read calls", len(got), reads)
}

func TestJitteryConnection_FragmentMinBytesClamped(t *testing.T) {
	t.Parallel()

	jittery := NewJitteryConnection(NewVirtualLD2402(), JitterConfig{FragmentMinBytes: 0, Seed: 1})
	if jittery.config.FragmentMinBytes != 1 {
		t.Errorf("FragmentMinBytes = %d, want 1", jittery.config.FragmentMinBytes)
	}
}

func TestJitteryConnection_USBBoundaryStress(t *testing.T) {
	t.Parallel()

	sim := NewVirtualLD2402()
	jittery := NewJitteryConnection(sim, JitterConfig{USBBoundaryStress: true, Seed: 7})

	payload := bytes.Repeat([]byte{'x'}, 100)
	sim.EmitRaw(payload)

	buf := make([]byte, 256)
	n, err := jittery.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != 64 {
		t.Errorf("first read = %d bytes, want 64", n)
	}
	if jittery.Buffered() != 36 {
		t.Errorf("Buffered() = %d, want 36", jittery.Buffered())
	}

	n, err = jittery.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != 36 {
		t.Errorf("second read = %d bytes, want 36", n)
	}
}

func TestJitteryConnection_Latency(t *testing.T) {
	t.Parallel()

	sim := NewVirtualLD2402()
	jittery := NewJitteryConnection(sim, JitterConfig{MaxLatencyMs: 10, Seed: 99})

	start := time.Now()
	for range 5 {
		if _, err := jittery.Read(make([]byte, 8)); err != nil {
			t.Fatalf("Read failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("five reads took %v, latency should stay under 10ms each", elapsed)
	}
}

func TestJitteryConnection_ClearBuffer(t *testing.T) {
	t.Parallel()

	sim := NewVirtualLD2402()
	jittery := NewJitteryConnection(sim, JitterConfig{FragmentReads: true, FragmentMinBytes: 1, Seed: 3})
	sim.EmitRaw(bytes.Repeat([]byte{'y'}, 50))

	if _, err := jittery.Read(make([]byte, 1)); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	jittery.ClearBuffer()
	if jittery.Buffered() != 0 {
		t.Errorf("Buffered() = %d after ClearBuffer", jittery.Buffered())
	}
}
