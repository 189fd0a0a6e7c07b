//go:build deadlock

// Package syncutil provides the mutex types used by the UART receive buffer,
// the mock transports and the polling session. Building with -tags=deadlock
// swaps them for github.com/sasha-s/go-deadlock so lock-order bugs between
// the serial reader goroutine and the host loop show up in tests.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// LockTimeout is how long a lock may be held before go-deadlock reports it.
// The serial reader holds the receive buffer lock only while copying one
// read, so anything near a second is a real stall.
const LockTimeout = 2 * time.Second

func init() {
	deadlock.Opts.DeadlockTimeout = LockTimeout
}

// Mutex wraps deadlock.Mutex for deadlock detection.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex wraps deadlock.RWMutex for deadlock detection.
type RWMutex struct {
	deadlock.RWMutex
}
