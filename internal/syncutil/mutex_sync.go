//go:build !deadlock

// Package syncutil provides the mutex types used by the UART receive buffer,
// the mock transports and the polling session. By default they are plain
// sync.Mutex and sync.RWMutex. Build with -tags=deadlock to enable deadlock
// detection via github.com/sasha-s/go-deadlock.
package syncutil

import (
	"sync"
	"time"
)

// LockTimeout is only meaningful with -tags=deadlock.
const LockTimeout = 2 * time.Second

// Mutex wraps sync.Mutex.
type Mutex struct {
	sync.Mutex
}

// RWMutex wraps sync.RWMutex.
type RWMutex struct {
	sync.RWMutex
}
