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

package detection

import (
	"maps"
	"time"

	"github.com/ZaparooProject/go-ld2402/internal/syncutil"
)

// cacheKey includes the mode so that a passive listing never answers a
// later Full probe.
type cacheKey struct {
	transport string
	mode      Mode
}

type cacheEntry struct {
	stored  time.Time
	devices []DeviceInfo
}

type detectionCache struct {
	entries map[cacheKey]cacheEntry
	now     func() time.Time
	mu      syncutil.RWMutex
}

var cache = &detectionCache{
	entries: make(map[cacheKey]cacheEntry),
	now:     time.Now,
}

// getCached returns a private copy of the devices stored for transport and
// mode, unless the entry is older than ttl.
func getCached(transport string, mode Mode, ttl time.Duration) ([]DeviceInfo, bool) {
	cache.mu.RLock()
	entry, ok := cache.entries[cacheKey{transport, mode}]
	fresh := ok && cache.now().Sub(entry.stored) <= ttl
	cache.mu.RUnlock()

	if !fresh {
		return nil, false
	}
	return cloneDevices(entry.devices), true
}

func setCached(transport string, mode Mode, devices []DeviceInfo) {
	snapshot := cloneDevices(devices)

	cache.mu.Lock()
	cache.entries[cacheKey{transport, mode}] = cacheEntry{stored: cache.now(), devices: snapshot}
	cache.mu.Unlock()
}

// cloneDevices deep-copies devices so callers can edit Metadata freely.
func cloneDevices(devices []DeviceInfo) []DeviceInfo {
	out := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		d.Metadata = maps.Clone(d.Metadata)
		out = append(out, d)
	}
	return out
}

func clearCache() {
	cache.mu.Lock()
	clear(cache.entries)
	cache.mu.Unlock()
}

// clearCacheForTransport drops the entries of every mode for transport.
func clearCacheForTransport(transport string) {
	cache.mu.Lock()
	maps.DeleteFunc(cache.entries, func(k cacheKey, _ cacheEntry) bool {
		return k.transport == transport
	})
	cache.mu.Unlock()
}
