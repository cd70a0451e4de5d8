/*
 * Copyright 2019 Dgraph Labs, Inc. and Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package hoardcache

import "time"

// Clock abstracts the time source used for expiry and refresh scheduling
// (spec.md §6 "To clocks"), so tests can supply a controllable clock instead
// of wall time.
type Clock interface {
	// Now returns the clock's current wall-clock reading.
	Now() time.Time
	// Monotonic returns a reading that never moves backwards, used as the
	// shadow deadline described in spec.md §4.C so a wall-clock jump
	// backwards cannot un-expire an entry.
	Monotonic() time.Time
}

// systemClock is the default Clock, backed by the runtime's wall clock and
// monotonic reading (time.Time carries both under the hood).
type systemClock struct{}

func (systemClock) Now() time.Time       { return time.Now() }
func (systemClock) Monotonic() time.Time { return time.Now() }

// isMonotonicSource reports whether clock is the built-in system clock,
// which Go's time.Time already makes monotonic-safe on its own; every other
// Clock is treated as non-monotonic, so every deadline set against it also
// gets a shadow monotonic deadline (spec.md §4.C).
func isMonotonicSource(clock Clock) bool {
	_, ok := clock.(systemClock)
	return ok
}
