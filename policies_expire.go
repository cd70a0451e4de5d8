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

// expireMode selects which assignments install a deadline: maxAge installs
// one on every successful assign, maxErrorAge only on error assigns
// (spec.md §4.C "Expire-at / Max-age / Max-error-age").
type expireMode int

const (
	expireModeMaxAge expireMode = iota
	expireModeErrorAge
)

// expirePolicy installs expireAt (plus a monotonic shadow deadline when the
// cache's clock isn't the trusted system clock) on assign, per mode.
type expirePolicy[K comparable, V any] struct {
	mode expireMode
	ttl  time.Duration
}

func (expirePolicy[K, V]) name() string { return "expire-at" }

func (p expirePolicy[K, V]) onAssign(c *Cache[K, V], e *entry[K, V]) {
	if p.mode == expireModeErrorAge && e.st != stateError {
		return
	}
	if p.mode == expireModeMaxAge && e.st != stateValue {
		return
	}
	now := c.clock.Now()
	e.hasDeadline = true
	e.expireAt = now.Add(p.ttl)
	if !isMonotonicSource(c.clock) {
		e.monotonicSet = true
		e.monotonicDeadline = c.clock.Monotonic().Add(p.ttl)
	}
}

func (p expirePolicy[K, V]) expired(c *Cache[K, V], e *entry[K, V]) bool {
	return e.expiredAt(c.clock.Now(), c.clock.Monotonic())
}

// WithMaxAge expires every Value entry ttl after it was assigned.
func WithMaxAge[K comparable, V any](ttl time.Duration) Option[K, V] {
	return WithPolicy[K, V](expirePolicy[K, V]{mode: expireModeMaxAge, ttl: ttl})
}

// WithMaxErrorAge expires only Error entries, ttl after they were assigned;
// meaningful only together with WithNegativeCache, since without it an
// Error entry is already dropped after its single delivery.
func WithMaxErrorAge[K comparable, V any](ttl time.Duration) Option[K, V] {
	return WithPolicy[K, V](expirePolicy[K, V]{mode: expireModeErrorAge, ttl: ttl})
}

// expireAtPolicy lets a caller-supplied function pick a per-entry deadline
// rather than a fixed ttl, by deriving it from the assigned entry's key and
// value; install via
// WithExpireAtFunc. Grounded on original_source's expire_at_policy.h, which
// asks the value type for its own deadline instead of using a fixed
// duration.
type expireAtPolicy[K comparable, V any] struct {
	deadline func(key K, value V) time.Time
}

func (expireAtPolicy[K, V]) name() string { return "expire-at-func" }

func (p expireAtPolicy[K, V]) onAssign(c *Cache[K, V], e *entry[K, V]) {
	if e.st != stateValue {
		return
	}
	e.hasDeadline = true
	e.expireAt = p.deadline(e.key, e.value)
	if !isMonotonicSource(c.clock) {
		e.monotonicSet = true
		e.monotonicDeadline = c.clock.Monotonic().Add(e.expireAt.Sub(c.clock.Now()))
	}
}

func (p expireAtPolicy[K, V]) expired(c *Cache[K, V], e *entry[K, V]) bool {
	return e.expiredAt(c.clock.Now(), c.clock.Monotonic())
}

// WithExpireAtFunc derives each entry's deadline from its key and value,
// rather than applying a fixed ttl to every entry.
func WithExpireAtFunc[K comparable, V any](deadline func(key K, value V) time.Time) Option[K, V] {
	return WithPolicy[K, V](expireAtPolicy[K, V]{deadline: deadline})
}
