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

// Policy is the marker every capability in spec.md §4.C implements. Rather
// than the reference's compile-time mixin inheritance, policies here are
// values collected into a []Policy, with lifecycle participation expressed
// through the small optional sub-interfaces below and detected by type
// assertion (§9 "Policy composition without inheritance", the
// tagged-union-catalog alternative). Event dispatch (onCreate/onAssign/...)
// is then a plain loop over that slice.
type Policy[K comparable, V any] interface {
	name() string
}

// onCreater fires once, right after a new Pending entry is linked.
type onCreater[K comparable, V any] interface {
	onCreate(c *Cache[K, V], e *entry[K, V])
}

// onAssigner fires after an entry transitions to Value or Error.
type onAssigner[K comparable, V any] interface {
	onAssign(c *Cache[K, V], e *entry[K, V])
}

// onHitter fires on a successful Get against a live entry.
type onHitter[K comparable, V any] interface {
	onHit(c *Cache[K, V], e *entry[K, V])
}

// onMisser fires on a Get/AsyncGet that found no live entry and has no
// resolver to call.
type onMisser[K comparable, V any] interface {
	onMiss(c *Cache[K, V], key K)
}

// onUnlinker fires right before an entry leaves the table for good.
type onUnlinker[K comparable, V any] interface {
	onUnlink(c *Cache[K, V], e *entry[K, V])
}

// removalChecker is asked, during maintenance, how many entries it wants
// removed to honor its bound (e.g. max-size). A policy that isn't
// size-bounding simply doesn't implement this interface.
type removalChecker[K comparable, V any] interface {
	removalBudget(c *Cache[K, V]) int
}

// expirer is asked, for a given entry, whether it should be considered
// expired right now (time-based policies implement this).
type expirer[K comparable, V any] interface {
	expired(c *Cache[K, V], e *entry[K, V]) bool
}

// Option configures a Cache at construction time. Each Option appends to, or
// otherwise adjusts, the policy set being built up; see New.
type Option[K comparable, V any] func(*buildConfig[K, V])

// buildConfig accumulates everything the functional options touch before
// Cache assembly; it plays the role of the reference's compile-time trait
// list, just resolved at construction time instead of compile time.
type buildConfig[K comparable, V any] struct {
	policies []Policy[K, V]

	hash  Hasher[K]
	equal Equaler[K]

	threadSafe bool

	maxLoadFactor float64

	resolver      SyncResolver[K, V]
	asyncResolver AsyncResolver[K, V]

	clock Clock

	negativeCache bool
}

// defaultBuildConfig seeds the values every cache needs regardless of which
// Options the caller supplies (spec.md §4.C step 3, "supply defaults").
func defaultBuildConfig[K comparable, V any]() *buildConfig[K, V] {
	return &buildConfig[K, V]{
		threadSafe:    true,
		maxLoadFactor: 1.0,
		clock:         systemClock{},
	}
}

// WithHash overrides the default hash/equality pair (spec.md §4.C
// "Hash / Equal").
func WithHash[K comparable, V any](hash Hasher[K], equal Equaler[K]) Option[K, V] {
	return func(cfg *buildConfig[K, V]) {
		cfg.hash = hash
		cfg.equal = equal
	}
}

// WithThreadUnsafe disables internal locking. Use only when the caller
// already serializes all access to the Cache.
func WithThreadUnsafe[K comparable, V any]() Option[K, V] {
	return func(cfg *buildConfig[K, V]) {
		cfg.threadSafe = false
	}
}

// WithMaxLoadFactor overrides the table's rehash trigger.
func WithMaxLoadFactor[K comparable, V any](f float64) Option[K, V] {
	return func(cfg *buildConfig[K, V]) {
		cfg.maxLoadFactor = f
	}
}

// WithClock overrides the time source used for expiry and refresh
// deadlines; primarily for tests (spec.md §6 "To clocks").
func WithClock[K comparable, V any](clock Clock) Option[K, V] {
	return func(cfg *buildConfig[K, V]) {
		cfg.clock = clock
	}
}

// WithResolver installs a synchronous resolver (spec.md §4.E).
func WithResolver[K comparable, V any](fn SyncResolver[K, V]) Option[K, V] {
	return func(cfg *buildConfig[K, V]) {
		cfg.resolver = fn
	}
}

// WithAsyncResolver installs an asynchronous resolver (spec.md §4.E).
func WithAsyncResolver[K comparable, V any](fn AsyncResolver[K, V]) Option[K, V] {
	return func(cfg *buildConfig[K, V]) {
		cfg.asyncResolver = fn
	}
}

// WithNegativeCache enables retaining Error entries for a single
// resolver-failure result instead of expiring them immediately after the
// first delivery (spec.md §4.C "Negative-cache").
func WithNegativeCache[K comparable, V any]() Option[K, V] {
	return func(cfg *buildConfig[K, V]) {
		cfg.negativeCache = true
		cfg.policies = append(cfg.policies, negativeCachePolicy[K, V]{})
	}
}

// WithPolicy appends an arbitrary Policy, for the size/expire/weaken/refresh
// policies constructed by their own With* helpers, or a caller's own.
func WithPolicy[K comparable, V any](p Policy[K, V]) Option[K, V] {
	return func(cfg *buildConfig[K, V]) {
		cfg.policies = append(cfg.policies, p)
	}
}
