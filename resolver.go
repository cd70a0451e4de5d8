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

import "sync/atomic"

// SyncResolver produces a value for key synchronously while the cache lock
// is released (spec.md §4.E): Get runs it on the caller's own goroutine,
// AsyncGet (when no AsyncResolver is configured) on a goroutine of its own.
type SyncResolver[K comparable, V any] func(key K) (V, error)

// AsyncResolver is handed a Callback and must eventually call exactly one
// of Assign, AssignError or Cancel on it, possibly from another goroutine
// (spec.md §4.E). It returns immediately; the cache does not wait for it.
type AsyncResolver[K comparable, V any] func(cb *Callback[K, V], key K)

// Callback is the single-shot completion handle an asynchronous resolver
// receives. It holds a strong reference to the entry being resolved and a
// weak (existence-checked) reference to the cache, mirroring the
// reference's "strong+weak to the cache itself" design note (§9): if the
// cache has already been closed, completion becomes a no-op cancellation
// instead of touching freed state.
type Callback[K comparable, V any] struct {
	cache *Cache[K, V]
	e     *entry[K, V]
	key   K
	done  int32 // atomic; 0 = not yet completed
}

func newCallback[K comparable, V any](c *Cache[K, V], e *entry[K, V], key K) *Callback[K, V] {
	e.addRef()
	return &Callback[K, V]{cache: c, e: e, key: key}
}

// complete marks the callback used, returning false if it had already run
// (spec.md §4.E "single-shot; further invocations are no-ops").
func (cb *Callback[K, V]) complete() bool {
	return atomic.CompareAndSwapInt32(&cb.done, 0, 1)
}

// Assign completes the pending resolution with a value.
func (cb *Callback[K, V]) Assign(v V) error {
	if !cb.complete() {
		return ErrAlreadyCompleted
	}
	defer cb.e.release()
	return cb.cache.completeAsync(cb.e, cb.key, v, nil)
}

// AssignError completes the pending resolution with a failure.
func (cb *Callback[K, V]) AssignError(err error) error {
	if !cb.complete() {
		return ErrAlreadyCompleted
	}
	defer cb.e.release()
	return cb.cache.completeAsync(cb.e, cb.key, *new(V), wrapKind(KindResolver, err))
}

// Cancel completes the pending resolution with no value at all; waiters
// receive nothing, matching a cache-dropped cancellation (spec.md §4.E).
func (cb *Callback[K, V]) Cancel() error {
	if !cb.complete() {
		return ErrAlreadyCompleted
	}
	defer cb.e.release()
	return cb.cache.cancelAsync(cb.e, cb.key)
}

// AsyncHandle is returned to the caller of AsyncGet; it completes when the
// entry the callback targets leaves Pending (spec.md §4.E step 2).
type AsyncHandle[V any] struct {
	done chan struct{}
	v    V
	err  error
}

func newAsyncHandle[V any]() *AsyncHandle[V] {
	return &AsyncHandle[V]{done: make(chan struct{})}
}

func (h *AsyncHandle[V]) deliver(v V, err error) {
	h.v, h.err = v, err
	close(h.done)
}

// Wait blocks until the handle completes and returns its result. Neither a
// resolver-initiated cancellation (Callback.Cancel) nor one caused by the
// cache being closed ever completes this handle: both drop an AsyncHandle's
// waiter without invoking it (spec.md §5/§7, "waiters receive nothing"), so
// Wait blocks forever in either case and the caller must race it against its
// own context or timeout.
func (h *AsyncHandle[V]) Wait() (V, error) {
	<-h.done
	return h.v, h.err
}

// Done exposes the completion channel for select-based callers.
func (h *AsyncHandle[V]) Done() <-chan struct{} {
	return h.done
}
