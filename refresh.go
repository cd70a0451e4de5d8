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

import (
	"sync"
	"time"
)

// delayHeap is a binary min-heap of entries ordered by refreshAt, the
// delay list of spec.md §4.G. Adapted from the teacher's generic
// MinHeap[T Comparable[T]]: that heap compared boxed values by a
// user-supplied Less; here the ordering key (refreshAt) and the backing
// pointer live together on *entry, and heapIndex lets unlink-by-pointer run
// in O(log n) instead of a linear scan.
type delayHeap[K comparable, V any] struct {
	items []*entry[K, V]
}

func (h *delayHeap[K, V]) Len() int { return len(h.items) }

func (h *delayHeap[K, V]) less(i, j int) bool {
	return h.items[i].refreshAt.Before(h.items[j].refreshAt)
}

func (h *delayHeap[K, V]) swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].heapIndex = i
	h.items[j].heapIndex = j
}

func (h *delayHeap[K, V]) push(e *entry[K, V]) {
	e.heapIndex = len(h.items)
	h.items = append(h.items, e)
	h.up(e.heapIndex)
}

// remove extracts e from the heap, wherever it currently sits. A no-op if
// e isn't in this heap.
func (h *delayHeap[K, V]) remove(e *entry[K, V]) {
	i := e.heapIndex
	if i < 0 || i >= len(h.items) || h.items[i] != e {
		return
	}
	last := len(h.items) - 1
	h.swap(i, last)
	h.items = h.items[:last]
	e.heapIndex = -1
	if i < last {
		h.down(i)
		h.up(i)
	}
}

func (h *delayHeap[K, V]) peek() *entry[K, V] {
	if len(h.items) == 0 {
		return nil
	}
	return h.items[0]
}

func (h *delayHeap[K, V]) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(i, parent) {
			break
		}
		h.swap(i, parent)
		i = parent
	}
}

func (h *delayHeap[K, V]) down(i int) {
	n := len(h.items)
	for {
		left, right := 2*i+1, 2*i+2
		smallest := i
		if left < n && h.less(left, smallest) {
			smallest = left
		}
		if right < n && h.less(right, smallest) {
			smallest = right
		}
		if smallest == i {
			return
		}
		h.swap(i, smallest)
		i = smallest
	}
}

// refreshPolicy schedules a resolver re-invocation delay after assign, and
// optionally cancels refresh for an entry that's gone idle (spec.md §4.G).
type refreshPolicy[K comparable, V any] struct {
	delay    time.Duration
	idle     time.Duration // zero disables the idle timer
	hasIdle  bool
	resolver SyncResolver[K, V]
}

func (refreshPolicy[K, V]) name() string { return "refresh" }

func (p refreshPolicy[K, V]) onAssign(c *Cache[K, V], e *entry[K, V]) {
	if e.st != stateValue {
		return
	}
	now := c.clock.Now()
	e.hasRefresh = true
	e.refreshAt = now.Add(p.delay)
	if p.hasIdle {
		e.hasCancelAt = true
		e.cancelAt = now.Add(p.idle)
	}
	c.refreshDriver.schedule(e)
}

func (p refreshPolicy[K, V]) onHit(c *Cache[K, V], e *entry[K, V]) {
	if p.hasIdle && e.hasRefresh {
		e.cancelAt = c.clock.Now().Add(p.idle)
	}
}

func (p refreshPolicy[K, V]) onUnlink(c *Cache[K, V], e *entry[K, V]) {
	c.refreshDriver.cancel(e)
}

// WithRefresh schedules resolver re-invocation delay after each assign,
// using fn to produce the refreshed value. An idle timeout of zero disables
// idle-based cancellation: the entry refreshes forever until evicted or
// erased.
func WithRefresh[K comparable, V any](delay time.Duration, idle time.Duration, fn SyncResolver[K, V]) Option[K, V] {
	return WithPolicy[K, V](refreshPolicy[K, V]{
		delay:    delay,
		idle:     idle,
		hasIdle:  idle > 0,
		resolver: fn,
	})
}

// refreshDriver is the background worker of spec.md §4.G: it owns the
// delay list and a condition variable bound to the driver's own mutex, not
// to the cache lock. Scheduling/cancelling from inside a held cache lock
// takes that mutex after the cache lock, and the worker's wait releases only
// the driver's mutex while idle.
type refreshDriver[K comparable, V any] struct {
	cache *Cache[K, V]

	mu     sync.Mutex // guards heap + stop, independent of the cache lock
	cond   *sync.Cond
	heap   delayHeap[K, V]
	stop   bool
	stopWG sync.WaitGroup
}

func newRefreshDriver[K comparable, V any](c *Cache[K, V]) *refreshDriver[K, V] {
	d := &refreshDriver[K, V]{cache: c}
	d.cond = sync.NewCond(&d.mu)
	return d
}

func (d *refreshDriver[K, V]) start() {
	d.stopWG.Add(1)
	go d.run()
}

func (d *refreshDriver[K, V]) schedule(e *entry[K, V]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.heap.remove(e)
	d.heap.push(e)
	d.cond.Signal()
}

func (d *refreshDriver[K, V]) cancel(e *entry[K, V]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.heap.remove(e)
}

func (d *refreshDriver[K, V]) close() {
	d.mu.Lock()
	d.stop = true
	d.cond.Signal()
	d.mu.Unlock()
	d.stopWG.Wait()
}

// run is the worker loop described in spec.md §4.G: wait for the next
// refreshAt (or a signal), then process every head entry whose deadline has
// passed.
func (d *refreshDriver[K, V]) run() {
	defer d.stopWG.Done()
	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		if d.stop {
			return
		}
		head := d.heap.peek()
		if head == nil {
			d.cond.Wait()
			continue
		}
		now := d.cache.clock.Now()
		wait := head.refreshAt.Sub(now)
		if wait > 0 {
			d.waitFor(wait)
			continue
		}

		d.heap.remove(head)
		d.mu.Unlock()
		d.process(head)
		d.mu.Lock()
	}
}

// waitFor blocks on the condition for at most wait, re-locking d.mu before
// returning (sync.Cond has no timed wait, so this parks a timer goroutine
// that signals back in).
func (d *refreshDriver[K, V]) waitFor(wait time.Duration) {
	timer := time.AfterFunc(wait, func() {
		d.mu.Lock()
		d.cond.Signal()
		d.mu.Unlock()
	})
	d.cond.Wait()
	timer.Stop()
}

// process handles one entry whose refreshAt has elapsed: if it has gone
// idle, it is expired outright; otherwise the resolver runs again and its
// outcome replaces the old entry.
func (d *refreshDriver[K, V]) process(e *entry[K, V]) {
	c := d.cache
	c.lock()
	if e.hasCancelAt && !c.clock.Now().Before(e.cancelAt) {
		c.unlinkEntry(e)
		c.unlock()
		return
	}
	key := e.key
	resolver := c.refreshResolver
	c.unlock()

	if resolver == nil {
		c.lock()
		c.unlinkEntry(e)
		c.unlock()
		return
	}

	v, err := resolver(key)

	c.lock()
	defer c.unlock()
	if err != nil {
		// A failed refresh leaves the old value in place; only the
		// schedule advances, per spec.md §9 Open Question 2 (refresh
		// failures don't reset the idle timer).
		c.Metrics.add(metricRefreshError, e.hash, 1)
		e.refreshAt = c.clock.Now().Add(c.refreshDelay)
		d.mu.Lock()
		d.heap.push(e)
		d.mu.Unlock()
		return
	}
	c.Metrics.add(metricRefresh, e.hash, 1)
	c.unlinkEntry(e)
	c.emplaceLocked(key, v)
}
