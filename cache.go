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

// Package hoardcache is a fixed-shape, policy-composed in-memory cache: a
// single intrusive hash table backing a hot/cold LRU queue, with optional
// size bounds, expiry, weak-pointer eviction, negative caching and
// background refresh layered on as policies rather than built-in branches.
package hoardcache

import (
	"sync"
	"time"
)

// locker is the Thread-safe/Thread-unsafe policy of spec.md §4.C,
// §5 "Thread-safe vs thread-unsafe policy": a real mutex, or a stub for
// callers who promise their own external synchronization.
type locker interface {
	Lock()
	Unlock()
}

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

// Cache is the engine of spec.md §4.D: one hash table, one hot/cold queue,
// and the policy set collected from the Options passed to New.
type Cache[K comparable, V any] struct {
	mu locker

	table *table[K, V]
	queue *hotColdQueue[K, V]

	hash  Hasher[K]
	equal Equaler[K]
	clock Clock

	resolver      SyncResolver[K, V]
	asyncResolver AsyncResolver[K, V]

	negativeCache bool
	weakener      Weakener[V]

	policies  []Policy[K, V]
	creaters  []onCreater[K, V]
	assigners []onAssigner[K, V]
	hitters   []onHitter[K, V]
	missers   []onMisser[K, V]
	unlinkers []onUnlinker[K, V]
	removers  []removalChecker[K, V]
	expirers  []expirer[K, V]

	refreshDriver   *refreshDriver[K, V]
	refreshResolver SyncResolver[K, V]
	refreshDelay    time.Duration

	executor Executor

	Metrics *Metrics

	closed bool
}

// New assembles a Cache from the given Options, following the compose step
// of spec.md §4.C: collect policies, supply defaults for anything the
// caller didn't specify, then build the dispatch tables used by every
// operation below.
func New[K comparable, V any](opts ...Option[K, V]) *Cache[K, V] {
	cfg := defaultBuildConfig[K, V]()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.hash == nil {
		cfg.hash = defaultHasher[K]()
	}
	if cfg.equal == nil {
		cfg.equal = defaultEqualer[K]()
	}

	c := &Cache[K, V]{
		table:         newTable[K, V](cfg.maxLoadFactor),
		queue:         newHotColdQueue[K, V](),
		hash:          cfg.hash,
		equal:         cfg.equal,
		clock:         cfg.clock,
		resolver:      cfg.resolver,
		asyncResolver: cfg.asyncResolver,
		negativeCache: cfg.negativeCache,
		policies:      cfg.policies,
		executor:      DefaultExecutor,
		Metrics:       newMetrics(),
	}
	if cfg.threadSafe {
		c.mu = &sync.Mutex{}
	} else {
		c.mu = noopLocker{}
	}

	var refresh *refreshPolicy[K, V]
	for _, p := range cfg.policies {
		if v, ok := p.(onCreater[K, V]); ok {
			c.creaters = append(c.creaters, v)
		}
		if v, ok := p.(onAssigner[K, V]); ok {
			c.assigners = append(c.assigners, v)
		}
		if v, ok := p.(onHitter[K, V]); ok {
			c.hitters = append(c.hitters, v)
		}
		if v, ok := p.(onMisser[K, V]); ok {
			c.missers = append(c.missers, v)
		}
		if v, ok := p.(onUnlinker[K, V]); ok {
			c.unlinkers = append(c.unlinkers, v)
		}
		if v, ok := p.(removalChecker[K, V]); ok {
			c.removers = append(c.removers, v)
		}
		if v, ok := p.(expirer[K, V]); ok {
			c.expirers = append(c.expirers, v)
		}
		if v, ok := p.(weakenPolicy[K, V]); ok {
			c.weakener = v.weakener
		}
		if v, ok := p.(refreshPolicy[K, V]); ok {
			refresh = &v
		}
	}

	if refresh != nil {
		c.refreshResolver = refresh.resolver
		c.refreshDelay = refresh.delay
		c.refreshDriver = newRefreshDriver(c)
		c.refreshDriver.start()
	}

	return c
}

func (c *Cache[K, V]) lock()   { c.mu.Lock() }
func (c *Cache[K, V]) unlock() { c.mu.Unlock() }

// Close stops the background refresh worker, if any, and cancels every
// outstanding pending resolution. Per spec.md §5 ("dropping the cache
// cancels every outstanding pending entry; their waiters receive no
// callback — this is an explicit contract") and §7 ("waiters receive
// nothing (async) or no-value (sync)"), an async waiter (attached to an
// AsyncHandle) is simply dropped: its deliver callback is never invoked, a
// deliberate zero-callbacks behavior matching original_source's
// detail/pending.cc cancel() test. A sync waiter (a goroutine blocked
// inside Get) has no other way to observe cancellation in Go, so it alone
// is still unblocked, with a no-value completion (zero value, nil error)
// rather than a delivered error — it is not told the resolve failed, only
// that there is nothing to wait for anymore. A Get whose own resolver call
// is still running when Close happens returns the same no-value completion
// once the resolver returns, and its outcome is not cached.
func (c *Cache[K, V]) Close() {
	c.lock()
	if c.closed {
		c.unlock()
		return
	}
	c.closed = true
	c.table.forEach(func(e *entry[K, V]) bool {
		if e.st == statePending {
			waiters := e.waiters
			e.waiters = nil
			for _, w := range waiters {
				if w.sync {
					w.executor.Post(func() { w.deliver(*new(V), nil) })
				}
			}
			e.st = stateExpired
		}
		return true
	})
	c.unlock()

	if c.refreshDriver != nil {
		c.refreshDriver.close()
	}
}

// lookupLocked finds the first equal-matching entry for key that is not
// expired; it may still be Pending. The caller must hold the lock. It does
// not fire any event.
func (c *Cache[K, V]) lookupLocked(hash uint64, key K) *entry[K, V] {
	var found *entry[K, V]
	c.table.forEachInBucket(hash, func(e *entry[K, V]) bool {
		if !c.equal(key, e.key) {
			return true
		}
		if c.isExpiredLocked(e) {
			return true
		}
		found = e
		return false
	})
	return found
}

func (c *Cache[K, V]) isExpiredLocked(e *entry[K, V]) bool {
	if e.st == stateExpired {
		return true
	}
	for _, exp := range c.expirers {
		if exp.expired(c, e) {
			return true
		}
	}
	return false
}

func (c *Cache[K, V]) fireCreate(e *entry[K, V]) {
	for _, p := range c.creaters {
		p.onCreate(c, e)
	}
}

func (c *Cache[K, V]) fireAssign(e *entry[K, V]) {
	for _, p := range c.assigners {
		p.onAssign(c, e)
	}
}

func (c *Cache[K, V]) fireHit(e *entry[K, V]) {
	c.queue.onHit(e)
	for _, p := range c.hitters {
		p.onHit(c, e)
	}
}

func (c *Cache[K, V]) fireMiss(key K) {
	for _, p := range c.missers {
		p.onMiss(c, key)
	}
}

func (c *Cache[K, V]) fireUnlink(e *entry[K, V]) {
	for _, p := range c.unlinkers {
		p.onUnlink(c, e)
	}
}

// unlinkEntry removes e from the table and queue, firing onUnlink. The
// caller must hold the lock. The entry itself stays valid for any holder of
// a strong reference (spec.md §5 "Shared resources").
func (c *Cache[K, V]) unlinkEntry(e *entry[K, V]) {
	if !e.linked {
		return
	}
	c.fireUnlink(e)
	c.queue.onUnlink(e)
	c.table.unlink(e)
}

// newLiveEntry allocates and links a Pending entry for key, firing create.
// The caller must hold the lock.
func (c *Cache[K, V]) newLiveEntry(hash uint64, key K) *entry[K, V] {
	e := newEntry[K, V](hash, key)
	c.table.link(e, func() { c.dropExpiredLocked() })
	c.queue.onCreate(e)
	c.fireCreate(e)
	c.Metrics.add(metricCreate, hash, 1)
	return e
}

// dropExpiredLocked walks the table once, unlinking every entry whose
// expired() predicate holds (spec.md §4.D maintenance step 4, and the
// before-rehash hook of §4.A so expired entries don't force a spurious
// growth).
func (c *Cache[K, V]) dropExpiredLocked() {
	var victims []*entry[K, V]
	c.table.forEach(func(e *entry[K, V]) bool {
		if e.st != statePending && c.isExpiredLocked(e) {
			victims = append(victims, e)
		}
		return true
	})
	for _, e := range victims {
		c.unlinkEntry(e)
	}
}

// maintenance runs after every mutating operation (spec.md §4.D): ask
// size-bounding policies for a removal budget, pull that many cold victims
// from the queue, weaken or expire them, then sweep anything else whose
// expired() predicate has become true.
func (c *Cache[K, V]) maintenance() {
	budget := 0
	for _, r := range c.removers {
		if n := r.removalBudget(c); n > budget {
			budget = n
		}
	}
	if budget > 0 {
		for _, victim := range c.queue.lruExpire(budget) {
			c.evictLocked(victim)
		}
	}
	c.dropExpiredLocked()
}

// evictLocked applies the weaken-instead-of-expire substitution of
// spec.md §4.F to a single cold victim pulled from the queue (the queue
// link was already removed by lruExpire). A weakened entry stays in the
// table: it holds no strong reference to its value, but a later Get can
// still find it and strengthen it back as long as whatever else is
// holding the value keeps it alive. An entry with no weakener, or whose
// value has already let go, is expired and unlinked outright.
func (c *Cache[K, V]) evictLocked(e *entry[K, V]) {
	if c.weakener != nil && e.st == stateValue {
		e.weaken(c.weakener)
		if e.st == stateWeak {
			c.Metrics.add(metricWeaken, e.hash, 1)
			return
		}
	}
	e.markExpired()
	c.Metrics.add(metricEvict, e.hash, 1)
	c.fireUnlink(e)
	c.table.unlink(e)
}

// valueOf extracts the observable outcome of a live entry: its Value, or
// its Error if negative-caching is retaining it, attempting to strengthen a
// Weak entry first.
func (c *Cache[K, V]) valueOf(e *entry[K, V]) (V, error, bool) {
	if e.st == stateWeak {
		if e.strengthen() {
			c.Metrics.add(metricStrengthen, e.hash, 1)
		}
	}
	switch e.st {
	case stateValue:
		return e.value, nil, true
	case stateError:
		if c.negativeCache || e.negativeCached {
			return *new(V), e.err, true
		}
	}
	return *new(V), nil, false
}

// Get returns the value for key, resolving it via the configured
// synchronous resolver on a miss (spec.md §4.D "get").
func (c *Cache[K, V]) Get(key K) (V, error) {
	hash := c.hash(key)

	c.lock()
	if e := c.lookupLocked(hash, key); e != nil {
		if e.st == statePending {
			done := make(chan struct{})
			var v V
			var err error
			e.waiters = append(e.waiters, waiter[V]{
				deliver:  func(rv V, rerr error) { v, err = rv, rerr; close(done) },
				executor: inlineExecutor{},
				sync:     true,
			})
			c.unlock()
			<-done
			return v, err
		}
		if v, err, ok := c.valueOf(e); ok {
			c.fireHit(e)
			c.Metrics.add(metricHit, hash, 1)
			c.unlock()
			return v, err
		}
	}

	if c.resolver == nil {
		c.fireMiss(key)
		c.Metrics.add(metricMiss, hash, 1)
		c.unlock()
		return *new(V), ErrNotFound
	}

	e := c.newLiveEntry(hash, key)
	c.unlock()

	v, err := c.resolver(key)

	c.lock()
	defer c.unlock()
	return c.completeSyncLocked(e, v, err)
}

// completeSyncLocked applies a resolver's outcome to a Pending entry, fires
// assign, delivers to waiters, and runs maintenance. The caller must hold
// the lock. Used directly by Get's synchronous path and by completeAsync,
// so both honor an Erase/Clear that raced the in-flight resolve the same
// way: already-attached waiters still receive the outcome, but it is never
// cached (spec.md §4.E, "erase during an in-flight resolve"). Once the cache
// is closed, Close has already expired e and dropped its waiters, so the
// outcome is discarded and a no-value completion is returned.
func (c *Cache[K, V]) completeSyncLocked(e *entry[K, V], v V, err error) (V, error) {
	if c.closed {
		return *new(V), nil
	}
	if e.erased {
		wrapped := err
		if err != nil {
			wrapped = wrapKind(KindResolver, err)
		}
		waiters := e.waiters
		e.waiters = nil
		e.st = stateExpired
		c.unlinkEntry(e)
		for _, w := range waiters {
			deliver, rv, rerr := w.deliver, v, wrapped
			w.executor.Dispatch(func() { deliver(rv, rerr) })
		}
		c.maintenance()
		return v, wrapped
	}

	if err != nil {
		wrapped := wrapKind(KindResolver, err)
		waiters := e.assignError(wrapped)
		c.fireAssign(e)
		c.Metrics.add(metricAssignError, e.hash, 1)
		for _, w := range waiters {
			deliver, rv, rerr := w.deliver, *new(V), wrapped
			w.executor.Dispatch(func() { deliver(rv, rerr) })
		}
		if !e.negativeCached {
			e.st = stateExpired
			c.unlinkEntry(e)
		}
		c.maintenance()
		return *new(V), wrapped
	}

	waiters := e.assignValue(v)
	c.fireAssign(e)
	c.Metrics.add(metricAssignValue, e.hash, 1)
	for _, w := range waiters {
		deliver, rv := w.deliver, v
		w.executor.Dispatch(func() { deliver(rv, nil) })
	}
	c.maintenance()
	return v, nil
}

// GetIfExists returns the current value for key without ever resolving,
// blocking on a Pending entry, or firing hit/miss events (spec.md §4.D
// "get_if_exists").
func (c *Cache[K, V]) GetIfExists(key K) (V, bool) {
	hash := c.hash(key)
	c.lock()
	defer c.unlock()
	e := c.lookupLocked(hash, key)
	if e == nil || e.st == statePending {
		return *new(V), false
	}
	v, _, ok := c.valueOf(e)
	if !ok || e.st == stateError {
		return *new(V), false
	}
	return v, true
}

// GetOrEmplace returns the existing live value for key if one exists;
// otherwise it inserts value and returns it. Exactly one of hit or
// create+assign fires, per spec.md §9 Open Question 3. The whole call runs
// under the cache lock, so no concurrent insert can race it; a Pending entry
// for key does not count as existing, and a new Value entry is inserted in
// front of it.
func (c *Cache[K, V]) GetOrEmplace(key K, value V) V {
	hash := c.hash(key)
	c.lock()
	defer c.unlock()

	if e := c.lookupLocked(hash, key); e != nil && e.st == stateValue {
		c.fireHit(e)
		c.Metrics.add(metricHit, hash, 1)
		return e.value
	}

	e := c.newLiveEntry(hash, key)
	waiters := e.assignValue(value)
	c.fireAssign(e)
	c.Metrics.add(metricAssignValue, hash, 1)
	for _, w := range waiters {
		deliver, rv := w.deliver, value
		w.executor.Dispatch(func() { deliver(rv, nil) })
	}
	c.maintenance()
	return value
}

// Emplace unconditionally installs value for key, expiring any existing
// entry with the same key first (spec.md §4.D "emplace").
func (c *Cache[K, V]) Emplace(key K, value V) {
	hash := c.hash(key)
	c.lock()
	defer c.unlock()
	c.emplaceLockedHash(hash, key, value)
}

// EmplacePiecewise builds a value via build and installs it for key,
// standing in for the reference's in-place piecewise construction (there
// is no Go analogue to constructing a value in-storage from constructor
// arguments, so the constructor closure plays that role instead).
func (c *Cache[K, V]) EmplacePiecewise(key K, build func() V) {
	c.Emplace(key, build())
}

// emplaceLocked is used by the refresh driver, which already holds the
// lock when a refresh resolves.
func (c *Cache[K, V]) emplaceLocked(key K, value V) {
	c.emplaceLockedHash(c.hash(key), key, value)
}

func (c *Cache[K, V]) emplaceLockedHash(hash uint64, key K, value V) {
	c.table.forEachInBucket(hash, func(e *entry[K, V]) bool {
		if c.equal(key, e.key) {
			// A Pending entry being superseded is cancelled, not silently
			// orphaned: its waiters must not be left attached to an entry
			// that's about to leave the table, per the same no-callback
			// contract Close and cancelAsync honor.
			if e.st == statePending {
				for _, w := range e.cancelPending() {
					if w.sync {
						w.executor.Post(func() { w.deliver(*new(V), nil) })
					}
				}
			}
			c.unlinkEntry(e)
		}
		return true
	})
	e := c.newLiveEntry(hash, key)
	waiters := e.assignValue(value)
	c.fireAssign(e)
	c.Metrics.add(metricAssignValue, hash, 1)
	for _, w := range waiters {
		deliver, rv := w.deliver, value
		w.executor.Dispatch(func() { deliver(rv, nil) })
	}
	c.maintenance()
}

// Erase marks every live entry for key as expired. Matching entries stay
// linked until the next maintenance pass; a Pending entry's already
// registered waiters still receive its eventual resolver outcome, which is
// then not cached (spec.md §4.D "erase", §9 Open Question 1).
func (c *Cache[K, V]) Erase(key K) {
	hash := c.hash(key)
	c.lock()
	defer c.unlock()
	c.table.forEachInBucket(hash, func(e *entry[K, V]) bool {
		if c.equal(key, e.key) {
			c.eraseEntryLocked(e)
		}
		return true
	})
	c.maintenance()
}

func (c *Cache[K, V]) eraseEntryLocked(e *entry[K, V]) {
	if e.st == statePending {
		e.erased = true
		return
	}
	e.markExpired()
}

// Clear marks every entry in the cache as expired, the same way Erase does
// for a single key (spec.md §4.D "clear").
func (c *Cache[K, V]) Clear() {
	c.lock()
	defer c.unlock()
	c.table.forEach(func(e *entry[K, V]) bool {
		c.eraseEntryLocked(e)
		return true
	})
	c.maintenance()
}

// AsyncGet returns a handle that completes once key's value is resolved,
// using the configured asynchronous resolver (or the synchronous one, run
// on its own goroutine, if that's all that's configured). Completion is
// always delivered through an Executor — dispatched if it arrives later,
// posted (never inline) if the value was already available when the
// handle was created (spec.md §4.E).
func (c *Cache[K, V]) AsyncGet(key K) *AsyncHandle[V] {
	handle := newAsyncHandle[V]()
	hash := c.hash(key)

	c.lock()
	if e := c.lookupLocked(hash, key); e != nil {
		if e.st == statePending {
			e.waiters = append(e.waiters, waiter[V]{deliver: handle.deliver, executor: c.executor})
			c.unlock()
			return handle
		}
		if v, err, ok := c.valueOf(e); ok {
			c.fireHit(e)
			c.Metrics.add(metricHit, hash, 1)
			c.unlock()
			c.executor.Post(func() { handle.deliver(v, err) })
			return handle
		}
	}

	if c.asyncResolver == nil && c.resolver == nil {
		c.fireMiss(key)
		c.Metrics.add(metricMiss, hash, 1)
		c.unlock()
		c.executor.Post(func() { handle.deliver(*new(V), ErrNotFound) })
		return handle
	}

	e := c.newLiveEntry(hash, key)
	e.waiters = append(e.waiters, waiter[V]{deliver: handle.deliver, executor: c.executor})

	if c.asyncResolver != nil {
		cb := newCallback(c, e, key)
		c.unlock()
		c.asyncResolver(cb, key)
		return handle
	}

	c.unlock()
	go func() {
		v, err := c.resolver(key)
		c.lock()
		defer c.unlock()
		c.completeSyncLocked(e, v, err)
	}()
	return handle
}

// completeAsync applies an asynchronous resolver's outcome to e, used by
// Callback.Assign/AssignError (spec.md §4.E step 3).
func (c *Cache[K, V]) completeAsync(e *entry[K, V], key K, v V, err error) error {
	c.lock()
	defer c.unlock()
	if c.closed {
		return ErrClosed
	}
	if e.st != statePending {
		return nil
	}
	c.completeSyncLocked(e, v, err)
	return nil
}

// cancelAsync applies a Callback.Cancel to e: async waiters (attached
// AsyncHandles) receive nothing, and the entry transitions straight to
// Expired (spec.md §4.E, §7 "Cancellation"). A sync waiter — a Get blocked
// on this same Pending entry via single-flight — has no other way to
// return, so it still gets a no-value completion, exactly like Close.
func (c *Cache[K, V]) cancelAsync(e *entry[K, V], key K) error {
	c.lock()
	defer c.unlock()
	if e.st != statePending {
		return nil
	}
	waiters := e.cancelPending()
	for _, w := range waiters {
		if w.sync {
			w.executor.Post(func() { w.deliver(*new(V), nil) })
		}
	}
	c.unlinkEntry(e)
	c.maintenance()
	return nil
}
