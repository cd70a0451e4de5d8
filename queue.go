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

// hotColdQueue is the eviction-ordering structure of spec.md §4.F: a single
// doubly linked list (head..tail) partitioned by a midpoint into a
// contiguous hot prefix and a contiguous cold suffix. New entries are
// appended at the tail as cold; a hit moves its entry to the head and marks
// it hot. Either change can unbalance the partition by more than one, which
// rebalance restores by promoting or demoting exactly the entry adjacent to
// the midpoint — the same "chasing" trick the reference's queue.h uses,
// grounded on the teacher's list-based LRU in policy.go for the Go struct
// shape (map-free here since the table already gives O(1) entry lookup).
type hotColdQueue[K comparable, V any] struct {
	head, tail *entry[K, V]
	midpoint   *entry[K, V] // first cold entry, nil when coldCount == 0
	hotCount   int
	coldCount  int
}

func newHotColdQueue[K comparable, V any]() *hotColdQueue[K, V] {
	return &hotColdQueue[K, V]{}
}

func (q *hotColdQueue[K, V]) size() int { return q.hotCount + q.coldCount }

func (q *hotColdQueue[K, V]) pushHead(e *entry[K, V]) {
	e.qprev = nil
	e.qnext = q.head
	if q.head != nil {
		q.head.qprev = e
	}
	q.head = e
	if q.tail == nil {
		q.tail = e
	}
	e.inQueue = true
}

func (q *hotColdQueue[K, V]) pushTail(e *entry[K, V]) {
	e.qnext = nil
	e.qprev = q.tail
	if q.tail != nil {
		q.tail.qnext = e
	}
	q.tail = e
	if q.head == nil {
		q.head = e
	}
	e.inQueue = true
}

// detach removes e from the list and keeps hotCount/coldCount/midpoint
// consistent with e's current classification, without rebalancing.
func (q *hotColdQueue[K, V]) detach(e *entry[K, V]) {
	if !e.inQueue {
		return
	}
	if e == q.midpoint {
		q.midpoint = e.qnext
	}
	if e.qprev != nil {
		e.qprev.qnext = e.qnext
	} else {
		q.head = e.qnext
	}
	if e.qnext != nil {
		e.qnext.qprev = e.qprev
	} else {
		q.tail = e.qprev
	}
	e.qprev, e.qnext = nil, nil
	e.inQueue = false

	if e.hot {
		q.hotCount--
	} else {
		q.coldCount--
	}
}

// rebalance restores |hotCount - coldCount| <= 1 by moving exactly the
// entry adjacent to the midpoint, one step at a time (spec.md §4.F
// invariant).
func (q *hotColdQueue[K, V]) rebalance() {
	for q.hotCount-q.coldCount > 1 {
		demote := q.midpoint
		if demote != nil {
			demote = demote.qprev
		} else {
			demote = q.tail
		}
		if demote == nil {
			break
		}
		demote.hot = false
		q.hotCount--
		q.coldCount++
		q.midpoint = demote
	}
	for q.coldCount-q.hotCount > 1 {
		promote := q.midpoint
		if promote == nil {
			break
		}
		q.midpoint = promote.qnext
		promote.hot = true
		q.hotCount++
		q.coldCount--
	}
}

// onCreate links a freshly created entry into the cold tail, per §4.F.
func (q *hotColdQueue[K, V]) onCreate(e *entry[K, V]) {
	e.hot = false
	q.pushTail(e)
	q.coldCount++
	if q.midpoint == nil {
		q.midpoint = e
	}
	q.rebalance()
}

// onHit moves e to the hot head, promoting it out of the cold zone if
// necessary; the resulting imbalance is fixed by demoting the
// longest-resident hot entry (adjacent to the midpoint) back into cold.
func (q *hotColdQueue[K, V]) onHit(e *entry[K, V]) {
	if !e.inQueue {
		return
	}
	q.detach(e)
	e.hot = true
	q.pushHead(e)
	q.hotCount++
	q.rebalance()
}

// onUnlink removes e from the queue entirely (superseded, expired, evicted).
func (q *hotColdQueue[K, V]) onUnlink(e *entry[K, V]) {
	if !e.inQueue {
		return
	}
	q.detach(e)
	q.rebalance()
}

// lruExpire returns up to count cold entries, taken from the cold tail,
// leaving every hot entry untouched (spec.md §4.F). It only removes them
// from the queue; the caller (cache engine) decides whether to weaken each
// one, leaving it linked in the table, or to expire and unlink it.
func (q *hotColdQueue[K, V]) lruExpire(count int) []*entry[K, V] {
	victims := make([]*entry[K, V], 0, count)
	for len(victims) < count && q.coldCount > 0 {
		victim := q.tail
		if victim == nil || victim.hot {
			break
		}
		q.detach(victim)
		victims = append(victims, victim)
	}
	q.rebalance()
	return victims
}

// invariant reports whether the hot/cold balance and prefix/suffix
// partitioning hold; used by tests.
func (q *hotColdQueue[K, V]) invariant() bool {
	diff := q.hotCount - q.coldCount
	if diff < -1 || diff > 1 {
		return false
	}
	seenCold := false
	for e := q.head; e != nil; e = e.qnext {
		if !e.hot {
			seenCold = true
		} else if seenCold {
			return false // a hot entry following a cold one breaks the partition
		}
	}
	return true
}
