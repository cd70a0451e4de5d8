/*
 * Copyright 2021 Dgraph Labs, Inc. and Contributors
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
	"bytes"
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

type metricType int

const (
	metricHit metricType = iota
	metricMiss
	metricCreate
	metricAssignValue
	metricAssignError
	metricEvict
	metricWeaken
	metricStrengthen
	metricRefresh
	metricRefreshError
	metricDoNotUse
)

func stringFor(t metricType) string {
	switch t {
	case metricHit:
		return "hits"
	case metricMiss:
		return "misses"
	case metricCreate:
		return "entries-created"
	case metricAssignValue:
		return "values-assigned"
	case metricAssignError:
		return "errors-assigned"
	case metricEvict:
		return "entries-evicted"
	case metricWeaken:
		return "entries-weakened"
	case metricStrengthen:
		return "entries-strengthened"
	case metricRefresh:
		return "refreshes-completed"
	case metricRefreshError:
		return "refreshes-failed"
	default:
		return "unidentified"
	}
}

// Metrics is a snapshot of the counters a Cache accumulates over its
// lifetime (spec.md §8's testable properties are all about state, not
// counts, but a production cache still wants these for observability — the
// ambient stack this module carries regardless, grounded directly on the
// teacher's metrics.go).
type Metrics struct {
	all [metricDoNotUse][]*uint64
}

// newMetrics lays out shards per counter so independent goroutines
// incrementing different shards don't false-share a cache line, exactly as
// the teacher's metrics.go does.
func newMetrics() *Metrics {
	m := &Metrics{}
	for i := range m.all {
		shard := make([]*uint64, 256)
		for j := range shard {
			shard[j] = new(uint64)
		}
		m.all[i] = shard
	}
	return m
}

func (m *Metrics) add(t metricType, hash uint64, delta uint64) {
	if m == nil {
		return
	}
	idx := (hash % 25) * 10
	atomic.AddUint64(m.all[t][idx], delta)
}

func (m *Metrics) get(t metricType) uint64 {
	if m == nil {
		return 0
	}
	var total uint64
	for _, p := range m.all[t] {
		total += atomic.LoadUint64(p)
	}
	return total
}

// Hits is the number of Get/AsyncGet/GetOrEmplace calls that found a live
// entry.
func (m *Metrics) Hits() uint64 { return m.get(metricHit) }

// Misses is the number of Get/AsyncGet calls that found no live entry and
// had no resolver to call; a lookup that goes on to resolve is not counted.
func (m *Metrics) Misses() uint64 { return m.get(metricMiss) }

// EntriesCreated is the number of entries linked into the table, whether
// created for a resolver or by Emplace/GetOrEmplace.
func (m *Metrics) EntriesCreated() uint64 { return m.get(metricCreate) }

// ValuesAssigned is the number of entries that completed with a value.
func (m *Metrics) ValuesAssigned() uint64 { return m.get(metricAssignValue) }

// ErrorsAssigned is the number of entries that completed with an error.
func (m *Metrics) ErrorsAssigned() uint64 { return m.get(metricAssignError) }

// EntriesEvicted is the number of cold entries the max-size policy expired
// and unlinked; entries dropped for expiry, weakened, or removed by
// Erase/Clear are not counted.
func (m *Metrics) EntriesEvicted() uint64 { return m.get(metricEvict) }

// EntriesWeakened is the number of cold entries downgraded to Weak instead
// of expired outright.
func (m *Metrics) EntriesWeakened() uint64 { return m.get(metricWeaken) }

// EntriesStrengthened is the number of Weak entries successfully recovered
// by a later Get.
func (m *Metrics) EntriesStrengthened() uint64 { return m.get(metricStrengthen) }

// RefreshesCompleted is the number of background refreshes that produced a
// new value.
func (m *Metrics) RefreshesCompleted() uint64 { return m.get(metricRefresh) }

// RefreshesFailed is the number of background refreshes whose resolver
// returned an error.
func (m *Metrics) RefreshesFailed() uint64 { return m.get(metricRefreshError) }

// Ratio is Hits over (Hits + Misses), i.e. the fraction of lookups that
// found a live entry.
func (m *Metrics) Ratio() float64 {
	if m == nil {
		return 0
	}
	hits, misses := m.get(metricHit), m.get(metricMiss)
	if hits == 0 && misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

// Clear resets every counter to zero.
func (m *Metrics) Clear() {
	if m == nil {
		return
	}
	for i := range m.all {
		for _, p := range m.all[i] {
			atomic.StoreUint64(p, 0)
		}
	}
}

// String renders every counter, human-readable counts included, in the
// teacher's space-separated "name: value" format.
func (m *Metrics) String() string {
	if m == nil {
		return ""
	}
	var buf bytes.Buffer
	for i := 0; i < int(metricDoNotUse); i++ {
		t := metricType(i)
		fmt.Fprintf(&buf, "%s: %s ", stringFor(t), humanize.Comma(int64(m.get(t))))
	}
	fmt.Fprintf(&buf, "hit-ratio: %.2f", m.Ratio())
	return buf.String()
}
