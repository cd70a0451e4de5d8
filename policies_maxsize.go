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

// maxSizePolicy requests eviction down to a fixed entry count, depending on
// the queue policy for which entries are coldest (spec.md §4.C "Max-size",
// §4.F "Max-size policy requests max(0, size - limit) victims").
type maxSizePolicy[K comparable, V any] struct {
	limit int
}

func (maxSizePolicy[K, V]) name() string { return "max-size" }

func (p maxSizePolicy[K, V]) removalBudget(c *Cache[K, V]) int {
	if p.limit <= 0 {
		return 0
	}
	if over := c.table.size - p.limit; over > 0 {
		return over
	}
	return 0
}

// WithMaxSize bounds the cache to at most limit live entries, evicting the
// coldest entries from the hot/cold queue as needed.
func WithMaxSize[K comparable, V any](limit int) Option[K, V] {
	return WithPolicy[K, V](maxSizePolicy[K, V]{limit: limit})
}
