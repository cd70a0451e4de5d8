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

// negativeCachePolicy marks every Error entry it sees as retainable;
// without it, an Error entry is delivered to its waiters once and then
// expired immediately, rather than staying around for a later Get to reuse
// (spec.md §4.C "Negative-cache").
type negativeCachePolicy[K comparable, V any] struct{}

func (negativeCachePolicy[K, V]) name() string { return "negative-cache" }

func (negativeCachePolicy[K, V]) onAssign(c *Cache[K, V], e *entry[K, V]) {
	if e.st == stateError {
		e.negativeCached = true
	}
}
