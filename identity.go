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

// NewIdentitySet builds a Cache whose key type and value type coincide
// (spec.md §9 "Identity-set mode"): rather than the reference's dedicated
// sentinel identity-key type, this models the mode as a distinct
// constructor with K == V, so membership ("does this value already have an
// entry") and lookup are the same operation.
// For an identity set, membership is Cache.GetIfExists(value) and insertion
// is Cache.Emplace(value, value) — since K and V are the same type here,
// no separate Add/Contains API is needed.
func NewIdentitySet[V comparable](opts ...Option[V, V]) *Cache[V, V] {
	return New[V, V](opts...)
}
