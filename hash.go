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
	"hash/maphash"

	"github.com/cespare/xxhash/v2"
	farm "github.com/dgryski/go-farm"
)

// Hasher computes a stable hash for a key of type K. The core is generic
// over the hash function (spec.md §1 non-goals): callers may supply their
// own, or fall back to the default below.
type Hasher[K any] func(key K) uint64

// Equaler reports whether candidate matches key. Defaults to Go's built-in
// equality for comparable types.
type Equaler[K any] func(key, candidate K) bool

var mapHashSeed = maphash.MakeSeed()

// defaultHasher hashes any comparable type using hash/maphash's generic
// entry point. This is the stdlib fallback used when a cache is built
// without an explicit Hash policy: a type parameter can be anything
// comparable, and maphash.Comparable is the only stdlib (or pack) facility
// that hashes an arbitrary comparable value without forcing every caller to
// supply one. See DESIGN.md for why xxhash/go-farm are not used here.
func defaultHasher[K comparable]() Hasher[K] {
	return func(key K) uint64 {
		return maphash.Comparable(mapHashSeed, key)
	}
}

func defaultEqualer[K comparable]() Equaler[K] {
	return func(key, candidate K) bool {
		return key == candidate
	}
}

// StringHash is a Hasher[string] backed by xxhash, for callers who know
// their key type is string and want the teacher's hash library rather than
// the generic maphash fallback.
func StringHash(key string) uint64 {
	return xxhash.Sum64String(key)
}

// BytesHash is a Hasher[[]byte] backed by xxhash.
func BytesHash(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// FarmHash is an alternate Hasher[[]byte] backed by go-farm's fingerprint,
// for callers who want a hash function independent of xxhash.
func FarmHash(key []byte) uint64 {
	return farm.Fingerprint64(key)
}
