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

// weakHandle is a non-owning reference produced by a Weakener, capable of
// trying to recover a live value (spec.md §4.C "Pointer policy").
type weakHandle[V any] interface {
	// Strengthen attempts to recover the original value. ok is false once
	// every external strong owner has released the pointee.
	Strengthen() (V, bool)
}

// Weakener lets a cache holding a managed-pointer value type downgrade a
// Value entry to a Weak one instead of expiring it outright, grounded on
// original_source/include/libhoard/pointer_policy.h and weaken_policy.h:
// "weaken" only has teeth when the value type is some kind of managed
// pointer with its own weak-reference flavor (Go's closest stdlib analogue
// would be a finalizer, which this package deliberately avoids — callers
// supply their own Weakener implementation, e.g. backed by a refcounted
// wrapper type).
type Weakener[V any] interface {
	// Weaken produces a weakHandle for v. ok is false if v's type cannot
	// produce a non-owning handle (e.g. v is not actually a managed
	// pointer), in which case the caller should fall back to expiring the
	// entry outright.
	Weaken(v V) (weakHandle[V], bool)
}

// weakenPolicy is the Weaken flag policy of spec.md §4.C: in combination
// with a Weakener, lruExpire victims are weakened instead of expired.
type weakenPolicy[K comparable, V any] struct {
	weakener Weakener[V]
}

func (weakenPolicy[K, V]) name() string { return "weaken" }

// WithWeaken enables weaken-instead-of-expire for cold evictions, using w to
// produce non-owning handles for the cache's managed-pointer value type.
func WithWeaken[K comparable, V any](w Weakener[V]) Option[K, V] {
	return WithPolicy[K, V](weakenPolicy[K, V]{weakener: w})
}

// funcWeakener adapts a plain function into a Weakener, for callers who
// don't want to define a named type just to supply one.
type funcWeakener[V any] struct {
	weaken func(V) (weakHandle[V], bool)
}

func (f funcWeakener[V]) Weaken(v V) (weakHandle[V], bool) { return f.weaken(v) }

// funcWeakHandle adapts a plain closure into a weakHandle.
type funcWeakHandle[V any] struct {
	strengthen func() (V, bool)
}

func (f funcWeakHandle[V]) Strengthen() (V, bool) { return f.strengthen() }

// NewFuncWeakener builds a Weakener from two closures: one that downgrades a
// strong value to a weak handle, and one (embedded in the returned handle)
// that attempts to recover it.
func NewFuncWeakener[V any](weaken func(V) (func() (V, bool), bool)) Weakener[V] {
	return funcWeakener[V]{weaken: func(v V) (weakHandle[V], bool) {
		strengthen, ok := weaken(v)
		if !ok {
			return nil, false
		}
		return funcWeakHandle[V]{strengthen: strengthen}, true
	}}
}
