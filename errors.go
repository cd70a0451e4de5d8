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
	"github.com/pkg/errors"
)

// Kind classifies the failures the cache can surface, per the error
// taxonomy: resolver failures, cancellation, allocation failure, logic
// violations (double completion) and overflow.
type Kind int

const (
	// KindResolver marks an error produced by a caller-supplied resolver.
	KindResolver Kind = iota
	// KindCancelled classifies ErrCancelled. Neither a closed cache nor a
	// callback's Cancel actually produce it (both drop waiters with a plain
	// no-value/no-callback completion instead, per spec.md §5/§7); it is
	// reserved for a caller-supplied resolver that wants to report its own
	// cancellation (e.g. a context.Canceled it chooses to surface) as a
	// distinguishable error kind rather than a generic KindResolver one.
	KindCancelled
	// KindAllocation marks an allocator failure while linking or rehashing.
	KindAllocation
	// KindLogic marks a contract violation, such as completing an
	// already-completed callback.
	KindLogic
	// KindOverflow marks an entry or bucket count that exceeds a
	// configured limit.
	KindOverflow
)

func (k Kind) String() string {
	switch k {
	case KindResolver:
		return "resolver"
	case KindCancelled:
		return "cancelled"
	case KindAllocation:
		return "allocation"
	case KindLogic:
		return "logic"
	case KindOverflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// kindError pairs a Kind with the underlying cause so that IsKind can
// classify it without string matching.
type kindError struct {
	kind  Kind
	cause error
}

func (e *kindError) Error() string {
	return e.kind.String() + ": " + e.cause.Error()
}

func (e *kindError) Unwrap() error {
	return e.cause
}

// wrapKind attaches a Kind to err, capturing a stack trace the first time
// the error is raised, in the style the teacher uses pkg/errors for.
func wrapKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, cause: errors.WithStack(err)}
}

func newKind(kind Kind, msg string) error {
	return &kindError{kind: kind, cause: errors.New(msg)}
}

// IsKind reports whether err (or something it wraps) was raised with the
// given Kind.
func IsKind(err error, kind Kind) bool {
	var ke *kindError
	for err != nil {
		if k, ok := err.(*kindError); ok {
			ke = k
			break
		}
		err = errors.Unwrap(err)
	}
	return ke != nil && ke.kind == kind
}

var (
	// ErrCancelled is not produced by any path in this package: a closed
	// cache and a callback's Cancel both drop waiters without a callback
	// (sync waiters get a no-value completion instead, see Close/cancelAsync
	// in cache.go). It is exported as a sentinel a caller-supplied resolver
	// may wrap its own cancellation in, so that IsKind(err, KindCancelled)
	// still classifies it usefully.
	ErrCancelled = newKind(KindCancelled, "hoardcache: resolution cancelled")
	// ErrAlreadyCompleted is returned by a resolver callback's Assign,
	// AssignError or Cancel method once any of the three has already run.
	ErrAlreadyCompleted = newKind(KindLogic, "hoardcache: callback already completed")
	// ErrClosed is returned by operations attempted after Close.
	ErrClosed = newKind(KindLogic, "hoardcache: cache is closed")
	// ErrNotFound is returned when no live entry exists for the key and
	// there is nothing to resolve it with: by Get when no synchronous
	// resolver is configured, by AsyncGet when neither kind is.
	ErrNotFound = errors.New("hoardcache: not found")
)
