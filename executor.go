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

// Executor runs completion callbacks for AsyncGet (spec.md §6 "To
// executors"). Dispatch is used when the completion happens later, on
// whatever goroutine produced it; Post is used when the result is already
// available at registration time, so the caller never observes an inline
// (same-stack) invocation of its own callback.
type Executor interface {
	// Dispatch schedules fn to run for a deferred completion.
	Dispatch(fn func())
	// Post schedules fn to run for an already-resolved completion. Post
	// must never invoke fn synchronously from inside the Post call itself.
	Post(fn func())
}

// goroutineExecutor is the default Executor: every callback runs on its own
// goroutine, so Dispatch and Post behave identically and neither ever runs
// inline with the caller.
type goroutineExecutor struct{}

func (goroutineExecutor) Dispatch(fn func()) { go fn() }
func (goroutineExecutor) Post(fn func())     { go fn() }

// DefaultExecutor is the Executor every Cache built by New uses for its
// AsyncGet completions.
var DefaultExecutor Executor = goroutineExecutor{}

// inlineExecutor runs callbacks synchronously, Post included, so unlike the
// Executor contract its Post does run fn inside the call. Get uses it for
// its own blocking wait, whose callback only records the result and closes a
// channel and so may run under the cache lock; tests use it for
// deterministic ordering.
type inlineExecutor struct{}

func (inlineExecutor) Dispatch(fn func()) { fn() }
func (inlineExecutor) Post(fn func())     { fn() }
