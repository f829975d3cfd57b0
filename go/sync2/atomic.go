/*
Copyright 2024 The Qserv Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package sync2 provides a small concurrency primitive layered on top
// of sync/atomic: an int64 counter accessed only atomically.
package sync2

import "sync/atomic"

// AtomicInt64 is an int64 that must be accessed atomically.
type AtomicInt64 struct {
	v int64
}

// Add adds delta and returns the new value.
func (i *AtomicInt64) Add(delta int64) int64 {
	return atomic.AddInt64(&i.v, delta)
}

// Get returns the current value.
func (i *AtomicInt64) Get() int64 {
	return atomic.LoadInt64(&i.v)
}
