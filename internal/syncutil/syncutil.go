// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package syncutil provides the mutex types used across the module. By
// default they are the standard library mutexes; building with
// -tags=deadlock swaps in github.com/sasha-s/go-deadlock.
package syncutil

// Locked runs fn with m held.
func (m *Mutex) Locked(fn func()) {
	m.Lock()
	defer m.Unlock()
	fn()
}

// RLocked runs fn with m held for reading.
func (m *RWMutex) RLocked(fn func()) {
	m.RLock()
	defer m.RUnlock()
	fn()
}
