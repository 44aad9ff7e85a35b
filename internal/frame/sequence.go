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

package frame

import "sync/atomic"

// Sequence generates frame sequence numbers cycling 1..255. Zero is reserved
// and never returned. The zero value is ready to use and safe for concurrent
// use.
type Sequence struct {
	last atomic.Uint32
}

// Next returns the next sequence number.
func (s *Sequence) Next() byte {
	for {
		old := s.last.Load()
		next := old%255 + 1
		if s.last.CompareAndSwap(old, next) {
			return byte(next)
		}
	}
}

// Last returns the most recently issued number, or 0 if none was issued.
func (s *Sequence) Last() byte {
	return byte(s.last.Load())
}
