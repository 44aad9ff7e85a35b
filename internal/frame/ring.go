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

import "fmt"

// Ring is a fixed-capacity circular byte buffer. The read and write cursors
// only ever grow; the physical index is the cursor masked by capacity-1, which
// is why the capacity has to be a power of two.
//
// Invariant: write-read <= capacity.
//
// Ring is not safe for concurrent use; Codec guards it.
type Ring struct {
	buf   []byte
	mask  uint64
	read  uint64
	write uint64
}

// NewRing creates a ring buffer. It panics if capacity is not a positive
// power of two.
func NewRing(capacity int) *Ring {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic(fmt.Sprintf("frame: ring capacity %d is not a power of two", capacity))
	}
	return &Ring{
		buf:  make([]byte, capacity),
		mask: uint64(capacity - 1),
	}
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Len returns the number of buffered bytes.
func (r *Ring) Len() int {
	return int(r.write - r.read)
}

// Free returns the number of bytes that can be written without overflow.
func (r *Ring) Free() int {
	return len(r.buf) - r.Len()
}

// Write copies as many bytes of p as fit and returns the count accepted.
// It never overwrites unread data and never fails.
func (r *Ring) Write(p []byte) int {
	n := min(len(p), r.Free())
	for i := range n {
		r.buf[(r.write+uint64(i))&r.mask] = p[i]
	}
	r.write += uint64(n)
	return n
}

// Reset discards all buffered bytes.
func (r *Ring) Reset() {
	r.read = r.write
}

// at returns the byte at the absolute cursor position pos.
func (r *Ring) at(pos uint64) byte {
	return r.buf[pos&r.mask]
}

// advance moves the read cursor to pos.
func (r *Ring) advance(pos uint64) {
	if pos > r.write {
		pos = r.write
	}
	if pos > r.read {
		r.read = pos
	}
}
