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

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ZaparooProject/go-rfbridge/internal/syncutil"
)

// Stats is a snapshot of codec counters.
type Stats struct {
	BytesReceived   uint64
	BytesDropped    uint64
	FramesExtracted uint64
	ChecksumErrors  uint64
	MalformedFrames uint64
	FramesBuilt     uint64
}

// Codec converts a raw byte stream to and from validated frames. It owns the
// receive ring and the sequence counter of one link.
//
// Receive and ExtractFrame may be called from different goroutines; the ring
// is guarded by its own lock. Build only touches the sequence counter and
// never blocks on the ring.
type Codec struct {
	ring *Ring
	seq  Sequence

	bytesReceived   atomic.Uint64
	bytesDropped    atomic.Uint64
	framesExtracted atomic.Uint64
	checksumErrors  atomic.Uint64
	malformedFrames atomic.Uint64
	framesBuilt     atomic.Uint64

	mu syncutil.Mutex
}

// NewCodec creates a codec with a RingCapacity receive buffer.
func NewCodec() *Codec {
	return NewCodecSize(RingCapacity)
}

// NewCodecSize creates a codec with a receive buffer of the given capacity,
// which must be a power of two.
func NewCodecSize(capacity int) *Codec {
	return &Codec{ring: NewRing(capacity)}
}

// Receive copies as many bytes of p as fit into the receive buffer and returns
// the count accepted. A full buffer is not an error; the caller decides what
// to do with the rest.
func (c *Codec) Receive(p []byte) int {
	c.mu.Lock()
	n := c.ring.Write(p)
	c.mu.Unlock()

	c.bytesReceived.Add(uint64(n))
	return n
}

// Buffered returns the number of bytes waiting in the receive buffer.
func (c *Codec) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ring.Len()
}

// Free returns the space left in the receive buffer.
func (c *Codec) Free() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ring.Free()
}

// Reset discards everything in the receive buffer.
func (c *Codec) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ring.Reset()
}

// ExtractFrame returns the next structurally complete logical frame in the
// receive buffer, unescaped but not yet validated. It returns false when no
// complete frame is buffered. Garbage is discarded silently.
func (c *Codec) ExtractFrame() ([]byte, bool) {
	c.mu.Lock()
	raw, dropped, ok := extract(c.ring)
	c.mu.Unlock()

	if dropped > 0 {
		c.bytesDropped.Add(uint64(dropped))
	}
	if ok {
		c.framesExtracted.Add(1)
	}
	return raw, ok
}

// Validate checks a frame returned by ExtractFrame.
func (c *Codec) Validate(raw []byte) (Frame, error) {
	f, err := Validate(raw)
	switch {
	case errors.Is(err, ErrChecksumMismatch):
		c.checksumErrors.Add(1)
	case err != nil:
		c.malformedFrames.Add(1)
	}
	return f, err
}

// Next extracts and validates frames until a valid one is found or the buffer
// holds no complete frame. Invalid frames are dropped; onDrop, if not nil, is
// told about each.
func (c *Codec) Next(onDrop func(raw []byte, err error)) (Frame, bool) {
	for {
		raw, ok := c.ExtractFrame()
		if !ok {
			return Frame{}, false
		}
		f, err := c.Validate(raw)
		if err == nil {
			return f, true
		}
		if onDrop != nil {
			onDrop(raw, err)
		}
	}
}

// Build assembles and escapes a frame for the wire, stamping it with the next
// sequence number.
func (c *Codec) Build(cmd byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}
	logical, err := Encode(cmd, c.seq.Next(), payload)
	if err != nil {
		return nil, err
	}
	c.framesBuilt.Add(1)
	return Escape(logical), nil
}

// Stats returns a snapshot of the codec counters.
func (c *Codec) Stats() Stats {
	return Stats{
		BytesReceived:   c.bytesReceived.Load(),
		BytesDropped:    c.bytesDropped.Load(),
		FramesExtracted: c.framesExtracted.Load(),
		ChecksumErrors:  c.checksumErrors.Load(),
		MalformedFrames: c.malformedFrames.Load(),
		FramesBuilt:     c.framesBuilt.Load(),
	}
}
