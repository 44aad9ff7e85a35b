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

// Package frame implements the byte-stream framing used on the serial link to
// the radio coprocessor: synchronisation, byte-stuffing, checksums and frame
// extraction from a receive ring buffer. It knows nothing about command
// semantics.
package frame

// Frame markers
const (
	SyncByte   = 0xFE // Sync marker, sent twice at the start of every frame
	EscapeByte = 0x5A // Filler injected after every 0xFE that follows the sync pair
)

// Frame layout
const (
	SyncSize     = 2 // Two sync bytes
	HeaderSize   = 4 // Sync pair + 16-bit length
	Overhead     = 4 // Command + sequence + 16-bit checksum, counted by the length field
	ChecksumSize = 2

	// MinFrameSize is the logical size of a frame with an empty payload.
	MinFrameSize = HeaderSize + Overhead
)

// Frame size limits
const (
	// MaxPayloadSize is the largest payload the peer firmware accepts.
	MaxPayloadSize = 256
	// MaxFrameSize is the largest logical (unescaped) frame.
	MaxFrameSize = MaxPayloadSize + MinFrameSize
	// MaxWireSize is the worst-case escaped size of a frame on the wire.
	MaxWireSize = SyncSize + 2*(MaxFrameSize-SyncSize)

	// RingCapacity is the receive buffer size. It must stay a power of two and
	// larger than MaxWireSize so a full buffer always holds a complete frame.
	RingCapacity = 2048
)

// Field offsets within a logical frame
const (
	offLength   = 2
	offCommand  = 4
	offSequence = 5
	offPayload  = 6
)
