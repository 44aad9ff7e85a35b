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
	"encoding/binary"
	"errors"
	"fmt"
)

// Validation errors
var (
	ErrChecksumMismatch = errors.New("frame: checksum mismatch")
	ErrMalformedFrame   = errors.New("frame: malformed frame")
	ErrPayloadTooLarge  = errors.New("frame: payload too large")
)

// Frame is a validated logical frame.
type Frame struct {
	Payload  []byte
	Command  byte
	Sequence byte
}

// Validate checks a logical (unescaped) frame and splits it into its fields.
// A checksum mismatch is returned as ErrChecksumMismatch; the caller drops the
// frame, there is no negative acknowledgement.
func Validate(raw []byte) (Frame, error) {
	if len(raw) < MinFrameSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrMalformedFrame, len(raw))
	}
	if raw[0] != SyncByte || raw[1] != SyncByte {
		return Frame{}, fmt.Errorf("%w: missing sync", ErrMalformedFrame)
	}

	length := int(binary.BigEndian.Uint16(raw[offLength:]))
	if length+HeaderSize != len(raw) {
		return Frame{}, fmt.Errorf("%w: length field %d for %d bytes", ErrMalformedFrame, length, len(raw))
	}

	body := len(raw) - ChecksumSize
	want := binary.BigEndian.Uint16(raw[body:])
	if got := Checksum(raw[:body]); got != want {
		return Frame{}, fmt.Errorf("%w: got 0x%04X, want 0x%04X", ErrChecksumMismatch, got, want)
	}

	payload := make([]byte, body-offPayload)
	copy(payload, raw[offPayload:body])
	return Frame{
		Command:  raw[offCommand],
		Sequence: raw[offSequence],
		Payload:  payload,
	}, nil
}

// Encode assembles a logical frame. It does not escape; see Escape.
func Encode(cmd, seq byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	out := make([]byte, MinFrameSize+len(payload))
	out[0], out[1] = SyncByte, SyncByte
	binary.BigEndian.PutUint16(out[offLength:], uint16(len(payload)+Overhead))
	out[offCommand] = cmd
	out[offSequence] = seq
	copy(out[offPayload:], payload)

	body := len(out) - ChecksumSize
	binary.BigEndian.PutUint16(out[body:], Checksum(out[:body]))
	return out, nil
}
