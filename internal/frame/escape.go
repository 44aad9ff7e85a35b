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

import "errors"

// ErrBadEscape is returned by Unescape when a 0xFE is not followed by the
// escape marker.
var ErrBadEscape = errors.New("frame: 0xFE not followed by escape marker")

// Escape byte-stuffs a logical frame for the wire. The sync pair is copied as
// is; every later 0xFE is followed by an injected EscapeByte.
func Escape(logical []byte) []byte {
	if len(logical) <= SyncSize {
		return append([]byte(nil), logical...)
	}

	extra := 0
	for _, b := range logical[SyncSize:] {
		if b == SyncByte {
			extra++
		}
	}

	out := make([]byte, 0, len(logical)+extra)
	out = append(out, logical[:SyncSize]...)
	for _, b := range logical[SyncSize:] {
		out = append(out, b)
		if b == SyncByte {
			out = append(out, EscapeByte)
		}
	}
	return out
}

// Unescape reverses Escape on a single complete wire frame.
func Unescape(wire []byte) ([]byte, error) {
	if len(wire) <= SyncSize {
		return append([]byte(nil), wire...), nil
	}

	out := make([]byte, 0, len(wire))
	out = append(out, wire[:SyncSize]...)
	for i := SyncSize; i < len(wire); i++ {
		b := wire[i]
		out = append(out, b)
		if b != SyncByte {
			continue
		}
		if i+1 >= len(wire) || wire[i+1] != EscapeByte {
			return nil, ErrBadEscape
		}
		i++
	}
	return out, nil
}
