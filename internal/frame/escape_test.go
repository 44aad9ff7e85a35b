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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countFE(b []byte) int {
	return bytes.Count(b, []byte{SyncByte})
}

func TestEscape_RoundTrip(t *testing.T) {
	t.Parallel()

	allFE := bytes.Repeat([]byte{0xFE}, MaxPayloadSize)
	everyValue := make([]byte, MaxPayloadSize)
	for i := range everyValue {
		everyValue[i] = byte(i)
	}

	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "no FE", payload: []byte{0x01, 0x02, 0x03}},
		{name: "single FE", payload: []byte{0xFE}},
		{name: "FE at start and end", payload: []byte{0xFE, 0x00, 0x00, 0xFE}},
		{name: "FE followed by marker value", payload: []byte{0xFE, 0x5A, 0xFE, 0xFE}},
		{name: "all FE", payload: allFE},
		{name: "every byte value", payload: everyValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logical, err := Encode(0x20, 0x01, tt.payload)
			require.NoError(t, err)

			wire := Escape(logical)
			inserted := len(wire) - len(logical)
			assert.Equal(t, countFE(logical[SyncSize:]), inserted)
			assert.Equal(t, logical[:SyncSize], wire[:SyncSize])

			back, err := Unescape(wire)
			require.NoError(t, err)
			assert.Equal(t, logical, back)
		})
	}
}

func TestEscape_LeavesSyncPairAlone(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []byte{0xFE, 0xFE, 0xFE, 0x5A, 0x01}, Escape([]byte{0xFE, 0xFE, 0xFE, 0x01}))
	assert.Equal(t, []byte{0xFE, 0xFE}, Escape([]byte{0xFE, 0xFE}))
}

func TestUnescape_BadEscape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		wire []byte
	}{
		{name: "FE followed by other byte", wire: []byte{0xFE, 0xFE, 0x00, 0xFE, 0x01}},
		{name: "FE at end", wire: []byte{0xFE, 0xFE, 0x00, 0xFE}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Unescape(tt.wire)
			require.ErrorIs(t, err, ErrBadEscape)
		})
	}
}
