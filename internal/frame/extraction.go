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

import "encoding/binary"

// lexState is the position of the scanner within a frame.
type lexState uint8

const (
	stateSync1 lexState = iota
	stateSync2
	stateLenHi
	stateLenLo
	statePayload
)

func (s lexState) String() string {
	switch s {
	case stateSync1:
		return "SYNC1"
	case stateSync2:
		return "SYNC2"
	case stateLenHi:
		return "LEN_HI"
	case stateLenLo:
		return "LEN_LO"
	case statePayload:
		return "PAYLOAD"
	default:
		return "UNKNOWN"
	}
}

// tokenKind classifies what the escape-aware reader found at a position
// after the sync pair.
type tokenKind uint8

const (
	// tokLiteral is a plain byte, or FE 5A decoded to FE.
	tokLiteral tokenKind = iota
	// tokResync is FE FE: a new frame starts here.
	tokResync
	// tokBadEscape is FE followed by anything other than 5A or FE.
	tokBadEscape
	// tokNeedMore is FE as the last buffered byte.
	tokNeedMore
)

// token reads one logical byte at pos using one byte of lookahead.
// It returns the decoded byte, its kind and the position after it.
//
//	b != FE  -> literal b, 1 byte
//	FE 5A    -> literal FE, 2 bytes
//	FE FE    -> resync at pos
//	FE x     -> bad escape
//	FE <end> -> need more
func token(r *Ring, pos, end uint64) (byte, tokenKind, uint64) {
	b := r.at(pos)
	if b != SyncByte {
		return b, tokLiteral, pos + 1
	}
	if pos+1 >= end {
		return 0, tokNeedMore, pos
	}
	switch r.at(pos + 1) {
	case EscapeByte:
		return SyncByte, tokLiteral, pos + 2
	case SyncByte:
		return 0, tokResync, pos
	default:
		return 0, tokBadEscape, pos
	}
}

// scanResult tells the caller what to do with the read cursor.
type scanResult uint8

const (
	// scanComplete: a frame was decoded; cursor is the position after it and
	// start the position of its first sync byte.
	scanComplete scanResult = iota
	// scanNeedMore: wait for data; bytes before cursor may be discarded.
	scanNeedMore
	// scanRestart: framing error; discard bytes before cursor and scan again.
	scanRestart
)

// scan runs the lexer once from the ring's read cursor. Every scanRestart
// returns a cursor strictly past the current read position, so repeated
// scanning always terminates.
//
// Framing errors after the sync pair (bad escape, malformed length) drop only
// the first sync byte. A sync pair seen inside a frame abandons it and the
// new frame starts at that pair.
func scan(r *Ring) (frame []byte, res scanResult, cursor, start uint64) {
	var (
		pos    = r.read
		end    = r.write
		length int
		out    []byte
	)

	state := stateSync1
	for {
		switch state {
		case stateSync1:
			for pos < end && r.at(pos) != SyncByte {
				pos++
			}
			if pos == end {
				return nil, scanNeedMore, pos, pos
			}
			start = pos
			pos++
			state = stateSync2

		case stateSync2:
			if pos >= end {
				return nil, scanNeedMore, start, start
			}
			if r.at(pos) != SyncByte {
				return nil, scanRestart, pos + 1, start
			}
			pos++
			out = append(make([]byte, 0, MinFrameSize), SyncByte, SyncByte)
			state = stateLenHi

		case stateLenHi, stateLenLo, statePayload:
			if pos >= end {
				return nil, scanNeedMore, start, start
			}
			b, kind, next := token(r, pos, end)
			switch kind {
			case tokNeedMore:
				return nil, scanNeedMore, start, start
			case tokResync:
				return nil, scanRestart, pos, start
			case tokBadEscape:
				return nil, scanRestart, start + 1, start
			case tokLiteral:
			}
			out = append(out, b)
			pos = next

			switch state {
			case stateLenHi:
				state = stateLenLo
			case stateLenLo:
				length = int(binary.BigEndian.Uint16(out[offLength:]))
				if length < Overhead || length > MaxPayloadSize+Overhead {
					return nil, scanRestart, start + 1, start
				}
				state = statePayload
			case statePayload:
				if len(out) == HeaderSize+length {
					return out, scanComplete, pos, start
				}
			}
		}
	}
}

// extract pulls the next structurally complete frame out of the ring. It
// returns the unescaped logical frame and the number of bytes dropped while
// resynchronising.
func extract(r *Ring) (frame []byte, dropped int, ok bool) {
	for {
		before := r.read
		out, res, cursor, start := scan(r)
		switch res {
		case scanComplete:
			dropped += int(start - before)
			r.advance(cursor)
			return out, dropped, true
		case scanNeedMore:
			dropped += int(cursor - before)
			r.advance(cursor)
			return nil, dropped, false
		case scanRestart:
			dropped += int(cursor - before)
			r.advance(cursor)
		}
	}
}
