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

// Package testing provides a wire-level simulation of the radio coprocessor
// for tests: it speaks the framed protocol over an in-memory byte stream and
// drives the wake/reset lines.
package testing

import (
	"errors"
	"sync"
	"time"

	"github.com/ZaparooProject/go-rfbridge/internal/frame"
)

// Protocol codes mirrored from the root package to avoid an import cycle
const (
	CmdDataRequest byte = 0x81
	CmdDataConfirm byte = 0x82
	CmdConfigure   byte = 0x10
	CmdControl     byte = 0x20
)

// ErrClosed is returned by I/O on a closed VirtualRadio.
var ErrClosed = errors.New("virtual radio closed")

// Responder produces the frames the radio sends after confirming a host
// frame, such as the reply to a get-info request.
type Responder func(f frame.Frame) []frame.Frame

// VirtualRadio simulates a sleeping radio coprocessor. A wake pulse makes it
// poll with DATA_REQUEST; every non-confirm frame it receives from the host
// is confirmed with DATA_CONFIRM. Behaviour can be degraded per test.
type VirtualRadio struct {
	codec     *frame.Codec
	seq       frame.Sequence
	out       chan []byte
	responder Responder
	wakeErr   error
	resetErr  error
	pending   []byte
	received  []frame.Frame
	pollDelay time.Duration
	wakes     int
	resets    int
	confirms  int
	corrupt   int
	polls     int
	mu        sync.Mutex
	noPoll    bool
	noConfirm bool
	closed    bool
}

// NewVirtualRadio creates a radio that polls and confirms promptly.
func NewVirtualRadio() *VirtualRadio {
	return &VirtualRadio{
		codec: frame.NewCodec(),
		out:   make(chan []byte, 256),
	}
}

// SetPolling controls whether a wake pulse is answered with DATA_REQUEST.
func (v *VirtualRadio) SetPolling(enabled bool) {
	v.mu.Lock()
	v.noPoll = !enabled
	v.mu.Unlock()
}

// SetPollDelay delays the DATA_REQUEST that follows a wake pulse.
func (v *VirtualRadio) SetPollDelay(d time.Duration) {
	v.mu.Lock()
	v.pollDelay = d
	v.mu.Unlock()
}

// SetConfirming controls whether host frames are confirmed.
func (v *VirtualRadio) SetConfirming(enabled bool) {
	v.mu.Lock()
	v.noConfirm = !enabled
	v.mu.Unlock()
}

// SetWakeError makes AssertWakePulse fail with err.
func (v *VirtualRadio) SetWakeError(err error) {
	v.mu.Lock()
	v.wakeErr = err
	v.mu.Unlock()
}

// SetResetError makes AssertHardwareReset fail with err.
func (v *VirtualRadio) SetResetError(err error) {
	v.mu.Lock()
	v.resetErr = err
	v.mu.Unlock()
}

// CorruptNext flips a checksum bit in the next n frames sent to the host.
func (v *VirtualRadio) CorruptNext(n int) {
	v.mu.Lock()
	v.corrupt = n
	v.mu.Unlock()
}

// SetResponder installs fn to answer host frames after they are confirmed.
func (v *VirtualRadio) SetResponder(fn Responder) {
	v.mu.Lock()
	v.responder = fn
	v.mu.Unlock()
}

// AssertWakePulse implements the wake line. Unless polling is disabled the
// radio answers with a DATA_REQUEST.
func (v *VirtualRadio) AssertWakePulse() error {
	v.mu.Lock()
	v.wakes++
	err := v.wakeErr
	poll := !v.noPoll && err == nil
	delay := v.pollDelay
	v.mu.Unlock()

	if !poll {
		return err
	}
	if delay > 0 {
		time.AfterFunc(delay, v.Poll)
	} else {
		v.Poll()
	}
	return nil
}

// AssertHardwareReset implements the reset line.
func (v *VirtualRadio) AssertHardwareReset() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.resets++
	if v.resetErr != nil {
		return v.resetErr
	}
	v.codec.Reset()
	return nil
}

// Poll sends a DATA_REQUEST to the host.
func (v *VirtualRadio) Poll() {
	v.mu.Lock()
	v.polls++
	v.mu.Unlock()
	v.Send(CmdDataRequest, nil)
}

// Send emits a frame to the host.
func (v *VirtualRadio) Send(cmd byte, payload []byte) {
	logical, err := frame.Encode(cmd, v.seq.Next(), payload)
	if err != nil {
		panic(err)
	}

	v.mu.Lock()
	if v.corrupt > 0 {
		v.corrupt--
		logical[len(logical)-1] ^= 0x01
	}
	v.mu.Unlock()

	v.SendRaw(frame.Escape(logical))
}

// SendRaw emits arbitrary bytes to the host.
func (v *VirtualRadio) SendRaw(p []byte) {
	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()
	if closed {
		return
	}
	v.out <- append([]byte(nil), p...)
}

// Read implements the host side of the byte stream. It waits at most
// timeout for data and returns 0, nil on timeout.
func (v *VirtualRadio) Read(buf []byte, timeout time.Duration) (int, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return 0, ErrClosed
	}
	if len(v.pending) > 0 {
		n := copy(buf, v.pending)
		v.pending = v.pending[n:]
		v.mu.Unlock()
		return n, nil
	}
	v.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case chunk := <-v.out:
		n := copy(buf, chunk)
		if n < len(chunk) {
			v.mu.Lock()
			v.pending = append(v.pending, chunk[n:]...)
			v.mu.Unlock()
		}
		return n, nil
	case <-timer.C:
		return 0, nil
	}
}

// Write receives bytes from the host, parses complete frames and reacts to
// them.
func (v *VirtualRadio) Write(p []byte) (int, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return 0, ErrClosed
	}
	v.mu.Unlock()

	v.codec.Receive(p)
	for {
		f, ok := v.codec.Next(nil)
		if !ok {
			break
		}
		v.handle(f)
	}
	return len(p), nil
}

func (v *VirtualRadio) handle(f frame.Frame) {
	v.mu.Lock()
	v.received = append(v.received, f)
	if f.Command == CmdDataConfirm {
		v.confirms++
		v.mu.Unlock()
		return
	}
	confirm := !v.noConfirm
	responder := v.responder
	v.mu.Unlock()

	if confirm {
		v.Send(CmdDataConfirm, nil)
	}
	if responder != nil {
		for _, r := range responder(f) {
			v.Send(r.Command, r.Payload)
		}
	}
}

// Close closes the simulated stream.
func (v *VirtualRadio) Close() error {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	return nil
}

// Received returns every frame the host has sent, DATA_CONFIRMs included.
func (v *VirtualRadio) Received() []frame.Frame {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]frame.Frame(nil), v.received...)
}

// ReceivedCommands returns the frames the host sent with command cmd.
func (v *VirtualRadio) ReceivedCommands(cmd byte) []frame.Frame {
	var out []frame.Frame
	for _, f := range v.Received() {
		if f.Command == cmd {
			out = append(out, f)
		}
	}
	return out
}

// Confirms returns how many DATA_CONFIRMs the host has sent.
func (v *VirtualRadio) Confirms() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.confirms
}

// Wakes returns how many wake pulses were asserted.
func (v *VirtualRadio) Wakes() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.wakes
}

// Resets returns how many hardware resets were asserted.
func (v *VirtualRadio) Resets() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resets
}

// Polls returns how many DATA_REQUESTs the radio has sent.
func (v *VirtualRadio) Polls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.polls
}
