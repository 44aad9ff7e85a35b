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

package rfbridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-rfbridge/internal/frame"
	testutil "github.com/ZaparooProject/go-rfbridge/internal/testing"
)

// radioTransport adapts the virtual radio to Transport.
type radioTransport struct {
	*testutil.VirtualRadio
}

func (radioTransport) Type() TransportType { return TransportMock }

// fakeTimer is a TimerService whose timers only fire when the test says so.
type fakeTimer struct {
	armed     map[uint64]func()
	durations map[uint64]time.Duration
	cancelled []uint64
	lastID    uint64
	arms      int
	mu        sync.Mutex
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{
		armed:     make(map[uint64]func()),
		durations: make(map[uint64]time.Duration),
	}
}

func (f *fakeTimer) ArmOneShot(id uint64, d time.Duration, fn func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.arms++
	f.lastID = id
	f.armed[id] = fn
	f.durations[id] = d
	return nil
}

func (f *fakeTimer) Cancel(id uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	_, ok := f.armed[id]
	delete(f.armed, id)
	return ok
}

// Fire runs the callback armed for id, if any.
func (f *fakeTimer) Fire(id uint64) bool {
	f.mu.Lock()
	fn, ok := f.armed[id]
	delete(f.armed, id)
	f.mu.Unlock()
	if ok {
		fn()
	}
	return ok
}

func (f *fakeTimer) Arms() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.arms
}

func (f *fakeTimer) Cancelled() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.cancelled...)
}

func (f *fakeTimer) Armed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.armed)
}

// LastID returns the id of the most recently armed timer.
func (f *fakeTimer) LastID() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastID
}

// waitArmed waits until a timer is armed and returns its id.
func waitArmed(t *testing.T, f *fakeTimer) uint64 {
	t.Helper()
	require.Eventually(t, func() bool { return f.Armed() > 0 }, time.Second, time.Millisecond)
	return f.LastID()
}

// startLink creates and starts a link over a fresh virtual radio. The link
// is closed when the test ends.
func startLink(t *testing.T, opts ...Option) (*Link, *testutil.VirtualRadio) {
	t.Helper()

	radio := testutil.NewVirtualRadio()
	opts = append([]Option{WithReadTimeout(5 * time.Millisecond), WithPortName("virtual")}, opts...)
	link, err := NewLink(radioTransport{radio}, radio, opts...)
	require.NoError(t, err)
	require.NoError(t, link.Start(context.Background()))
	t.Cleanup(func() { _ = link.Close() })
	return link, radio
}

// wireFrame builds a radio-to-host frame with its own sequence space.
func wireFrame(t *testing.T, cmd byte, payload []byte) []byte {
	t.Helper()
	wire, err := frame.NewCodec().Build(cmd, payload)
	require.NoError(t, err)
	return wire
}
