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
	"io"
	"time"

	"github.com/ZaparooProject/go-rfbridge/internal/syncutil"
)

// Transport is the byte-oriented link to the coprocessor. The UART backend
// lives in transport/uart.
type Transport interface {
	// Read reads up to len(buf) bytes, waiting at most timeout for the first
	// byte. A timeout is not an error: it returns 0, nil.
	Read(buf []byte, timeout time.Duration) (int, error)

	// Write writes p to the device.
	Write(p []byte) (int, error)

	// Close closes the transport connection
	Close() error

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// FlowControl selects serial hardware flow control.
type FlowControl int

const (
	// FlowControlNone disables hardware flow control
	FlowControlNone FlowControl = iota
	// FlowControlRTSCTS enables RTS/CTS hardware flow control
	FlowControlRTSCTS
)

func (f FlowControl) String() string {
	switch f {
	case FlowControlNone:
		return "none"
	case FlowControlRTSCTS:
		return "rtscts"
	default:
		return "unknown"
	}
}

// FlowController is implemented by transports that can switch hardware flow
// control after opening.
type FlowController interface {
	SetFlowControl(mode FlowControl) error
}

// Notifier is implemented by transports that can signal asynchronously that
// the device has data, such as SIGIO on a serial fd. Notify calls fn for
// every notification until ctx is done.
type Notifier interface {
	Notify(ctx context.Context, fn func()) error
}

// HardwareControl drives the coprocessor's wake and reset lines. Both calls
// are fire-and-forget pulses.
type HardwareControl interface {
	AssertWakePulse() error
	AssertHardwareReset() error
}

// NoHardwareControl is a HardwareControl for coprocessors that wake on
// incoming bytes and have no reset line wired.
type NoHardwareControl struct{}

// AssertWakePulse does nothing.
func (NoHardwareControl) AssertWakePulse() error { return nil }

// AssertHardwareReset reports that no reset line is wired.
func (NoHardwareControl) AssertHardwareReset() error { return ErrResetFailed }

// MockTransport is an in-memory Transport for tests. Bytes queued with Inject
// are returned by Read; everything written is recorded.
type MockTransport struct {
	readCh  chan []byte
	pending []byte
	writes  [][]byte
	onWrite func(p []byte)
	readErr error
	mu      syncutil.Mutex
	closed  bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{readCh: make(chan []byte, 64)}
}

// Read implements Transport
func (m *MockTransport) Read(buf []byte, timeout time.Duration) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, NewTransportClosedError("read", "mock")
	}
	if err := m.readErr; err != nil {
		m.mu.Unlock()
		return 0, err
	}
	if len(m.pending) > 0 {
		n := copy(buf, m.pending)
		m.pending = m.pending[n:]
		m.mu.Unlock()
		return n, nil
	}
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case chunk := <-m.readCh:
		n := copy(buf, chunk)
		if n < len(chunk) {
			m.mu.Lock()
			m.pending = append(m.pending, chunk[n:]...)
			m.mu.Unlock()
		}
		return n, nil
	case <-timer.C:
		return 0, nil
	}
}

// Write implements Transport
func (m *MockTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, NewTransportClosedError("write", "mock")
	}
	m.writes = append(m.writes, append([]byte(nil), p...))
	hook := m.onWrite
	m.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return len(p), nil
}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Type implements Transport
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Inject queues bytes to be returned by Read.
func (m *MockTransport) Inject(p []byte) {
	m.readCh <- append([]byte(nil), p...)
}

// SetReadError makes every subsequent Read fail with err.
func (m *MockTransport) SetReadError(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// OnWrite registers a hook called after every Write.
func (m *MockTransport) OnWrite(fn func(p []byte)) {
	m.mu.Lock()
	m.onWrite = fn
	m.mu.Unlock()
}

// Writes returns a copy of everything written so far, one entry per Write.
func (m *MockTransport) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}

var (
	_ Transport = (*MockTransport)(nil)
	_ io.Closer = (*MockTransport)(nil)
)
