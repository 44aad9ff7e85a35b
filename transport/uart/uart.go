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

// Package uart implements the byte transport to the radio coprocessor over
// a serial port. It can also drive the wake and reset lines through the
// port's modem lines and signal incoming data with SIGIO on Linux.
package uart

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-rfbridge"
	"github.com/ZaparooProject/go-rfbridge/internal/syncutil"
	"go.bug.st/serial"
)

// DefaultBaudRate is the coprocessor's factory line speed.
const DefaultBaudRate = 115200

// Config describes how the serial port is opened.
type Config struct {
	// Lines drives wake and reset through DTR/RTS. Nil leaves the modem
	// lines alone.
	Lines       *LineControl
	BaudRate    int
	DataBits    int
	Parity      serial.Parity
	StopBits    serial.StopBits
	FlowControl rfbridge.FlowControl
}

// DefaultConfig returns 115200 8N1 without flow control or line control.
func DefaultConfig() Config {
	return Config{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

func (c Config) mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		Parity:   c.Parity,
		StopBits: c.StopBits,
	}
}

// Transport implements rfbridge.Transport over a serial port.
type Transport struct {
	port        serial.Port
	lines       *LineControl
	portName    string
	readTimeout time.Duration
	readMu      syncutil.Mutex
	writeMu     syncutil.Mutex
	lineMu      syncutil.Mutex
	closed      atomic.Bool
}

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// minReadTimeout returns the shortest read timeout the platform's serial
// driver honours reliably
func minReadTimeout() time.Duration {
	if isWindows() {
		return 20 * time.Millisecond
	}
	return time.Millisecond
}

// New opens portName with DefaultConfig.
func New(portName string) (*Transport, error) {
	return NewWithConfig(portName, DefaultConfig())
}

// NewWithConfig opens portName with cfg. Zero fields in cfg take their
// DefaultConfig values.
func NewWithConfig(portName string, cfg Config) (*Transport, error) {
	cfg = withDefaults(cfg)
	port, err := serial.Open(portName, cfg.mode())
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	t, err := newTransport(port, portName, cfg)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	if cfg.FlowControl != rfbridge.FlowControlNone {
		if err := t.SetFlowControl(cfg.FlowControl); err != nil {
			_ = port.Close()
			return nil, err
		}
	}
	return t, nil
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.BaudRate == 0 {
		cfg.BaudRate = def.BaudRate
	}
	if cfg.DataBits == 0 {
		cfg.DataBits = def.DataBits
	}
	return cfg
}

// newTransport wraps an open port. The modem lines start deasserted.
func newTransport(port serial.Port, portName string, cfg Config) (*Transport, error) {
	t := &Transport{
		port:     port,
		portName: portName,
		lines:    cfg.Lines,
	}
	if t.lines != nil {
		if err := t.lines.release(port); err != nil {
			return nil, fmt.Errorf("failed to release UART modem lines: %w", err)
		}
	}
	return t, nil
}

// Read implements rfbridge.Transport. It returns 0, nil when nothing
// arrives within timeout.
func (t *Transport) Read(buf []byte, timeout time.Duration) (int, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	if t.closed.Load() {
		return 0, rfbridge.NewTransportClosedError("read", t.portName)
	}
	if timeout < minReadTimeout() {
		timeout = minReadTimeout()
	}
	if timeout != t.readTimeout {
		if err := t.port.SetReadTimeout(timeout); err != nil {
			return 0, t.wrapErr("read", err)
		}
		t.readTimeout = timeout
	}

	n, err := t.port.Read(buf)
	if err != nil {
		if isInterruptedSystemCall(err) {
			return n, nil
		}
		return n, t.wrapErr("read", err)
	}
	return n, nil
}

// Write implements rfbridge.Transport and waits until the bytes have left
// the output buffer.
func (t *Transport) Write(p []byte) (int, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.closed.Load() {
		return 0, rfbridge.NewTransportClosedError("write", t.portName)
	}

	n, err := t.port.Write(p)
	if err != nil {
		return n, t.wrapErr("write", err)
	}
	if n != len(p) {
		return n, rfbridge.NewTransportWriteError("write", t.portName)
	}
	if err := t.drainWithRetry("write"); err != nil {
		return n, t.wrapErr("drain", err)
	}
	return n, nil
}

// Close implements rfbridge.Transport
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("failed to close UART port %s: %w", t.portName, err)
	}
	return nil
}

// Type implements rfbridge.Transport
func (*Transport) Type() rfbridge.TransportType {
	return rfbridge.TransportUART
}

// PortName returns the device path the transport was opened on.
func (t *Transport) PortName() string {
	return t.portName
}

// wrapErr classifies a port error. A closed port is permanent and a
// device-gone errno is passed through so it stays visible to
// rfbridge.IsFatal. Any other read failure is a transient read error.
func (t *Transport) wrapErr(op string, err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
		return rfbridge.NewTransportClosedError(op, t.portName)
	}
	if t.closed.Load() {
		return rfbridge.NewTransportClosedError(op, t.portName)
	}
	if op == "read" && !rfbridge.IsFatal(err) {
		return rfbridge.NewTransportReadError(op, t.portName, err)
	}
	return fmt.Errorf("UART %s on %s failed: %w", op, t.portName, err)
}

// isInterruptedSystemCall checks if an error is due to an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "interrupted system call")
}

// drainWithRetry performs port drain with retry logic for interrupted system calls
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = t.port.Drain()
		if err == nil {
			return nil
		}
		if !isInterruptedSystemCall(err) {
			return fmt.Errorf("%s drain failed: %w", operation, err)
		}
		if attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt))
		}
	}
	return fmt.Errorf("%s drain failed after %d retries: %w", operation, maxRetries, err)
}

var (
	_ rfbridge.Transport       = (*Transport)(nil)
	_ rfbridge.HardwareControl = (*Transport)(nil)
	_ rfbridge.FlowController  = (*Transport)(nil)
	_ rfbridge.Notifier        = (*Transport)(nil)
)
