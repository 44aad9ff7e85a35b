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
	"errors"
	"fmt"
	"io"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "transport timeout retryable", err: ErrTransportTimeout, want: true},
		{name: "transport read retryable", err: ErrTransportRead, want: true},
		{name: "transport write retryable", err: ErrTransportWrite, want: true},
		{name: "wrapped write retryable", err: fmt.Errorf("open: %w", ErrTransportWrite), want: true},
		{name: "transport closed not retryable", err: ErrTransportClosed, want: false},
		{name: "transaction timeout not retryable", err: ErrTransactionTimeout, want: false},
		{name: "transaction pending not retryable", err: ErrTransactionPending, want: false},
		{name: "device not found not retryable", err: ErrDeviceNotFound, want: false},
		{name: "invalid parameter not retryable", err: ErrInvalidParameter, want: false},
		{name: "data too large not retryable", err: ErrDataTooLarge, want: false},
		{name: "random error not retryable", err: errors.New("random error"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := IsRetryable(tt.err)
			if got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "transport closed is fatal", err: ErrTransportClosed, want: true},
		{name: "link closed is fatal", err: ErrLinkClosed, want: true},
		{name: "device not found is fatal", err: ErrDeviceNotFound, want: true},
		{name: "EOF is fatal", err: io.EOF, want: true},
		{name: "closed pipe is fatal", err: io.ErrClosedPipe, want: true},
		{name: "transport timeout is not fatal", err: ErrTransportTimeout, want: false},
		{name: "transport read is not fatal", err: ErrTransportRead, want: false},
		{name: "transaction timeout is not fatal", err: ErrTransactionTimeout, want: false},
		{name: "random error is not fatal", err: errors.New("random error"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := IsFatal(tt.err)
			if got != tt.want {
				t.Errorf("IsFatal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsFatal_TransportError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		transport *TransportError
		name      string
		want      bool
	}{
		{
			name:      "permanent type is fatal",
			transport: NewTransportError("read", "/dev/ttyUSB0", errors.New("device disconnected"), ErrorTypePermanent),
			want:      true,
		},
		{
			name:      "transient type is not fatal",
			transport: NewTransportReadError("read", "/dev/ttyUSB0", nil),
			want:      false,
		},
		{
			name:      "timeout type is not fatal",
			transport: NewTransportError("read", "/dev/ttyUSB0", ErrTransportTimeout, ErrorTypeTimeout),
			want:      false,
		},
		{
			name:      "closed transport is fatal",
			transport: NewTransportClosedError("write", "/dev/ttyUSB0"),
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := IsFatal(tt.transport)
			if got != tt.want {
				t.Errorf("IsFatal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsFatal_SyscallErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "EIO is fatal", err: syscall.EIO, want: true},
		{name: "ENXIO is fatal", err: syscall.ENXIO, want: true},
		{name: "ENODEV is fatal", err: syscall.ENODEV, want: true},
		{name: "wrapped EIO is fatal", err: fmt.Errorf("write failed: %w", syscall.EIO), want: true},
		{
			name: "double-wrapped ENXIO is fatal",
			err:  fmt.Errorf("operation failed: %w", fmt.Errorf("write: %w", syscall.ENXIO)),
			want: true,
		},
		{name: "EAGAIN is not fatal", err: syscall.EAGAIN, want: false},
		{name: "EINTR is not fatal", err: syscall.EINTR, want: false},
		{name: "ETIMEDOUT is not fatal", err: syscall.ETIMEDOUT, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := IsFatal(tt.err)
			if got != tt.want {
				t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNewTransportError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		errType   ErrorType
		retryable bool
	}{
		{name: "transient", errType: ErrorTypeTransient, retryable: true},
		{name: "timeout", errType: ErrorTypeTimeout, retryable: true},
		{name: "permanent", errType: ErrorTypePermanent, retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := NewTransportError("open", "/dev/ttyACM0", ErrTransportRead, tt.errType)
			if err.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", err.Retryable, tt.retryable)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", IsRetryable(err), tt.retryable)
			}
			if !errors.Is(err, ErrTransportRead) {
				t.Error("errors.Is should reach the wrapped sentinel")
			}
		})
	}
}

func TestTransportError_Error(t *testing.T) {
	t.Parallel()

	withPort := NewTransportError("read", "/dev/ttyUSB0", ErrTransportTimeout, ErrorTypeTimeout)
	if got, want := withPort.Error(), "read /dev/ttyUSB0: transport timeout"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	noPort := NewTransportWriteError("write", "")
	if got, want := noPort.Error(), "write: transport write failed"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorType_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		want string
		typ  ErrorType
	}{
		{typ: ErrorTypeTransient, want: "transient"},
		{typ: ErrorTypePermanent, want: "permanent"},
		{typ: ErrorTypeTimeout, want: "timeout"},
		{typ: ErrorType(9), want: "ErrorType(9)"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestTraceBuffer_BasicOperations(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("/dev/ttyUSB0", 10)
	tb.RecordTX([]byte{0xFE, 0xFE, 0x00, 0x05, 0x20, 0x01, 0x07, 0x02, 0x22}, "CONTROL")
	tb.RecordRX([]byte{0x81}, "DATA_REQUEST seq=1")
	tb.RecordRX(nil, "DATA_CONFIRM seq=2")

	wrappedErr := tb.WrapError(errors.New("test error"))

	var te *TraceableError
	if !errors.As(wrappedErr, &te) {
		t.Fatal("WrapError should return a TraceableError")
	}
	if len(te.Trace) != 3 {
		t.Errorf("Expected 3 trace entries, got %d", len(te.Trace))
	}
	if te.Trace[0].Direction != TraceTX {
		t.Errorf("First entry should be TX, got %v", te.Trace[0].Direction)
	}
	if te.Port != "/dev/ttyUSB0" {
		t.Errorf("Port = %q, want %q", te.Port, "/dev/ttyUSB0")
	}
}

func TestTraceBuffer_CopiesData(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("test", 4)
	data := []byte{0x01, 0x02}
	tb.RecordTX(data, "")
	data[0] = 0xFF

	if got := tb.Entries()[0].Data[0]; got != 0x01 {
		t.Errorf("trace aliases caller buffer: got 0x%02X", got)
	}
}

func TestTraceableError_Unwrap(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("/dev/ttyAMA0", 10)
	tb.RecordTX([]byte{0x01, 0x02}, "test")
	wrappedErr := tb.WrapError(ErrTransactionTimeout)

	if !errors.Is(wrappedErr, ErrTransactionTimeout) {
		t.Error("errors.Is should match underlying error through TraceableError")
	}
	if wrappedErr.Error() != ErrTransactionTimeout.Error() {
		t.Errorf("Error() = %q, want %q", wrappedErr.Error(), ErrTransactionTimeout.Error())
	}
}

func TestTraceableError_FormatTrace(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("/dev/ttyS1", 10)
	tb.RecordTX([]byte{0xFE, 0xFE, 0x5A}, "CONFIGURE")
	tb.RecordRX([]byte{0xD5, 0x03}, "")
	tb.RecordTimeout("no confirm")

	var te *TraceableError
	if !errors.As(tb.WrapError(errors.New("timeout")), &te) {
		t.Fatal("Expected TraceableError")
	}

	formatted := te.FormatTrace()
	for _, want := range []string{"/dev/ttyS1", "3 entries", "> FE FE 5A (CONFIGURE)", "< D5 03", "TIMEOUT: no confirm"} {
		if !strings.Contains(formatted, want) {
			t.Errorf("FormatTrace missing %q:\n%s", want, formatted)
		}
	}
}

func TestTraceableError_FormatTrace_Empty(t *testing.T) {
	t.Parallel()

	var te *TraceableError
	if !errors.As(NewTraceBuffer("/dev/ttyUSB0", 10).WrapError(errors.New("test")), &te) {
		t.Fatal("Expected TraceableError")
	}
	if !strings.Contains(te.FormatTrace(), "no trace data") {
		t.Error("FormatTrace with empty trace should indicate no data")
	}
}

func TestTraceBuffer_CircularBuffer(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("test", 3)
	tb.RecordTX([]byte{0x01}, "first")
	tb.RecordTX([]byte{0x02}, "second")
	tb.RecordTX([]byte{0x03}, "third")
	tb.RecordTX([]byte{0x04}, "fourth")

	entries := tb.Entries()
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries in circular buffer, got %d", len(entries))
	}
	if entries[0].Note != "second" {
		t.Errorf("First entry should be 'second', got %q", entries[0].Note)
	}
	if entries[2].Note != "fourth" {
		t.Errorf("Last entry should be 'fourth', got %q", entries[2].Note)
	}
}

func TestTraceBuffer_DefaultSize(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("test", 0)
	for i := range DefaultTraceSize + 5 {
		tb.RecordRX([]byte{byte(i)}, "")
	}
	if got := len(tb.Entries()); got != DefaultTraceSize {
		t.Errorf("entries = %d, want %d", got, DefaultTraceSize)
	}
}

func TestTraceBuffer_WrapNilError(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("test", 10)
	tb.RecordTX([]byte{0x01}, "test")
	if result := tb.WrapError(nil); result != nil {
		t.Error("WrapError(nil) should return nil")
	}
}

func TestHasTraceAndGetTrace(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("/dev/ttyUSB0", 10)
	tb.RecordTX([]byte{0x01}, "test")
	withTrace := fmt.Errorf("send: %w", tb.WrapError(errors.New("test")))

	if !HasTrace(withTrace) {
		t.Error("HasTrace should see through wrapping")
	}
	if te := GetTrace(withTrace); te == nil || te.Port != "/dev/ttyUSB0" {
		t.Errorf("GetTrace = %+v", te)
	}

	plain := errors.New("plain error")
	if HasTrace(plain) || GetTrace(plain) != nil {
		t.Error("plain errors carry no trace")
	}
	if HasTrace(nil) || GetTrace(nil) != nil {
		t.Error("nil carries no trace")
	}
}

func TestTraceEntry_String(t *testing.T) {
	t.Parallel()

	entry := TraceEntry{
		Direction: TraceRX,
		Data:      []byte{0x81},
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.UTC),
		Note:      "DATA_REQUEST",
	}
	if got, want := entry.String(), "[03:04:05.006] RX: 81 (DATA_REQUEST)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	entry.Note = ""
	if got, want := entry.String(), "[03:04:05.006] RX: 81"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestFormatHexBytes(t *testing.T) {
	t.Parallel()

	if got := formatHexBytes(nil); got != "(empty)" {
		t.Errorf("Expected '(empty)', got %q", got)
	}
	if got := formatHexBytes([]byte{0xFE, 0x5A}); got != "FE 5A" {
		t.Errorf("formatHexBytes = %q", got)
	}

	long := make([]byte, 50)
	formatted := formatHexBytes(long)
	if !strings.Contains(formatted, "...") || !strings.Contains(formatted, "50 bytes total") {
		t.Errorf("Long data should be truncated: %q", formatted)
	}
}
