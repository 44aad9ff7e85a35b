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

package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-rfbridge"
	"github.com/ZaparooProject/go-rfbridge/internal/frame"
	testutil "github.com/ZaparooProject/go-rfbridge/internal/testing"
	"github.com/ZaparooProject/go-rfbridge/transport/uart"
)

type virtualTransport struct {
	*testutil.VirtualRadio
}

func (virtualTransport) Type() rfbridge.TransportType { return rfbridge.TransportMock }

// syncBuffer is a bytes.Buffer safe for the monitor goroutine
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ io.Writer = (*syncBuffer)(nil)

func newVirtualRadio(t *testing.T) (*rfbridge.Radio, *testutil.VirtualRadio) {
	t.Helper()
	vr := testutil.NewVirtualRadio()
	link, err := rfbridge.NewLink(virtualTransport{vr}, vr,
		rfbridge.WithReadTimeout(5*time.Millisecond),
		rfbridge.WithTransactionTimeout(time.Second))
	require.NoError(t, err)
	require.NoError(t, link.Start(context.Background()))
	radio := rfbridge.NewRadio(link)
	t.Cleanup(func() { _ = radio.Close() })
	return radio, vr
}

func TestParseConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		check   func(t *testing.T, cfg *config)
		name    string
		wantErr string
		args    []string
	}{
		{
			name: "info defaults",
			args: []string{"info"},
			check: func(t *testing.T, cfg *config) {
				assert.Equal(t, "info", cfg.command)
				assert.Equal(t, uart.DefaultBaudRate, cfg.baud)
				assert.Equal(t, uart.LineDTR, cfg.wakeLine)
				assert.Equal(t, uart.LineRTS, cfg.resetLine)
				assert.Equal(t, rfbridge.FlowControlNone, cfg.flow)
				assert.Equal(t, rfbridge.DefaultTransactionTimeout, cfg.timeout)
			},
		},
		{
			name: "send payload",
			args: []string{"-device", "/dev/ttyUSB0", "-payload", "01:02", "send"},
			check: func(t *testing.T, cfg *config) {
				assert.Equal(t, "/dev/ttyUSB0", cfg.devicePath)
				assert.Equal(t, []byte{0x01, 0x02}, cfg.payload)
			},
		},
		{
			name: "serial options",
			args: []string{"-baud", "57600", "-flow", "rtscts", "-wake-line", "none", "-invert-lines", "reset"},
			check: func(t *testing.T, cfg *config) {
				assert.Equal(t, 57600, cfg.baud)
				assert.Equal(t, rfbridge.FlowControlRTSCTS, cfg.flow)
				assert.Equal(t, uart.LineNone, cfg.wakeLine)

				uc := cfg.uartConfig()
				assert.Equal(t, 57600, uc.BaudRate)
				require.NotNil(t, uc.Lines)
				assert.True(t, uc.Lines.Inverted)
				assert.Equal(t, uart.LineRTS, uc.Lines.ResetLine)
			},
		},
		{
			name: "no lines",
			args: []string{"-wake-line", "none", "-reset-line", "none", "info"},
			check: func(t *testing.T, cfg *config) {
				assert.Nil(t, cfg.uartConfig().Lines)
			},
		},
		{name: "missing command", args: []string{}, wantErr: "expected exactly one command"},
		{name: "unknown command", args: []string{"scan"}, wantErr: "unknown command"},
		{name: "send without payload", args: []string{"send"}, wantErr: "-payload"},
		{name: "bad payload", args: []string{"-payload", "xyz", "send"}, wantErr: "invalid hex"},
		{name: "configure without settings", args: []string{"configure"}, wantErr: "-settings"},
		{name: "bad flow", args: []string{"-flow", "xonxoff", "info"}, wantErr: "flow control"},
		{name: "bad line", args: []string{"-reset-line", "cts", "info"}, wantErr: "modem line"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fs := flag.NewFlagSet("rfctl", flag.ContinueOnError)
			fs.SetOutput(io.Discard)
			cfg, err := parseConfig(fs, tt.args)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestRunCommand_Info(t *testing.T) {
	t.Parallel()
	radio, vr := newVirtualRadio(t)
	vr.SetResponder(func(f frame.Frame) []frame.Frame {
		if f.Command == testutil.CmdConfigure {
			return []frame.Frame{{Command: testutil.CmdConfigure, Payload: []byte{
				0x0C, 0x00, 11, 0xAB, 0xCD, 0x00, 0x01, 0x00, 0x64, 0x04, 3, 1,
			}}}
		}
		return nil
	})

	var out bytes.Buffer
	require.NoError(t, runCommand(context.Background(), radio, &config{command: "info"}, &out))
	assert.Contains(t, out.String(), "coordinator ch=11 pan=0xABCD")
	assert.Contains(t, out.String(), "fw=3.1")
}

func TestRunCommand_Send(t *testing.T) {
	t.Parallel()
	radio, vr := newVirtualRadio(t)

	var out bytes.Buffer
	cfg := &config{command: "send", payload: []byte{0xFE, 0x00}}
	require.NoError(t, runCommand(context.Background(), radio, cfg, &out))

	got := vr.ReceivedCommands(testutil.CmdControl)
	require.Len(t, got, 1)
	assert.Equal(t, []byte{0xFE, 0x00}, got[0].Payload)
	assert.Equal(t, "Sent 2 bytes.\n", out.String())
}

func TestRunCommand_Configure(t *testing.T) {
	t.Parallel()
	radio, vr := newVirtualRadio(t)

	path := filepath.Join(t.TempDir(), "radio.yaml")
	require.NoError(t, os.WriteFile(path, []byte("channel: 20\ntx_power: 4\n"), 0o600))

	var out bytes.Buffer
	cfg := &config{command: "configure", settingsPath: path}
	require.NoError(t, runCommand(context.Background(), radio, cfg, &out))

	assert.Len(t, vr.ReceivedCommands(testutil.CmdConfigure), 2)
	assert.Contains(t, out.String(), "Settings applied.")
}

func TestRunCommand_Reset(t *testing.T) {
	t.Parallel()
	radio, vr := newVirtualRadio(t)

	require.NoError(t, runCommand(context.Background(), radio, &config{command: "reset"}, io.Discard))
	assert.Equal(t, 1, vr.Resets())
}

func TestRunCommand_Monitor(t *testing.T) {
	t.Parallel()
	radio, vr := newVirtualRadio(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- runCommand(ctx, radio, &config{command: "monitor"}, out)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Monitoring")
	}, time.Second, 5*time.Millisecond)
	vr.Send(0x30, []byte{0xAA, 0xBB})

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "AA BB")
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestRunCommand_Unknown(t *testing.T) {
	t.Parallel()
	radio, _ := newVirtualRadio(t)
	require.Error(t, runCommand(context.Background(), radio, &config{command: "dance"}, io.Discard))
}

func TestMainWithExitCode_BadArgs(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 2, mainWithExitCode([]string{"-flow", "bogus", "info"}))
}
