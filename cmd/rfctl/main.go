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

// Command rfctl talks to a radio coprocessor over a serial link.
//
// Usage:
//
//	rfctl [flags] info
//	rfctl [flags] configure -settings radio.yaml
//	rfctl [flags] send -payload 0102ff
//	rfctl [flags] reset | factory-reset | reboot
//	rfctl [flags] monitor
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-rfbridge"
	"github.com/ZaparooProject/go-rfbridge/detection"
	_ "github.com/ZaparooProject/go-rfbridge/detection/uart"
	"github.com/ZaparooProject/go-rfbridge/hwctl"
	"github.com/ZaparooProject/go-rfbridge/transport/uart"
)

type config struct {
	command      string
	devicePath   string
	settingsPath string
	payload      []byte
	flow         rfbridge.FlowControl
	baud         int
	wakeLine     uart.Line
	resetLine    uart.Line
	gpioWake     string
	gpioReset    string
	timeout      time.Duration
	invertLines  bool
	debug        bool
}

func parseConfig(fs *flag.FlagSet, args []string) (*config, error) {
	var (
		payload   string
		flow      string
		wakeLine  string
		resetLine string
	)
	cfg := &config{}
	fs.StringVar(&cfg.devicePath, "device", "", "Device path (auto-detect if empty)")
	fs.StringVar(&cfg.settingsPath, "settings", "", "YAML settings file for configure")
	fs.StringVar(&payload, "payload", "", "Hex control payload for send")
	fs.IntVar(&cfg.baud, "baud", uart.DefaultBaudRate, "Serial baud rate")
	fs.StringVar(&flow, "flow", "none", "Hardware flow control: none or rtscts")
	fs.StringVar(&wakeLine, "wake-line", "dtr", "Modem line wired to the wake input: dtr, rts or none")
	fs.StringVar(&resetLine, "reset-line", "rts", "Modem line wired to the reset input: dtr, rts or none")
	fs.BoolVar(&cfg.invertLines, "invert-lines", false, "Assert modem lines by clearing them")
	fs.StringVar(&cfg.gpioWake, "gpio-wake", "", "GPIO pin driving the wake input (overrides -wake-line)")
	fs.StringVar(&cfg.gpioReset, "gpio-reset", "", "GPIO pin driving the reset input (overrides -reset-line)")
	fs.DurationVar(&cfg.timeout, "timeout", rfbridge.DefaultTransactionTimeout, "Transaction timeout")
	fs.BoolVar(&cfg.debug, "debug", false, "Enable debug output")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		return nil, errors.New("expected exactly one command: info, configure, send, reset, factory-reset, reboot or monitor")
	}
	cfg.command = fs.Arg(0)

	var err error
	switch strings.ToLower(flow) {
	case "none":
		cfg.flow = rfbridge.FlowControlNone
	case "rtscts":
		cfg.flow = rfbridge.FlowControlRTSCTS
	default:
		return nil, fmt.Errorf("unknown flow control %q", flow)
	}
	if cfg.wakeLine, err = uart.ParseLine(wakeLine); err != nil {
		return nil, err
	}
	if cfg.resetLine, err = uart.ParseLine(resetLine); err != nil {
		return nil, err
	}

	switch cfg.command {
	case "send":
		if payload == "" {
			return nil, errors.New("send requires -payload")
		}
		if cfg.payload, err = parseHex(payload); err != nil {
			return nil, err
		}
	case "configure":
		if cfg.settingsPath == "" {
			return nil, errors.New("configure requires -settings")
		}
	case "info", "reset", "factory-reset", "reboot", "monitor":
	default:
		return nil, fmt.Errorf("unknown command %q", cfg.command)
	}
	return cfg, nil
}

func (cfg *config) uartConfig() uart.Config {
	uc := uart.DefaultConfig()
	uc.BaudRate = cfg.baud
	uc.FlowControl = cfg.flow
	if cfg.wakeLine != uart.LineNone || cfg.resetLine != uart.LineNone {
		lines := uart.DefaultLineControl()
		lines.WakeLine = cfg.wakeLine
		lines.ResetLine = cfg.resetLine
		lines.Inverted = cfg.invertLines
		uc.Lines = lines
	}
	return uc
}

// newTransport opens a serial transport for path
func (cfg *config) newTransport(path string) (rfbridge.Transport, error) {
	if path == "" {
		return nil, errors.New("empty device path")
	}
	transport, err := uart.NewWithConfig(path, cfg.uartConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create UART transport for %s: %w", path, err)
	}
	return transport, nil
}

// newTransportFromDevice opens a transport for a detected device
func (cfg *config) newTransportFromDevice(device detection.DeviceInfo) (rfbridge.Transport, error) {
	if device.Transport != string(rfbridge.TransportUART) {
		return nil, fmt.Errorf("unsupported transport type: %s", device.Transport)
	}
	return cfg.newTransport(device.Path)
}

func connectToRadio(ctx context.Context, cfg *config) (*rfbridge.Radio, error) {
	connectOpts := []rfbridge.ConnectOption{
		rfbridge.WithLinkOptions(rfbridge.WithTransactionTimeout(cfg.timeout)),
	}

	if cfg.devicePath == "" {
		connectOpts = append(connectOpts,
			rfbridge.WithAutoDetection(),
			rfbridge.WithTransportFromDeviceFactory(cfg.newTransportFromDevice))
		if cfg.debug {
			_, _ = fmt.Println("Auto-detecting radio devices...")
		}
	} else {
		connectOpts = append(connectOpts,
			rfbridge.WithTransportFactory(cfg.newTransport),
			rfbridge.WithLinkOptions(rfbridge.WithPortName(cfg.devicePath)))
	}

	if cfg.gpioWake != "" || cfg.gpioReset != "" {
		lines, err := hwctl.NewGPIO(hwctl.Config{WakePin: cfg.gpioWake, ResetPin: cfg.gpioReset})
		if err != nil {
			return nil, err
		}
		connectOpts = append(connectOpts, rfbridge.WithHardwareControl(lines))
	}

	radio, err := rfbridge.ConnectRadio(ctx, cfg.devicePath, connectOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to radio: %w", err)
	}
	return radio, nil
}

// runCommand executes cfg.command against an open radio
func runCommand(ctx context.Context, radio *rfbridge.Radio, cfg *config, out io.Writer) error {
	switch cfg.command {
	case "info":
		info, err := radio.GetInfo(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, info)
		return nil

	case "configure":
		settings, err := loadSettings(cfg.settingsPath)
		if err != nil {
			return err
		}
		if err := radio.Apply(ctx, settings); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, "Settings applied.")
		return nil

	case "send":
		if err := radio.SendControl(ctx, cfg.payload); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Sent %d bytes.\n", len(cfg.payload))
		return nil

	case "reset":
		return radio.HardwareReset()

	case "factory-reset":
		return radio.FactoryReset(ctx)

	case "reboot":
		return radio.Reboot(ctx)

	case "monitor":
		return runMonitor(ctx, radio, out)

	default:
		return fmt.Errorf("unknown command %q", cfg.command)
	}
}

// runMonitor prints unsolicited frames until ctx is cancelled or the link
// dies
func runMonitor(ctx context.Context, radio *rfbridge.Radio, out io.Writer) error {
	frames := make(chan string, 64)
	radio.OnData(func(cmd byte, payload []byte) {
		line := fmt.Sprintf("%s %s % X", time.Now().Format("15:04:05.000"), rfbridge.CommandName(cmd), payload)
		select {
		case frames <- line:
		default:
		}
	})
	defer radio.OnData(nil)

	_, _ = fmt.Fprintln(out, "Monitoring unsolicited frames. Press Ctrl+C to stop...")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line := <-frames:
			_, _ = fmt.Fprintln(out, line)
		case <-ticker.C:
			if err := radio.Link().Err(); err != nil {
				return fmt.Errorf("link stopped: %w", err)
			}
		}
	}
}

func run(ctx context.Context, cfg *config) error {
	radio, err := connectToRadio(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := radio.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close radio: %v\n", err)
		}
	}()

	return runCommand(ctx, radio, cfg, os.Stdout)
}

func main() {
	os.Exit(mainWithExitCode(os.Args[1:]))
}

func mainWithExitCode(args []string) int {
	fs := flag.NewFlagSet("rfctl", flag.ContinueOnError)
	cfg, err := parseConfig(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if cfg.debug {
		rfbridge.SetDebugEnabled(true)
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			_, _ = fmt.Print("\nShutting down gracefully...\n")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
