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

// Package hwctl drives the coprocessor's wake and reset inputs from host
// GPIO pins, for boards where they are wired to the SoC rather than to the
// USB-serial bridge.
package hwctl

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/ZaparooProject/go-rfbridge"
	"github.com/ZaparooProject/go-rfbridge/internal/syncutil"
)

// Default pulse widths.
const (
	DefaultWakePulse  = 2 * time.Millisecond
	DefaultResetPulse = 20 * time.Millisecond
)

// Config names the pins by their periph registry name, such as "GPIO17".
// An empty name leaves that input unwired.
type Config struct {
	WakePin    string
	ResetPin   string
	WakePulse  time.Duration
	ResetPulse time.Duration
	// ActiveLow asserts a line by driving it low
	ActiveLow bool
}

// GPIO implements rfbridge.HardwareControl on GPIO pins.
type GPIO struct {
	wake       gpio.PinOut
	reset      gpio.PinOut
	wakePulse  time.Duration
	resetPulse time.Duration
	active     gpio.Level
	mu         syncutil.Mutex
}

// NewGPIO initialises the periph host drivers and claims the pins.
func NewGPIO(cfg Config) (*GPIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	var wake, reset gpio.PinOut
	if cfg.WakePin != "" {
		p := gpioreg.ByName(cfg.WakePin)
		if p == nil {
			return nil, fmt.Errorf("wake pin %s not found", cfg.WakePin)
		}
		wake = p
	}
	if cfg.ResetPin != "" {
		p := gpioreg.ByName(cfg.ResetPin)
		if p == nil {
			return nil, fmt.Errorf("reset pin %s not found", cfg.ResetPin)
		}
		reset = p
	}
	return newGPIO(wake, reset, cfg)
}

// newGPIO drives both pins to their inactive level.
func newGPIO(wake, reset gpio.PinOut, cfg Config) (*GPIO, error) {
	g := &GPIO{
		wake:       wake,
		reset:      reset,
		wakePulse:  cfg.WakePulse,
		resetPulse: cfg.ResetPulse,
		active:     gpio.High,
	}
	if cfg.ActiveLow {
		g.active = gpio.Low
	}
	if g.wakePulse <= 0 {
		g.wakePulse = DefaultWakePulse
	}
	if g.resetPulse <= 0 {
		g.resetPulse = DefaultResetPulse
	}

	for _, p := range []gpio.PinOut{wake, reset} {
		if p == nil {
			continue
		}
		if err := p.Out(!g.active); err != nil {
			return nil, fmt.Errorf("failed to release %s: %w", p, err)
		}
	}
	return g, nil
}

func (g *GPIO) pulse(p gpio.PinOut, width time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := p.Out(g.active); err != nil {
		return err
	}
	time.Sleep(width)
	return p.Out(!g.active)
}

// AssertWakePulse implements rfbridge.HardwareControl
func (g *GPIO) AssertWakePulse() error {
	if g.wake == nil {
		return nil
	}
	if err := g.pulse(g.wake, g.wakePulse); err != nil {
		return fmt.Errorf("wake pulse on %s: %w", g.wake, err)
	}
	return nil
}

// AssertHardwareReset implements rfbridge.HardwareControl
func (g *GPIO) AssertHardwareReset() error {
	if g.reset == nil {
		return rfbridge.ErrResetFailed
	}
	if err := g.pulse(g.reset, g.resetPulse); err != nil {
		return fmt.Errorf("%w: %s: %w", rfbridge.ErrResetFailed, g.reset, err)
	}
	return nil
}

var _ rfbridge.HardwareControl = (*GPIO)(nil)
