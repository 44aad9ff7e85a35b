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

package uart

import (
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/go-rfbridge"
	"go.bug.st/serial"
)

// Line names a modem control output of the serial port.
type Line int

const (
	// LineNone leaves the signal unwired
	LineNone Line = iota
	// LineDTR is the Data Terminal Ready output
	LineDTR
	// LineRTS is the Request To Send output
	LineRTS
)

func (l Line) String() string {
	switch l {
	case LineNone:
		return "none"
	case LineDTR:
		return "dtr"
	case LineRTS:
		return "rts"
	default:
		return "unknown"
	}
}

// ParseLine converts "dtr", "rts" or "none" to a Line.
func ParseLine(s string) (Line, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return LineNone, nil
	case "dtr":
		return LineDTR, nil
	case "rts":
		return LineRTS, nil
	default:
		return LineNone, fmt.Errorf("unknown modem line %q", s)
	}
}

// Default pulse widths for the wake and reset lines.
const (
	DefaultWakePulse  = 2 * time.Millisecond
	DefaultResetPulse = 20 * time.Millisecond
)

// LineControl wires the coprocessor's wake and reset inputs to the serial
// port's modem lines, as on USB adapters that expose DTR and RTS.
type LineControl struct {
	WakeLine   Line
	ResetLine  Line
	WakePulse  time.Duration
	ResetPulse time.Duration
	// Inverted asserts a line by clearing it. USB-UART bridges usually
	// drive the pin low when DTR/RTS is set.
	Inverted bool
}

// DefaultLineControl wakes on DTR and resets on RTS.
func DefaultLineControl() *LineControl {
	return &LineControl{
		WakeLine:   LineDTR,
		ResetLine:  LineRTS,
		WakePulse:  DefaultWakePulse,
		ResetPulse: DefaultResetPulse,
	}
}

func (lc *LineControl) set(port serial.Port, line Line, asserted bool) error {
	level := asserted != lc.Inverted
	switch line {
	case LineDTR:
		return port.SetDTR(level)
	case LineRTS:
		return port.SetRTS(level)
	default:
		return nil
	}
}

// release deasserts both lines
func (lc *LineControl) release(port serial.Port) error {
	if err := lc.set(port, lc.WakeLine, false); err != nil {
		return err
	}
	return lc.set(port, lc.ResetLine, false)
}

func (lc *LineControl) pulse(port serial.Port, line Line, width time.Duration) error {
	if err := lc.set(port, line, true); err != nil {
		return err
	}
	time.Sleep(width)
	return lc.set(port, line, false)
}

// AssertWakePulse implements rfbridge.HardwareControl. Without a wake line
// it does nothing and the coprocessor is expected to wake on RX activity.
func (t *Transport) AssertWakePulse() error {
	if t.lines == nil || t.lines.WakeLine == LineNone {
		return nil
	}
	t.lineMu.Lock()
	defer t.lineMu.Unlock()

	width := t.lines.WakePulse
	if width <= 0 {
		width = DefaultWakePulse
	}
	if err := t.lines.pulse(t.port, t.lines.WakeLine, width); err != nil {
		return fmt.Errorf("wake pulse on %s: %w", t.lines.WakeLine, err)
	}
	return nil
}

// AssertHardwareReset implements rfbridge.HardwareControl. It fails with
// rfbridge.ErrResetFailed when no reset line is wired.
func (t *Transport) AssertHardwareReset() error {
	if t.lines == nil || t.lines.ResetLine == LineNone {
		return rfbridge.ErrResetFailed
	}
	t.lineMu.Lock()
	defer t.lineMu.Unlock()

	width := t.lines.ResetPulse
	if width <= 0 {
		width = DefaultResetPulse
	}
	if err := t.lines.pulse(t.port, t.lines.ResetLine, width); err != nil {
		return fmt.Errorf("%w: %s: %w", rfbridge.ErrResetFailed, t.lines.ResetLine, err)
	}
	return nil
}
