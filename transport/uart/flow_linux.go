//go:build linux

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

	"github.com/ZaparooProject/go-rfbridge"
	"golang.org/x/sys/unix"
)

// SetFlowControl implements rfbridge.FlowController by toggling CRTSCTS on
// the tty. Termios state belongs to the device, so a second descriptor is
// enough to change it under the open port.
func (t *Transport) SetFlowControl(mode rfbridge.FlowControl) error {
	fd, err := unix.Open(t.portName, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %s for termios: %w", t.portName, err)
	}
	defer func() { _ = unix.Close(fd) }()

	tio, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}
	switch mode {
	case rfbridge.FlowControlRTSCTS:
		tio.Cflag |= unix.CRTSCTS
	case rfbridge.FlowControlNone:
		tio.Cflag &^= unix.CRTSCTS
	default:
		return fmt.Errorf("unsupported flow control %s", mode)
	}
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, tio); err != nil {
		return fmt.Errorf("set termios: %w", err)
	}
	return nil
}
