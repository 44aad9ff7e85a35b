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
	"context"
	"fmt"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// Notify implements rfbridge.Notifier with SIGIO. The tty delivers the
// signal to this process whenever input arrives; fn then runs on a
// dedicated goroutine. SIGIO is process-wide, so fn may also run for
// activity on other async descriptors.
func (t *Transport) Notify(ctx context.Context, fn func()) error {
	fd, err := unix.Open(t.portName, unix.O_RDONLY|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %s for SIGIO: %w", t.portName, err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETOWN, unix.Getpid()); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("F_SETOWN: %w", err)
	}
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("F_GETFL: %w", err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags|unix.O_ASYNC); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("F_SETFL O_ASYNC: %w", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGIO)

	go func() {
		defer func() {
			signal.Stop(sigs)
			_ = unix.Close(fd)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				if t.closed.Load() {
					return
				}
				fn()
			}
		}
	}()
	return nil
}
