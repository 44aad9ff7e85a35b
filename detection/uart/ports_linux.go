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
	"path/filepath"
	"strings"

	"github.com/ZaparooProject/go-rfbridge/detection"
)

const sysClassTTY = "/sys/class/tty"

// getSerialPorts returns USB-serial ports with their USB descriptors, then
// the on-board UARTs, falling back to globbing /dev.
func getSerialPorts(ctx context.Context) ([]serialPort, error) {
	var ports []serialPort

	if usbPorts, err := getUSBSerialPorts(ctx, sysClassTTY); err == nil {
		ports = append(ports, usbPorts...)
	}
	ports = append(ports, globPorts("/dev/ttyAMA*", "/dev/ttyS[0-3]")...)

	if len(ports) == 0 {
		ports = globPorts("/dev/ttyUSB*", "/dev/ttyACM*")
	}
	if len(ports) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return ports, nil
}

// getUSBSerialPorts lists tty entries whose device link resolves into the
// USB tree.
func getUSBSerialPorts(_ context.Context, ttyDir string) ([]serialPort, error) {
	entries, err := os.ReadDir(ttyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", ttyDir, err)
	}

	var ports []serialPort
	for _, entry := range entries {
		devicePath := filepath.Join(ttyDir, entry.Name(), "device")
		resolved, err := filepath.EvalSymlinks(devicePath)
		if err != nil || !strings.Contains(resolved, "/usb") {
			continue
		}

		port := serialPort{
			Path: "/dev/" + entry.Name(),
			Name: entry.Name(),
		}
		readUSBAttributes(&port, resolved)
		ports = append(ports, port)
	}
	return ports, nil
}

// readUSBAttributes walks up from the interface to the USB device node
func readUSBAttributes(port *serialPort, devicePath string) {
	current := devicePath
	for range 10 {
		if readUSBIdentifiers(port, current) {
			return
		}
		current = filepath.Dir(current)
		if current == "/" || current == "." {
			return
		}
	}
}

// readUSBIdentifiers reads vendor/product IDs and descriptors from USB device
func readUSBIdentifiers(port *serialPort, path string) bool {
	vid, ok := readSysfsAttr(path, "idVendor")
	if !ok {
		return false
	}
	pid, ok := readSysfsAttr(path, "idProduct")
	if !ok {
		return false
	}
	port.VIDPID = detection.VIDPID(vid, pid)
	port.Manufacturer, _ = readSysfsAttr(path, "manufacturer")
	port.Product, _ = readSysfsAttr(path, "product")
	port.SerialNumber, _ = readSysfsAttr(path, "serial")
	return true
}

// readSysfsAttr reads one attribute file below /sys
func readSysfsAttr(dir, name string) (string, bool) {
	p := filepath.Clean(filepath.Join(dir, name))
	if !strings.HasPrefix(p, "/sys/") {
		return "", false
	}
	data, err := os.ReadFile(p) // #nosec G304 -- Path is validated to be under /sys/
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// globPorts returns existing device nodes matching patterns, without
// metadata
func globPorts(patterns ...string) []serialPort {
	var ports []serialPort
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, path := range matches {
			if _, err := os.Stat(path); err == nil {
				ports = append(ports, serialPort{
					Path: path,
					Name: filepath.Base(path),
				})
			}
		}
	}
	return ports
}
