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

// Package uart registers a detector that finds radio coprocessors on serial
// ports. Importing it for side effects enables UART auto-detection:
//
//	import _ "github.com/ZaparooProject/go-rfbridge/detection/uart"
package uart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/go-rfbridge"
	"github.com/ZaparooProject/go-rfbridge/detection"
	"github.com/ZaparooProject/go-rfbridge/transport/uart"
)

// detector implements the Detector interface for UART devices.
type detector struct{}

// New creates a new UART detector
func New() detection.Detector {
	return &detector{}
}

// init registers the detector on package import
func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return string(rfbridge.TransportUART)
}

// Detect searches for radios on serial ports
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := getSerialPorts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, port := range d.filterPorts(ports, opts) {
		select {
		case <-ctx.Done():
			return devices, nil
		default:
		}

		if device, ok := d.processPort(ctx, &port, opts); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// filterPorts removes blocked, ignored and implausible ports
func (*detector) filterPorts(ports []serialPort, opts *detection.Options) []serialPort {
	var filtered []serialPort
	for _, port := range ports {
		if port.VIDPID != "" && detection.IsBlocked(port.VIDPID, opts.Blocklist) {
			continue
		}
		if detection.IsPathIgnored(port.Path, opts.IgnorePaths) {
			continue
		}
		if isLikelyRadio(&port) || matchesGoodPatterns(&port) {
			filtered = append(filtered, port)
		}
	}
	return filtered
}

// processPort decides whether a port is reported. In Passive mode only
// likely bridges are listed; in Probe mode a port is listed only if the
// coprocessor answers a get-info request.
func (*detector) processPort(ctx context.Context, port *serialPort, opts *detection.Options) (detection.DeviceInfo, bool) {
	device := createDeviceInfo(port, detection.Low)
	if isLikelyRadio(port) {
		device.Confidence = detection.Medium
	}

	if opts.Mode == detection.Passive {
		return device, device.Confidence == detection.Medium
	}

	timeout := opts.ProbeTimeout
	if timeout <= 0 {
		timeout = detection.DefaultOptions().ProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	info, err := probeDeviceFn(probeCtx, port.Path, timeout)
	if err != nil {
		return detection.DeviceInfo{}, false
	}
	device.Confidence = detection.High
	device.Metadata["firmware"] = info.FirmwareVersion()
	device.Metadata["role"] = info.Role.String()
	device.Metadata["channel"] = fmt.Sprintf("%d", info.Channel)
	device.Metadata["pan"] = fmt.Sprintf("0x%04X", info.PANID)
	return device, true
}

// matchesGoodPatterns checks if the port matches known USB-serial naming
func matchesGoodPatterns(port *serialPort) bool {
	goodPatterns := []string{
		"ttyusb",         // Linux USB-serial bridges
		"usbserial",      // FTDI and similar USB-serial adapters
		"slab_usbtouart", // Silicon Labs CP210x
		"usbmodem",       // CDC-ACM sticks
	}
	goodManufacturers := []string{
		"silicon labs", "ftdi", "future technology devices international",
		"texas instruments", "qinheng", "wch",
	}

	lowerName := strings.ToLower(port.Name)
	lowerPath := strings.ToLower(port.Path)
	for _, pattern := range goodPatterns {
		if strings.Contains(lowerName, pattern) || strings.Contains(lowerPath, pattern) {
			return true
		}
	}

	lowerManuf := strings.ToLower(port.Manufacturer)
	for _, manufacturer := range goodManufacturers {
		if strings.Contains(lowerManuf, manufacturer) {
			return true
		}
	}
	return false
}

// createDeviceInfo builds a DeviceInfo struct from port data
func createDeviceInfo(port *serialPort, confidence detection.Confidence) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  string(rfbridge.TransportUART),
		Path:       port.Path,
		Name:       port.Name,
		Confidence: confidence,
		Metadata:   make(map[string]string),
	}
	if port.VIDPID != "" {
		device.Metadata["vidpid"] = port.VIDPID
	}
	if port.Manufacturer != "" {
		device.Metadata["manufacturer"] = port.Manufacturer
	}
	if port.Product != "" {
		device.Metadata["product"] = port.Product
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}
	return device
}

// serialPort represents a serial port with metadata
type serialPort struct {
	Path         string
	Name         string
	VIDPID       string
	Manufacturer string
	Product      string
	SerialNumber string
}

// isLikelyRadio checks if a serial port is likely to front a radio
// coprocessor
func isLikelyRadio(port *serialPort) bool {
	knownBridges := []string{
		"10C4:EA60", // Silicon Labs CP210x
		"1A86:7523", // QinHeng CH340
		"1A86:55D4", // QinHeng CH9102
		"0403:6001", // FTDI FT232R
		"0403:6015", // FTDI FT231X
		"0451:16A8", // TI CC2531 USB dongle
		"0451:BEF3", // TI CC1352/CC2652 LaunchPad
	}

	upperVIDPID := strings.ToUpper(port.VIDPID)
	for _, known := range knownBridges {
		if upperVIDPID == known {
			return true
		}
	}

	lowerProduct := strings.ToLower(port.Product)
	lowerManuf := strings.ToLower(port.Manufacturer)
	keywords := []string{"zigbee", "802.15.4", "coordinator", "cc2531", "cc2652", "radio"}
	for _, keyword := range keywords {
		if strings.Contains(lowerProduct, keyword) || strings.Contains(lowerManuf, keyword) {
			return true
		}
	}
	return false
}

// probeDeviceFn is the probe used by processPort; tests replace it.
var probeDeviceFn = probeDevice

// probeDevice opens path and asks the coprocessor for its info.
//
// A probe is a single attempt. Unknown devices get one get-info frame and
// nothing more; connection retries belong to ConnectRadio on a known path.
func probeDevice(ctx context.Context, path string, timeout time.Duration) (*rfbridge.Info, error) {
	cfg := uart.DefaultConfig()
	cfg.Lines = uart.DefaultLineControl()
	transport, err := uart.NewWithConfig(path, cfg)
	if err != nil {
		return nil, err
	}

	link, err := rfbridge.NewLink(transport, transport,
		rfbridge.WithPortName(path),
		rfbridge.WithTransactionTimeout(timeout))
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	radio := rfbridge.NewRadio(link)
	defer func() { _ = radio.Close() }()

	if err := link.Start(ctx); err != nil {
		return nil, err
	}
	info, err := radio.GetInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	return info, nil
}
