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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-rfbridge/detection"
)

// TransportFactory is a function type for creating transports
type TransportFactory func(path string) (Transport, error)

// TransportFromDeviceFactory is a function type for creating transports from detected devices
type TransportFromDeviceFactory func(device detection.DeviceInfo) (Transport, error)

// ConnectOption represents a functional option for ConnectRadio
type ConnectOption func(*connectConfig) error

// connectConfig holds configuration options for radio connection
type connectConfig struct {
	transportFactory       TransportFactory
	transportDeviceFactory TransportFromDeviceFactory
	deviceDetector         func(context.Context, *detection.Options) ([]detection.DeviceInfo, error)
	control                HardwareControl
	linkOptions            []Option
	verifyTimeout          time.Duration
	connectionRetries      int
	autoDetect             bool
	verify                 bool
}

// WithAutoDetection enables automatic device detection instead of using a specific path
func WithAutoDetection() ConnectOption {
	return func(c *connectConfig) error {
		c.autoDetect = true
		return nil
	}
}

// WithLinkOptions adds link-level options
func WithLinkOptions(opts ...Option) ConnectOption {
	return func(c *connectConfig) error {
		c.linkOptions = append(c.linkOptions, opts...)
		return nil
	}
}

// WithHardwareControl sets the wake/reset line driver. Without it, a
// transport that implements HardwareControl drives the lines itself.
func WithHardwareControl(hc HardwareControl) ConnectOption {
	return func(c *connectConfig) error {
		c.control = hc
		return nil
	}
}

// WithTransportFactory sets the transport factory function
func WithTransportFactory(factory TransportFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportFactory = factory
		return nil
	}
}

// WithTransportFromDeviceFactory sets the transport from device factory function
func WithTransportFromDeviceFactory(factory TransportFromDeviceFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportDeviceFactory = factory
		return nil
	}
}

// WithConnectionRetries sets the number of connection attempts
func WithConnectionRetries(maxAttempts int) ConnectOption {
	return func(c *connectConfig) error {
		if maxAttempts < 1 {
			return fmt.Errorf("connection retries must be at least 1, got %d", maxAttempts)
		}
		c.connectionRetries = maxAttempts
		return nil
	}
}

// WithDeviceDetector sets a custom device detector function for auto-detection
func WithDeviceDetector(detector func(context.Context, *detection.Options) ([]detection.DeviceInfo, error)) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceDetector = detector
		return nil
	}
}

// WithVerification makes ConnectRadio query GetInfo before returning, so a
// silent or wrong device fails the connection.
func WithVerification(timeout time.Duration) ConnectOption {
	return func(c *connectConfig) error {
		c.verify = true
		c.verifyTimeout = timeout
		return nil
	}
}

func applyConnectOptions(opts []ConnectOption) (*connectConfig, error) {
	config := &connectConfig{
		connectionRetries: DefaultConnectionRetries,
	}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply connect option: %w", err)
		}
	}

	return config, nil
}

// ConnectRadio opens a transport for path (or the first auto-detected
// device), starts a link on it and returns the radio. ctx bounds the
// connection attempts only; the link runs until Radio.Close.
//
// Example usage:
//
//	radio, err := rfbridge.ConnectRadio(ctx, "/dev/ttyUSB0",
//	    rfbridge.WithTransportFactory(func(path string) (rfbridge.Transport, error) {
//	        return uart.New(path)
//	    }))
func ConnectRadio(ctx context.Context, path string, opts ...ConnectOption) (*Radio, error) {
	config, err := applyConnectOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to apply connect options: %w", err)
	}

	if config.autoDetect || path == "" {
		// Auto-detection already probed the device; a single attempt.
		transport, err := createAutoDetectedTransport(ctx, config.transportDeviceFactory, config.deviceDetector)
		if err != nil {
			return nil, fmt.Errorf("failed to create transport: %w", err)
		}
		return setupRadio(ctx, transport, config)
	}

	retryConfig := DefaultRetryConfig()
	retryConfig.MaxAttempts = config.connectionRetries
	retryConfig.OnRetry = func(attempt int, err error, sleep time.Duration) {
		debugf("connect %s attempt %d failed: %v (retrying in %v)", path, attempt, err, sleep)
	}

	var radio *Radio
	err = RetryWithConfig(ctx, retryConfig, func() error {
		transport, err := createManualTransport(path, config.transportFactory)
		if err != nil {
			return err
		}
		radio, err = setupRadio(ctx, transport, config)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect after %d attempts: %w", config.connectionRetries, err)
	}
	return radio, nil
}

// setupRadio starts a link on transport. The transport is closed on failure.
func setupRadio(ctx context.Context, transport Transport, config *connectConfig) (*Radio, error) {
	control := config.control
	if control == nil {
		if hc, ok := transport.(HardwareControl); ok {
			control = hc
		}
	}

	link, err := NewLink(transport, control, config.linkOptions...)
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("failed to create link: %w", err)
	}
	if err := link.Start(context.Background()); err != nil {
		_ = link.Close()
		return nil, fmt.Errorf("failed to start link: %w", err)
	}

	radio := NewRadio(link)
	if !config.verify {
		return radio, nil
	}

	verifyCtx := ctx
	if config.verifyTimeout > 0 {
		var cancel context.CancelFunc
		verifyCtx, cancel = context.WithTimeout(ctx, config.verifyTimeout)
		defer cancel()
	}
	info, err := radio.GetInfo(verifyCtx)
	if err != nil {
		_ = radio.Close()
		return nil, fmt.Errorf("failed to verify radio: %w", err)
	}
	debugf("connected radio: %s", info)
	return radio, nil
}

// createManualTransport handles creation of transport for a specific path
func createManualTransport(path string, factory TransportFactory) (Transport, error) {
	if factory == nil {
		return nil, errors.New("transport factory not provided")
	}

	transport, err := factory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for path %s: %w", path, err)
	}

	return transport, nil
}

// createAutoDetectedTransport handles auto-detection of devices
func createAutoDetectedTransport(
	ctx context.Context,
	factory TransportFromDeviceFactory,
	detector func(context.Context, *detection.Options) ([]detection.DeviceInfo, error),
) (Transport, error) {
	if factory == nil {
		return nil, errors.New("transport device factory not provided")
	}

	opts := detection.DefaultOptions()
	if detector == nil {
		detector = detection.DetectAll
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	devices, err := detector(ctx, &opts)
	if err != nil {
		return nil, fmt.Errorf("failed to detect devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, ErrDeviceNotFound
	}

	debugf("auto-detected %s", devices[0])
	return factory(devices[0])
}
