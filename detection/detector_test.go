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

//nolint:paralleltest // Tests share the detector registry and cache
package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mode and Confidence Tests ---

func TestMode_String(t *testing.T) {
	assert.Equal(t, Passive, Mode(0))
	assert.Equal(t, "passive", Passive.String())
	assert.Equal(t, "probe", Probe.String())
	assert.Equal(t, "Mode(7)", Mode(7).String())
}

func TestConfidence_Ordering(t *testing.T) {
	assert.Less(t, Low, Medium)
	assert.Less(t, Medium, High)
	assert.Equal(t, Low, Confidence(0))
}

// --- DeviceInfo Tests ---

func TestDeviceInfo_String(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		device   DeviceInfo
	}{
		{
			name:     "Low confidence",
			device:   DeviceInfo{Transport: "uart", Path: "/dev/ttyS0", Confidence: Low},
			expected: "uart device at /dev/ttyS0 (confidence: low)",
		},
		{
			name:     "Medium confidence",
			device:   DeviceInfo{Transport: "uart", Path: "/dev/ttyUSB0", Confidence: Medium},
			expected: "uart device at /dev/ttyUSB0 (confidence: medium)",
		},
		{
			name:     "High confidence",
			device:   DeviceInfo{Transport: "uart", Path: "/dev/ttyACM0", Confidence: High},
			expected: "uart device at /dev/ttyACM0 (confidence: high)",
		},
		{
			name:     "Unknown confidence",
			device:   DeviceInfo{Transport: "uart", Path: "/dev/ttyUSB1", Confidence: Confidence(99)},
			expected: "uart device at /dev/ttyUSB1 (confidence: unknown)",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.device.String())
		})
	}
}

// --- Options Tests ---

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.Equal(t, Probe, opts.Mode)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.Equal(t, 2*time.Second, opts.ProbeTimeout)
	assert.True(t, opts.EnableCache)
	assert.Equal(t, 30*time.Second, opts.CacheTTL)
	assert.NotEmpty(t, opts.Blocklist)
}

// --- Cache Tests ---

func TestCache_GetSet(t *testing.T) {
	// Clear cache before test
	clearCache()
	defer clearCache()

	devices := []DeviceInfo{
		{Transport: "uart", Path: "/dev/ttyUSB0", Confidence: High},
	}

	// Initially cache should be empty
	cached, found := getCached("uart", time.Minute)
	assert.False(t, found)
	assert.Nil(t, cached)

	// Set cache
	setCached("uart", devices)

	// Now cache should have the devices
	cached, found = getCached("uart", time.Minute)
	assert.True(t, found)
	assert.Len(t, cached, 1)
	assert.Equal(t, "/dev/ttyUSB0", cached[0].Path)
}

func TestCache_TTLExpiry(t *testing.T) {
	clearCache()
	defer clearCache()

	devices := []DeviceInfo{
		{Transport: "uart", Path: "/dev/ttyUSB0", Confidence: High},
	}

	setCached("uart", devices)

	// With very short TTL, cache should expire after waiting
	time.Sleep(time.Millisecond)
	cached, found := getCached("uart", time.Nanosecond)
	assert.False(t, found)
	assert.Nil(t, cached)
}

func TestCache_IsolationBetweenTransports(t *testing.T) {
	clearCache()
	defer clearCache()

	uartDevices := []DeviceInfo{
		{Transport: "uart", Path: "/dev/ttyUSB0"},
	}
	mockDevices := []DeviceInfo{
		{Transport: "mock", Path: "mock://0"},
	}

	setCached("uart", uartDevices)
	setCached("mock", mockDevices)

	// Each transport should return its own devices
	uartCached, found := getCached("uart", time.Minute)
	assert.True(t, found)
	assert.Equal(t, "uart", uartCached[0].Transport)

	mockCached, found := getCached("mock", time.Minute)
	assert.True(t, found)
	assert.Equal(t, "mock", mockCached[0].Transport)
}

func TestCache_ClearForTransport(t *testing.T) {
	clearCache()
	defer clearCache()

	setCached("uart", []DeviceInfo{{Transport: "uart"}})
	setCached("mock", []DeviceInfo{{Transport: "mock"}})

	// Clear only UART cache
	clearCacheForTransport("uart")

	// UART should be cleared
	_, found := getCached("uart", time.Minute)
	assert.False(t, found)

	// Other transports are untouched
	_, found = getCached("mock", time.Minute)
	assert.True(t, found)
}

func TestCache_CopyBehavior(t *testing.T) {
	clearCache()
	defer clearCache()

	devices := []DeviceInfo{
		{Transport: "uart", Path: "/dev/ttyUSB0"},
	}
	setCached("uart", devices)

	// Modify original after caching
	devices[0].Path = "/dev/ttyUSB1"

	// Cache should have original value
	cached, found := getCached("uart", time.Minute)
	assert.True(t, found)
	assert.Equal(t, "/dev/ttyUSB0", cached[0].Path)

	// Modify returned copy
	cached[0].Path = "/dev/ttyUSB2"

	// Cache should still have original value
	cached2, found := getCached("uart", time.Minute)
	assert.True(t, found)
	assert.Equal(t, "/dev/ttyUSB0", cached2[0].Path)
}

func TestCache_CopiesMetadata(t *testing.T) {
	clearCache()
	defer clearCache()

	setCached("uart", []DeviceInfo{{Path: "/dev/ttyUSB0", Metadata: map[string]string{"vidpid": "10C4:EA60"}}})
	cached, _ := getCached("uart", time.Minute)
	cached[0].Metadata["vidpid"] = "0000:0000"

	again, _ := getCached("uart", time.Minute)
	assert.Equal(t, "10C4:EA60", again[0].Metadata["vidpid"])
}

// --- getDetectors Tests ---

// MockDetector implements Detector interface for testing.
type MockDetector struct {
	err       error
	transport string
	devices   []DeviceInfo
	calls     int
}

func (m *MockDetector) Detect(_ context.Context, _ *Options) ([]DeviceInfo, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.devices) == 0 {
		return nil, ErrNoDevicesFound
	}
	return m.devices, nil
}

func (m *MockDetector) Transport() string {
	return m.transport
}

func TestGetDetectors_FilterByTransport(t *testing.T) {
	// Save and restore original registry
	originalRegistry := registry
	defer func() { registry = originalRegistry }()

	// Clear and setup test registry
	registry = nil
	RegisterDetector(&MockDetector{transport: "uart"})
	RegisterDetector(&MockDetector{transport: "mock"})
	RegisterDetector(&MockDetector{transport: "virtual"})

	tests := []struct {
		name       string
		transports []string
		expected   int
	}{
		{"All transports", nil, 3},
		{"Empty transports", []string{}, 3},
		{"Single transport", []string{"uart"}, 1},
		{"Two transports", []string{"uart", "mock"}, 2},
		{"Non-existent transport", []string{"usb"}, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := getDetectors(tc.transports)
			assert.Len(t, result, tc.expected)
		})
	}
}

// --- DetectAll Error Cases ---

func TestDetectAllContext_NoDetectors(t *testing.T) {
	originalRegistry := registry
	defer func() { registry = originalRegistry }()

	registry = nil

	opts := DefaultOptions()
	opts.Transports = []string{"nonexistent"}
	opts.Timeout = 100 * time.Millisecond

	_, err := DetectAll(context.Background(), &opts)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no detectors available")
}

func TestDetectAllContext_Timeout(t *testing.T) {
	originalRegistry := registry
	defer func() { registry = originalRegistry }()

	// Create a detector that blocks
	registry = nil
	RegisterDetector(&BlockingDetector{})

	opts := DefaultOptions()
	opts.Timeout = 10 * time.Millisecond
	opts.EnableCache = false

	_, err := DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, ErrDetectionTimeout)
}

// BlockingDetector is a detector that never returns.
type BlockingDetector struct{}

func (*BlockingDetector) Detect(ctx context.Context, _ *Options) ([]DeviceInfo, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (*BlockingDetector) Transport() string {
	return "blocking"
}

// --- Public Cache Functions ---

func TestClearDetectionCache(t *testing.T) {
	setCached("uart", []DeviceInfo{{Transport: "uart"}})
	setCached("mock", []DeviceInfo{{Transport: "mock"}})

	ClearDetectionCache()

	_, found := getCached("uart", time.Minute)
	assert.False(t, found)

	_, found = getCached("mock", time.Minute)
	assert.False(t, found)
}

func TestClearDetectionCacheForTransport(t *testing.T) {
	clearCache()
	defer clearCache()

	setCached("uart", []DeviceInfo{{Transport: "uart"}})
	setCached("mock", []DeviceInfo{{Transport: "mock"}})

	ClearDetectionCacheForTransport("uart")

	_, found := getCached("uart", time.Minute)
	assert.False(t, found)

	_, found = getCached("mock", time.Minute)
	assert.True(t, found)
}

// --- DetectAll Results ---

func TestDetectAll_OrdersByConfidence(t *testing.T) {
	originalRegistry := registry
	defer func() { registry = originalRegistry }()
	clearCache()
	defer clearCache()

	registry = nil
	RegisterDetector(&MockDetector{transport: "uart", devices: []DeviceInfo{
		{Path: "/dev/ttyS0", Confidence: Low},
		{Path: "/dev/ttyUSB0", Confidence: High},
		{Path: "/dev/ttyUSB1", Confidence: Medium},
	}})

	opts := DefaultOptions()
	devices, err := DetectAll(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 3)
	assert.Equal(t, "/dev/ttyUSB0", devices[0].Path)
	assert.Equal(t, "/dev/ttyUSB1", devices[1].Path)
	assert.Equal(t, "/dev/ttyS0", devices[2].Path)
}

func TestDetectAll_UsesCache(t *testing.T) {
	originalRegistry := registry
	defer func() { registry = originalRegistry }()
	clearCache()
	defer clearCache()

	mock := &MockDetector{transport: "uart", devices: []DeviceInfo{
		{Path: "/dev/ttyUSB0", Metadata: map[string]string{"vidpid": "10C4:EA60"}},
	}}
	registry = nil
	RegisterDetector(mock)

	opts := DefaultOptions()
	_, err := DetectAll(context.Background(), &opts)
	require.NoError(t, err)

	// Cached results still honour a blocklist added later.
	opts.Blocklist = []string{"10c4:ea60"}
	_, err = DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, ErrNoDevicesFound)
	assert.Equal(t, 1, mock.calls)
}

func TestDetectAll_ReportsErrors(t *testing.T) {
	originalRegistry := registry
	defer func() { registry = originalRegistry }()

	boom := errors.New("permission denied")
	registry = nil
	RegisterDetector(&MockDetector{transport: "uart", err: boom})

	opts := DefaultOptions()
	opts.EnableCache = false
	_, err := DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, boom)
}

func TestDetectAll_NoDevices(t *testing.T) {
	originalRegistry := registry
	defer func() { registry = originalRegistry }()

	registry = nil
	RegisterDetector(&MockDetector{transport: "uart"})

	opts := DefaultOptions()
	opts.EnableCache = false
	_, err := DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, ErrNoDevicesFound)
}
