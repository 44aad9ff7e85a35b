//go:build !linux

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

	"go.bug.st/serial/enumerator"

	"github.com/ZaparooProject/go-rfbridge/detection"
)

// getSerialPorts lists ports through the platform enumerator
func getSerialPorts(_ context.Context) ([]serialPort, error) {
	list, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate ports: %w", err)
	}
	if len(list) == 0 {
		return nil, detection.ErrNoDevicesFound
	}

	ports := make([]serialPort, 0, len(list))
	for _, p := range list {
		port := serialPort{
			Path: p.Name,
			Name: p.Name,
		}
		if p.IsUSB {
			port.VIDPID = detection.VIDPID(p.VID, p.PID)
			port.Product = p.Product
			port.SerialNumber = p.SerialNumber
		}
		ports = append(ports, port)
	}
	return ports, nil
}
