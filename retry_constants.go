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

import "time"

// Connection retry constants control how ConnectRadio opens the link.
const (
	// DefaultConnectionRetries is the number of attempts to open a link.
	DefaultConnectionRetries = 3
	// ConnectionInitialBackoff is the initial delay between attempts.
	ConnectionInitialBackoff = 100 * time.Millisecond
	// ConnectionMaxBackoff is the maximum delay between attempts.
	ConnectionMaxBackoff = 500 * time.Millisecond
	// ConnectionBackoffMultiplier is the exponential backoff multiplier.
	ConnectionBackoffMultiplier = 2.0
	// ConnectionJitter is the random jitter factor (0.0-1.0).
	ConnectionJitter = 0.1
	// ConnectionRetryTimeout is the overall timeout for all attempts.
	ConnectionRetryTimeout = 10 * time.Second
)

// Link timing defaults.
const (
	// DefaultTransactionTimeout is how long Send waits for the coprocessor to
	// poll and confirm a staged command.
	DefaultTransactionTimeout = 3 * time.Second
	// DefaultReadTimeout bounds each pump read so Stop is observed promptly.
	DefaultReadTimeout = 50 * time.Millisecond
	// DefaultKickReadTimeout bounds the read done by an asynchronous kick.
	DefaultKickReadTimeout = 5 * time.Millisecond
	// DefaultTraceSize is the number of wire events kept for error traces.
	DefaultTraceSize = 16
	// pumpErrorBackoff is the pause after a non-fatal read error.
	pumpErrorBackoff = 10 * time.Millisecond
)
