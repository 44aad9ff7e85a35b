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
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

// debugEnabled controls console debug output. The session log, when open,
// receives every message regardless.
var debugEnabled atomic.Bool

func init() {
	if os.Getenv("RFBRIDGE_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled.Store(true)
	}
}

// Debugf prints debug information.
// Always writes to the session log (if initialized) with a timestamp.
// Only prints to the console when debug mode is enabled.
func Debugf(format string, args ...any) {
	emit(fmt.Sprintf(format, args...))
}

// Debugln prints debug information, formatting args like fmt.Sprint.
func Debugln(args ...any) {
	emit(fmt.Sprint(args...))
}

func emit(message string) {
	writeSessionLine(time.Now().Format("15:04:05.000") + " DEBUG: " + message)
	if debugEnabled.Load() {
		_, _ = fmt.Printf("DEBUG: %s\n", message)
	}
}

// SetDebugEnabled allows programmatic control of console debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// DebugEnabled reports whether console debug output is on
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// package-internal shorthands
var (
	debugf  = Debugf
	debugln = Debugln
)

// debugFrame logs a wire frame in hex
func debugFrame(dir TraceDirection, data []byte, note string) {
	if note != "" {
		debugf("%s %s (%s)", dir, formatHexBytes(data), note)
		return
	}
	debugf("%s %s", dir, formatHexBytes(data))
}
