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

package detection

import (
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// DefaultBlocklist returns USB serial devices that must not be probed: a
// get-info frame written to them has side effects. Entries are VID:PID as
// produced by VIDPID.
func DefaultBlocklist() []string {
	return []string{
		"2341:0043", // Arduino Uno, resets on open
		"1D50:6089", // HackRF One
		"0483:5740", // STM32 virtual COM, commonly a 3D printer controller
	}
}

// VIDPID joins a USB vendor and product id into the "VVVV:PPPP" key used by
// blocklists and device metadata. Both ids must be four hex digits, as
// sysfs and the serial enumerator report them; otherwise it returns "".
func VIDPID(vid, pid string) string {
	vid = strings.ToUpper(strings.TrimSpace(vid))
	pid = strings.ToUpper(strings.TrimSpace(pid))
	if !isUSBID(vid) || !isUSBID(pid) {
		return ""
	}
	return vid + ":" + pid
}

func isUSBID(s string) bool {
	if len(s) != 4 {
		return false
	}
	_, err := strconv.ParseUint(s, 16, 16)
	return err == nil
}

// IsBlocked reports whether vidpid is on the blocklist. Entries compare
// case-insensitively.
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = strings.TrimSpace(vidpid)
	if vidpid == "" {
		return false
	}
	return slices.ContainsFunc(blocklist, func(entry string) bool {
		return strings.EqualFold(strings.TrimSpace(entry), vidpid)
	})
}

// IsPathIgnored reports whether devicePath names one of ignorePaths. Paths
// are cleaned and case-folded for COM names, and symlinks such as
// /dev/serial/by-id entries are resolved, so a stable by-id path ignores
// the ttyUSB node it points to.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	device := portKeys(devicePath)
	for _, p := range ignorePaths {
		if p == "" {
			continue
		}
		for _, key := range portKeys(p) {
			if slices.Contains(device, key) {
				return true
			}
		}
	}
	return false
}

// portKeys returns the comparison keys for a port path: the path itself
// and, if it is a symlink, its target.
func portKeys(path string) []string {
	keys := []string{portKey(path)}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		if key := portKey(resolved); key != keys[0] {
			keys = append(keys, key)
		}
	}
	return keys
}

func portKey(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
