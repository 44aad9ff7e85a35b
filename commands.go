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

import "fmt"

// Link-level command codes
const (
	// CmdDataRequest is sent by the coprocessor to ask whether the host has
	// anything queued for it.
	CmdDataRequest byte = 0x81
	// CmdDataConfirm acknowledges delivery of the previous frame, in either
	// direction.
	CmdDataConfirm byte = 0x82
	// CmdConfigure carries a configuration sub-operation in payload byte 0.
	CmdConfigure byte = 0x10
	// CmdControl carries opaque application control data.
	CmdControl byte = 0x20
)

// Configuration sub-operations, selected by byte 0 of a CmdConfigure payload
const (
	cfgFactoryReset byte = 0x01
	cfgReboot       byte = 0x02
	cfgSetRole      byte = 0x03
	cfgSetPANID     byte = 0x04
	cfgSetChannel   byte = 0x05
	cfgSetSecurity  byte = 0x06
	cfgSetJoinAging byte = 0x07
	cfgSetCast      byte = 0x08
	cfgSetGroupID   byte = 0x09
	cfgSetPollRate  byte = 0x0A
	cfgSetTXPower   byte = 0x0B
	cfgGetInfo      byte = 0x0C
)

// CommandName returns a readable name for a command code, used in logs and
// wire traces.
func CommandName(cmd byte) string {
	switch cmd {
	case CmdDataRequest:
		return "DATA_REQUEST"
	case CmdDataConfirm:
		return "DATA_CONFIRM"
	case CmdConfigure:
		return "CONFIGURE"
	case CmdControl:
		return "CONTROL"
	default:
		return fmt.Sprintf("DATA(0x%02X)", cmd)
	}
}

// configOpName returns a readable name for a configuration sub-operation
func configOpName(op byte) string {
	names := map[byte]string{
		cfgFactoryReset: "factory reset",
		cfgReboot:       "reboot",
		cfgSetRole:      "set role",
		cfgSetPANID:     "set PAN ID",
		cfgSetChannel:   "set channel",
		cfgSetSecurity:  "set security key",
		cfgSetJoinAging: "set join aging",
		cfgSetCast:      "set cast",
		cfgSetGroupID:   "set group ID",
		cfgSetPollRate:  "set poll rate",
		cfgSetTXPower:   "set TX power",
		cfgGetInfo:      "get info",
	}
	if name, ok := names[op]; ok {
		return name
	}
	return fmt.Sprintf("op 0x%02X", op)
}

// isUnsolicited reports whether an inbound command is application data that
// must be confirmed and handed to the data callback.
func isUnsolicited(cmd byte) bool {
	return cmd != CmdDataRequest && cmd != CmdDataConfirm
}
