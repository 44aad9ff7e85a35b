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

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ZaparooProject/go-rfbridge"
)

// settingsFile is the YAML form of rfbridge.Settings. Omitted keys are left
// unchanged on the radio.
type settingsFile struct {
	Role        *string        `yaml:"role"`
	PANID       *uint16        `yaml:"pan_id"`
	Channel     *uint8         `yaml:"channel"`
	SecurityKey *string        `yaml:"security_key"`
	JoinAging   *time.Duration `yaml:"join_aging"`
	Cast        *castFile      `yaml:"cast"`
	GroupID     *uint16        `yaml:"group_id"`
	PollRate    *time.Duration `yaml:"poll_rate"`
	TXPower     *int8          `yaml:"tx_power"`
}

type castFile struct {
	Type    string `yaml:"type"`
	Address uint16 `yaml:"address"`
}

// loadSettings reads and validates a settings file
func loadSettings(path string) (rfbridge.Settings, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from the command line
	if err != nil {
		return rfbridge.Settings{}, fmt.Errorf("open settings: %w", err)
	}
	defer func() { _ = f.Close() }()
	return decodeSettings(f)
}

func decodeSettings(r io.Reader) (rfbridge.Settings, error) {
	var file settingsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return rfbridge.Settings{}, errors.New("settings file is empty")
		}
		return rfbridge.Settings{}, fmt.Errorf("parse settings: %w", err)
	}

	s, err := file.toSettings()
	if err != nil {
		return rfbridge.Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return rfbridge.Settings{}, err
	}
	return s, nil
}

func (f *settingsFile) toSettings() (rfbridge.Settings, error) {
	s := rfbridge.Settings{
		PANID:     f.PANID,
		Channel:   f.Channel,
		JoinAging: f.JoinAging,
		GroupID:   f.GroupID,
		PollRate:  f.PollRate,
		TXPower:   f.TXPower,
	}

	if f.Role != nil {
		role, err := rfbridge.ParseRole(*f.Role)
		if err != nil {
			return s, err
		}
		s.Role = &role
	}
	if f.SecurityKey != nil {
		key, err := parseKey(*f.SecurityKey)
		if err != nil {
			return s, err
		}
		s.SecurityKey = &key
	}
	if f.Cast != nil {
		typ, err := rfbridge.ParseCastType(f.Cast.Type)
		if err != nil {
			return s, err
		}
		s.Cast = &rfbridge.Cast{Type: typ, Address: f.Cast.Address}
	}
	return s, nil
}

// parseKey accepts 32 hex digits, optionally separated by colons or spaces
func parseKey(s string) ([16]byte, error) {
	var key [16]byte
	raw, err := parseHex(s)
	if err != nil {
		return key, fmt.Errorf("security key: %w", err)
	}
	if len(raw) != len(key) {
		return key, fmt.Errorf("security key must be %d bytes, got %d", len(key), len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// parseHex decodes "0102ff", "01:02:ff" or "01 02 ff"
func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(":", "", " ", "", "0x", "", "0X", "").Replace(strings.TrimSpace(s))
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}
