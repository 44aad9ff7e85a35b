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
	"encoding/binary"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-rfbridge/internal/syncutil"
)

// Role is the network role of the radio
type Role byte

const (
	// RoleCoordinator forms the network
	RoleCoordinator Role = 0x00
	// RoleRouter relays traffic for other nodes
	RoleRouter Role = 0x01
	// RoleEndDevice sleeps between polls of its parent
	RoleEndDevice Role = 0x02
)

func (r Role) String() string {
	switch r {
	case RoleCoordinator:
		return "coordinator"
	case RoleRouter:
		return "router"
	case RoleEndDevice:
		return "end-device"
	default:
		return fmt.Sprintf("Role(%d)", byte(r))
	}
}

// ParseRole parses the names returned by Role.String
func ParseRole(s string) (Role, error) {
	for _, r := range []Role{RoleCoordinator, RoleRouter, RoleEndDevice} {
		if strings.EqualFold(s, r.String()) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown role %q", ErrInvalidParameter, s)
}

// CastType selects how outgoing application data is addressed
type CastType byte

const (
	// CastBroadcast sends to every node; the address is ignored
	CastBroadcast CastType = 0x00
	// CastMulticast sends to a group
	CastMulticast CastType = 0x01
	// CastUnicast sends to one short address
	CastUnicast CastType = 0x02
)

func (c CastType) String() string {
	switch c {
	case CastBroadcast:
		return "broadcast"
	case CastMulticast:
		return "multicast"
	case CastUnicast:
		return "unicast"
	default:
		return fmt.Sprintf("CastType(%d)", byte(c))
	}
}

// ParseCastType parses the names returned by CastType.String
func ParseCastType(s string) (CastType, error) {
	for _, c := range []CastType{CastBroadcast, CastMulticast, CastUnicast} {
		if strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown cast type %q", ErrInvalidParameter, s)
}

// Radio parameter limits
const (
	MinChannel = 11
	MaxChannel = 26
	MinTXPower = -20
	MaxTXPower = 20
)

// infoReplySize is the get-info reply without the optional extended address
const infoReplySize = 12

// Info is the radio state reported by GetInfo
type Info struct {
	PollRate        time.Duration
	ExtendedAddress uint64
	PANID           uint16
	GroupID         uint16
	Role            Role
	Channel         uint8
	TXPower         int8
	FirmwareMajor   uint8
	FirmwareMinor   uint8
}

// FirmwareVersion returns the firmware version as "major.minor"
func (i *Info) FirmwareVersion() string {
	return fmt.Sprintf("%d.%d", i.FirmwareMajor, i.FirmwareMinor)
}

func (i *Info) String() string {
	s := fmt.Sprintf("%s ch=%d pan=0x%04X group=0x%04X poll=%v tx=%ddBm fw=%s",
		i.Role, i.Channel, i.PANID, i.GroupID, i.PollRate, i.TXPower, i.FirmwareVersion())
	if i.ExtendedAddress != 0 {
		s += fmt.Sprintf(" ext=%016X", i.ExtendedAddress)
	}
	return s
}

// parseInfo decodes a get-info reply, byte 0 being the sub-operation echo.
//
//	op(1) role(1) channel(1) pan(2) group(2) poll_ms(2) tx(1) fw_major(1) fw_minor(1) [ext(8)]
func parseInfo(p []byte) (*Info, error) {
	if len(p) < infoReplySize || p[0] != cfgGetInfo {
		return nil, fmt.Errorf("%w: get info reply % X", ErrInvalidResponse, p)
	}
	info := &Info{
		Role:          Role(p[1]),
		Channel:       p[2],
		PANID:         binary.BigEndian.Uint16(p[3:5]),
		GroupID:       binary.BigEndian.Uint16(p[5:7]),
		PollRate:      time.Duration(binary.BigEndian.Uint16(p[7:9])) * time.Millisecond,
		TXPower:       int8(p[9]),
		FirmwareMajor: p[10],
		FirmwareMinor: p[11],
	}
	if len(p) >= infoReplySize+8 {
		info.ExtendedAddress = binary.BigEndian.Uint64(p[infoReplySize : infoReplySize+8])
	}
	return info, nil
}

// Cast is a cast type with its destination address
type Cast struct {
	Type    CastType
	Address uint16
}

// Settings is a batch of optional radio settings. Nil fields are left
// unchanged.
type Settings struct {
	Role        *Role
	PANID       *uint16
	Channel     *uint8
	SecurityKey *[16]byte
	JoinAging   *time.Duration
	Cast        *Cast
	GroupID     *uint16
	PollRate    *time.Duration
	TXPower     *int8
}

// Validate checks every set field without touching the radio
func (s *Settings) Validate() error {
	if s.Role != nil {
		if err := validateRole(*s.Role); err != nil {
			return err
		}
	}
	if s.Channel != nil {
		if err := validateChannel(*s.Channel); err != nil {
			return err
		}
	}
	if s.JoinAging != nil {
		if _, err := durationUnits(*s.JoinAging, time.Second, "join aging"); err != nil {
			return err
		}
	}
	if s.Cast != nil {
		if err := validateCast(s.Cast.Type); err != nil {
			return err
		}
	}
	if s.PollRate != nil {
		if _, err := durationUnits(*s.PollRate, time.Millisecond, "poll rate"); err != nil {
			return err
		}
	}
	if s.TXPower != nil {
		if err := validateTXPower(*s.TXPower); err != nil {
			return err
		}
	}
	return nil
}

// Radio is the typed command surface of a radio coprocessor. It serialises
// requests so concurrent callers queue instead of failing with
// ErrTransactionPending, and routes get-info replies to GetInfo.
type Radio struct {
	link     *Link
	handler  atomic.Pointer[DataHandler]
	infoWait chan []byte
	waitMu   syncutil.Mutex
	mu       syncutil.Mutex
}

// NewRadio wraps link. It takes over the link's data handler; register
// application callbacks with Radio.OnData.
func NewRadio(link *Link) *Radio {
	r := &Radio{link: link}
	link.OnData(r.onData)
	return r
}

// Link returns the underlying link
func (r *Radio) Link() *Link {
	return r.link
}

// OnData registers the callback for unsolicited application data
func (r *Radio) OnData(h DataHandler) {
	if h == nil {
		r.handler.Store(nil)
		return
	}
	r.handler.Store(&h)
}

func (r *Radio) onData(cmd byte, payload []byte) {
	if cmd == CmdConfigure && len(payload) > 0 && payload[0] == cfgGetInfo {
		r.waitMu.Lock()
		wait := r.infoWait
		r.waitMu.Unlock()
		if wait != nil {
			select {
			case wait <- payload:
			default:
			}
			return
		}
	}
	if h := r.handler.Load(); h != nil {
		(*h)(cmd, payload)
	}
}

// send runs one transaction. Callers hold r.mu.
func (r *Radio) send(ctx context.Context, cmd byte, payload []byte) error {
	return r.link.Send(ctx, cmd, payload)
}

func (r *Radio) configure(ctx context.Context, op byte, args ...byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.send(ctx, CmdConfigure, append([]byte{op}, args...)); err != nil {
		return fmt.Errorf("%s: %w", configOpName(op), err)
	}
	return nil
}

// GetInfo requests the radio state and waits for the reply, which arrives
// as unsolicited configure data after the request is confirmed.
func (r *Radio) GetInfo(ctx context.Context) (*Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reply := make(chan []byte, 1)
	r.waitMu.Lock()
	r.infoWait = reply
	r.waitMu.Unlock()
	defer func() {
		r.waitMu.Lock()
		r.infoWait = nil
		r.waitMu.Unlock()
	}()

	if err := r.send(ctx, CmdConfigure, []byte{cfgGetInfo}); err != nil {
		return nil, fmt.Errorf("%s: %w", configOpName(cfgGetInfo), err)
	}

	timeout := r.link.config.TransactionTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case p := <-reply:
		return parseInfo(p)
	case <-timer.C:
		return nil, fmt.Errorf("%s: %w: no reply after %v", configOpName(cfgGetInfo), ErrTransactionTimeout, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// FactoryReset restores the radio's default configuration
func (r *Radio) FactoryReset(ctx context.Context) error {
	return r.configure(ctx, cfgFactoryReset)
}

// Reboot restarts the radio firmware
func (r *Radio) Reboot(ctx context.Context) error {
	return r.configure(ctx, cfgReboot)
}

// HardwareReset pulses the reset line
func (r *Radio) HardwareReset() error {
	return r.link.HardwareReset()
}

// SetRole sets the network role
func (r *Radio) SetRole(ctx context.Context, role Role) error {
	if err := validateRole(role); err != nil {
		return err
	}
	return r.configure(ctx, cfgSetRole, byte(role))
}

// SetPANID sets the personal area network identifier
func (r *Radio) SetPANID(ctx context.Context, id uint16) error {
	return r.configure(ctx, cfgSetPANID, byte(id>>8), byte(id))
}

// SetChannel sets the 2.4 GHz channel, MinChannel to MaxChannel
func (r *Radio) SetChannel(ctx context.Context, ch uint8) error {
	if err := validateChannel(ch); err != nil {
		return err
	}
	return r.configure(ctx, cfgSetChannel, ch)
}

// SetSecurityKey sets the 128-bit network key
func (r *Radio) SetSecurityKey(ctx context.Context, key [16]byte) error {
	return r.configure(ctx, cfgSetSecurity, key[:]...)
}

// SetJoinAging sets how long a join permit stays open, in whole seconds
func (r *Radio) SetJoinAging(ctx context.Context, d time.Duration) error {
	secs, err := durationUnits(d, time.Second, "join aging")
	if err != nil {
		return err
	}
	return r.configure(ctx, cfgSetJoinAging, byte(secs>>8), byte(secs))
}

// SetCast sets how application data is addressed
func (r *Radio) SetCast(ctx context.Context, cast CastType, addr uint16) error {
	if err := validateCast(cast); err != nil {
		return err
	}
	return r.configure(ctx, cfgSetCast, byte(cast), byte(addr>>8), byte(addr))
}

// SetGroupID sets the multicast group the radio belongs to
func (r *Radio) SetGroupID(ctx context.Context, id uint16) error {
	return r.configure(ctx, cfgSetGroupID, byte(id>>8), byte(id))
}

// SetPollRate sets how often a sleeping radio polls, in whole milliseconds
func (r *Radio) SetPollRate(ctx context.Context, d time.Duration) error {
	ms, err := durationUnits(d, time.Millisecond, "poll rate")
	if err != nil {
		return err
	}
	return r.configure(ctx, cfgSetPollRate, byte(ms>>8), byte(ms))
}

// SetTXPower sets the transmit power in dBm
func (r *Radio) SetTXPower(ctx context.Context, dbm int8) error {
	if err := validateTXPower(dbm); err != nil {
		return err
	}
	return r.configure(ctx, cfgSetTXPower, byte(dbm))
}

// SendControl sends an opaque control payload
func (r *Radio) SendControl(ctx context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.send(ctx, CmdControl, payload)
}

// Apply validates s and then applies each set field in declaration order.
// It stops at the first failure.
func (r *Radio) Apply(ctx context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	steps := []struct {
		apply func() error
		set   bool
	}{
		{set: s.Role != nil, apply: func() error { return r.SetRole(ctx, *s.Role) }},
		{set: s.PANID != nil, apply: func() error { return r.SetPANID(ctx, *s.PANID) }},
		{set: s.Channel != nil, apply: func() error { return r.SetChannel(ctx, *s.Channel) }},
		{set: s.SecurityKey != nil, apply: func() error { return r.SetSecurityKey(ctx, *s.SecurityKey) }},
		{set: s.JoinAging != nil, apply: func() error { return r.SetJoinAging(ctx, *s.JoinAging) }},
		{set: s.Cast != nil, apply: func() error { return r.SetCast(ctx, s.Cast.Type, s.Cast.Address) }},
		{set: s.GroupID != nil, apply: func() error { return r.SetGroupID(ctx, *s.GroupID) }},
		{set: s.PollRate != nil, apply: func() error { return r.SetPollRate(ctx, *s.PollRate) }},
		{set: s.TXPower != nil, apply: func() error { return r.SetTXPower(ctx, *s.TXPower) }},
	}
	for _, step := range steps {
		if !step.set {
			continue
		}
		if err := step.apply(); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying link
func (r *Radio) Close() error {
	return r.link.Close()
}

func validateRole(role Role) error {
	if role > RoleEndDevice {
		return fmt.Errorf("%w: role %d", ErrInvalidParameter, byte(role))
	}
	return nil
}

func validateChannel(ch uint8) error {
	if ch < MinChannel || ch > MaxChannel {
		return fmt.Errorf("%w: channel %d outside %d..%d", ErrInvalidParameter, ch, MinChannel, MaxChannel)
	}
	return nil
}

func validateCast(c CastType) error {
	if c > CastUnicast {
		return fmt.Errorf("%w: cast type %d", ErrInvalidParameter, byte(c))
	}
	return nil
}

func validateTXPower(dbm int8) error {
	if dbm < MinTXPower || dbm > MaxTXPower {
		return fmt.Errorf("%w: TX power %d dBm outside %d..%d", ErrInvalidParameter, dbm, MinTXPower, MaxTXPower)
	}
	return nil
}

// durationUnits converts d to a whole number of units in 1..65535
func durationUnits(d, unit time.Duration, what string) (uint16, error) {
	if d%unit != 0 {
		return 0, fmt.Errorf("%w: %s %v is not a whole number of %v", ErrInvalidParameter, what, d, unit)
	}
	n := d / unit
	if n < 1 || n > 0xFFFF {
		return 0, fmt.Errorf("%w: %s %v out of range", ErrInvalidParameter, what, d)
	}
	return uint16(n), nil
}
