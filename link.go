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
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-rfbridge/internal/frame"
	"github.com/ZaparooProject/go-rfbridge/internal/syncutil"
)

// DataHandler receives unsolicited application frames in arrival order. It
// runs outside the pump's read lock, so it may call Kick or HardwareReset,
// but it must not block on the link: calling Send from it waits for a
// confirm that only the next dispatch can deliver. Hand such work to
// another goroutine.
type DataHandler func(cmd byte, payload []byte)

// LinkConfig contains configuration options for a Link
type LinkConfig struct {
	Timer              TimerService
	OnData             DataHandler
	Port               string
	TransactionTimeout time.Duration
	ReadTimeout        time.Duration
	KickReadTimeout    time.Duration
	TraceSize          int
}

// DefaultLinkConfig returns default link configuration
func DefaultLinkConfig() *LinkConfig {
	return &LinkConfig{
		TransactionTimeout: DefaultTransactionTimeout,
		ReadTimeout:        DefaultReadTimeout,
		KickReadTimeout:    DefaultKickReadTimeout,
		TraceSize:          DefaultTraceSize,
	}
}

// Option configures a Link
type Option func(*LinkConfig) error

// WithTransactionTimeout sets how long Send waits for a confirm
func WithTransactionTimeout(d time.Duration) Option {
	return func(c *LinkConfig) error {
		if d <= 0 {
			return fmt.Errorf("%w: transaction timeout %v", ErrInvalidParameter, d)
		}
		c.TransactionTimeout = d
		return nil
	}
}

// WithReadTimeout sets the bound on each pump read
func WithReadTimeout(d time.Duration) Option {
	return func(c *LinkConfig) error {
		if d <= 0 {
			return fmt.Errorf("%w: read timeout %v", ErrInvalidParameter, d)
		}
		c.ReadTimeout = d
		return nil
	}
}

// WithTimerService replaces the runtime-backed timer service
func WithTimerService(ts TimerService) Option {
	return func(c *LinkConfig) error {
		c.Timer = ts
		return nil
	}
}

// WithTraceSize sets how many wire events are kept for timeout traces
func WithTraceSize(n int) Option {
	return func(c *LinkConfig) error {
		c.TraceSize = n
		return nil
	}
}

// WithDataHandler registers the unsolicited data callback up front
func WithDataHandler(h DataHandler) Option {
	return func(c *LinkConfig) error {
		c.OnData = h
		return nil
	}
}

// WithPortName labels logs and traces with the device path
func WithPortName(port string) Option {
	return func(c *LinkConfig) error {
		c.Port = port
		return nil
	}
}

// transactionIDs numbers transactions across all links, so links sharing a
// TimerService never arm the same timer id.
var transactionIDs atomic.Uint64

// transaction is the single pending request of a link.
type transaction struct {
	result      error
	done        chan struct{}
	payload     []byte
	id          uint64
	cmd         byte
	transmitted bool
}

// LinkMetrics is a snapshot of link counters
type LinkMetrics struct {
	Pump          PumpMetrics
	Transactions  uint64
	Confirmed     uint64
	TimedOut      uint64
	Cancelled     uint64
	Rejected      uint64
	Transmissions uint64
	EmptyPolls    uint64
	Unsolicited   uint64
	StrayConfirms uint64
	WriteErrors   uint64
}

// Link is one session with a radio coprocessor. It owns the frame codec,
// the pending-transaction slot and the transport pump, so several links can
// run side by side.
//
// Send is safe to call from any goroutine, but only one transaction may be
// pending at a time; a second Send fails with ErrTransactionPending. Radio
// wraps a Link with a lock for callers that want to queue instead.
type Link struct {
	transport Transport
	control   HardwareControl
	timer     TimerService
	codec     *frame.Codec
	trace     *TraceBuffer
	pump      *Pump
	handler   atomic.Pointer[DataHandler]
	closed    chan struct{}
	cancel    context.CancelFunc
	slot      *transaction
	config    LinkConfig

	transactions  atomic.Uint64
	confirmed     atomic.Uint64
	timedOut      atomic.Uint64
	cancelled     atomic.Uint64
	rejected      atomic.Uint64
	transmissions atomic.Uint64
	emptyPolls    atomic.Uint64
	unsolicited   atomic.Uint64
	strayConfirms atomic.Uint64
	writeErrors   atomic.Uint64

	closeOnce sync.Once
	mu        syncutil.Mutex
	writeMu   syncutil.Mutex
}

// NewLink creates a link over transport. control may be nil when the
// coprocessor needs no wake pulse. The pump is not running until Start.
func NewLink(transport Transport, control HardwareControl, opts ...Option) (*Link, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}
	config := DefaultLinkConfig()
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}
	if config.Timer == nil {
		config.Timer = NewTimerService()
	}
	if control == nil {
		control = NoHardwareControl{}
	}

	l := &Link{
		transport: transport,
		control:   control,
		timer:     config.Timer,
		codec:     frame.NewCodec(),
		trace:     NewTraceBuffer(config.Port, config.TraceSize),
		closed:    make(chan struct{}),
		config:    *config,
	}
	if config.OnData != nil {
		l.OnData(config.OnData)
	}
	l.pump = newPump(transport, l.codec, l.dispatch, config.ReadTimeout, config.KickReadTimeout)
	l.pump.onDrop = l.frameDropped
	return l, nil
}

// Start runs the transport pump until ctx is done or the link is closed. If
// the transport can notify asynchronously, notifications kick the pump.
func (l *Link) Start(ctx context.Context) error {
	select {
	case <-l.closed:
		return ErrLinkClosed
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	if l.cancel != nil {
		l.mu.Unlock()
		cancel()
		return nil
	}
	l.cancel = cancel
	l.mu.Unlock()

	if err := l.pump.Start(ctx); err != nil {
		return err
	}
	if n, ok := l.transport.(Notifier); ok {
		if err := n.Notify(ctx, l.Kick); err != nil {
			debugf("async notification unavailable on %s: %v", l.config.Port, err)
		}
	}
	return nil
}

// OnData registers the callback for unsolicited application frames,
// replacing any previous one. A nil handler drops such frames after
// confirming them.
func (l *Link) OnData(h DataHandler) {
	if h == nil {
		l.handler.Store(nil)
		return
	}
	l.handler.Store(&h)
}

// Kick runs one pump step immediately. Transports with a Notifier call it
// when the device signals pending data.
func (l *Link) Kick() {
	l.pump.Kick()
}

// Pending reports whether a transaction is staged.
func (l *Link) Pending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.slot != nil
}

// Trace returns the recent wire events of the link
func (l *Link) Trace() []TraceEntry {
	return l.trace.Entries()
}

// Send stages cmd and payload, wakes the coprocessor and blocks until the
// coprocessor has fetched the frame and confirmed it. It returns
// ErrTransactionTimeout (carrying a wire trace) if no confirm arrives within
// the transaction timeout, ctx.Err() if ctx ends first and ErrLinkClosed if
// the link is closed meanwhile. Send never retries.
func (l *Link) Send(ctx context.Context, cmd byte, payload []byte) error {
	if cmd == CmdDataRequest || cmd == CmdDataConfirm {
		return fmt.Errorf("%w: %s cannot be sent as a transaction", ErrInvalidParameter, CommandName(cmd))
	}
	if len(payload) > frame.MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrDataTooLarge, len(payload), frame.MaxPayloadSize)
	}
	select {
	case <-l.closed:
		return ErrLinkClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := l.stage(cmd, payload)
	if err != nil {
		l.rejected.Add(1)
		return err
	}
	l.transactions.Add(1)

	if err := l.control.AssertWakePulse(); err != nil {
		l.complete(tx, nil)
		return fmt.Errorf("%w: %w", ErrWakeFailed, err)
	}

	timeout := l.config.TransactionTimeout
	if err := l.timer.ArmOneShot(tx.id, timeout, func() { l.expire(tx, timeout) }); err != nil {
		l.complete(tx, nil)
		return fmt.Errorf("arm transaction timer: %w", err)
	}
	// A fast peer may have confirmed before the timer was armed.
	select {
	case <-tx.done:
		l.timer.Cancel(tx.id)
	default:
	}

	select {
	case <-tx.done:
	case <-ctx.Done():
		if l.complete(tx, ctx.Err()) {
			l.timer.Cancel(tx.id)
			l.cancelled.Add(1)
		}
	case <-l.closed:
		if l.complete(tx, ErrLinkClosed) {
			l.timer.Cancel(tx.id)
		}
	}
	<-tx.done
	return tx.result
}

// stage puts a new transaction into the empty slot
func (l *Link) stage(cmd byte, payload []byte) (*transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.slot != nil {
		return nil, fmt.Errorf("%w: %s", ErrTransactionPending, CommandName(l.slot.cmd))
	}
	tx := &transaction{
		id:      transactionIDs.Add(1),
		cmd:     cmd,
		payload: append([]byte(nil), payload...),
		done:    make(chan struct{}),
	}
	l.slot = tx
	debugf("staged %s (%d bytes) as transaction %d", CommandName(cmd), len(payload), tx.id)
	return tx, nil
}

// complete records result for tx and empties the slot. It reports false if
// tx was no longer pending.
func (l *Link) complete(tx *transaction, result error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.slot != tx {
		return false
	}
	l.slot = nil
	tx.result = result
	close(tx.done)
	return true
}

// expire is the timer callback. It is a no-op once tx has completed.
func (l *Link) expire(tx *transaction, after time.Duration) {
	var pending bool
	l.mu.Locked(func() { pending = l.slot == tx })
	if !pending {
		return
	}

	l.trace.RecordTimeout(fmt.Sprintf("%s transaction %d after %v", CommandName(tx.cmd), tx.id, after))
	err := l.trace.WrapError(fmt.Errorf("%w: %s after %v", ErrTransactionTimeout, CommandName(tx.cmd), after))
	if l.complete(tx, err) {
		l.timedOut.Add(1)
		debugf("transaction %d timed out", tx.id)
	}
}

// dispatch handles one validated inbound frame. It runs on the pump
// goroutine.
func (l *Link) dispatch(f frame.Frame) {
	note := fmt.Sprintf("%s seq=%d", CommandName(f.Command), f.Sequence)
	l.trace.RecordRX(f.Payload, note)
	debugFrame(TraceRX, f.Payload, note)

	switch {
	case isUnsolicited(f.Command):
		l.handleUnsolicited(f)
	case f.Command == CmdDataRequest:
		l.handleDataRequest()
	default:
		l.handleDataConfirm()
	}
}

// handleDataRequest transmits the staged frame. Every poll while the slot is
// pending retransmits it; an empty slot sends nothing.
func (l *Link) handleDataRequest() {
	l.mu.Lock()
	tx := l.slot
	l.mu.Unlock()
	if tx == nil {
		l.emptyPolls.Add(1)
		debugln("data request with nothing staged")
		return
	}

	if err := l.writeFrame(tx.cmd, tx.payload); err != nil {
		return
	}
	l.transmissions.Add(1)

	l.mu.Locked(func() {
		if l.slot == tx {
			tx.transmitted = true
		}
	})
}

// handleDataConfirm completes a pending transaction that has been sent.
func (l *Link) handleDataConfirm() {
	l.mu.Lock()
	tx := l.slot
	sent := tx != nil && tx.transmitted
	l.mu.Unlock()
	if !sent {
		l.strayConfirms.Add(1)
		debugln("ignoring confirm with no transmitted transaction")
		return
	}

	l.timer.Cancel(tx.id)
	if l.complete(tx, nil) {
		l.confirmed.Add(1)
		debugf("transaction %d confirmed", tx.id)
	}
}

// handleUnsolicited confirms an application frame and hands it to the data
// handler.
func (l *Link) handleUnsolicited(f frame.Frame) {
	l.unsolicited.Add(1)
	_ = l.writeFrame(CmdDataConfirm, nil)

	if h := l.handler.Load(); h != nil {
		(*h)(f.Command, f.Payload)
	}
}

// writeFrame builds and writes one frame to the transport
func (l *Link) writeFrame(cmd byte, payload []byte) error {
	wire, err := l.codec.Build(cmd, payload)
	if err != nil {
		return err
	}

	l.writeMu.Lock()
	n, err := l.transport.Write(wire)
	l.writeMu.Unlock()

	note := CommandName(cmd)
	if err == nil && n != len(wire) {
		err = fmt.Errorf("%w: short write %d of %d", ErrTransportWrite, n, len(wire))
	}
	if err != nil {
		l.writeErrors.Add(1)
		l.trace.RecordTX(wire, note+" FAILED")
		debugf("write %s failed: %v", note, err)
		return err
	}
	l.trace.RecordTX(wire, note)
	debugFrame(TraceTX, wire, note)
	return nil
}

// frameDropped logs frames discarded by validation
func (l *Link) frameDropped(raw []byte, err error) {
	l.trace.RecordRX(raw, "DROPPED: "+err.Error())
	debugf("dropped frame: %v", err)
}

// HardwareReset pulses the coprocessor's reset line and discards any partial
// frame buffered from before the reset. A pending transaction is left to
// time out.
func (l *Link) HardwareReset() error {
	if err := l.control.AssertHardwareReset(); err != nil {
		if errors.Is(err, ErrResetFailed) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrResetFailed, err)
	}
	l.pump.reset()
	debugf("hardware reset on %s", l.config.Port)
	return nil
}

// Metrics returns a snapshot of the link counters
func (l *Link) Metrics() LinkMetrics {
	return LinkMetrics{
		Pump:          l.pump.Metrics(),
		Transactions:  l.transactions.Load(),
		Confirmed:     l.confirmed.Load(),
		TimedOut:      l.timedOut.Load(),
		Cancelled:     l.cancelled.Load(),
		Rejected:      l.rejected.Load(),
		Transmissions: l.transmissions.Load(),
		EmptyPolls:    l.emptyPolls.Load(),
		Unsolicited:   l.unsolicited.Load(),
		StrayConfirms: l.strayConfirms.Load(),
		WriteErrors:   l.writeErrors.Load(),
	}
}

// Err returns the error that stopped the pump, if any
func (l *Link) Err() error {
	return l.pump.Err()
}

// Close stops the pump, fails any pending transaction with ErrLinkClosed and
// closes the transport.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)

		var cancel context.CancelFunc
		l.mu.Locked(func() { cancel = l.cancel })
		if cancel != nil {
			cancel()
		}
		l.pump.Stop()

		if cerr := l.transport.Close(); cerr != nil && !errors.Is(cerr, ErrTransportClosed) {
			err = fmt.Errorf("close transport: %w", cerr)
		}
	})
	return err
}
