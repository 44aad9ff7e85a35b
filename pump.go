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
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-rfbridge/internal/frame"
	"github.com/ZaparooProject/go-rfbridge/internal/syncutil"
)

// PumpMetrics tracks operational metrics for the transport pump
type PumpMetrics struct {
	Steps           uint64        // Read/parse cycles, loop and kicks
	Kicks           uint64        // Steps triggered by async notification
	ReadErrors      uint64        // Non-fatal read errors
	BytesIn         uint64        // Bytes read from the transport
	BytesDiscarded  uint64        // Bytes dropped because the ring stayed full
	FramesValid     uint64        // Frames dispatched
	BytesDropped    uint64        // Garbage discarded while resynchronising
	ChecksumErrors  uint64        // Complete frames failing the checksum
	MalformedFrames uint64        // Complete frames with inconsistent length
	LastStepLatency time.Duration // Duration of the last step
}

// Pump drains bytes from the transport into the codec's ring and dispatches
// every valid frame. It runs as a background goroutine started by Start;
// Kick runs an extra step on the caller's goroutine. Steps never overlap,
// which keeps the ring single-producer/single-consumer and preserves the
// byte order of reads.
//
// Frames are dispatched after the step lock is released, one goroutine at a
// time and in arrival order, so a dispatch callback may call Kick or reset.
type Pump struct {
	transport   Transport
	codec       *frame.Codec
	dispatch    func(frame.Frame)
	onDrop      func(raw []byte, err error)
	stopChan    chan struct{}
	err         atomic.Pointer[error]
	buf         []byte
	wg          sync.WaitGroup
	readTimeout time.Duration
	kickTimeout time.Duration

	steps          atomic.Uint64
	kicks          atomic.Uint64
	readErrors     atomic.Uint64
	bytesIn        atomic.Uint64
	bytesDiscarded atomic.Uint64
	framesValid    atomic.Uint64
	lastLatency    atomic.Int64

	queue      []frame.Frame
	queueMu    syncutil.Mutex
	stepMu     syncutil.Mutex
	running    atomic.Bool
	delivering atomic.Bool
}

func newPump(t Transport, codec *frame.Codec, dispatch func(frame.Frame), readTimeout, kickTimeout time.Duration) *Pump {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	if kickTimeout <= 0 {
		kickTimeout = DefaultKickReadTimeout
	}
	return &Pump{
		transport:   t,
		codec:       codec,
		dispatch:    dispatch,
		stopChan:    make(chan struct{}, 1),
		buf:         make([]byte, frame.MaxWireSize),
		readTimeout: readTimeout,
		kickTimeout: kickTimeout,
	}
}

// Start launches the pump goroutine. Calling Start on a running pump does
// nothing.
func (p *Pump) Start(ctx context.Context) error {
	if p.running.CompareAndSwap(false, true) {
		p.wg.Add(1)
		go p.loop(ctx)
	}
	return nil
}

// Running reports whether the pump goroutine is active
func (p *Pump) Running() bool {
	return p.running.Load()
}

func (p *Pump) loop(ctx context.Context) {
	defer p.wg.Done()
	defer p.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		default:
		}

		err := p.step(p.readTimeout)
		if err == nil {
			continue
		}
		if IsFatal(err) {
			p.err.Store(&err)
			debugf("pump stopped: %v", err)
			return
		}
		p.readErrors.Add(1)
		debugf("pump read error: %v", err)

		timer := time.NewTimer(pumpErrorBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.stopChan:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Kick runs one step with a short read timeout. Errors are left for the
// loop to observe.
func (p *Pump) Kick() {
	p.kicks.Add(1)
	if err := p.step(p.kickTimeout); err != nil {
		debugf("kick: %v", err)
	}
}

// step reads once, feeds the ring and dispatches every complete frame.
func (p *Pump) step(timeout time.Duration) error {
	err := p.read(timeout)
	p.deliver()
	return err
}

// read runs the locked half of a step: one transport read, then every
// complete frame moves from the ring to the dispatch queue.
func (p *Pump) read(timeout time.Duration) error {
	p.stepMu.Lock()
	defer p.stepMu.Unlock()

	start := time.Now()
	defer func() {
		p.steps.Add(1)
		p.lastLatency.Store(int64(time.Since(start)))
	}()

	n, err := p.transport.Read(p.buf, timeout)
	if n > 0 {
		p.bytesIn.Add(uint64(n))
		p.feed(p.buf[:n])
	}
	p.drain()
	return err
}

// feed pushes data into the ring, draining frames whenever it fills up.
func (p *Pump) feed(data []byte) {
	for len(data) > 0 {
		accepted := p.codec.Receive(data)
		data = data[accepted:]
		if len(data) == 0 {
			return
		}
		if p.drain() == 0 && p.codec.Free() == 0 {
			// The ring always holds more than one maximal frame, so this
			// only happens if the stream cannot make progress at all.
			p.bytesDiscarded.Add(uint64(p.codec.Buffered()))
			p.codec.Reset()
		}
	}
}

// drain queues every valid frame currently buffered.
func (p *Pump) drain() int {
	count := 0
	for {
		f, ok := p.codec.Next(p.onDrop)
		if !ok {
			return count
		}
		p.framesValid.Add(1)
		count++
		p.queueMu.Locked(func() { p.queue = append(p.queue, f) })
	}
}

// deliver dispatches queued frames unless another goroutine already is. A
// frame queued while the active deliverer finishes is picked up by the
// recheck after it lets go.
func (p *Pump) deliver() {
	for p.delivering.CompareAndSwap(false, true) {
		for {
			f, ok := p.pop()
			if !ok {
				break
			}
			p.dispatch(f)
		}
		p.delivering.Store(false)
		if p.queued() == 0 {
			return
		}
	}
}

func (p *Pump) pop() (frame.Frame, bool) {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	if len(p.queue) == 0 {
		return frame.Frame{}, false
	}
	f := p.queue[0]
	p.queue[0] = frame.Frame{}
	p.queue = p.queue[1:]
	return f, true
}

func (p *Pump) queued() int {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	return len(p.queue)
}

// reset empties the receive ring between steps
func (p *Pump) reset() {
	p.stepMu.Lock()
	defer p.stepMu.Unlock()
	p.bytesDiscarded.Add(uint64(p.codec.Buffered()))
	p.codec.Reset()
}

// Stop stops the pump and waits for the goroutine to exit
func (p *Pump) Stop() {
	select {
	case p.stopChan <- struct{}{}:
	default:
	}
	p.wg.Wait()
}

// Err returns the fatal error that stopped the pump, or nil
func (p *Pump) Err() error {
	if e := p.err.Load(); e != nil {
		return *e
	}
	return nil
}

// Metrics returns current operational metrics
func (p *Pump) Metrics() PumpMetrics {
	stats := p.codec.Stats()
	return PumpMetrics{
		Steps:           p.steps.Load(),
		Kicks:           p.kicks.Load(),
		ReadErrors:      p.readErrors.Load(),
		BytesIn:         p.bytesIn.Load(),
		BytesDiscarded:  p.bytesDiscarded.Load(),
		FramesValid:     p.framesValid.Load(),
		BytesDropped:    stats.BytesDropped,
		ChecksumErrors:  stats.ChecksumErrors,
		MalformedFrames: stats.MalformedFrames,
		LastStepLatency: time.Duration(p.lastLatency.Load()),
	}
}
