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
	"time"

	"github.com/ZaparooProject/go-rfbridge/internal/syncutil"
)

// TimerService arms one-shot timers identified by an id. The callback runs on
// a goroutine owned by the service.
type TimerService interface {
	// ArmOneShot schedules fn after d. Arming an id that is already armed
	// replaces the previous timer.
	ArmOneShot(id uint64, d time.Duration, fn func()) error
	// Cancel disarms id. It reports whether a timer was stopped before
	// firing.
	Cancel(id uint64) bool
}

// timerService is the default TimerService on time.AfterFunc.
type timerService struct {
	timers map[uint64]*time.Timer
	mu     syncutil.Mutex
}

// NewTimerService returns a TimerService backed by the runtime timers.
func NewTimerService() TimerService {
	return &timerService{timers: make(map[uint64]*time.Timer)}
}

func (s *timerService) ArmOneShot(id uint64, d time.Duration, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[id]; ok {
		old.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		if s.timers[id] == t {
			delete(s.timers, id)
		}
		s.mu.Unlock()
		fn()
	})
	s.timers[id] = t
	return nil
}

func (s *timerService) Cancel(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[id]
	if !ok {
		return false
	}
	delete(s.timers, id)
	return t.Stop()
}
