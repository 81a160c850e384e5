// Copyright 2024 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package malloc

import (
	"sync/atomic"
	"time"
)

// PeakInuseTracker records the high water marks of claimed slots and bytes.
type PeakInuseTracker struct {
	ptr atomic.Pointer[peakInuseInfo]
}

type peakInuseInfo struct {
	Slots PeakInuse
	Bytes PeakInuse
}

// PeakInuse is a high water mark and when it was reached.
type PeakInuse struct {
	Value uint64
	Time  time.Time
}

func (p *PeakInuseTracker) init() {
	p.ptr.Store(&peakInuseInfo{})
}

func (p *PeakInuseTracker) UpdateSlots(n uint64) {
	for {
		// read
		ptr := p.ptr.Load()
		if n <= ptr.Slots.Value {
			return
		}
		// copy
		newData := *ptr
		newData.Slots.Value = n
		newData.Slots.Time = time.Now()
		// update
		if p.ptr.CompareAndSwap(ptr, &newData) {
			return
		}
	}
}

func (p *PeakInuseTracker) UpdateBytes(n uint64) {
	for {
		ptr := p.ptr.Load()
		if n <= ptr.Bytes.Value {
			return
		}
		newData := *ptr
		newData.Bytes.Value = n
		newData.Bytes.Time = time.Now()
		if p.ptr.CompareAndSwap(ptr, &newData) {
			return
		}
	}
}

func (p *PeakInuseTracker) Slots() PeakInuse {
	return p.ptr.Load().Slots
}

func (p *PeakInuseTracker) Bytes() PeakInuse {
	return p.ptr.Load().Bytes
}
