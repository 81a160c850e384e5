// Copyright 2022 Matrix Origin
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
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/RoaringBitmap/roaring"
	"go.uber.org/zap"

	"github.com/matrixorigin/slaballoc/pkg/common/moerr"
	"github.com/matrixorigin/slaballoc/pkg/logutil"
)

// SectionSpec declares one size class of a SlabAllocator.
type SectionSpec struct {
	SlotSize int   `toml:"slot-size"`
	Width    Width `toml:"width"`
}

// Bytes is the buffer space the section needs. It saturates at
// math.MaxInt instead of overflowing.
func (s SectionSpec) Bytes() int {
	return sectionBytes(s.SlotSize, s.Width.Slots())
}

func sectionBytes(slotSize, slots int) int {
	if slots > 0 && slotSize > math.MaxInt/slots {
		return math.MaxInt
	}
	return slotSize * slots
}

// SlabAllocator serves fixed-size slots out of a caller owned buffer.
//
// The allocator borrows the buffer: it keeps one non-overlapping view per
// section, laid out contiguously from the start of the buffer in
// declaration order. The caller gets the buffer back with Release, after
// which every operation fails with ErrAllocatorReleased. Release must not
// race with other operations, and slices handed out before Release must not
// be used after it.
type SlabAllocator struct {
	sections []*Section
	views    [][]byte
	buffer   []byte
	capacity int

	released atomic.Bool

	inuseSlots atomic.Int64
	inuseBytes atomic.Int64
	peak       PeakInuseTracker
}

var _ Allocator = new(SlabAllocator)

// fatal terminates the process on a deallocation violation in
// MustDeallocate. Tests replace it.
var fatal = logutil.Fatal

// NewSlabAllocator partitions buf into one view per spec. Sections are
// carved sequentially, and the first one that does not fit in what is left
// of the buffer fails the construction with ErrBufferTooSmall.
func NewSlabAllocator(specs []SectionSpec, buf []byte) (*SlabAllocator, error) {
	if len(specs) == 0 {
		return nil, moerr.NewInvalidArgNoCtx("section specs", "empty")
	}

	ret := &SlabAllocator{
		sections: make([]*Section, 0, len(specs)),
		views:    make([][]byte, 0, len(specs)),
		buffer:   buf,
	}
	ret.peak.init()

	remaining := buf
	for i, spec := range specs {
		if spec.SlotSize <= 0 {
			return nil, moerr.NewInvalidArgNoCtx("slot size", spec.SlotSize)
		}
		section, err := NewSection(spec.SlotSize, spec.Width)
		if err != nil {
			return nil, err
		}
		need := section.Bytes()
		if need > len(remaining) {
			logutil.Warn("slab buffer too small",
				zap.Int("section", i),
				zap.Int("need", need),
				zap.Int("remaining", len(remaining)),
				zap.Int("buffer", len(buf)),
			)
			return nil, moerr.NewBufferTooSmallNoCtx(i, need, len(remaining))
		}
		ret.sections = append(ret.sections, section)
		ret.views = append(ret.views, remaining[:need:need])
		remaining = remaining[need:]
		ret.capacity += need
	}

	logutil.Debug("slab allocator created",
		zap.Int("sections", len(ret.sections)),
		zap.Int("capacity", ret.capacity),
		zap.Int("buffer", len(buf)),
	)
	return ret, nil
}

// Allocate returns a slot able to hold size bytes once size is rounded up to
// align. Sections are tried in declaration order and the first one with a
// large enough slot and a free slot wins. The returned slice spans the whole
// slot and its capacity ends at the slot boundary.
func (s *SlabAllocator) Allocate(size, align int) ([]byte, error) {
	if s.released.Load() {
		return nil, moerr.NewAllocatorReleasedNoCtx()
	}
	if size < 0 {
		return nil, moerr.NewInvalidArgNoCtx("size", size)
	}
	if align <= 0 || align&(align-1) != 0 {
		return nil, moerr.NewInvalidArgNoCtx("align", align)
	}
	if size > math.MaxInt-(align-1) {
		return nil, moerr.NewNoFitNoCtx(size, align)
	}
	padded := (size + align - 1) &^ (align - 1)

	for i, section := range s.sections {
		if section.SlotSize() < padded || section.FreeSlots() == 0 {
			continue
		}
		slot, err := section.Claim()
		if err != nil {
			// lost the last slot to a concurrent claim
			continue
		}
		begin := slot * section.SlotSize()
		end := begin + section.SlotSize()
		s.onAllocate(section.SlotSize())
		return s.views[i][begin:end:end], nil
	}

	return nil, moerr.NewNoFitNoCtx(size, align)
}

// Deallocate returns the slot containing the first byte of p.
func (s *SlabAllocator) Deallocate(p []byte) error {
	return s.deallocate(uintptr(unsafe.Pointer(unsafe.SliceData(p))))
}

// DeallocatePointer returns the slot containing ptr.
func (s *SlabAllocator) DeallocatePointer(ptr unsafe.Pointer) error {
	return s.deallocate(uintptr(ptr))
}

// MustDeallocate is Deallocate for callers that treat a foreign address or a
// double free as a fatal programming error.
func (s *SlabAllocator) MustDeallocate(p []byte) {
	if err := s.Deallocate(p); err != nil {
		fatal("slab deallocate violation", zap.Error(err))
	}
}

func (s *SlabAllocator) deallocate(addr uintptr) error {
	if s.released.Load() {
		return moerr.NewAllocatorReleasedNoCtx()
	}
	idx, slot := s.resolve(addr)
	if idx < 0 {
		return moerr.NewForeignAddressNoCtx(addr)
	}
	section := s.sections[idx]
	if err := section.Release(slot); err != nil {
		return moerr.NewDoubleFreeNoCtx(slot, idx).WithDetail("%s", err.Error())
	}
	s.onDeallocate(section.SlotSize())
	return nil
}

// resolve finds the section whose view contains addr and the slot index
// within it. It returns -1 when no section owns addr.
func (s *SlabAllocator) resolve(addr uintptr) (int, int) {
	if addr == 0 {
		return -1, -1
	}
	for i, view := range s.views {
		start := uintptr(unsafe.Pointer(unsafe.SliceData(view)))
		if addr < start || addr >= start+uintptr(len(view)) {
			continue
		}
		return i, int(addr-start) / s.sections[i].SlotSize()
	}
	return -1, -1
}

// Owns reports whether p was carved from this allocator's buffer.
func (s *SlabAllocator) Owns(p []byte) bool {
	idx, _ := s.resolve(uintptr(unsafe.Pointer(unsafe.SliceData(p))))
	return idx >= 0
}

// PercentFree reports each section's free percentage in declaration order.
func (s *SlabAllocator) PercentFree() []float32 {
	ret := make([]float32, len(s.sections))
	for i, section := range s.sections {
		ret[i] = section.PercentFree()
	}
	return ret
}

// Sections returns the number of sections.
func (s *SlabAllocator) Sections() int {
	return len(s.sections)
}

func (s *SlabAllocator) Section(i int) *Section {
	return s.sections[i]
}

// Capacity is the number of buffer bytes handed to sections. It may be
// less than the buffer length.
func (s *SlabAllocator) Capacity() int {
	return s.capacity
}

// Occupancy returns the claimed slots as one bitmap. Slots are numbered
// globally: section i's slots follow those of sections 0..i-1.
func (s *SlabAllocator) Occupancy() *roaring.Bitmap {
	bm := roaring.New()
	var base uint32
	for _, section := range s.sections {
		mask := section.occupancy.Load()
		for i := 0; i < section.TotalSlots(); i++ {
			if mask&(uint64(1)<<uint(i)) != 0 {
				bm.Add(base + uint32(i))
			}
		}
		base += uint32(section.TotalSlots())
	}
	return bm
}

// InuseSlots is a snapshot of the number of claimed slots.
func (s *SlabAllocator) InuseSlots() int64 {
	return s.inuseSlots.Load()
}

// InuseBytes is a snapshot of the bytes held by claimed slots.
func (s *SlabAllocator) InuseBytes() int64 {
	return s.inuseBytes.Load()
}

// Peak returns the highest in-use slot and byte counts seen so far.
func (s *SlabAllocator) Peak() (slots, bytes PeakInuse) {
	return s.peak.Slots(), s.peak.Bytes()
}

// Release ends the borrow and hands the buffer back. Releasing twice is
// an ErrInvalidState.
func (s *SlabAllocator) Release() ([]byte, error) {
	if !s.released.CompareAndSwap(false, true) {
		return nil, moerr.NewInvalidStateNoCtx("slab allocator already released")
	}
	buf := s.buffer
	s.buffer = nil
	logutil.Debug("slab allocator released",
		zap.Int("capacity", s.capacity),
		zap.Int64("inuse slots", s.inuseSlots.Load()),
	)
	return buf, nil
}

// Released reports whether Release has been called.
func (s *SlabAllocator) Released() bool {
	return s.released.Load()
}

func (s *SlabAllocator) onAllocate(slotSize int) {
	slots := s.inuseSlots.Add(1)
	bytes := s.inuseBytes.Add(int64(slotSize))
	s.peak.UpdateSlots(uint64(slots))
	s.peak.UpdateBytes(uint64(bytes))
}

func (s *SlabAllocator) onDeallocate(slotSize int) {
	s.inuseSlots.Add(-1)
	s.inuseBytes.Add(-int64(slotSize))
}
