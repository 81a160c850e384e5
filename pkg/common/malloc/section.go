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
	"github.com/matrixorigin/slaballoc/pkg/common/moerr"
)

// Section is one size class: Width slots of slotSize bytes each, tracked by
// an atomic occupancy mask. A Section only does the bookkeeping; the bytes
// live in the buffer view the SlabAllocator pairs it with.
type Section struct {
	slotSize  int
	occupancy Bitset
}

func NewSection(slotSize int, width Width) (*Section, error) {
	return NewSectionWithMask(slotSize, width, 0)
}

// NewSectionWithMask creates a section whose slots are pre-claimed according
// to mask. Bits beyond the width are ignored.
func NewSectionWithMask(slotSize int, width Width, mask uint64) (*Section, error) {
	if !width.Valid() {
		return nil, moerr.NewInvalidArgNoCtx("section width", int(width))
	}
	if slotSize < 0 {
		return nil, moerr.NewInvalidArgNoCtx("section slot size", slotSize)
	}
	s := &Section{slotSize: slotSize}
	s.occupancy.init(width, mask)
	return s, nil
}

// Claim reserves the lowest free slot.
func (s *Section) Claim() (int, error) {
	slot, ok := s.occupancy.ClaimLowest()
	if !ok {
		return -1, moerr.NewSectionFullNoCtx(s.TotalSlots(), s.slotSize)
	}
	return slot, nil
}

// Release frees a claimed slot. Releasing a free or out of range slot
// returns ErrInvalidSlot and changes nothing.
func (s *Section) Release(slot int) error {
	if !s.occupancy.Clear(slot) {
		return moerr.NewInvalidSlotNoCtx(slot)
	}
	return nil
}

// IsClaimed reports whether slot is currently allocated.
func (s *Section) IsClaimed(slot int) bool {
	return s.occupancy.IsSet(slot)
}

// FreeSlots is a relaxed snapshot, for reporting only.
func (s *Section) FreeSlots() int {
	return s.occupancy.Free()
}

func (s *Section) TotalSlots() int {
	return s.occupancy.Width().Slots()
}

func (s *Section) PercentFree() float32 {
	return float32(s.FreeSlots()) / float32(s.TotalSlots()) * 100
}

func (s *Section) SlotSize() int {
	return s.slotSize
}

func (s *Section) Width() Width {
	return s.occupancy.Width()
}

// Bytes is the size of the buffer region the section manages, saturated at
// math.MaxInt.
func (s *Section) Bytes() int {
	return sectionBytes(s.slotSize, s.TotalSlots())
}
