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
	"math/bits"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/matrixorigin/slaballoc/pkg/common/moerr"
)

// Width is the bit width of a section's occupancy mask, which is also the
// number of slots in the section.
type Width uint8

const (
	Width1  Width = 1
	Width8  Width = 8
	Width16 Width = 16
	Width32 Width = 32
	Width64 Width = 64
)

func (w Width) Valid() bool {
	switch w {
	case Width1, Width8, Width16, Width32, Width64:
		return true
	}
	return false
}

// Slots returns the number of slots tracked by a mask of this width.
func (w Width) Slots() int {
	return int(w)
}

// full returns the mask with every slot bit set.
func (w Width) full() uint64 {
	if w >= Width64 {
		return ^uint64(0)
	}
	return uint64(1)<<w - 1
}

func (w Width) String() string {
	switch w {
	case Width1:
		return "bool"
	case Width8:
		return "u8"
	case Width16:
		return "u16"
	case Width32:
		return "u32"
	case Width64:
		return "u64"
	}
	return "width(" + strconv.Itoa(int(w)) + ")"
}

// MarshalText implements encoding.TextMarshaler.
func (w Width) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// UnmarshalText accepts either a bit count ("8") or a type name ("u8",
// "bool").
func (w *Width) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	switch s {
	case "bool":
		*w = Width1
		return nil
	case "u8":
		*w = Width8
		return nil
	case "u16":
		*w = Width16
		return nil
	case "u32":
		*w = Width32
		return nil
	case "u64":
		*w = Width64
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 64 || !Width(n).Valid() {
		return moerr.NewInvalidArgNoCtx("width", string(text))
	}
	*w = Width(n)
	return nil
}

// Bitset is a fixed-width atomic occupancy mask. Bit i set means slot i is
// claimed. Every mutation is a compare-and-swap loop, so concurrent claims
// never hand the same bit to two callers.
type Bitset struct {
	width Width
	bits  atomic.Uint64
}

func (b *Bitset) init(width Width, initial uint64) {
	b.width = width
	b.bits.Store(initial & width.full())
}

func (b *Bitset) Width() Width {
	return b.width
}

// Load returns the current mask.
func (b *Bitset) Load() uint64 {
	return b.bits.Load()
}

// ClaimLowest sets the lowest clear bit and returns its index. It returns
// false when every bit is set.
func (b *Bitset) ClaimLowest() (int, bool) {
	full := b.width.full()
	for {
		mask := b.bits.Load()
		if mask&full == full {
			return -1, false
		}
		lowest := ^mask & (mask + 1)
		if b.bits.CompareAndSwap(mask, mask|lowest) {
			return bits.TrailingZeros64(lowest), true
		}
	}
}

// Clear unsets bit i. It returns false if i is out of range or the bit is
// already clear.
func (b *Bitset) Clear(i int) bool {
	if i < 0 || i >= b.width.Slots() {
		return false
	}
	bit := uint64(1) << uint(i)
	for {
		mask := b.bits.Load()
		if mask&bit == 0 {
			return false
		}
		if b.bits.CompareAndSwap(mask, mask&^bit) {
			return true
		}
	}
}

// IsSet reports whether bit i is set.
func (b *Bitset) IsSet(i int) bool {
	if i < 0 || i >= b.width.Slots() {
		return false
	}
	return b.bits.Load()&(uint64(1)<<uint(i)) != 0
}

// Free counts clear bits. The result is a snapshot and may be stale by the
// time it is returned.
func (b *Bitset) Free() int {
	return b.width.Slots() - bits.OnesCount64(b.bits.Load()&b.width.full())
}
