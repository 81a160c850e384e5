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

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/slaballoc/pkg/common/malloc"
	"github.com/matrixorigin/slaballoc/pkg/common/moerr"
	"github.com/matrixorigin/slaballoc/pkg/logutil"
)

func newTestSlab(t *testing.T, specs ...malloc.SectionSpec) *malloc.SlabAllocator {
	total := 0
	for _, spec := range specs {
		total += spec.Bytes()
	}
	slab, err := malloc.NewSlabAllocator(specs, make([]byte, total))
	require.NoError(t, err)
	return slab
}

func TestVector(t *testing.T) {
	// one 8 slot section of 10 byte slots
	slab := newTestSlab(t, malloc.SectionSpec{SlotSize: 10, Width: malloc.Width8})

	vec := NewVector(slab)
	require.Equal(t, 0, vec.Len())
	_, ok := vec.Pop()
	require.False(t, ok)

	for i := 0; i < 10; i++ {
		require.NoError(t, vec.Push(byte(i)))
	}
	require.Equal(t, 10, vec.Len())
	require.Equal(t, 10, vec.Cap())
	require.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, vec.Bytes())
	require.Equal(t, int64(1), slab.InuseSlots())

	// an eleventh byte needs a 20 byte slot
	err := vec.Push(10)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrNoFit))
	require.Equal(t, 10, vec.Len())

	b, ok := vec.Get(3)
	require.True(t, ok)
	require.Equal(t, byte(3), b)
	_, ok = vec.Get(10)
	require.False(t, ok)

	b, ok = vec.Pop()
	require.True(t, ok)
	require.Equal(t, byte(9), b)

	require.NoError(t, vec.Free())
	require.Equal(t, 0, vec.Len())
	require.Equal(t, int64(0), slab.InuseSlots())
	require.NoError(t, vec.Free())
}

func TestVectorGrowMovesData(t *testing.T) {
	slab := newTestSlab(t,
		malloc.SectionSpec{SlotSize: 4, Width: malloc.Width8},
		malloc.SectionSpec{SlotSize: 64, Width: malloc.Width8},
	)

	vec := NewVector(slab)
	for i := 0; i < 40; i++ {
		require.NoError(t, vec.Push(byte(i)))
	}
	require.Equal(t, 64, vec.Cap())
	for i := 0; i < 40; i++ {
		b, ok := vec.Get(i)
		require.True(t, ok)
		require.Equal(t, byte(i), b)
	}
	// old slots went back to the allocator
	require.Equal(t, int64(1), slab.InuseSlots())
	require.Equal(t, []float32{100, 87.5}, slab.PercentFree())
	require.NoError(t, vec.Free())
}

// failingDeallocator hands out memory from its upstream but refuses every
// Deallocate.
type failingDeallocator struct {
	malloc.Allocator
	deallocs int
}

func (f *failingDeallocator) Deallocate(p []byte) error {
	f.deallocs++
	return moerr.NewInternalErrorNoCtx("deallocate refused")
}

func TestVectorGrowRollbackFailureIsLogged(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "vector.log")
	logutil.SetupMOLogger(&logutil.LogConfig{
		Level:    "info",
		Format:   "console",
		Filename: logFile,
	})
	defer logutil.SetupMOLogger(&logutil.LogConfig{
		Level:  "info",
		Format: "console",
	})

	slab := newTestSlab(t,
		malloc.SectionSpec{SlotSize: 4, Width: malloc.Width8},
		malloc.SectionSpec{SlotSize: 64, Width: malloc.Width8},
	)
	alloc := &failingDeallocator{Allocator: slab}

	vec := NewVector(alloc)
	for i := 0; i < 4; i++ {
		require.NoError(t, vec.Push(byte(i)))
	}
	require.Equal(t, 0, alloc.deallocs)

	// growing to the 64 byte slot fails to free the old slot and then fails
	// to hand the new one back
	err := vec.Push(4)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInternal))
	require.Equal(t, 2, alloc.deallocs)
	require.Equal(t, 4, vec.Len())
	require.Equal(t, 4, vec.Cap())
	require.Equal(t, []byte{0, 1, 2, 3}, vec.Bytes())

	require.NoError(t, logutil.GetGlobalLogger().Sync())
	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	require.Contains(t, string(content), "vector grow rollback")
	require.Contains(t, string(content), "deallocate refused")
}
