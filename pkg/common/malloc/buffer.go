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

	"github.com/matrixorigin/slaballoc/pkg/common/moerr"
)

const (
	BufferSourceHeap = "heap"
	BufferSourceMmap = "mmap"
)

// Buffer owns the memory a SlabAllocator borrows. Close must only be called
// once every allocator built on the buffer has been released.
type Buffer struct {
	data   []byte
	source string
	closed atomic.Bool
}

func NewHeapBuffer(size int) (*Buffer, error) {
	if size < 0 {
		return nil, moerr.NewInvalidArgNoCtx("buffer size", size)
	}
	return &Buffer{
		data:   make([]byte, size),
		source: BufferSourceHeap,
	}, nil
}

// NewBuffer creates a buffer from the named source.
func NewBuffer(source string, size int) (*Buffer, error) {
	switch source {
	case BufferSourceHeap, "":
		return NewHeapBuffer(size)
	case BufferSourceMmap:
		return NewMmapBuffer(size)
	}
	return nil, moerr.NewInvalidArgNoCtx("buffer source", source)
}

func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) Len() int {
	return len(b.data)
}

func (b *Buffer) Source() string {
	return b.source
}

// Close unmaps an mmap buffer. Heap buffers are left to the GC.
func (b *Buffer) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	data := b.data
	b.data = nil
	if b.source == BufferSourceMmap {
		return unmap(data)
	}
	return nil
}
