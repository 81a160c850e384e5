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
	"go.uber.org/zap"

	"github.com/matrixorigin/slaballoc/pkg/common/malloc"
	"github.com/matrixorigin/slaballoc/pkg/logutil"
)

// Vector is a growable byte array whose storage comes from an
// malloc.Allocator. Growing moves the contents into a slot twice the size.
type Vector struct {
	alloc malloc.Allocator
	data  []byte
	n     int
}

func NewVector(alloc malloc.Allocator) *Vector {
	return &Vector{alloc: alloc}
}

func (v *Vector) Push(b byte) error {
	if v.n == len(v.data) {
		if err := v.grow(); err != nil {
			return err
		}
	}
	v.data[v.n] = b
	v.n++
	return nil
}

// Pop removes the last byte. ok is false on an empty vector.
func (v *Vector) Pop() (b byte, ok bool) {
	if v.n == 0 {
		return 0, false
	}
	v.n--
	return v.data[v.n], true
}

func (v *Vector) Get(i int) (byte, bool) {
	if i < 0 || i >= v.n {
		return 0, false
	}
	return v.data[i], true
}

func (v *Vector) Len() int {
	return v.n
}

// Cap is the size of the slot currently backing the vector.
func (v *Vector) Cap() int {
	return len(v.data)
}

func (v *Vector) Bytes() []byte {
	return v.data[:v.n]
}

// Free returns the storage to the allocator. The vector is empty and usable
// afterwards.
func (v *Vector) Free() error {
	if v.data == nil {
		return nil
	}
	err := v.alloc.Deallocate(v.data)
	v.data = nil
	v.n = 0
	return err
}

func (v *Vector) grow() error {
	size := 2 * len(v.data)
	if size == 0 {
		size = 1
	}
	data, err := v.alloc.Allocate(size, 1)
	if err != nil {
		return err
	}
	copy(data, v.data[:v.n])
	if v.data != nil {
		if err := v.alloc.Deallocate(v.data); err != nil {
			if rerr := v.alloc.Deallocate(data); rerr != nil {
				logutil.Error("vector grow rollback",
					zap.Int("size", len(data)),
					zap.Error(rerr),
				)
			}
			return err
		}
	}
	v.data = data
	return nil
}
