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

//go:build linux || darwin

package malloc

import (
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/matrixorigin/slaballoc/pkg/common/moerr"
	"github.com/matrixorigin/slaballoc/pkg/logutil"
)

// NewMmapBuffer maps size bytes of anonymous memory outside the Go heap.
func NewMmapBuffer(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, moerr.NewInvalidArgNoCtx("buffer size", size)
	}
	data, err := unix.Mmap(
		-1, 0,
		size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS,
	)
	if err != nil {
		return nil, moerr.ConvertGoError(moerr.Context(), err)
	}
	logutil.Debug("mmap slab buffer", zap.Int("size", size))
	return &Buffer{
		data:   data,
		source: BufferSourceMmap,
	}, nil
}

func unmap(data []byte) error {
	if err := unix.Munmap(data); err != nil {
		return moerr.ConvertGoError(moerr.Context(), err)
	}
	return nil
}
