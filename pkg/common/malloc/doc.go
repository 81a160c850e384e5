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

// Package malloc implements a fixed-capacity slab allocator over a caller
// supplied buffer.
//
// The buffer is split into sections, one per size class. Each section has
// 1, 8, 16, 32 or 64 slots of one size, and tracks which are taken in a
// single atomic mask. Claims and releases are compare-and-swap loops, so an
// allocator can be shared by any number of goroutines without locks.
package malloc
