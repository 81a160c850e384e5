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

// Allocator is what containers backed by a fixed buffer need.
type Allocator interface {
	// Allocate returns a slice of at least size bytes, size rounded up to
	// align. align must be a power of two.
	Allocate(size, align int) ([]byte, error)
	// Deallocate returns a slice obtained from Allocate.
	Deallocate(p []byte) error
}

// SectionReporter is implemented by allocators that can report per-section
// occupancy.
type SectionReporter interface {
	PercentFree() []float32
}

var _ SectionReporter = new(SlabAllocator)
