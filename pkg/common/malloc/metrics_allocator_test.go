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
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/slaballoc/pkg/common/moerr"
)

func newTestCollectors() MetricsCollectors {
	counter := func(name string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name})
	}
	return MetricsCollectors{
		AllocateCounter:          counter("allocate"),
		DeallocateCounter:        counter("deallocate"),
		AllocateFailureCounter:   counter("allocate_failure"),
		DeallocateFailureCounter: counter("deallocate_failure"),
		AllocateBytesCounter:     counter("allocate_bytes"),
		InuseObjectsGauge:        prometheus.NewGauge(prometheus.GaugeOpts{Name: "inuse"}),
		SectionFreePercentGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "section_free"}, []string{"section"}),
	}
}

func TestMetricsAllocator(t *testing.T) {
	slab, err := NewSlabAllocator(
		[]SectionSpec{{SlotSize: 8, Width: Width8}, {SlotSize: 64, Width: Width1}},
		make([]byte, 8*8+64),
	)
	require.NoError(t, err)

	c := newTestCollectors()
	m := NewMetricsAllocator(slab, c)
	require.Equal(t, slab, m.Upstream())
	require.Equal(t, 100.0, testutil.ToFloat64(c.SectionFreePercentGauge.WithLabelValues("0")))
	require.Equal(t, 100.0, testutil.ToFloat64(c.SectionFreePercentGauge.WithLabelValues("1")))

	p, err := m.Allocate(8, 1)
	require.NoError(t, err)
	q, err := m.Allocate(64, 1)
	require.NoError(t, err)
	_, err = m.Allocate(64, 1)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrNoFit))

	require.Equal(t, 2.0, testutil.ToFloat64(c.AllocateCounter))
	require.Equal(t, 1.0, testutil.ToFloat64(c.AllocateFailureCounter))
	require.Equal(t, 72.0, testutil.ToFloat64(c.AllocateBytesCounter))
	require.Equal(t, 2.0, testutil.ToFloat64(c.InuseObjectsGauge))
	require.Equal(t, 87.5, testutil.ToFloat64(c.SectionFreePercentGauge.WithLabelValues("0")))
	require.Equal(t, 0.0, testutil.ToFloat64(c.SectionFreePercentGauge.WithLabelValues("1")))

	require.NoError(t, m.Deallocate(p))
	require.NoError(t, m.Deallocate(q))
	err = m.Deallocate(q)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrDoubleFree))

	require.Equal(t, 2.0, testutil.ToFloat64(c.DeallocateCounter))
	require.Equal(t, 1.0, testutil.ToFloat64(c.DeallocateFailureCounter))
	require.Equal(t, 0.0, testutil.ToFloat64(c.InuseObjectsGauge))
	require.Equal(t, 100.0, testutil.ToFloat64(c.SectionFreePercentGauge.WithLabelValues("1")))
}

type plainAllocator struct {
	inner *SlabAllocator
}

func (p plainAllocator) Allocate(size, align int) ([]byte, error) {
	return p.inner.Allocate(size, align)
}

func (p plainAllocator) Deallocate(b []byte) error {
	return p.inner.Deallocate(b)
}

func TestMetricsAllocatorNilCollectors(t *testing.T) {
	slab, err := NewSlabAllocator([]SectionSpec{{SlotSize: 8, Width: Width8}}, make([]byte, 64))
	require.NoError(t, err)

	// upstream without section reporting, no collectors at all
	m := NewMetricsAllocator[Allocator](plainAllocator{inner: slab}, MetricsCollectors{})
	p, err := m.Allocate(4, 4)
	require.NoError(t, err)
	require.NoError(t, m.Deallocate(p))
	require.Error(t, m.Deallocate(p))
}
