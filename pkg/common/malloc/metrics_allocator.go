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
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollectors are the collectors a MetricsAllocator feeds. Nil fields
// are skipped.
type MetricsCollectors struct {
	AllocateCounter          prometheus.Counter
	DeallocateCounter        prometheus.Counter
	AllocateFailureCounter   prometheus.Counter
	DeallocateFailureCounter prometheus.Counter
	AllocateBytesCounter     prometheus.Counter
	InuseObjectsGauge        prometheus.Gauge

	// SectionFreePercentGauge is labelled by section index and only updated
	// when the upstream is a SectionReporter.
	SectionFreePercentGauge *prometheus.GaugeVec
}

type MetricsAllocator[U Allocator] struct {
	upstream   U
	collectors MetricsCollectors
	sections   []prometheus.Gauge
}

var _ Allocator = new(MetricsAllocator[Allocator])

func NewMetricsAllocator[U Allocator](
	upstream U,
	collectors MetricsCollectors,
) *MetricsAllocator[U] {
	ret := &MetricsAllocator[U]{
		upstream:   upstream,
		collectors: collectors,
	}
	if reporter, ok := any(upstream).(SectionReporter); ok && collectors.SectionFreePercentGauge != nil {
		for i := range reporter.PercentFree() {
			ret.sections = append(ret.sections,
				collectors.SectionFreePercentGauge.WithLabelValues(strconv.Itoa(i)))
		}
		ret.updateSections()
	}
	return ret
}

func (m *MetricsAllocator[U]) Upstream() U {
	return m.upstream
}

func (m *MetricsAllocator[U]) Allocate(size, align int) ([]byte, error) {
	ptr, err := m.upstream.Allocate(size, align)
	if err != nil {
		inc(m.collectors.AllocateFailureCounter)
		return nil, err
	}
	inc(m.collectors.AllocateCounter)
	if m.collectors.AllocateBytesCounter != nil {
		m.collectors.AllocateBytesCounter.Add(float64(len(ptr)))
	}
	if m.collectors.InuseObjectsGauge != nil {
		m.collectors.InuseObjectsGauge.Inc()
	}
	m.updateSections()
	return ptr, nil
}

func (m *MetricsAllocator[U]) Deallocate(p []byte) error {
	if err := m.upstream.Deallocate(p); err != nil {
		inc(m.collectors.DeallocateFailureCounter)
		return err
	}
	inc(m.collectors.DeallocateCounter)
	if m.collectors.InuseObjectsGauge != nil {
		m.collectors.InuseObjectsGauge.Dec()
	}
	m.updateSections()
	return nil
}

func (m *MetricsAllocator[U]) updateSections() {
	if len(m.sections) == 0 {
		return
	}
	reporter := any(m.upstream).(SectionReporter)
	for i, percent := range reporter.PercentFree() {
		if i >= len(m.sections) {
			break
		}
		m.sections[i].Set(float64(percent))
	}
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}
