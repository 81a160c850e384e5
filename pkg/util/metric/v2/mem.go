// Copyright 2023 Matrix Origin
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

package v2

import "github.com/prometheus/client_golang/prometheus"

var (
	memSlabOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mo",
			Subsystem: "mem",
			Name:      "slab_operation_total",
			Help:      "Total number of slab allocator operations.",
		}, []string{"type"})

	MemSlabAllocateCounter   = memSlabOperationCounter.WithLabelValues("allocate")
	MemSlabDeallocateCounter = memSlabOperationCounter.WithLabelValues("deallocate")

	memSlabFailureCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mo",
			Subsystem: "mem",
			Name:      "slab_failure_total",
			Help:      "Total number of failed slab allocator operations.",
		}, []string{"type"})

	MemSlabAllocateFailureCounter   = memSlabFailureCounter.WithLabelValues("allocate")
	MemSlabDeallocateFailureCounter = memSlabFailureCounter.WithLabelValues("deallocate")
)

var (
	MemSlabAllocateBytesCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mo",
			Subsystem: "mem",
			Name:      "slab_allocate_bytes_total",
			Help:      "Total bytes handed out by the slab allocator.",
		})

	MemSlabInuseObjectsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mo",
			Subsystem: "mem",
			Name:      "slab_inuse_objects",
			Help:      "Number of slab slots currently allocated.",
		})

	MemSlabSectionFreePercentGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mo",
			Subsystem: "mem",
			Name:      "slab_section_free_percent",
			Help:      "Percentage of free slots per slab section.",
		}, []string{"section"})
)

func initMemMetrics() {
	registry.MustRegister(memSlabOperationCounter)
	registry.MustRegister(memSlabFailureCounter)
	registry.MustRegister(MemSlabAllocateBytesCounter)
	registry.MustRegister(MemSlabInuseObjectsGauge)
	registry.MustRegister(MemSlabSectionFreePercentGauge)
}
