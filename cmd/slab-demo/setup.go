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
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/matrixorigin/slaballoc/pkg/common/malloc"
	"github.com/matrixorigin/slaballoc/pkg/config"
	"github.com/matrixorigin/slaballoc/pkg/logutil"
	v2 "github.com/matrixorigin/slaballoc/pkg/util/metric/v2"
)

var (
	setupLoggerOnce sync.Once
)

func setupLogger(cfg *config.Config) {
	setupLoggerOnce.Do(func() {
		logutil.SetupMOLogger(&cfg.Log)
	})
}

func slabCollectors() malloc.MetricsCollectors {
	return malloc.MetricsCollectors{
		AllocateCounter:          v2.MemSlabAllocateCounter,
		DeallocateCounter:        v2.MemSlabDeallocateCounter,
		AllocateFailureCounter:   v2.MemSlabAllocateFailureCounter,
		DeallocateFailureCounter: v2.MemSlabDeallocateFailureCounter,
		AllocateBytesCounter:     v2.MemSlabAllocateBytesCounter,
		InuseObjectsGauge:        v2.MemSlabInuseObjectsGauge,
		SectionFreePercentGauge:  v2.MemSlabSectionFreePercentGauge,
	}
}

// run builds the buffer and allocator from cfg, drives the workload and
// writes the report to w.
func run(ctx context.Context, cfg *config.Config, w io.Writer) error {
	buffer, err := malloc.NewBuffer(cfg.Buffer.Source, cfg.Buffer.Size)
	if err != nil {
		return err
	}
	defer func() {
		if err := buffer.Close(); err != nil {
			logutil.Error("close slab buffer", zap.Error(err))
		}
	}()

	slab, err := malloc.NewSlabAllocator(cfg.Sections, buffer.Bytes())
	if err != nil {
		return err
	}
	defer func() {
		if _, err := slab.Release(); err != nil {
			logutil.Error("release slab allocator", zap.Error(err))
		}
	}()

	stop, err := startMetricsServer(cfg.Metrics.ListenAddress)
	if err != nil {
		return err
	}
	defer stop()

	logutil.Info("slab-demo started",
		zap.String("buffer source", buffer.Source()),
		zap.Int("buffer size", buffer.Len()),
		zap.Int("capacity", slab.Capacity()),
		zap.Int("sections", slab.Sections()),
	)

	alloc := malloc.NewMetricsAllocator(slab, slabCollectors())
	result, err := runWorkload(ctx, cfg.Workload, alloc)
	if err != nil {
		return err
	}
	return writeReport(w, slab, result)
}

func startMetricsServer(addr string) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(v2.GetPrometheusGatherer(), promhttp.HandlerOpts{}))
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logutil.Error("metrics server", zap.Error(err))
		}
	}()
	logutil.Info("metrics server started", zap.String("address", listener.Addr().String()))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}, nil
}
