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
	"fmt"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/matrixorigin/slaballoc/pkg/common/malloc"
	"github.com/matrixorigin/slaballoc/pkg/common/moerr"
	"github.com/matrixorigin/slaballoc/pkg/config"
	"github.com/matrixorigin/slaballoc/pkg/logutil"
)

// live allocations each worker holds before it starts freeing
const workerWindow = 4

type workloadResult struct {
	Allocated   atomic.Int64
	NoFit       atomic.Int64
	Corrupted   atomic.Int64
	VectorBytes atomic.Int64
	Duration    time.Duration
}

// runWorkload runs cfg.Workers workers on an ants pool. Each worker makes
// cfg.Iterations random sized requests, keeps a few of them alive, checks
// that nobody else wrote into its slots and frees everything before it
// returns. Workers also push cfg.VectorPushes bytes into a Vector.
func runWorkload(ctx context.Context, cfg config.WorkloadConfig, alloc malloc.Allocator) (*workloadResult, error) {
	result := &workloadResult{}
	if cfg.Workers == 0 {
		return result, nil
	}
	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, moerr.ConvertGoError(ctx, err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
		})
	}

	start := time.Now()
	for i := 0; i < cfg.Workers; i++ {
		id := i
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			if err := runWorker(ctx, id, cfg, alloc, result); err != nil {
				fail(err)
			}
		}); err != nil {
			wg.Done()
			fail(moerr.ConvertGoError(ctx, err))
		}
	}
	wg.Wait()
	result.Duration = time.Since(start)

	logutil.Info("slab workload finished",
		zap.Int("workers", cfg.Workers),
		zap.Int64("allocated", result.Allocated.Load()),
		zap.Int64("no fit", result.NoFit.Load()),
		zap.Duration("duration", result.Duration),
	)
	if firstErr != nil {
		return nil, firstErr
	}
	if n := result.Corrupted.Load(); n > 0 {
		return nil, moerr.NewInternalError(ctx, "%d slots were written by two owners", n)
	}
	return result, nil
}

func runWorker(ctx context.Context, id int, cfg config.WorkloadConfig, alloc malloc.Allocator, result *workloadResult) error {
	rnd := rand.New(rand.NewSource(int64(id) + 1))
	tag := byte(id%255 + 1)
	live := make([][]byte, 0, workerWindow)

	release := func(p []byte) error {
		for i := range p {
			if p[i] != tag {
				result.Corrupted.Add(1)
				break
			}
		}
		return alloc.Deallocate(p)
	}

	for i := 0; i < cfg.Iterations; i++ {
		if ctx.Err() != nil {
			break
		}
		if len(live) == workerWindow {
			if err := release(live[0]); err != nil {
				return err
			}
			live = live[1:]
		}
		size := 1
		if cfg.MaxSize > 1 {
			size = 1 + rnd.Intn(cfg.MaxSize)
		}
		p, err := alloc.Allocate(size, cfg.Align)
		if err != nil {
			if moerr.IsMoErrCode(err, moerr.ErrNoFit) {
				result.NoFit.Add(1)
				continue
			}
			return err
		}
		result.Allocated.Add(1)
		for j := range p {
			p[j] = tag
		}
		live = append(live, p)
	}
	for _, p := range live {
		if err := release(p); err != nil {
			return err
		}
	}

	if cfg.VectorPushes == 0 {
		return nil
	}
	vec := NewVector(alloc)
	for i := 0; i < cfg.VectorPushes; i++ {
		if err := vec.Push(byte(i)); err != nil {
			if moerr.IsMoErrCode(err, moerr.ErrNoFit) {
				break
			}
			return err
		}
	}
	result.VectorBytes.Add(int64(vec.Len()))
	return vec.Free()
}

func writeReport(w io.Writer, slab *malloc.SlabAllocator, result *workloadResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "section\tslot size\tslots\tfree %%\n")
	for i, percent := range slab.PercentFree() {
		section := slab.Section(i)
		fmt.Fprintf(tw, "%d\t%d\t%d\t%.1f\n", i, section.SlotSize(), section.TotalSlots(), percent)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	slots, bytes := slab.Peak()
	if _, err := fmt.Fprintf(w,
		"allocated %d, no fit %d, vector bytes %d, peak slots %d, peak bytes %d, took %s\n",
		result.Allocated.Load(),
		result.NoFit.Load(),
		result.VectorBytes.Load(),
		slots.Value,
		bytes.Value,
		result.Duration,
	); err != nil {
		return err
	}

	occupied := slab.Occupancy()
	_, err := fmt.Fprintf(w, "occupied slots %d: %s\n", occupied.GetCardinality(), occupied.String())
	return err
}
