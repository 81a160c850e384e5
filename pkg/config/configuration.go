// Copyright 2021 Matrix Origin
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

package config

import (
	"context"
	"math"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matrixorigin/slaballoc/pkg/common/malloc"
	"github.com/matrixorigin/slaballoc/pkg/common/moerr"
	"github.com/matrixorigin/slaballoc/pkg/logutil"
)

const (
	defaultWorkers    = 4
	defaultIterations = 10000
	defaultAlign      = 1
)

// Config is the toml configuration of slab-demo.
type Config struct {
	Log logutil.LogConfig `toml:"log"`

	Buffer BufferConfig `toml:"buffer"`

	// Sections in search order.
	Sections []malloc.SectionSpec `toml:"sections"`

	Workload WorkloadConfig `toml:"workload"`

	Metrics MetricsConfig `toml:"metrics"`
}

type BufferConfig struct {
	// Size in bytes, defaults to the sum of the sections.
	Size int `toml:"size"`

	// Source is heap or mmap.
	Source string `toml:"source"`
}

type WorkloadConfig struct {
	Workers    int `toml:"workers"`
	Iterations int `toml:"iterations"`

	// MaxSize is the largest request, defaults to the largest slot size.
	MaxSize int `toml:"max-size"`
	Align   int `toml:"align"`

	// VectorPushes is how many bytes each worker pushes into a Vector.
	VectorPushes int `toml:"vector-pushes"`
}

type MetricsConfig struct {
	// ListenAddress serves /metrics when set.
	ListenAddress string `toml:"listen-address"`
}

// ParseConfigFromFile decodes a toml file, fills defaults and validates.
// Unknown keys are rejected.
func ParseConfigFromFile(file string) (*Config, error) {
	cfg := &Config{}
	md, err := toml.DecodeFile(file, cfg)
	if err != nil {
		return nil, moerr.NewBadConfigNoCtx("decode %s: %v", file, err)
	}
	return finish(cfg, md)
}

// ParseConfig is ParseConfigFromFile for an in-memory document.
func ParseConfig(data string) (*Config, error) {
	cfg := &Config{}
	md, err := toml.Decode(data, cfg)
	if err != nil {
		return nil, moerr.NewBadConfigNoCtx("decode: %v", err)
	}
	return finish(cfg, md)
}

func finish(cfg *Config, md toml.MetaData) (*Config, error) {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, moerr.NewBadConfigNoCtx("unknown keys %s", strings.Join(keys, ", "))
	}
	cfg.SetDefaultValues()
	if err := cfg.Validate(context.Background()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetDefaultValues fills zero fields.
func (c *Config) SetDefaultValues() {
	c.Log.Adjust()

	if c.Buffer.Source == "" {
		c.Buffer.Source = malloc.BufferSourceHeap
	}
	if c.Buffer.Size == 0 {
		c.Buffer.Size = c.SectionBytes()
	}

	if c.Workload.Workers == 0 {
		c.Workload.Workers = defaultWorkers
	}
	if c.Workload.Iterations == 0 {
		c.Workload.Iterations = defaultIterations
	}
	if c.Workload.Align == 0 {
		c.Workload.Align = defaultAlign
	}
	if c.Workload.MaxSize == 0 {
		for _, spec := range c.Sections {
			c.Workload.MaxSize = max(c.Workload.MaxSize, spec.SlotSize)
		}
	}
}

// SectionBytes is the buffer space all sections need together, saturated at
// math.MaxInt. Sections with a non-positive slot size count as zero.
func (c *Config) SectionBytes() int {
	total := 0
	for _, spec := range c.Sections {
		if spec.SlotSize <= 0 {
			continue
		}
		n := spec.Bytes()
		if n > math.MaxInt-total {
			return math.MaxInt
		}
		total += n
	}
	return total
}

func (c *Config) Validate(ctx context.Context) error {
	if len(c.Sections) == 0 {
		return moerr.NewBadConfig(ctx, "no sections")
	}
	for i, spec := range c.Sections {
		if !spec.Width.Valid() {
			return moerr.NewBadConfig(ctx, "section %d: width %d is not one of 1, 8, 16, 32, 64", i, spec.Width)
		}
		if spec.SlotSize <= 0 {
			return moerr.NewBadConfig(ctx, "section %d: slot size %d", i, spec.SlotSize)
		}
	}
	if c.SectionBytes() == math.MaxInt {
		return moerr.NewBadConfig(ctx, "sections need more than %d bytes", math.MaxInt-1)
	}
	switch c.Buffer.Source {
	case malloc.BufferSourceHeap, malloc.BufferSourceMmap:
	default:
		return moerr.NewBadConfig(ctx, "buffer source %q", c.Buffer.Source)
	}
	if c.Buffer.Size < 0 {
		return moerr.NewBadConfig(ctx, "buffer size %d", c.Buffer.Size)
	}
	if c.Workload.Workers < 0 || c.Workload.Iterations < 0 || c.Workload.MaxSize < 0 || c.Workload.VectorPushes < 0 {
		return moerr.NewBadConfig(ctx, "negative workload setting")
	}
	if c.Workload.Align <= 0 || c.Workload.Align&(c.Workload.Align-1) != 0 {
		return moerr.NewBadConfig(ctx, "workload align %d is not a power of two", c.Workload.Align)
	}
	return nil
}
