// Package config resolves the virtual machine's tunable runtime parameters
// (call-stack depth, value-stack size, GC behavior) from an optional YAML
// file layered with environment variables, following the file-provides-
// defaults/env-overrides convention used throughout the example pack.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

// VM holds every environment-tunable knob the machine.Thread and value.Heap
// accept. Zero values mean "let the package default apply".
type VM struct {
	MaxCallDepth   int  `yaml:"max_call_depth" env:"LOXVM_MAX_CALL_DEPTH"`
	StackSlots     int  `yaml:"stack_slots" env:"LOXVM_STACK_SLOTS"`
	GCStress       bool `yaml:"gc_stress" env:"LOXVM_GC_STRESS"`
	GCGrowFactor   int  `yaml:"gc_grow_factor" env:"LOXVM_GC_GROW_FACTOR"`
	GCHeapGrowBytes int `yaml:"gc_heap_grow_bytes" env:"LOXVM_GC_HEAP_GROW_BYTES"`
}

// Load resolves a VM configuration. When path is non-empty, it is parsed as
// YAML first and used to seed defaults; environment variables with the
// LOXVM_ prefix are then parsed on top and take precedence over whatever the
// file set, per caarlos0/env's normal override semantics.
func Load(path string) (*VM, error) {
	var cfg VM
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: reading environment: %w", err)
	}
	return &cfg, nil
}
