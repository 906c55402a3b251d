// Package config loads the VM's tuning knobs from the environment (spec
// §10.1), using the same caarlos0/env library the teacher repository pulls
// in (indirectly, via mna/mainer) but never exercises directly — this
// module promotes it to a direct dependency and gives it a concrete job.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v6"
)

// Config tunes the allocator, the collector, and execution tracing (spec
// §4.A, §4.I, §4.J). Zero value is not meaningful; use Default or Load.
type Config struct {
	InitialHeapBytes int     `env:"CLOX_INITIAL_HEAP_BYTES" envDefault:"1048576"`
	GCGrowFactor     float64 `env:"CLOX_GC_GROW_FACTOR" envDefault:"2"`
	StressGC         bool    `env:"CLOX_STRESS_GC" envDefault:"false"`
	LogGC            bool    `env:"CLOX_LOG_GC" envDefault:"false"`
	TraceExecution   bool    `env:"CLOX_TRACE_EXEC" envDefault:"false"`
	FrameMax         int     `env:"CLOX_FRAME_MAX" envDefault:"64"`
}

// Default returns the struct tag defaults without touching the process
// environment, for callers (tests, the REPL smoke path) that do not want
// ambient CLOX_* variables to affect behavior.
func Default() Config {
	var cfg Config
	opts := env.Options{Environment: map[string]string{}}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		// envDefault-only parsing against an empty environment cannot fail; a
		// panic here would indicate a bug in the struct tags above.
		panic(fmt.Sprintf("config: default parse failed: %s", err))
	}
	return cfg
}

// Load reads Config from the process environment, falling back to the
// envDefault tags for anything unset.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
