package sched

import (
	"os"

	yaml "github.com/goccy/go-yaml"

	"mios/internal/cpu"
	"mios/internal/evlog"
)

// Config mirrors config.yml
type Config struct {
	TickMS      int    `yaml:"tick_ms"`      // 1 (by default), 0 = ticks are posted by hand
	MinStack    int    `yaml:"min_stack"`    // 256 (by default)
	StackPool   int    `yaml:"stack_pool"`   // bytes for task stacks, 0 = unlimited
	CheckGuard  bool   `yaml:"check_guard"`  // verify the stack guard on every switch
	TraceBuffer int    `yaml:"trace_buffer"` // event channel capacity, 0 = no trace
	LogLevel    string `yaml:"log_level"`    // emerg .. debug
}

// smallest stack that can hold the guard word and an initial frame
const minStackFloor = cpu.FrameSize + 8

// DefaultConfig is used when the config file is not found.
func DefaultConfig() Config {
	return Config{
		TickMS:      1,
		MinStack:    256,
		StackPool:   0,
		CheckGuard:  true,
		TraceBuffer: 256,
		LogLevel:    "info",
	}
}

// Load reads YAML and overrides defaults; empty path = defaults only
func Load(path string) Config {
	cfg := DefaultConfig()

	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		evlog.Default().Warningf("config %s: %v", path, err)
	}
	return cfg.sanitize()
}

// sanity clamps
func (c Config) sanitize() Config {
	if c.TickMS < 0 {
		c.TickMS = 1
	}
	if c.MinStack < minStackFloor {
		c.MinStack = 256
	}
	if c.StackPool < 0 {
		c.StackPool = 0
	}
	if c.TraceBuffer < 0 {
		c.TraceBuffer = 0
	}
	if _, ok := evlog.ParseLevel(c.LogLevel); !ok {
		c.LogLevel = "info"
	}
	return c
}

// Level returns the configured log level.
func (c Config) Level() evlog.Level {
	l, _ := evlog.ParseLevel(c.LogLevel)
	return l
}
