package scheduler

import (
	"log"
	"os"
	"time"
)

// Config holds configuration for a Scheduler.
type Config struct {
	// DebounceInterval is the quiet window after the last local mutation
	// before a flush starts. Rapid edits are batched into one flush.
	DebounceInterval time.Duration

	// PollInterval is how often the remote version is peeked while idle.
	PollInterval time.Duration

	// CallTimeout bounds each remote call.
	CallTimeout time.Duration

	// Logger for scheduler activity
	Logger *log.Logger

	// Observer receives every state change and sync outcome. It runs on the
	// scheduler's control goroutine and must not block.
	Observer Observer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 2 * time.Second,
		PollInterval:     5 * time.Second,
		CallTimeout:      30 * time.Second,
		Logger:           log.New(os.Stderr, "[scheduler] ", log.LstdFlags),
	}
}

func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.DebounceInterval <= 0 {
		out.DebounceInterval = def.DebounceInterval
	}
	if out.PollInterval <= 0 {
		out.PollInterval = def.PollInterval
	}
	if out.CallTimeout <= 0 {
		out.CallTimeout = def.CallTimeout
	}
	if out.Logger == nil {
		out.Logger = def.Logger
	}
	return &out
}
