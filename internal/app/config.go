package app

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	GraphPath string // .hcl, .json, or legacy .hsd
	SavePath  string // optional: write the graph back out as a project document

	LogFormat    string
	LogLevel     string
	Workers      int
	CacheEntries int
	NodeTimeout  time.Duration
	Scope        string // "full" or "dirty"
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.GraphPath == "" {
		return nil, errors.New("GraphPath is a required configuration field and cannot be empty")
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("Workers must not be negative, got %d", cfg.Workers)
	}
	if cfg.CacheEntries < 0 {
		return nil, fmt.Errorf("CacheEntries must not be negative, got %d", cfg.CacheEntries)
	}
	if cfg.Scope != "" && cfg.Scope != "full" && cfg.Scope != "dirty" {
		return nil, fmt.Errorf("Scope must be \"full\" or \"dirty\", got %q", cfg.Scope)
	}

	return &cfg, nil
}
