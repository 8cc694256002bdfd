package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/barrulus/Hesiod/internal/cache"
	"github.com/barrulus/Hesiod/internal/ctxlog"
	"github.com/barrulus/Hesiod/internal/graph"
	"github.com/barrulus/Hesiod/internal/hclgraph"
	"github.com/barrulus/Hesiod/internal/hsd"
	"github.com/barrulus/Hesiod/internal/nodes"
	"github.com/barrulus/Hesiod/internal/project"
	"github.com/barrulus/Hesiod/internal/registry"
	"github.com/barrulus/Hesiod/internal/scheduler"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	registry *registry.Registry
	graph    *graph.Graph
	cache    *cache.Cache
	engine   *scheduler.Engine
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger, a sealed
// registry of built-in node types, and the graph loaded from the
// configured path.
func NewApp(outW io.Writer, cfg *Config) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if err := nodes.RegisterBuiltins(reg); err != nil {
		return nil, fmt.Errorf("registering built-in node types: %w", err)
	}
	reg.Seal()
	logger.Debug("Node type registry sealed.", "types", len(reg.Types()))

	g, err := loadGraph(ctx, cfg.GraphPath, reg)
	if err != nil {
		return nil, err
	}
	logger.Debug("Graph loaded.", "path", cfg.GraphPath)

	c, err := cache.New(cache.Config{MaxEntries: cfg.CacheEntries})
	if err != nil {
		return nil, fmt.Errorf("creating execution cache: %w", err)
	}

	engine := scheduler.New(reg, c, scheduler.Options{
		Workers:     cfg.Workers,
		NodeTimeout: cfg.NodeTimeout,
	})

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		registry: reg,
		graph:    g,
		cache:    c,
		engine:   engine,
	}, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Graph returns the loaded graph. This is primarily for testing.
func (a *App) Graph() *graph.Graph {
	return a.graph
}

// loadGraph dispatches on the file extension: .hcl definitions, .json
// project documents, and legacy .hsd exports are all accepted.
func loadGraph(ctx context.Context, path string, reg *registry.Registry) (*graph.Graph, error) {
	logger := ctxlog.FromContext(ctx)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".hcl":
		return hclgraph.Load(ctx, path, reg)

	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading project document: %w", err)
		}
		doc, err := project.Decode(data)
		if err != nil {
			return nil, err
		}
		return project.Restore(doc, reg)

	case ".hsd":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading legacy project: %w", err)
		}
		g, reports, err := hsd.Import(ctx, data, reg)
		if err != nil {
			return nil, err
		}
		for _, rep := range reports {
			logger.Warn("Legacy import skipped an element.", "kind", rep.Kind, "detail", rep.Detail)
		}
		return g, nil

	default:
		return nil, fmt.Errorf("unsupported graph file extension %q, want .hcl, .json, or .hsd", ext)
	}
}
