// Package cli parses command-line arguments into an app configuration.
package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/barrulus/Hesiod/internal/app"
	"github.com/barrulus/Hesiod/internal/cache"
	"github.com/barrulus/Hesiod/internal/scheduler"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("hesiod", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
Hesiod - An incremental dependency-graph engine for procedural terrain.

Usage:
  hesiod [options] [GRAPH_PATH]

Arguments:
  GRAPH_PATH
    Path to a graph definition (.hcl), a project document (.json), or a
    legacy export (.hsd).

Options:
`)
		flagSet.PrintDefaults()
	}

	graphFlag := flagSet.String("graph", "", "Path to the graph file.")
	gFlag := flagSet.String("g", "", "Path to the graph file (shorthand).")
	configFlag := flagSet.String("config", "", "Path to an optional engine configuration file (HCL).")
	saveFlag := flagSet.String("save", "", "Write the graph back out as a project document after the run.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", scheduler.DefaultWorkers, "Number of concurrent workers for the scheduler.")
	cacheFlag := flagSet.Int("cache-entries", cache.DefaultMaxEntries, "Maximum number of cached node results.")
	timeoutFlag := flagSet.Duration("node-timeout", 0, "Per-node execution timeout. 0 is disabled.")
	scopeFlag := flagSet.String("scope", "full", "Run scope. Options: 'full' or 'dirty'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	if *configFlag != "" {
		fileCfg, err := app.LoadConfigFile(*configFlag)
		if err != nil {
			return nil, false, &ExitError{Code: 2, Message: err.Error()}
		}
		explicit := make(map[string]bool)
		flagSet.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
		if err := applyFileConfig(fileCfg, explicit, workersFlag, cacheFlag, timeoutFlag, logLevelFlag, logFormatFlag, scopeFlag); err != nil {
			return nil, false, &ExitError{Code: 2, Message: err.Error()}
		}
		slog.Debug("Engine configuration file applied.", "path", *configFlag)
	}

	path := ""
	if *graphFlag != "" {
		path = *graphFlag
	} else if *gFlag != "" {
		path = *gFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Graph path determined.", "path", path)

	if path == "" {
		slog.Debug("No graph path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	scope := strings.ToLower(*scopeFlag)
	if scope != "full" && scope != "dirty" {
		return nil, false, &ExitError{Code: 2, Message: "invalid scope: must be 'full' or 'dirty'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		GraphPath:    path,
		SavePath:     *saveFlag,
		LogFormat:    logFormat,
		LogLevel:     logLevel,
		Workers:      *workersFlag,
		CacheEntries: *cacheFlag,
		NodeTimeout:  *timeoutFlag,
		Scope:        scope,
	})

	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}

// applyFileConfig fills in file values for every option not set explicitly
// on the command line. Flags always win over the file.
func applyFileConfig(fileCfg *app.FileConfig, explicit map[string]bool, workers, cacheEntries *int, timeout *time.Duration, logLevel, logFormat, scope *string) error {
	if fileCfg.Workers != nil && !explicit["workers"] {
		*workers = *fileCfg.Workers
	}
	if fileCfg.CacheEntries != nil && !explicit["cache-entries"] {
		*cacheEntries = *fileCfg.CacheEntries
	}
	if d, ok, err := fileCfg.ParseNodeTimeout(); err != nil {
		return err
	} else if ok && !explicit["node-timeout"] {
		*timeout = d
	}
	if fileCfg.LogLevel != nil && !explicit["log-level"] {
		*logLevel = *fileCfg.LogLevel
	}
	if fileCfg.LogFormat != nil && !explicit["log-format"] {
		*logFormat = *fileCfg.LogFormat
	}
	if fileCfg.Scope != nil && !explicit["scope"] {
		*scope = *fileCfg.Scope
	}
	return nil
}
