package app

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// FileConfig is the optional engine configuration file, written in HCL:
//
//	workers       = 8
//	cache_entries = 4096
//	node_timeout  = "30s"
//	log_level     = "debug"
//	log_format    = "text"
//	scope         = "dirty"
//
// Every attribute is optional. Command-line flags take precedence over
// file values; file values take precedence over built-in defaults.
type FileConfig struct {
	Workers      *int    `hcl:"workers,optional"`
	CacheEntries *int    `hcl:"cache_entries,optional"`
	NodeTimeout  *string `hcl:"node_timeout,optional"`
	LogLevel     *string `hcl:"log_level,optional"`
	LogFormat    *string `hcl:"log_format,optional"`
	Scope        *string `hcl:"scope,optional"`
}

// ParseNodeTimeout decodes the node_timeout attribute, if present.
func (f *FileConfig) ParseNodeTimeout() (time.Duration, bool, error) {
	if f.NodeTimeout == nil {
		return 0, false, nil
	}
	d, err := time.ParseDuration(*f.NodeTimeout)
	if err != nil {
		return 0, false, fmt.Errorf("node_timeout: %w", err)
	}
	return d, true, nil
}

// LoadConfigFile parses the engine configuration file at path.
func LoadConfigFile(path string) (*FileConfig, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing config file %s: %w", path, diags)
	}
	var cfg FileConfig
	if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("decoding config file %s: %w", path, diags)
	}
	return &cfg, nil
}
