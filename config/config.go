// Package config parses the command line and an optional YAML tuning
// file into a single Config value.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"parlor/editor"
)

// DefaultPort matches the original phoenix.h DefaultPort.
const DefaultPort = 6789

// Config collects every knob the server needs at startup: the subset
// that fits comfortably on a command line (port, debug, passwd path,
// trace), plus the tuning knobs best left to a file for a long-running
// daemon (detach timeout, terminal width, listen backlog).
type Config struct {
	Port   int
	Debug  bool
	Passwd string
	Trace  bool
	Filter string

	TuningFile string

	// DetachTimeout is how long a detached session may sit unattached
	// before being destroyed; 0 disables the reaper entirely, so an
	// operator must opt in to a timeout.
	DetachTimeout time.Duration
	Width         int

	// Backlog is recorded for operators but is not wired to the
	// listen(2) backlog: Go's net package computes that value itself
	// from the platform's somaxconn and does not expose a portable way
	// to override it (see DESIGN.md).
	Backlog int
}

// tuning is the shape of the optional YAML file named by -config.
type tuning struct {
	DetachTimeoutSeconds int `yaml:"detach_timeout_seconds"`
	Width                int `yaml:"width"`
	Backlog              int `yaml:"backlog"`
}

// Parse reads args (normally os.Args[1:]): a set of named flags plus
// an optional bare positional port argument.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("parlor", flag.ContinueOnError)

	port := fs.Int("port", DefaultPort, "listen port")
	debug := fs.Bool("debug", false, "stay attached to the terminal, don't daemonize")
	passwd := fs.String("passwd", "passwd", "credential store path")
	traceEnabled := fs.Bool("trace", false, "enable connection-event tracing")
	traceFilter := fs.String("trace-filter", "", "trace filter pattern(s), comma-separated globs matched against display name")
	tuningFile := fs.String("config", "", "optional YAML file with detach_timeout_seconds/width/backlog")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:       *port,
		Debug:      *debug,
		Passwd:     *passwd,
		Trace:      *traceEnabled,
		Filter:     *traceFilter,
		TuningFile: *tuningFile,
		Width:      editor.DefaultWidth,
		Backlog:    8,
	}

	if rest := fs.Args(); len(rest) > 0 {
		p, err := strconv.Atoi(rest[0])
		if err != nil || p <= 0 {
			return Config{}, fmt.Errorf("config: invalid port argument %q", rest[0])
		}
		cfg.Port = p
	}

	if cfg.TuningFile != "" {
		if err := cfg.loadTuning(); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

func (c *Config) loadTuning() error {
	data, err := os.ReadFile(c.TuningFile)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", c.TuningFile, err)
	}
	var t tuning
	if err := yaml.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("config: parse %s: %w", c.TuningFile, err)
	}
	if t.DetachTimeoutSeconds > 0 {
		c.DetachTimeout = time.Duration(t.DetachTimeoutSeconds) * time.Second
	}
	if t.Width > 0 {
		c.Width = t.Width
	}
	if t.Backlog > 0 {
		c.Backlog = t.Backlog
	}
	return nil
}

// TraceFilters splits Filter on commas, trimming whitespace.
func (c Config) TraceFilters() []string {
	if c.Filter == "" {
		return nil
	}
	parts := strings.Split(c.Filter, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
