// Package config loads wasmboot settings from a file and the environment.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-boot/errors"
	"github.com/wippyai/wasm-boot/fetch"
	"github.com/wippyai/wasm-boot/frame"
	"github.com/wippyai/wasm-boot/host"
	"github.com/wippyai/wasm-boot/loader"
)

// Environment variables read by ApplyEnv.
const (
	EnvModule      = "WASMBOOT_MODULE"
	EnvFPS         = "WASMBOOT_FPS"
	EnvHandoffWait = "WASMBOOT_HANDOFF_WAIT"
	EnvStatusAddr  = "WASMBOOT_STATUS_ADDR"
	EnvLogLevel    = "WASMBOOT_LOG_LEVEL"
)

// Output modes for the run command.
const (
	UIAuto  = "auto"
	UITUI   = "tui"
	UIPlain = "plain"
)

// Log formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Duration is a time.Duration written as a Go duration string ("100ms").
type Duration time.Duration

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration as a string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config holds every setting of the run and inspect commands.
type Config struct {
	Module           string            `json:"module" yaml:"module" toml:"module"`
	FPS              int               `json:"fps" yaml:"fps" toml:"fps"`
	Hook             string            `json:"hook" yaml:"hook" toml:"hook"`
	EntryPoints      []string          `json:"entry_points" yaml:"entry_points" toml:"entry_points"`
	HandoffWait      Duration          `json:"handoff_wait" yaml:"handoff_wait" toml:"handoff_wait"`
	HandoffMode      string            `json:"handoff_mode" yaml:"handoff_mode" toml:"handoff_mode"`
	FetchTimeout     Duration          `json:"fetch_timeout" yaml:"fetch_timeout" toml:"fetch_timeout"`
	MaxBytes         int64             `json:"max_bytes" yaml:"max_bytes" toml:"max_bytes"`
	RequireWasmMIME  bool              `json:"require_wasm_mime" yaml:"require_wasm_mime" toml:"require_wasm_mime"`
	HostModule       string            `json:"host_module" yaml:"host_module" toml:"host_module"`
	Args             []string          `json:"args" yaml:"args" toml:"args"`
	Env              map[string]string `json:"env" yaml:"env" toml:"env"`
	MemoryLimitPages uint32            `json:"memory_limit_pages" yaml:"memory_limit_pages" toml:"memory_limit_pages"`
	Threads          bool              `json:"threads" yaml:"threads" toml:"threads"`
	StatusAddr       string            `json:"status_addr" yaml:"status_addr" toml:"status_addr"`
	LogLevel         string            `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat        string            `json:"log_format" yaml:"log_format" toml:"log_format"`
	UI               string            `json:"ui" yaml:"ui" toml:"ui"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		FPS:         frame.DefaultFPS,
		Hook:        loader.DefaultHook,
		EntryPoints: append([]string(nil), loader.DefaultEntryPoints...),
		HandoffWait: Duration(loader.DefaultHandoffWait),
		HandoffMode: string(loader.HandoffSignal),
		HostModule:  host.DefaultModule,
		LogLevel:    "info",
		LogFormat:   FormatConsole,
		UI:          UIAuto,
	}
}

// Load reads a configuration file over the defaults, based on its extension.
// Supports: .yaml/.yml, .json, .toml, .hcl
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.InvalidInput(errors.PhaseConfig, "empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read "+path)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	case ".hcl":
		err = decodeHCL(path, b, &cfg)
	default:
		return cfg, errors.New(errors.PhaseConfig, errors.KindUnsupported).
			Detail("unsupported config extension: %s", ext).
			Build()
	}
	if err != nil {
		return cfg, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "decode "+path)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from WASMBOOT_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvModule); ok && v != "" {
		c.Module = v
	}
	if v, ok := lookup(EnvFPS); ok && v != "" {
		fps, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, EnvFPS)
		}
		c.FPS = fps
	}
	if v, ok := lookup(EnvHandoffWait); ok && v != "" {
		var d Duration
		if err := d.UnmarshalText([]byte(v)); err != nil {
			return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, EnvHandoffWait)
		}
		c.HandoffWait = d
	}
	if v, ok := lookup(EnvStatusAddr); ok {
		c.StatusAddr = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate rejects settings the loader cannot run with.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).Detail(format, args...).Build()
	}

	if c.FPS <= 0 {
		return invalid("fps must be positive, got %d", c.FPS)
	}
	if c.HandoffWait < 0 {
		return invalid("handoff_wait must not be negative, got %s", time.Duration(c.HandoffWait))
	}
	if c.FetchTimeout < 0 {
		return invalid("fetch_timeout must not be negative, got %s", time.Duration(c.FetchTimeout))
	}
	if c.MaxBytes < 0 {
		return invalid("max_bytes must not be negative, got %d", c.MaxBytes)
	}
	if c.MemoryLimitPages > loader.MaxMemoryPages {
		return invalid("memory_limit_pages must be at most %d, got %d", loader.MaxMemoryPages, c.MemoryLimitPages)
	}
	switch loader.HandoffMode(c.HandoffMode) {
	case loader.HandoffSignal, loader.HandoffFixed, "":
	default:
		return invalid("unknown handoff_mode %q", c.HandoffMode)
	}
	switch c.LogFormat {
	case FormatConsole, FormatJSON, "":
	default:
		return invalid("unknown log_format %q", c.LogFormat)
	}
	switch c.UI {
	case UIAuto, UITUI, UIPlain, "":
	default:
		return invalid("unknown ui %q", c.UI)
	}
	if c.LogLevel != "" {
		if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
			return invalid("log_level: %v", err)
		}
	}
	return nil
}

// LoaderOptions converts the settings into loader options. Status, Metrics
// and the stdio writers are left for the caller.
func (c Config) LoaderOptions() loader.Options {
	return loader.Options{
		Host: host.Config{
			Module: c.HostModule,
			Args:   c.Args,
			Env:    c.Env,
		},
		Fetch: fetch.Options{
			MaxBytes:        c.MaxBytes,
			Timeout:         time.Duration(c.FetchTimeout),
			RequireWasmMIME: c.RequireWasmMIME,
		},
		Hook:             c.Hook,
		HandoffMode:      loader.HandoffMode(c.HandoffMode),
		EntryPoints:      c.EntryPoints,
		HandoffWait:      time.Duration(c.HandoffWait),
		MemoryLimitPages: c.MemoryLimitPages,
		EnableThreads:    c.Threads,
	}
}

// hclConfig mirrors Config with optional attributes. Durations stay strings
// until they are parsed. Expressions may read environment variables as
// env.NAME.
type hclConfig struct {
	Module           *string           `hcl:"module,optional"`
	FPS              *int              `hcl:"fps,optional"`
	Hook             *string           `hcl:"hook,optional"`
	EntryPoints      []string          `hcl:"entry_points,optional"`
	HandoffWait      *string           `hcl:"handoff_wait,optional"`
	HandoffMode      *string           `hcl:"handoff_mode,optional"`
	FetchTimeout     *string           `hcl:"fetch_timeout,optional"`
	MaxBytes         *int64            `hcl:"max_bytes,optional"`
	RequireWasmMIME  *bool             `hcl:"require_wasm_mime,optional"`
	HostModule       *string           `hcl:"host_module,optional"`
	Args             []string          `hcl:"args,optional"`
	Env              map[string]string `hcl:"env,optional"`
	MemoryLimitPages *int64            `hcl:"memory_limit_pages,optional"`
	Threads          *bool             `hcl:"threads,optional"`
	StatusAddr       *string           `hcl:"status_addr,optional"`
	LogLevel         *string           `hcl:"log_level,optional"`
	LogFormat        *string           `hcl:"log_format,optional"`
	UI               *string           `hcl:"ui,optional"`
}

func decodeHCL(path string, b []byte, cfg *Config) error {
	file, diags := hclparse.NewParser().ParseHCL(b, path)
	if diags.HasErrors() {
		return diags
	}
	var raw hclConfig
	if diags := gohcl.DecodeBody(file.Body, hclEvalContext(), &raw); diags.HasErrors() {
		return diags
	}

	setString(&cfg.Module, raw.Module)
	setString(&cfg.Hook, raw.Hook)
	setString(&cfg.HandoffMode, raw.HandoffMode)
	setString(&cfg.HostModule, raw.HostModule)
	setString(&cfg.StatusAddr, raw.StatusAddr)
	setString(&cfg.LogLevel, raw.LogLevel)
	setString(&cfg.LogFormat, raw.LogFormat)
	setString(&cfg.UI, raw.UI)

	if raw.FPS != nil {
		cfg.FPS = *raw.FPS
	}
	if raw.MaxBytes != nil {
		cfg.MaxBytes = *raw.MaxBytes
	}
	if raw.MemoryLimitPages != nil {
		pages := *raw.MemoryLimitPages
		if pages < 0 || pages > loader.MaxMemoryPages {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Detail("memory_limit_pages must be between 0 and %d, got %d", loader.MaxMemoryPages, pages).
				Build()
		}
		cfg.MemoryLimitPages = uint32(pages)
	}
	if raw.RequireWasmMIME != nil {
		cfg.RequireWasmMIME = *raw.RequireWasmMIME
	}
	if raw.Threads != nil {
		cfg.Threads = *raw.Threads
	}
	if raw.EntryPoints != nil {
		cfg.EntryPoints = raw.EntryPoints
	}
	if raw.Args != nil {
		cfg.Args = raw.Args
	}
	if raw.Env != nil {
		cfg.Env = raw.Env
	}

	if raw.HandoffWait != nil {
		if err := cfg.HandoffWait.UnmarshalText([]byte(*raw.HandoffWait)); err != nil {
			return err
		}
	}
	if raw.FetchTimeout != nil {
		if err := cfg.FetchTimeout.UnmarshalText([]byte(*raw.FetchTimeout)); err != nil {
			return err
		}
	}
	return nil
}

// hclEvalContext exposes the process environment as env.NAME.
func hclEvalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !hclsyntaxName(k) {
			continue
		}
		vars[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": cty.ObjectVal(vars)},
	}
}

// hclsyntaxName reports whether k can be used as an attribute name.
func hclsyntaxName(k string) bool {
	if k == "" {
		return false
	}
	for i, r := range k {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '-'):
		default:
			return false
		}
	}
	return true
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
