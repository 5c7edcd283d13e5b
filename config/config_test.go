package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/wippyai/wasm-boot/loader"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func expected() Config {
	cfg := Default()
	cfg.Module = "https://example.com/particles.wasm"
	cfg.FPS = 30
	cfg.HandoffWait = Duration(250 * time.Millisecond)
	cfg.HandoffMode = "fixed"
	cfg.FetchTimeout = Duration(5 * time.Second)
	cfg.MaxBytes = 1048576
	cfg.Args = []string{"particles", "-n", "100"}
	cfg.Env = map[string]string{"SEED": "42"}
	cfg.StatusAddr = ":9090"
	cfg.LogLevel = "debug"
	return cfg
}

func TestLoadFormats(t *testing.T) {
	files := map[string]string{
		"cfg.yaml": `module: https://example.com/particles.wasm
fps: 30
handoff_wait: 250ms
handoff_mode: fixed
fetch_timeout: 5s
max_bytes: 1048576
args: [particles, "-n", "100"]
env:
  SEED: "42"
status_addr: ":9090"
log_level: debug
`,
		"cfg.json": `{"module":"https://example.com/particles.wasm","fps":30,"handoff_wait":"250ms",
"handoff_mode":"fixed","fetch_timeout":"5s","max_bytes":1048576,"args":["particles","-n","100"],
"env":{"SEED":"42"},"status_addr":":9090","log_level":"debug"}`,
		"cfg.toml": `module = "https://example.com/particles.wasm"
fps = 30
handoff_wait = "250ms"
handoff_mode = "fixed"
fetch_timeout = "5s"
max_bytes = 1048576
args = ["particles", "-n", "100"]
status_addr = ":9090"
log_level = "debug"

[env]
SEED = "42"
`,
		"cfg.hcl": `module        = "https://example.com/particles.wasm"
fps           = 30
handoff_wait  = "250ms"
handoff_mode  = "fixed"
fetch_timeout = "5s"
max_bytes     = 1048576
args          = ["particles", "-n", "100"]
env = {
  SEED = "42"
}
status_addr = ":9090"
log_level   = "debug"
`,
	}

	want := expected()
	d := t.TempDir()
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeTempFile(t, d, name, content))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if !reflect.DeepEqual(cfg, want) {
				t.Fatalf("unexpected cfg:\n got %+v\nwant %+v", cfg, want)
			}
		})
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	d := t.TempDir()
	cfg, err := Load(writeTempFile(t, d, "cfg.yml", "fps: 24\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FPS != 24 {
		t.Fatalf("fps = %d, want 24", cfg.FPS)
	}
	if cfg.Hook != loader.DefaultHook || time.Duration(cfg.HandoffWait) != loader.DefaultHandoffWait {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	if _, err := Load(filepath.Join(d, "missing.yaml")); err == nil {
		t.Fatalf("expected error on missing file")
	}
	if _, err := Load(writeTempFile(t, d, "cfg.txt", "not supported")); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
	if _, err := Load(writeTempFile(t, d, "bad.yaml", "handoff_wait: soon\n")); err == nil {
		t.Fatalf("expected duration error")
	}
	if _, err := Load(writeTempFile(t, d, "bad.hcl", "fps = \n")); err == nil {
		t.Fatalf("expected hcl syntax error")
	}
	for _, pages := range []string{"-1", "70000", "4294967297"} {
		if _, err := Load(writeTempFile(t, d, "pages.hcl", "memory_limit_pages = "+pages+"\n")); err == nil {
			t.Fatalf("expected memory_limit_pages %s to be rejected", pages)
		}
	}
}

func TestLoadHCLEnv(t *testing.T) {
	t.Setenv("WASMBOOT_TEST_ROOT", "/srv/wasm")
	d := t.TempDir()
	cfg, err := Load(writeTempFile(t, d, "cfg.hcl", `module = "${env.WASMBOOT_TEST_ROOT}/main.wasm"`+"\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Module != "/srv/wasm/main.wasm" {
		t.Fatalf("module = %q", cfg.Module)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvModule:      "./build/game.wasm",
		EnvFPS:         "120",
		EnvHandoffWait: "1s",
		EnvStatusAddr:  "127.0.0.1:8080",
		EnvLogLevel:    "warn",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.Module != "./build/game.wasm" || cfg.FPS != 120 || time.Duration(cfg.HandoffWait) != time.Second ||
		cfg.StatusAddr != "127.0.0.1:8080" || cfg.LogLevel != "warn" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}

	env[EnvFPS] = "fast"
	if err := cfg.ApplyEnv(lookup); err == nil {
		t.Fatalf("expected fps parse error")
	}
}

func TestValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero fps", func(c *Config) { c.FPS = 0 }},
		{"negative wait", func(c *Config) { c.HandoffWait = Duration(-time.Millisecond) }},
		{"negative timeout", func(c *Config) { c.FetchTimeout = Duration(-time.Second) }},
		{"negative max bytes", func(c *Config) { c.MaxBytes = -1 }},
		{"unknown mode", func(c *Config) { c.HandoffMode = "eager" }},
		{"unknown format", func(c *Config) { c.LogFormat = "xml" }},
		{"unknown ui", func(c *Config) { c.UI = "gui" }},
		{"unknown level", func(c *Config) { c.LogLevel = "loud" }},
		{"memory limit too large", func(c *Config) { c.MemoryLimitPages = loader.MaxMemoryPages + 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateMemoryLimit(t *testing.T) {
	cfg := Default()
	cfg.MemoryLimitPages = loader.MaxMemoryPages
	if err := cfg.Validate(); err != nil {
		t.Fatalf("max pages rejected: %v", err)
	}
	cfg.MemoryLimitPages = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for 70000 pages")
	}
}

func TestLoaderOptions(t *testing.T) {
	cfg := expected()
	opts := cfg.LoaderOptions()

	if opts.HandoffMode != loader.HandoffFixed || opts.HandoffWait != 250*time.Millisecond {
		t.Fatalf("handoff: %+v", opts)
	}
	if opts.Fetch.Timeout != 5*time.Second || opts.Fetch.MaxBytes != 1048576 {
		t.Fatalf("fetch: %+v", opts.Fetch)
	}
	if opts.Host.Module != "env" || opts.Host.Env["SEED"] != "42" || len(opts.Host.Args) != 3 {
		t.Fatalf("host: %+v", opts.Host)
	}
}
