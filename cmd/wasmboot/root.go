package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-boot/config"
	"github.com/wippyai/wasm-boot/errors"
	"github.com/wippyai/wasm-boot/fetch"
	"github.com/wippyai/wasm-boot/host"
	"github.com/wippyai/wasm-boot/loader"
	"github.com/wippyai/wasm-boot/statusserver"
)

// cli carries the resolved configuration from the root command to its
// subcommands.
type cli struct {
	configPath string
	cfg        config.Config
	lookupEnv  func(string) (string, bool)
}

func newRootCmd() *cobra.Command {
	c := &cli{lookupEnv: os.LookupEnv}

	root := &cobra.Command{
		Use:           "wasmboot",
		Short:         "Load a WebAssembly module and drive its per-frame hook",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "Config file (.yaml, .yml, .json, .toml, .hcl)")
	pf.String("log-level", "", "Log level: debug|info|warn|error")
	pf.String("log-format", "", "Log format: console|json")
	pf.String("host-module", "", "Name of the host import module (default env)")
	pf.Duration("fetch-timeout", 0, "Fetch timeout, 0 for none")
	pf.Int64("max-bytes", 0, "Maximum module size in bytes, 0 for unlimited")
	pf.Bool("require-mime", false, "Reject http responses not served as application/wasm")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return c.resolve(cmd)
	}

	root.AddCommand(newRunCmd(c), newInspectCmd(c))
	return root
}

// resolve layers defaults, the config file, the environment and the flags
// the user set, in that order.
func (c *cli) resolve(cmd *cobra.Command) error {
	cfg := config.Default()
	if c.configPath != "" {
		loaded, err := config.Load(c.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(c.lookupEnv); err != nil {
		return err
	}
	if err := applyFlags(cmd, &cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

// applyFlags copies every flag the user set on cmd into cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	fs := cmd.Flags()
	var err error
	set := func(name string, apply func() error) {
		if err != nil || !fs.Changed(name) {
			return
		}
		err = apply()
	}

	set("log-level", func() (e error) { cfg.LogLevel, e = fs.GetString("log-level"); return })
	set("log-format", func() (e error) { cfg.LogFormat, e = fs.GetString("log-format"); return })
	set("host-module", func() (e error) { cfg.HostModule, e = fs.GetString("host-module"); return })
	set("max-bytes", func() (e error) { cfg.MaxBytes, e = fs.GetInt64("max-bytes"); return })
	set("require-mime", func() (e error) { cfg.RequireWasmMIME, e = fs.GetBool("require-mime"); return })
	set("fetch-timeout", func() error {
		d, e := fs.GetDuration("fetch-timeout")
		cfg.FetchTimeout = config.Duration(d)
		return e
	})
	set("fps", func() (e error) { cfg.FPS, e = fs.GetInt("fps"); return })
	set("hook", func() (e error) { cfg.Hook, e = fs.GetString("hook"); return })
	set("handoff-mode", func() (e error) { cfg.HandoffMode, e = fs.GetString("handoff-mode"); return })
	set("handoff-wait", func() error {
		d, e := fs.GetDuration("handoff-wait")
		cfg.HandoffWait = config.Duration(d)
		return e
	})
	set("entry", func() (e error) { cfg.EntryPoints, e = fs.GetStringSlice("entry"); return })
	set("status-addr", func() (e error) { cfg.StatusAddr, e = fs.GetString("status-addr"); return })
	set("ui", func() (e error) { cfg.UI, e = fs.GetString("ui"); return })
	set("memory-limit-pages", func() (e error) { cfg.MemoryLimitPages, e = fs.GetUint32("memory-limit-pages"); return })
	set("threads", func() (e error) { cfg.Threads, e = fs.GetBool("threads"); return })
	set("arg", func() (e error) { cfg.Args, e = fs.GetStringArray("arg"); return })
	set("env", func() error {
		pairs, e := fs.GetStringArray("env")
		if e != nil {
			return e
		}
		if cfg.Env == nil {
			cfg.Env = make(map[string]string, len(pairs))
		}
		for _, kv := range pairs {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return errors.InvalidInput(errors.PhaseConfig, "--env expects KEY=VALUE, got "+kv)
			}
			cfg.Env[k] = v
		}
		return nil
	})
	return err
}

// moduleURL picks the positional argument over the configured module.
func (c *cli) moduleURL(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if c.cfg.Module != "" {
		return c.cfg.Module, nil
	}
	return "", errors.InvalidInput(errors.PhaseConfig,
		"no module given: pass a URL or set module in the config or "+config.EnvModule)
}

func setLoggers(l *zap.Logger) {
	fetch.SetLogger(l.Named("fetch"))
	host.SetLogger(l.Named("host"))
	loader.SetLogger(l.Named("loader"))
	statusserver.SetLogger(l.Named("statusserver"))
}
