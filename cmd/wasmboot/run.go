package main

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-boot/config"
	"github.com/wippyai/wasm-boot/frame"
	"github.com/wippyai/wasm-boot/loader"
	"github.com/wippyai/wasm-boot/metrics"
	"github.com/wippyai/wasm-boot/status"
	"github.com/wippyai/wasm-boot/statusserver"
)

const logLines = 6

func newRunCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [url]",
		Short: "Load a module, run its entry point and call its hook every frame",
		Example: "  wasmboot run https://example.com/main.wasm\n" +
			"  wasmboot run ./particles.wasm --fps 30 --status-addr :9090\n" +
			"  WASMBOOT_MODULE=./main.wasm wasmboot run --ui plain",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := c.moduleURL(args)
			if err != nil {
				return err
			}
			return runBoot(cmd.Context(), c.cfg, url, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.Int("fps", frame.DefaultFPS, "Target frame rate")
	f.String("hook", loader.DefaultHook, "Export published as the hook when the module publishes none")
	f.Duration("handoff-wait", loader.DefaultHandoffWait, "Window for the module to publish its hook")
	f.String("handoff-mode", string(loader.HandoffSignal), "Handoff wait mode: signal|fixed")
	f.StringSlice("entry", loader.DefaultEntryPoints, "Entry point candidates, tried in order")
	f.String("status-addr", "", "Serve /status, /metrics, /live and /ready on this address")
	f.String("ui", config.UIAuto, "Output: auto|tui|plain")
	f.Uint32("memory-limit-pages", 0, "Guest memory limit in 64KiB pages, 0 for the runtime default")
	f.Bool("threads", false, "Enable the threads proposal")
	f.StringArray("arg", nil, "Guest argument, repeatable")
	f.StringArray("env", nil, "Guest environment variable KEY=VALUE, repeatable")
	return cmd
}

// useTUI reports whether the run command should take over the terminal.
func useTUI(mode string, out io.Writer) bool {
	switch mode {
	case config.UITUI:
		return true
	case config.UIPlain:
		return false
	}
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func runBoot(ctx context.Context, cfg config.Config, url string, stdout, stderr io.Writer) error {
	tui := useTUI(cfg.UI, stdout)

	var ring *logRing
	logOut, guestOut, guestErr := stderr, stdout, stderr
	if tui {
		ring = newLogRing(logLines)
		logOut, guestOut, guestErr = ring, ring, ring
	}

	logger, err := newLogger(cfg, logOut)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	setLoggers(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ind := status.NewIndicator(status.DefaultKey, status.NewLogSink(logger.Named("status")))
	if !tui {
		ind.Subscribe(status.NewTerminalSink(stdout))
	}

	opts := cfg.LoaderOptions()
	opts.Status = ind
	opts.Metrics = metrics.New(reg)
	opts.Host.Stdout = guestOut
	opts.Host.Stderr = guestErr

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l, err := loader.New(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = l.Close(context.Background()) }()

	sched := frame.NewTicker(cfg.FPS)
	defer sched.Stop()

	serverDone := make(chan struct{})
	if cfg.StatusAddr != "" {
		go func() {
			defer close(serverDone)
			h := statusserver.NewMux(l, statusserver.Options{Gatherer: reg})
			if err := statusserver.Serve(ctx, cfg.StatusAddr, h); err != nil {
				logger.Error("status server stopped", zap.String("addr", cfg.StatusAddr), zap.Error(err))
			}
		}()
	} else {
		close(serverDone)
	}

	if tui {
		err = runTUI(ctx, cancel, l, url, sched, ring)
	} else {
		err = l.Boot(ctx, url, sched)
	}

	cancel()
	select {
	case <-serverDone:
	case <-time.After(10 * time.Second):
		logger.Warn("status server did not shut down in time")
	}
	return cleanExit(ctx, err)
}

// cleanExit drops the error caused by our own cancellation.
func cleanExit(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && (stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)) {
		return nil
	}
	return err
}
