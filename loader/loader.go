package loader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"

	"github.com/wippyai/wasm-boot/errors"
	"github.com/wippyai/wasm-boot/fetch"
	"github.com/wippyai/wasm-boot/hook"
	"github.com/wippyai/wasm-boot/host"
	"github.com/wippyai/wasm-boot/metrics"
	"github.com/wippyai/wasm-boot/status"
)

// Defaults applied by New to zero-valued Options fields.
const (
	DefaultHook        = "animate"
	DefaultHandoffWait = 100 * time.Millisecond
)

// MaxMemoryPages is the largest memory a 32-bit wasm module can address,
// in 64KiB pages.
const MaxMemoryPages = 65536

// DefaultEntryPoints are tried in order when Options.EntryPoints is empty:
// command modules export _start, reactor modules export _initialize.
var DefaultEntryPoints = []string{"_start", "_initialize"}

// HandoffMode selects how WaitHandoff ends.
type HandoffMode string

const (
	// HandoffSignal ends the wait as soon as a hook is published, or when
	// the window elapses.
	HandoffSignal HandoffMode = "signal"
	// HandoffFixed always waits the full window.
	HandoffFixed HandoffMode = "fixed"
)

// Options configures a Loader.
type Options struct {
	// Status receives lifecycle updates. Nil creates an indicator with no sinks.
	Status *status.Indicator

	// Metrics records load and frame activity. Nil records nothing.
	Metrics *metrics.Metrics

	// Host configures the import table.
	Host host.Config

	// Fetch configures module acquisition.
	Fetch fetch.Options

	// Hook is the export published after a returning entry point when the
	// module did not publish a hook itself.
	Hook string

	// HandoffMode selects how the handoff wait ends. Empty selects HandoffSignal.
	HandoffMode HandoffMode

	// EntryPoints are the candidate start exports, tried in order.
	EntryPoints []string

	// HandoffWait is the window for the module to publish its hook.
	HandoffWait time.Duration

	// MemoryLimitPages caps guest memory in 64KiB pages, at most
	// MaxMemoryPages. 0 keeps wazero's default.
	MemoryLimitPages uint32

	// EnableThreads enables the WebAssembly threads proposal.
	EnableThreads bool
}

func (o *Options) applyDefaults() {
	if o.Status == nil {
		o.Status = status.NewIndicator(status.DefaultKey)
	}
	if o.Hook == "" {
		o.Hook = DefaultHook
	}
	if o.HandoffMode == "" {
		o.HandoffMode = HandoffSignal
	}
	if len(o.EntryPoints) == 0 {
		o.EntryPoints = DefaultEntryPoints
	}
	if o.HandoffWait == 0 {
		o.HandoffWait = DefaultHandoffWait
	}
}

// Loader bootstraps one guest module: Load, Run, WaitHandoff, Animate.
type Loader struct {
	runtime   wazero.Runtime
	mod       api.Module
	fetcher   *fetch.Fetcher
	table     *host.Table
	slot      *hook.Slot
	status    *status.Indicator
	metrics   *metrics.Metrics
	exec      chan struct{}
	entryDone chan struct{}
	url       string
	opts      Options
	stats     stats
	hostOnce  sync.Once
	hostErr   error
	started   atomic.Bool
}

// New creates a loader with its own wazero runtime.
func New(ctx context.Context, opts Options) (*Loader, error) {
	opts.applyDefaults()
	if opts.HandoffWait < 0 {
		return nil, errors.InvalidInput(errors.PhaseConfig, "handoff wait must not be negative")
	}
	if opts.HandoffMode != HandoffSignal && opts.HandoffMode != HandoffFixed {
		return nil, errors.InvalidInput(errors.PhaseConfig, "unknown handoff mode "+string(opts.HandoffMode))
	}

	if opts.MemoryLimitPages > MaxMemoryPages {
		return nil, errors.InvalidInput(errors.PhaseConfig,
			fmt.Sprintf("memory limit %d pages exceeds %d", opts.MemoryLimitPages, MaxMemoryPages))
	}

	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if opts.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(opts.MemoryLimitPages)
	}
	if opts.EnableThreads {
		runtimeCfg = runtimeCfg.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
	}

	l := &Loader{
		runtime:   wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		fetcher:   fetch.New(opts.Fetch),
		slot:      hook.NewSlot(),
		status:    opts.Status,
		metrics:   opts.Metrics,
		exec:      make(chan struct{}, 1),
		entryDone: make(chan struct{}),
		opts:      opts,
	}
	l.table = host.NewTable(opts.Host, l.slot, l.bind)
	return l, nil
}

// Close releases the runtime, the guest module and the host modules.
func (l *Loader) Close(ctx context.Context) error {
	return l.runtime.Close(ctx)
}

// Slot returns the hook slot the module publishes into.
func (l *Loader) Slot() *hook.Slot {
	return l.slot
}

// Status returns the loader's status indicator.
func (l *Loader) Status() *status.Indicator {
	return l.status
}

// Module returns the instantiated guest, or nil before a successful Load.
func (l *Loader) Module() api.Module {
	return l.mod
}

// EntryDone is closed once the entry point has returned, or at once when
// the module has no entry point.
func (l *Loader) EntryDone() <-chan struct{} {
	return l.entryDone
}

// ensureHost registers the import table once per runtime.
func (l *Loader) ensureHost(ctx context.Context) error {
	l.hostOnce.Do(func() {
		l.hostErr = l.table.Instantiate(ctx, l.runtime)
	})
	return l.hostErr
}

// bind wraps a guest export so that every invocation holds the execution lock.
func (l *Loader) bind(mod api.Module, name string) (hook.Func, error) {
	fn, err := host.HookExport(mod, name)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		return l.call(ctx, fn)
	}, nil
}

// call runs fn while holding the execution lock. Guest code never runs on two
// goroutines at once.
func (l *Loader) call(ctx context.Context, fn api.Function) error {
	select {
	case l.exec <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.exec }()

	_, err := fn.Call(ctx)
	return err
}
