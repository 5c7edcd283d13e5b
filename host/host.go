package host

import (
	"context"
	"crypto/rand"
	"io"
	"sort"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-boot/errors"
	"github.com/wippyai/wasm-boot/hook"
)

// DefaultModule is the import module name of the loader's host functions.
const DefaultModule = "env"

// Host function names exported under the host module.
const (
	FuncPublishHook = "publish_hook"
	FuncClearHook   = "clear_hook"
	FuncLog         = "log"
	FuncNowMs       = "now_ms"
)

// Functions lists the host functions in export order.
var Functions = []string{FuncPublishHook, FuncClearHook, FuncLog, FuncNowMs}

// Binder turns a named guest export into a callable hook.
type Binder func(mod api.Module, export string) (hook.Func, error)

// Config configures the import table.
type Config struct {
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
	Env    map[string]string
	// Module is the host module name. Empty selects DefaultModule.
	Module string
	Args   []string
}

// Table is the import object handed to a guest: the loader's host module
// plus WASI preview1.
type Table struct {
	start  time.Time
	slot   *hook.Slot
	bind   Binder
	module string
	cfg    Config
}

// NewTable creates an import table publishing into slot. bind wraps an
// export before it is published.
func NewTable(cfg Config, slot *hook.Slot, bind Binder) *Table {
	name := cfg.Module
	if name == "" {
		name = DefaultModule
	}
	return &Table{
		start:  time.Now(),
		slot:   slot,
		bind:   bind,
		module: name,
		cfg:    cfg,
	}
}

// Module returns the host module name.
func (t *Table) Module() string {
	return t.module
}

// Instantiate registers the host module and WASI preview1 in r. It must run
// before the guest is instantiated.
func (t *Table) Instantiate(ctx context.Context, r wazero.Runtime) error {
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindInstantiation, err, "instantiate "+wasi_snapshot_preview1.ModuleName)
	}

	_, err := r.NewHostModuleBuilder(t.module).
		NewFunctionBuilder().
		WithFunc(t.publishHook).
		WithParameterNames("name_ptr", "name_len").
		Export(FuncPublishHook).
		NewFunctionBuilder().
		WithFunc(t.clearHook).
		Export(FuncClearHook).
		NewFunctionBuilder().
		WithFunc(t.log).
		WithParameterNames("msg_ptr", "msg_len").
		Export(FuncLog).
		NewFunctionBuilder().
		WithFunc(t.nowMs).
		Export(FuncNowMs).
		Instantiate(ctx)
	if err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindInstantiation, err, "instantiate "+t.module)
	}
	return nil
}

// ModuleConfig returns the guest module configuration. Start functions are
// cleared: the loader invokes the entry point itself.
func (t *Table) ModuleConfig(name string) wazero.ModuleConfig {
	cfg := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions().
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithRandSource(rand.Reader)

	if len(t.cfg.Args) > 0 {
		cfg = cfg.WithArgs(t.cfg.Args...)
	}

	keys := make([]string, 0, len(t.cfg.Env))
	for k := range t.cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cfg = cfg.WithEnv(k, t.cfg.Env[k])
	}

	if t.cfg.Stdout != nil {
		cfg = cfg.WithStdout(t.cfg.Stdout)
	}
	if t.cfg.Stderr != nil {
		cfg = cfg.WithStderr(t.cfg.Stderr)
	}
	if t.cfg.Stdin != nil {
		cfg = cfg.WithStdin(t.cfg.Stdin)
	}
	return cfg
}

// publishHook stores the export named by the guest string as the frame hook.
// Failures panic, which wazero surfaces to the guest's caller as an error.
func (t *Table) publishHook(_ context.Context, mod api.Module, ptr, size uint32) {
	name, err := readString(mod, ptr, size)
	if err != nil {
		panic(err)
	}
	fn, err := t.bind(mod, name)
	if err != nil {
		panic(err)
	}
	t.slot.Publish(name, fn)
	Logger().Debug("hook published", zap.String("module", mod.Name()), zap.String("export", name))
}

func (t *Table) clearHook(_ context.Context, mod api.Module) {
	t.slot.Clear()
	Logger().Debug("hook cleared", zap.String("module", mod.Name()))
}

func (t *Table) log(_ context.Context, mod api.Module, ptr, size uint32) {
	msg, err := readString(mod, ptr, size)
	if err != nil {
		panic(err)
	}
	Logger().Info(msg, zap.String("module", mod.Name()))
}

func (t *Table) nowMs() float64 {
	return float64(time.Since(t.start)) / float64(time.Millisecond)
}

func readString(mod api.Module, ptr, size uint32) (string, error) {
	mem := mod.Memory()
	if mem == nil {
		return "", errors.New(errors.PhaseHost, errors.KindNotInitialized).
			Detail("module %q has no memory", mod.Name()).
			Build()
	}
	b, ok := mem.Read(ptr, size)
	if !ok {
		return "", errors.New(errors.PhaseHost, errors.KindInvalidInput).
			Value(ptr).
			Detail("string [%d, %d) out of memory bounds (size %d)", ptr, uint64(ptr)+uint64(size), mem.Size()).
			Build()
	}
	return string(b), nil
}

// HookExport resolves name on mod and checks it fits the hook contract:
// no parameters. Results are allowed and discarded.
func HookExport(mod api.Module, name string) (api.Function, error) {
	fn := mod.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseHost, "export", name)
	}
	if params := fn.Definition().ParamTypes(); len(params) != 0 {
		return nil, errors.Signature(errors.PhaseHost, name, "hook must take no parameters")
	}
	return fn, nil
}
