package host

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/wasm-boot/hook"
	"github.com/wippyai/wasm-boot/internal/wasmbin"
)

var (
	i32 = []wasmbin.ValType{wasmbin.I32}
	f64 = []wasmbin.ValType{wasmbin.F64}
)

// guest builds a module importing the env table, with "animate" at
// offset 0, "missing" at 16 and "hello" at 32 in memory.
func guest(t *testing.T) []byte {
	t.Helper()
	m := wasmbin.New()
	publish := m.ImportFunc(DefaultModule, FuncPublishHook, []wasmbin.ValType{wasmbin.I32, wasmbin.I32}, nil)
	clearHook := m.ImportFunc(DefaultModule, FuncClearHook, nil, nil)
	logf := m.ImportFunc(DefaultModule, FuncLog, []wasmbin.ValType{wasmbin.I32, wasmbin.I32}, nil)
	now := m.ImportFunc(DefaultModule, FuncNowMs, nil, f64)

	m.Memory(1)
	m.Data(0, []byte("animate"))
	m.Data(16, []byte("missing"))
	m.Data(32, []byte("hello"))
	m.Data(48, []byte("withargs"))

	frames := m.GlobalI32(true, 0)
	m.ExportFunc("publish", m.Func(nil, nil, nil, wasmbin.I32Const(0), wasmbin.I32Const(7), wasmbin.Call(publish)))
	m.ExportFunc("publish_missing", m.Func(nil, nil, nil, wasmbin.I32Const(16), wasmbin.I32Const(7), wasmbin.Call(publish)))
	m.ExportFunc("publish_withargs", m.Func(nil, nil, nil, wasmbin.I32Const(48), wasmbin.I32Const(8), wasmbin.Call(publish)))
	m.ExportFunc("publish_oob", m.Func(nil, nil, nil, wasmbin.I32Const(65530), wasmbin.I32Const(64), wasmbin.Call(publish)))
	m.ExportFunc("clear", m.Func(nil, nil, nil, wasmbin.Call(clearHook)))
	m.ExportFunc("hello", m.Func(nil, nil, nil, wasmbin.I32Const(32), wasmbin.I32Const(5), wasmbin.Call(logf)))
	m.ExportFunc("now", m.Func(nil, f64, nil, wasmbin.Call(now)))
	m.ExportFunc("animate", m.Func(nil, nil, nil, wasmbin.Increment(frames)))
	m.ExportFunc("withargs", m.Func(i32, nil, nil))
	m.ExportMemory("memory")
	m.ExportGlobal("frames", frames)
	return m.Bytes()
}

func setup(t *testing.T, cfg Config) (api.Module, *hook.Slot) {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { r.Close(ctx) })

	slot := hook.NewSlot()
	bind := func(mod api.Module, name string) (hook.Func, error) {
		fn, err := HookExport(mod, name)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			_, err := fn.Call(ctx)
			return err
		}, nil
	}
	table := NewTable(cfg, slot, bind)
	require.Equal(t, DefaultModule, table.Module())
	require.NoError(t, table.Instantiate(ctx, r))

	mod, err := r.InstantiateWithConfig(ctx, guest(t), table.ModuleConfig("guest"))
	require.NoError(t, err)
	return mod, slot
}

func call(t *testing.T, mod api.Module, name string) ([]uint64, error) {
	t.Helper()
	return mod.ExportedFunction(name).Call(context.Background())
}

func TestTable_PublishHook(t *testing.T) {
	mod, slot := setup(t, Config{})

	_, err := call(t, mod, "publish")
	require.NoError(t, err)

	select {
	case <-slot.Ready():
	default:
		t.Fatal("ready not fired")
	}

	fn, name, ok := slot.Load()
	require.True(t, ok)
	require.Equal(t, "animate", name)

	for i := 0; i < 3; i++ {
		require.NoError(t, fn(context.Background()))
	}
	require.Equal(t, uint32(3), api.DecodeU32(mod.ExportedGlobal("frames").Get()))

	_, err = call(t, mod, "clear")
	require.NoError(t, err)
	require.False(t, slot.Published())
}

func TestTable_PublishHookErrors(t *testing.T) {
	tests := []struct {
		export string
		want   string
	}{
		{"publish_missing", `export "missing" not found`},
		{"publish_withargs", "hook must take no parameters"},
		{"publish_oob", "out of memory bounds"},
	}

	for _, tt := range tests {
		t.Run(tt.export, func(t *testing.T) {
			mod, slot := setup(t, Config{})
			_, err := call(t, mod, tt.export)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
			require.False(t, slot.Published())
		})
	}
}

func TestTable_Log(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := Logger()
	SetLogger(zap.New(core))
	defer SetLogger(prev)

	mod, _ := setup(t, Config{})
	_, err := call(t, mod, "hello")
	require.NoError(t, err)

	entries := logs.FilterMessage("hello").AllUntimed()
	require.Len(t, entries, 1)
	require.Equal(t, "guest", entries[0].ContextMap()["module"])
}

func TestTable_NowMs(t *testing.T) {
	mod, _ := setup(t, Config{})

	res, err := call(t, mod, "now")
	require.NoError(t, err)
	first := api.DecodeF64(res[0])
	require.GreaterOrEqual(t, first, 0.0)

	time.Sleep(5 * time.Millisecond)
	res, err = call(t, mod, "now")
	require.NoError(t, err)
	require.Greater(t, api.DecodeF64(res[0]), first)
}

func TestTable_CustomModuleName(t *testing.T) {
	table := NewTable(Config{Module: "loader"}, hook.NewSlot(), nil)
	require.Equal(t, "loader", table.Module())
}

func TestTable_ModuleConfigDoesNotStart(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	var out bytes.Buffer
	table := NewTable(Config{Stdout: &out, Args: []string{"guest"}, Env: map[string]string{"B": "2", "A": "1"}}, hook.NewSlot(), nil)
	require.NoError(t, table.Instantiate(ctx, r))

	m := wasmbin.New()
	m.ExportFunc("_start", m.Func(nil, nil, nil, wasmbin.Op(wasmbin.OpUnreachable)))

	// _start traps, so instantiation only succeeds if it is not run
	mod, err := r.InstantiateWithConfig(ctx, m.Bytes(), table.ModuleConfig("cmd"))
	require.NoError(t, err)
	require.Equal(t, "cmd", mod.Name())
}

func TestHookExport(t *testing.T) {
	mod, _ := setup(t, Config{})

	fn, err := HookExport(mod, "animate")
	require.NoError(t, err)
	require.NotNil(t, fn)

	_, err = HookExport(mod, "nope")
	require.ErrorContains(t, err, "not_found")

	_, err = HookExport(mod, "withargs")
	require.ErrorContains(t, err, "signature")

	// results are allowed
	_, err = HookExport(mod, "now")
	require.NoError(t, err)
}
