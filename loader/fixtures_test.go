package loader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-boot/host"
	"github.com/wippyai/wasm-boot/internal/wasmbin"
)

var i32x2 = []wasmbin.ValType{wasmbin.I32, wasmbin.I32}

const wasiModule = "wasi_snapshot_preview1"

// guestSpec describes a fixture module. Every fixture exports the mutable
// globals "starts" (entry point runs) and "frames" (hook runs).
type guestSpec struct {
	entry       string // entry export name, "" for none
	publish     bool   // entry calls env.publish_hook("animate")
	trapHook    bool   // animate traps
	trapEntry   bool   // entry traps after counting
	noHook      bool   // no animate export
	extraImport string // additional env import, unresolvable
	wasi        bool   // imports fd_write and proc_exit from WASI
}

func buildGuest(s guestSpec) []byte {
	m := wasmbin.New()

	var publish uint32
	if s.publish {
		publish = m.ImportFunc(host.DefaultModule, host.FuncPublishHook, i32x2, nil)
	}
	if s.extraImport != "" {
		m.ImportFunc(host.DefaultModule, s.extraImport, nil, nil)
	}
	if s.wasi {
		i32 := []wasmbin.ValType{wasmbin.I32}
		m.ImportFunc(wasiModule, "fd_write", []wasmbin.ValType{wasmbin.I32, wasmbin.I32, wasmbin.I32, wasmbin.I32}, i32)
		m.ImportFunc(wasiModule, "proc_exit", i32, nil)
	}

	m.Memory(1)
	m.Data(0, []byte("animate"))
	m.ExportMemory("memory")

	starts := m.GlobalI32(true, 0)
	frames := m.GlobalI32(true, 0)
	m.ExportGlobal("starts", starts)
	m.ExportGlobal("frames", frames)

	if s.entry != "" {
		body := [][]byte{wasmbin.Increment(starts)}
		if s.publish {
			body = append(body, wasmbin.I32Const(0), wasmbin.I32Const(7), wasmbin.Call(publish))
		}
		if s.trapEntry {
			body = append(body, wasmbin.Op(wasmbin.OpUnreachable))
		}
		m.ExportFunc(s.entry, m.Func(nil, nil, nil, body...))
	}

	if !s.noHook {
		body := [][]byte{wasmbin.Increment(frames)}
		if s.trapHook {
			body = append(body, wasmbin.Op(wasmbin.OpUnreachable))
		}
		m.ExportFunc("animate", m.Func(nil, nil, nil, body...))
	}

	return m.Bytes()
}

// serve hosts fixtures by path. Unknown paths answer 404.
func serve(t *testing.T, files map[string][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/wasm")
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newLoader(t *testing.T, opts Options) *Loader {
	t.Helper()
	ctx := context.Background()
	l, err := New(ctx, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close(ctx) })
	return l
}

func global(t *testing.T, l *Loader, name string) uint32 {
	t.Helper()
	require.NotNil(t, l.Module())
	g := l.Module().ExportedGlobal(name)
	require.NotNil(t, g, "global %s", name)
	return api.DecodeU32(g.Get())
}
