package wasmboot

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wippyai/wasm-boot/errors"
	"github.com/wippyai/wasm-boot/frame"
	"github.com/wippyai/wasm-boot/status"
)

func TestBoot_LoadError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	ind := status.NewIndicator(status.DefaultKey)
	opts := Options{}
	opts.Status = ind

	err := Boot(context.Background(), srv.URL+"/main.wasm", opts)
	if !errors.IsLoadError(err) {
		t.Fatalf("expected load error, got %v", err)
	}
	if got := ind.Current(); got.Phase != status.PhaseError || got.Color != status.ColorError {
		t.Fatalf("unexpected status: %+v", got)
	}
}

func TestBoot_ContextDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// empty module: magic and version only
		_, _ = w.Write([]byte("\x00asm\x01\x00\x00\x00"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	opts := Options{FPS: 200}
	opts.HandoffWait = 5 * time.Millisecond

	err := Boot(ctx, srv.URL+"/empty.wasm", opts)
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestBoot_Scheduler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("\x00asm\x01\x00\x00\x00"))
	}))
	defer srv.Close()

	sched := frame.NewManual(time.Millisecond)
	sched.Stop()

	opts := Options{Scheduler: sched}
	opts.HandoffWait = time.Millisecond

	err := Boot(context.Background(), srv.URL+"/empty.wasm", opts)
	if !stderrors.Is(err, frame.ErrStopped) {
		t.Fatalf("expected stopped scheduler, got %v", err)
	}
}
