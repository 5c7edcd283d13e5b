package wasmboot

import (
	"context"

	"github.com/wippyai/wasm-boot/frame"
	"github.com/wippyai/wasm-boot/loader"
)

// Options configures Boot.
type Options struct {
	loader.Options

	// FPS is the frame rate of the animate loop. 0 selects frame.DefaultFPS.
	// Ignored when Scheduler is set.
	FPS int

	// Scheduler drives the animate loop in place of a ticker.
	Scheduler frame.Scheduler
}

// Boot creates a loader, boots the module at rawURL and drives its hook
// until ctx is done or the loop fails. The loader is closed on return.
func Boot(ctx context.Context, rawURL string, opts Options) error {
	l, err := loader.New(ctx, opts.Options)
	if err != nil {
		return err
	}
	defer l.Close(context.Background())

	sched := opts.Scheduler
	if sched == nil {
		fps := opts.FPS
		if fps <= 0 {
			fps = frame.DefaultFPS
		}
		t := frame.NewTicker(fps)
		defer t.Stop()
		sched = t
	}
	return l.Boot(ctx, rawURL, sched)
}
