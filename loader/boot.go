package loader

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-boot/frame"
	"github.com/wippyai/wasm-boot/status"
)

// Boot runs the whole bootstrap sequence against rawURL: status loading,
// Load, status running, Run, WaitHandoff, Animate.
//
// A LoadError is caught here once: the status shows its message in the
// alert color, the error is logged, and Boot returns it without running
// anything else. Otherwise Boot returns whatever Animate returns.
func (l *Loader) Boot(ctx context.Context, rawURL string, sched frame.Scheduler) error {
	l.status.Loading(status.TextLoading)

	if err := l.Load(ctx, rawURL); err != nil {
		l.status.Fail(err)
		Logger().Error("failed to load module", zap.String("url", rawURL), zap.Error(err))
		return err
	}

	l.status.Running(status.TextRunning + " " + l.mod.Name())

	if err := l.Run(ctx); err != nil {
		return err
	}

	if !l.WaitHandoff(ctx) {
		Logger().Warn("no hook published within the handoff window; frames are skipped until one appears",
			zap.Duration("window", l.opts.HandoffWait))
	}

	return l.Animate(ctx, sched)
}
