package loader

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-boot/errors"
)

// Run invokes the module's entry point on its own goroutine and returns
// without waiting for it. A module without an entry point is valid.
//
// When the entry point returns and no hook has been published, the export
// named by Options.Hook is published if the module has one. Entry point
// failures are logged and otherwise ignored.
func (l *Loader) Run(ctx context.Context) error {
	if l.mod == nil {
		return errors.NotInitialized(errors.PhaseStart, "module")
	}
	if !l.started.CompareAndSwap(false, true) {
		return errors.InvalidInput(errors.PhaseStart, "entry point already invoked")
	}

	name, fn := l.entryPoint()
	if fn == nil {
		Logger().Warn("module has no entry point",
			zap.String("module", l.mod.Name()),
			zap.Strings("candidates", l.opts.EntryPoints))
		l.publishFallback()
		close(l.entryDone)
		return nil
	}

	go func() {
		defer close(l.entryDone)

		start := time.Now()
		err := l.call(ctx, fn)
		if exitCode, ok := exitStatus(err); ok && exitCode == 0 {
			err = nil
		}
		if err != nil {
			Logger().Error("entry point failed",
				zap.String("module", l.mod.Name()),
				zap.String("entry", name),
				zap.Error(errors.Trap(errors.PhaseStart, name, err)))
			return
		}

		Logger().Debug("entry point returned",
			zap.String("module", l.mod.Name()),
			zap.String("entry", name),
			zap.Duration("took", time.Since(start)))
		l.publishFallback()
	}()

	return nil
}

// entryPoint returns the first candidate the module exports with a
// parameterless signature.
func (l *Loader) entryPoint() (string, api.Function) {
	for _, name := range l.opts.EntryPoints {
		fn := l.mod.ExportedFunction(name)
		if fn == nil {
			continue
		}
		if len(fn.Definition().ParamTypes()) != 0 {
			Logger().Warn("entry point candidate takes parameters; skipped",
				zap.String("entry", name))
			continue
		}
		return name, fn
	}
	return "", nil
}

// publishFallback publishes Options.Hook when the slot is still empty.
func (l *Loader) publishFallback() {
	if l.slot.Published() {
		return
	}
	if l.mod.ExportedFunction(l.opts.Hook) == nil {
		return
	}
	fn, err := l.bind(l.mod, l.opts.Hook)
	if err != nil {
		Logger().Warn("hook export unusable", zap.String("export", l.opts.Hook), zap.Error(err))
		return
	}
	l.slot.Publish(l.opts.Hook, fn)
	Logger().Debug("hook published from export", zap.String("export", l.opts.Hook))
}

func exitStatus(err error) (uint32, bool) {
	var exitErr *sys.ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.ExitCode(), true
	}
	return 0, false
}

// WaitHandoff pauses for the handoff window so that the module can publish
// its hook, and reports whether a hook is present when the pause ends.
//
// The pause is best-effort. In HandoffSignal mode it ends early once a hook
// is published; in HandoffFixed mode it always lasts the full window. A
// module slower than the window is not an error: the animate loop skips
// frames until the hook appears.
func (l *Loader) WaitHandoff(ctx context.Context) bool {
	timer := time.NewTimer(l.opts.HandoffWait)
	defer timer.Stop()

	var ready <-chan struct{}
	if l.opts.HandoffMode == HandoffSignal {
		ready = l.slot.Ready()
	}

	select {
	case <-ready:
	case <-timer.C:
	case <-ctx.Done():
	}

	present := l.slot.Published()
	Logger().Debug("handoff wait ended",
		zap.Bool("hook_present", present),
		zap.String("hook", l.slot.Name()),
		zap.String("mode", string(l.opts.HandoffMode)))
	return present
}
