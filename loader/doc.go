// Package loader bootstraps a WebAssembly module and drives its per-frame
// hook.
//
// The sequence is strictly ordered: instantiation precedes the entry point
// invocation, which precedes the handoff wait, which precedes the first
// frame.
//
//	l, err := loader.New(ctx, loader.Options{Status: ind})
//	if err != nil {
//	    return err
//	}
//	defer l.Close(ctx)
//
//	sched := frame.NewTicker(60)
//	defer sched.Stop()
//
//	err = l.Boot(ctx, "https://example.com/main.wasm", sched)
//
// Boot is Load, Run, WaitHandoff and Animate with status updates in
// between; the steps can also be called one by one.
//
// # Hooks
//
// A module publishes its hook either by calling the host import
// env.publish_hook with the export's name, or, for entry points that
// return, by exporting a function named Options.Hook ("animate"). The
// handoff wait does not synchronize with the module: it pauses for a short
// window, ending early in HandoffSignal mode when a hook is published. A
// module slower than the window simply misses the first frames.
//
// # Execution
//
// Guest code runs on one goroutine at a time. The entry point and each hook
// invocation take the same execution lock, so a frame waits for a running
// entry point to return.
//
// # Termination
//
// Animate never returns on its own. Cancel its context, stop its scheduler,
// or let the hook trap.
package loader
