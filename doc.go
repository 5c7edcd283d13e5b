// Package wasmboot bootstraps a WebAssembly module fetched by URL and drives
// a per-frame hook the module publishes back to the host.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	wasmboot/            Root package with the one-call Boot entry point
//	├── loader/          Load, entry point invocation, handoff wait, animate loop
//	├── fetch/           Module acquisition over http(s) and the filesystem
//	├── host/            The env import module and WASI preview1 wiring
//	├── hook/            The published hook slot and its readiness signal
//	├── frame/           Frame schedulers and the FPS meter
//	├── status/          The status indicator and its sinks
//	├── metrics/         Prometheus collectors for loads and frames
//	├── config/          File and environment configuration
//	├── statusserver/    HTTP status, metrics and health endpoints
//	└── errors/          Structured error types with phase and kind
//
// # Quick Start
//
//	err := wasmboot.Boot(ctx, "https://example.com/main.wasm", wasmboot.Options{})
//	if errors.IsLoadError(err) {
//	    // fetch or instantiation failed; the status shows the message
//	}
//
// Boot returns only on failure or when ctx is done.
//
// # Guest Contract
//
// The guest imports env.publish_hook(ptr, len) to name the export the host
// calls once per frame, env.clear_hook() to stop those calls, env.log(ptr,
// len) for host-side logging and env.now_ms() for a monotonic clock. A guest
// whose entry point returns may instead export a function named "animate".
//
// # Thread Safety
//
// A guest never runs on two goroutines at once. The entry point and every
// hook invocation share one execution lock.
package wasmboot
