// Package host provides the import table a guest module is instantiated
// against.
//
// The table has two parts. The loader's own host module (named "env" by
// default) lets the guest publish its per-frame hook:
//
//	publish_hook(name_ptr, name_len i32)  publish the named export as the hook
//	clear_hook()                          empty the hook slot
//	log(msg_ptr, msg_len i32)             log guest text
//	now_ms() f64                          milliseconds since the table was created
//
// WASI preview1 comes from wazero's wasi_snapshot_preview1, configured with
// the args, environment and stdio of Config.
//
// A guest written in Go (GOOS=wasip1, -buildmode=c-shared) publishes its
// hook like this:
//
//	//go:wasmimport env publish_hook
//	func publishHook(ptr unsafe.Pointer, size uint32)
//
//	//go:wasmexport animate
//	func animate() { ... }
//
//	func init() {
//	    name := "animate"
//	    publishHook(unsafe.Pointer(unsafe.StringData(name)), uint32(len(name)))
//	}
package host
