// Package errors provides structured error types for the wasm bootstrap loader.
//
// Errors are categorized by Phase (which bootstrap step failed) and Kind
// (error category). The Error type carries the resource URL, the export
// involved and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseFetch, errors.KindHTTPStatus).
//		URL("https://example.com/main.wasm").
//		Value(404).
//		Detail("unexpected response %s", "404 Not Found").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Compile(url, cause)
//	err := errors.Trap(errors.PhaseFrame, "animate", cause)
//
// A LoadError is any Error in the fetch or instantiate phase; IsLoadError
// detects one anywhere in a wrap chain. All errors implement the standard
// error interface and support errors.Is/As.
package errors
