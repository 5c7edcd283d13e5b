package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseFrame,
				Kind:   KindTrap,
				URL:    "file:///tmp/main.wasm",
				Export: "animate",
				Detail: "invocation",
			},
			contains: []string{"[frame]", "trap", "file:///tmp/main.wasm", "export animate", "invocation"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseFetch,
				Kind:  KindNetwork,
			},
			contains: []string{"[fetch]", "network"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseInstantiate,
				Kind:   KindCompile,
				Detail: "compile module",
				Cause:  errors.New("invalid magic number"),
			},
			contains: []string{"[instantiate]", "compile", "compile module", "caused by", "invalid magic number"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseFetch,
		Kind:  KindNetwork,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseFetch,
		Kind:  KindHTTPStatus,
		URL:   "http://example.com/main.wasm",
	}

	if !err.Is(&Error{Phase: PhaseFetch, Kind: KindHTTPStatus}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseInstantiate, Kind: KindHTTPStatus}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseFetch, Kind: KindNetwork}) {
		t.Error("Is should not match different kind")
	}

	target := &Error{Phase: PhaseFetch, Kind: KindHTTPStatus}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseFetch, KindHTTPStatus).
		URL("http://example.com/main.wasm").
		Export("animate").
		Value(404).
		Cause(cause).
		Detail("unexpected response %s", "404 Not Found").
		Build()

	if err.Phase != PhaseFetch {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseFetch)
	}
	if err.Kind != KindHTTPStatus {
		t.Errorf("Kind = %v, want %v", err.Kind, KindHTTPStatus)
	}
	if err.URL != "http://example.com/main.wasm" {
		t.Errorf("URL = %v", err.URL)
	}
	if err.Export != "animate" {
		t.Errorf("Export = %v, want 'animate'", err.Export)
	}
	if err.Value != 404 {
		t.Errorf("Value = %v, want 404", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "unexpected response 404 Not Found" {
		t.Errorf("Detail = %v", err.Detail)
	}
}

func TestIsLoadError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"fetch", Fetch(KindNetwork, "u", nil, "dial"), true},
		{"http status", HTTPStatus("u", 404, "404 Not Found"), true},
		{"compile", Compile("u", errors.New("bad magic")), true},
		{"instantiation", Instantiation("u", errors.New("missing import")), true},
		{"wrapped", fmt.Errorf("boot: %w", TooLarge("u", 10)), true},
		{"frame trap", Trap(PhaseFrame, "animate", errors.New("unreachable")), false},
		{"config", InvalidInput(PhaseConfig, "fps must be positive"), false},
		{"plain", errors.New("plain"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsLoadError(tt.err); got != tt.want {
				t.Errorf("IsLoadError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("HTTPStatus", func(t *testing.T) {
		err := HTTPStatus("http://x/main.wasm", 404, "404 Not Found")
		if err.Kind != KindHTTPStatus {
			t.Errorf("Kind = %v, want %v", err.Kind, KindHTTPStatus)
		}
		if err.Value != 404 {
			t.Errorf("Value = %v, want 404", err.Value)
		}
		if !strings.Contains(err.Error(), "404 Not Found") {
			t.Errorf("message %q should contain status", err.Error())
		}
	})

	t.Run("TooLarge", func(t *testing.T) {
		err := TooLarge("u", 1024)
		if err.Kind != KindTooLarge {
			t.Errorf("Kind = %v, want %v", err.Kind, KindTooLarge)
		}
		if !strings.Contains(err.Detail, "1024") {
			t.Errorf("Detail = %v, should contain limit", err.Detail)
		}
	})

	t.Run("Signature", func(t *testing.T) {
		err := Signature(PhaseHost, "animate", "hook must take no parameters")
		if err.Kind != KindSignature || err.Export != "animate" {
			t.Errorf("unexpected error %+v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		err := NotFound(PhaseHost, "export", "tick")
		if err.Kind != KindNotFound {
			t.Errorf("Kind = %v, want %v", err.Kind, KindNotFound)
		}
		if !strings.Contains(err.Detail, `"tick"`) {
			t.Errorf("Detail = %v", err.Detail)
		}
	})

	t.Run("NotInitialized", func(t *testing.T) {
		err := NotInitialized(PhaseStart, "module")
		if err.Kind != KindNotInitialized {
			t.Errorf("Kind = %v, want %v", err.Kind, KindNotInitialized)
		}
	})
}

func TestMissingImportsError(t *testing.T) {
	t.Run("single import", func(t *testing.T) {
		err := NewMissingImportsError([]string{"env.draw_rect"})
		if len(err.Imports) != 1 {
			t.Fatalf("expected 1 import, got %d", len(err.Imports))
		}
		if err.Imports[0].Module != "env" {
			t.Errorf("module = %q, want env", err.Imports[0].Module)
		}
		if err.Imports[0].Function != "draw_rect" {
			t.Errorf("function = %q, want draw_rect", err.Imports[0].Function)
		}
	})

	t.Run("multiple modules grouped", func(t *testing.T) {
		err := NewMissingImportsError([]string{
			"env.draw_rect",
			"gojs.runtime.wasmExit",
			"env.clear",
		})
		msg := err.Error()
		if !strings.Contains(msg, "missing 3 host function(s)") {
			t.Errorf("error should contain count, got: %s", msg)
		}
		if !strings.Contains(msg, "env:\n    - clear\n    - draw_rect") {
			t.Errorf("error should group and sort by module, got: %s", msg)
		}
		if !strings.Contains(msg, "gojs:\n    - runtime.wasmExit") {
			t.Errorf("error should keep dotted function names, got: %s", msg)
		}
	})

	t.Run("empty imports", func(t *testing.T) {
		err := NewMissingImportsError([]string{})
		if !strings.Contains(err.Error(), "no imports specified") {
			t.Errorf("empty error should have specific message, got: %s", err.Error())
		}
	})

	t.Run("errors.Is", func(t *testing.T) {
		err := NewMissingImportsError([]string{"env.fn"})
		if !errors.Is(err, &MissingImportsError{}) {
			t.Error("errors.Is should match MissingImportsError")
		}
	})
}
