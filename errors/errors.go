package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// Phase indicates which bootstrap step produced the error
type Phase string

const (
	PhaseFetch       Phase = "fetch"       // resource acquisition
	PhaseInstantiate Phase = "instantiate" // compile, link and instantiate
	PhaseStart       Phase = "start"       // entry point invocation
	PhaseHost        Phase = "host"        // host import calls
	PhaseFrame       Phase = "frame"       // per-frame hook invocation
	PhaseConfig      Phase = "config"      // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindNetwork        Kind = "network"
	KindHTTPStatus     Kind = "http_status"
	KindNotFound       Kind = "not_found"
	KindInvalidData    Kind = "invalid_data"
	KindTooLarge       Kind = "too_large"
	KindUnsupported    Kind = "unsupported"
	KindInvalidInput   Kind = "invalid_input"
	KindCompile        Kind = "compile"
	KindMissingImport  Kind = "missing_import"
	KindInstantiation  Kind = "instantiation"
	KindSignature      Kind = "signature"
	KindTrap           Kind = "trap"
	KindNotInitialized Kind = "not_initialized"
)

// Error is the structured error type used by every package of the loader
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	URL    string
	Export string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.URL != "" {
		b.WriteString(" at ")
		b.WriteString(e.URL)
	}

	if e.Export != "" {
		b.WriteString(": export ")
		b.WriteString(e.Export)
	}

	if e.Detail != "" {
		if e.Export != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// URL sets the resource the error refers to
func (b *Builder) URL(u string) *Builder {
	b.err.URL = u
	return b
}

// Export sets the module export the error refers to
func (b *Builder) Export(name string) *Builder {
	b.err.Export = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// IsLoadError reports whether err is a LoadError: any failure while fetching
// or instantiating the module. Load errors are terminal for a boot.
func IsLoadError(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Phase == PhaseFetch || e.Phase == PhaseInstantiate
}

// Fetch creates a fetch-phase load error
func Fetch(kind Kind, url string, cause error, detail string) *Error {
	return &Error{
		Phase:  PhaseFetch,
		Kind:   kind,
		URL:    url,
		Detail: detail,
		Cause:  cause,
	}
}

// HTTPStatus creates a load error for a non-success HTTP response
func HTTPStatus(url string, code int, status string) *Error {
	return &Error{
		Phase:  PhaseFetch,
		Kind:   KindHTTPStatus,
		URL:    url,
		Detail: fmt.Sprintf("unexpected response %s", status),
		Value:  code,
	}
}

// TooLarge creates a load error for a body exceeding the configured limit
func TooLarge(url string, limit int64) *Error {
	return &Error{
		Phase:  PhaseFetch,
		Kind:   KindTooLarge,
		URL:    url,
		Detail: fmt.Sprintf("module exceeds %d bytes", limit),
		Value:  limit,
	}
}

// Compile creates a load error for a binary that fails validation
func Compile(url string, cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindCompile,
		URL:    url,
		Detail: "compile module",
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(url string, cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInstantiation,
		URL:    url,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Trap wraps a failure raised while the guest was executing
func Trap(phase Phase, export string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTrap,
		Export: export,
		Detail: "invocation",
		Cause:  cause,
	}
}

// Signature creates an error for an export whose type does not fit its role
func Signature(phase Phase, export, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindSignature,
		Export: export,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// NotInitialized creates a not-initialized error for a missing module
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingImport represents a single unresolved import
type MissingImport struct {
	Module   string // e.g., "env"
	Function string // e.g., "publish_hook"
}

// MissingImportsError is returned when the module imports functions the
// import table does not provide
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError creates an error from a list of "module.function" strings
func NewMissingImportsError(imports []string) *MissingImportsError {
	result := &MissingImportsError{
		Imports: make([]MissingImport, 0, len(imports)),
	}
	for _, imp := range imports {
		mod, fn := parseImportKey(imp)
		result.Imports = append(result.Imports, MissingImport{
			Module:   mod,
			Function: fn,
		})
	}
	return result
}

func parseImportKey(key string) (module, function string) {
	mod, fn, found := strings.Cut(key, ".")
	if found {
		return mod, fn
	}
	return key, ""
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[instantiate] missing_import: no imports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("missing %d host function(s):\n", len(e.Imports)))

	byMod := make(map[string][]string)
	var modOrder []string
	for _, imp := range e.Imports {
		if _, exists := byMod[imp.Module]; !exists {
			modOrder = append(modOrder, imp.Module)
		}
		byMod[imp.Module] = append(byMod[imp.Module], imp.Function)
	}

	for _, mod := range modOrder {
		fns := byMod[mod]
		sort.Strings(fns)
		b.WriteString("\n  ")
		b.WriteString(mod)
		b.WriteString(":\n")
		for _, fn := range fns {
			b.WriteString("    - ")
			b.WriteString(fn)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingImportsError) Is(target error) bool {
	_, ok := target.(*MissingImportsError)
	return ok
}
