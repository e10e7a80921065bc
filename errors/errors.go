package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseModule     Phase = "module"     // module loading and export lookup
	PhaseMemory     Phase = "memory"     // linear-memory access and allocation
	PhaseCompress   Phase = "compress"   // one-shot or streaming compression
	PhaseDecompress Phase = "decompress" // one-shot or streaming decompression
	PhaseSession    Phase = "session"    // session lifecycle
	PhaseStream     Phase = "stream"     // stream adapter
)

// Kind categorizes the error
type Kind string

const (
	KindAllocation    Kind = "allocation"     // module memory exhausted or invalid size
	KindEncode        Kind = "encode"         // compression failed
	KindDecode        Kind = "decode"         // malformed, truncated, or checksum-bad input
	KindSessionState  Kind = "session_state"  // operation on a destroyed or racing session
	KindRetryExceeded Kind = "retry_exceeded" // second sized attempt still insufficient
	KindOutOfBounds   Kind = "out_of_bounds"  // access past linear memory or an arena
	KindNotFound      Kind = "not_found"      // export missing from the module
	KindUnsupported   Kind = "unsupported"    // capability absent from the ABI
	KindInvalidInput  Kind = "invalid_input"
)

// Error is the structured error type used throughout the library
type Error struct {
	Cause     error
	Phase     Phase
	Kind      Kind
	Algorithm string
	Export    string
	Detail    string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Algorithm != "" {
		b.WriteString(" (")
		b.WriteString(e.Algorithm)
		b.WriteByte(')')
	}

	if e.Export != "" {
		b.WriteString(" export ")
		b.WriteString(e.Export)
	}

	if e.Detail != "" {
		b.WriteString(": ")
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

// Is reports whether target matches this error by phase and kind
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// IsKind reports whether err or anything it wraps carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind == kind
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

// Algorithm sets the codec name
func (b *Builder) Algorithm(a string) *Builder {
	b.err.Algorithm = a
	return b
}

// Export sets the module export involved
func (b *Builder) Export(name string) *Builder {
	b.err.Export = name
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

// Allocation reports a failed or invalid module memory allocation.
func Allocation(phase Phase, size uint32, cause error) *Error {
	return New(phase, KindAllocation).
		Cause(cause).
		Detail("allocate %d bytes", size).
		Build()
}

// Encode reports an unrecoverable compression failure.
func Encode(algorithm, export, detail string) *Error {
	return New(PhaseCompress, KindEncode).
		Algorithm(algorithm).
		Export(export).
		Detail(detail).
		Build()
}

// Decode reports an unrecoverable decompression failure. No partial output
// accompanies it.
func Decode(algorithm, export, detail string) *Error {
	return New(PhaseDecompress, KindDecode).
		Algorithm(algorithm).
		Export(export).
		Detail(detail).
		Build()
}

// SessionState reports an operation attempted in the wrong session state.
func SessionState(detail string, args ...any) *Error {
	return New(PhaseSession, KindSessionState).Detail(detail, args...).Build()
}

// RetryExceeded reports that the single bounded buffer-resize retry still
// did not produce a usable result.
func RetryExceeded(phase Phase, algorithm string, first, second uint32) *Error {
	return New(phase, KindRetryExceeded).
		Algorithm(algorithm).
		Detail("retry with %d bytes after initial %d still undersized", second, first).
		Build()
}

// NotFound reports a missing module export.
func NotFound(export string) *Error {
	return New(PhaseModule, KindNotFound).Export(export).Detail("export not found").Build()
}

// InvalidInput reports malformed caller input.
func InvalidInput(phase Phase, detail string, args ...any) *Error {
	return New(phase, KindInvalidInput).Detail(detail, args...).Build()
}

// Unsupported reports a capability the ABI does not expose.
func Unsupported(algorithm, detail string) *Error {
	return New(PhaseSession, KindUnsupported).Algorithm(algorithm).Detail(detail).Build()
}

// Wrap attaches phase and kind to an underlying error.
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return New(phase, kind).Cause(cause).Detail(detail).Build()
}
