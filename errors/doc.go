// Package errors provides structured error types for the wasmpress library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). Every kind is recoverable by the caller: retry with different
// input, abandon the session, or treat the stream as failed.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecompress, errors.KindDecode).
//		Algorithm("gzip").
//		Export("decompress_gzip").
//		Detail("module reported unrecoverable failure").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Allocation(errors.PhaseCompress, 4096, cause)
//	err := errors.SessionState("feed on destroyed session")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
