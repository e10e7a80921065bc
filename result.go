package wasmpress

// OutcomeKind tags the interpretation of a codec result code.
type OutcomeKind int

const (
	// OutcomeSuccess means N bytes were written to the output arena.
	// N == 0 on a non-finish chunk means the codec buffered the input
	// internally; it is not an error.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeNeedsSize means the output arena was too small; retry exactly
	// once with an arena of N bytes.
	OutcomeNeedsSize
	// OutcomeFatal means the operation failed unrecoverably.
	OutcomeFatal
)

// Outcome is the decoded form of the module's uniform i32 return convention.
type Outcome struct {
	Kind OutcomeKind
	N    uint32
}

// Classify decodes a raw result code: n >= 0 bytes written, -1 unrecoverable
// failure, n < -1 retry with an output buffer of -n bytes.
func Classify(rc int64) Outcome {
	switch {
	case rc >= 0:
		return Outcome{Kind: OutcomeSuccess, N: uint32(rc)}
	case rc == -1:
		return Outcome{Kind: OutcomeFatal}
	default:
		return Outcome{Kind: OutcomeNeedsSize, N: uint32(-rc)}
	}
}
