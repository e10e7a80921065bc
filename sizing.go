package wasmpress

const (
	decompressFloor = 8 << 10
	estimateCeiling = 1 << 30
)

// CompressBound returns a conservative output-size estimate for compressing
// n input bytes: worst-case expansion plus framing overhead. Estimates from
// this bound rarely trigger the resize retry.
func CompressBound(n uint64) uint32 {
	if n >= estimateCeiling {
		return estimateCeiling
	}
	e := n + n/255 + 64
	if e > estimateCeiling {
		e = estimateCeiling
	}
	return uint32(e)
}

// DecompressEstimate guesses the output size for n compressed bytes. The
// expansion ratio is unknown up front, so the guess is loose and may still
// be wrong; the bounded resize retry corrects it.
func DecompressEstimate(n uint64) uint32 {
	if n >= estimateCeiling/4 {
		return estimateCeiling
	}
	e := n * 4
	if e < decompressFloor {
		e = decompressFloor
	}
	return uint32(e)
}
