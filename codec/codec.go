// Package codec implements one-shot compression and decompression over a
// compute module, including the single bounded "retry with a bigger buffer"
// negotiation and the packed wire format that avoids it.
package codec

import (
	"context"

	"go.uber.org/zap"

	"github.com/wasmpress/wasmpress"
	"github.com/wasmpress/wasmpress/arena"
	"github.com/wasmpress/wasmpress/errors"
)

// Options control one-shot compression.
type Options struct {
	// Level is the compression level; 0 selects the codec default.
	// Modules export fixed level variants, so levels snap to the nearest.
	Level int
}

// Codec performs stateless compress/decompress calls against one compute
// module. Safe for concurrent use: every call owns its own arenas.
type Codec struct {
	mod wasmpress.Module
	log *zap.Logger
}

// Option configures a Codec.
type Option func(*Codec)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Codec) { c.log = l }
}

// New creates a codec over an already-initialized compute module.
func New(mod wasmpress.Module, opts ...Option) *Codec {
	c := &Codec{mod: mod, log: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Compress compresses data with the given algorithm.
func (c *Codec) Compress(ctx context.Context, alg wasmpress.Algorithm, data []byte, opts Options) ([]byte, error) {
	b, ok := alg.Binding()
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseCompress, "unknown algorithm %q", alg)
	}
	export := b.Compress(opts.Level)
	estimate := wasmpress.CompressBound(uint64(len(data)))
	out, err := c.oneShot(ctx, errors.PhaseCompress, alg, export, data, estimate)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Decompress decompresses data with the given algorithm. The output size is
// unknown up front, so the first attempt uses a loose estimate and relies on
// the bounded retry. Raw block formats without framing cannot report a
// needed size; use DecompressPacked (or a caller-known size via
// DecompressSized) for those.
func (c *Codec) Decompress(ctx context.Context, alg wasmpress.Algorithm, data []byte) ([]byte, error) {
	return c.DecompressSized(ctx, alg, data, wasmpress.DecompressEstimate(uint64(len(data))))
}

// DecompressSized decompresses data into an output buffer of the given size.
// The bounded retry still applies if the module reports a larger need.
func (c *Codec) DecompressSized(ctx context.Context, alg wasmpress.Algorithm, data []byte, size uint32) ([]byte, error) {
	b, ok := alg.Binding()
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseDecompress, "unknown algorithm %q", alg)
	}
	if size == 0 {
		size = wasmpress.DecompressEstimate(uint64(len(data)))
	}
	return c.oneShot(ctx, errors.PhaseDecompress, alg, b.Decompress, data, size)
}

// oneShot runs the boundary-crossing protocol once: allocate and fill the
// input arena, allocate an output arena from the estimate, invoke, interpret
// the result code, and retry exactly once on an undersized output buffer.
// Both arenas are released before returning on every path.
func (c *Codec) oneShot(ctx context.Context, phase errors.Phase, alg wasmpress.Algorithm, export string, data []byte, estimate uint32) ([]byte, error) {
	return c.run(ctx, phase, alg, export, data, estimate, true)
}

func (c *Codec) run(ctx context.Context, phase errors.Phase, alg wasmpress.Algorithm, export string, data []byte, estimate uint32, allowRetry bool) ([]byte, error) {
	sc := arena.NewScope(c.mod)
	defer sc.Free(ctx)

	in, err := sc.FromBytes(ctx, data)
	if err != nil {
		return nil, err
	}
	out, err := sc.Alloc(ctx, estimate)
	if err != nil {
		return nil, err
	}

	rc, err := c.mod.Invoke(ctx, export,
		uint64(in.Ptr()), uint64(in.Size()), uint64(out.Ptr()), uint64(out.Size()))
	if err != nil {
		return nil, errors.Wrap(phase, errors.KindInvalidInput, err, "invoke "+export)
	}

	outcome := wasmpress.Classify(rc)
	if outcome.Kind == wasmpress.OutcomeNeedsSize {
		if !allowRetry {
			return nil, errors.Decode(string(alg), export, "length prefix smaller than actual output")
		}
		c.log.Debug("output buffer undersized, retrying",
			zap.String("export", export),
			zap.Uint32("estimate", estimate),
			zap.Uint32("needed", outcome.N))

		// Release the undersized buffer before allocating the sized one.
		out.Free(ctx)
		out, err = sc.Alloc(ctx, outcome.N)
		if err != nil {
			return nil, err
		}
		rc, err = c.mod.Invoke(ctx, export,
			uint64(in.Ptr()), uint64(in.Size()), uint64(out.Ptr()), uint64(out.Size()))
		if err != nil {
			return nil, errors.Wrap(phase, errors.KindInvalidInput, err, "invoke "+export)
		}
		retried := wasmpress.Classify(rc)
		if retried.Kind == wasmpress.OutcomeNeedsSize {
			// Never request a third size.
			return nil, errors.RetryExceeded(phase, string(alg), outcome.N, retried.N)
		}
		outcome = retried
	}

	switch outcome.Kind {
	case wasmpress.OutcomeFatal:
		if phase == errors.PhaseCompress {
			return nil, errors.Encode(string(alg), export, "module reported unrecoverable failure")
		}
		return nil, errors.Decode(string(alg), export, "module reported unrecoverable failure")
	default:
		if outcome.N > out.Size() {
			return nil, errors.New(phase, errors.KindOutOfBounds).
				Algorithm(string(alg)).
				Detail("module claims %d bytes written into %d-byte buffer", outcome.N, out.Size()).
				Build()
		}
		return out.Read(outcome.N)
	}
}
