package codec

import (
	"context"
	"encoding/binary"

	"github.com/wasmpress/wasmpress"
	"github.com/wasmpress/wasmpress/errors"
)

// packedHeaderSize is the 4-byte little-endian length prefix of the packed
// wire format. The prefix carries the original payload length so a decoder
// can size its output buffer exactly, with no negotiation round.
const packedHeaderSize = 4

// CompressPacked compresses data and prepends the packed header.
func (c *Codec) CompressPacked(ctx context.Context, alg wasmpress.Algorithm, data []byte, opts Options) ([]byte, error) {
	body, err := c.Compress(ctx, alg, data, opts)
	if err != nil {
		return nil, err
	}
	out := make([]byte, packedHeaderSize+len(body))
	binary.LittleEndian.PutUint32(out, uint32(len(data)))
	copy(out[packedHeaderSize:], body)
	return out, nil
}

// DecompressPacked reads the length prefix, allocates exactly that output
// size, and decodes once. A prefix that understates the real output is
// malformed input, not a resize request.
func (c *Codec) DecompressPacked(ctx context.Context, alg wasmpress.Algorithm, data []byte) ([]byte, error) {
	if len(data) < packedHeaderSize {
		return nil, errors.Decode(string(alg), "", "truncated packed payload")
	}
	size := binary.LittleEndian.Uint32(data)
	body := data[packedHeaderSize:]
	if size == 0 {
		// An empty payload still carries an encoded body (headers and
		// trailers); nothing to decode into.
		return []byte{}, nil
	}

	b, ok := alg.Binding()
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseDecompress, "unknown algorithm %q", alg)
	}
	// Single attempt: the prefix already fixed the output size, so an
	// undersized-buffer result means the prefix lied.
	out, err := c.run(ctx, errors.PhaseDecompress, alg, b.Decompress, body, size, false)
	if err != nil {
		return nil, err
	}
	if uint32(len(out)) != size {
		return nil, errors.Decode(string(alg), b.Decompress, "decoded length does not match packed prefix")
	}
	return out, nil
}
