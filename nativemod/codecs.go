package nativemod

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/pierrec/lz4/v4"
)

// One-shot codec functions. Each encodes or decodes a whole buffer; the
// export dispatch compares the result against the caller's output arena and
// turns oversize into a retry code.

func gzipCompressAll(level int) func([]byte) ([]byte, error) {
	return func(in []byte) ([]byte, error) {
		var buf bytes.Buffer
		zw, err := gzip.NewWriterLevel(&buf, level)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(in); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

func gzipDecompressAll(in []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(in))
	if err != nil {
		return nil, err
	}
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	if err := zr.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func lz4CompressAll(in []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(in); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lz4DecompressAll(in []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(in)))
}

func lz4BlockCompress(in []byte) ([]byte, error) {
	if len(in) == 0 {
		return nil, nil
	}
	dst := make([]byte, lz4.CompressBlockBound(len(in)))
	n, err := lz4.CompressBlock(in, dst, nil)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

// lz4BlockDecompress needs the caller-declared output size: the raw block
// format carries no framing of its own.
func lz4BlockDecompress(in []byte, outCap uint32) ([]byte, error) {
	if len(in) == 0 {
		return nil, nil
	}
	dst := make([]byte, outCap)
	n, err := lz4.UncompressBlock(in, dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

func brotliCompressAll(level int) func([]byte) ([]byte, error) {
	return func(in []byte) ([]byte, error) {
		var buf bytes.Buffer
		zw := brotli.NewWriterLevel(&buf, level)
		if _, err := zw.Write(in); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

func brotliDecompressAll(in []byte) ([]byte, error) {
	return io.ReadAll(brotli.NewReader(bytes.NewReader(in)))
}

// chunkCompressor is the module-internal streaming compressor behind one
// handle.
type chunkCompressor interface {
	// compress consumes input and returns all output produced by this
	// call. After finish the compressor is spent.
	compress(input []byte, finish bool) ([]byte, error)
}

// gzipChunkCompressor flushes on every chunk: gzip is a frame format that
// can emit partial output incrementally.
type gzipChunkCompressor struct {
	buf      bytes.Buffer
	zw       *gzip.Writer
	finished bool
}

func newGzipChunkCompressor(level int) (*gzipChunkCompressor, error) {
	c := &gzipChunkCompressor{}
	zw, err := gzip.NewWriterLevel(&c.buf, level)
	if err != nil {
		return nil, err
	}
	c.zw = zw
	return c, nil
}

func (c *gzipChunkCompressor) compress(input []byte, finish bool) ([]byte, error) {
	if c.finished {
		return nil, stderrors.New("compress after finish")
	}
	if _, err := c.zw.Write(input); err != nil {
		return nil, err
	}
	if finish {
		c.finished = true
		if err := c.zw.Close(); err != nil {
			return nil, err
		}
	} else if err := c.zw.Flush(); err != nil {
		return nil, err
	}
	out := append([]byte(nil), c.buf.Bytes()...)
	c.buf.Reset()
	return out, nil
}

// bufferedCompressor is the whole-block policy: it accumulates every chunk
// and encodes the full buffer on the finish call. Non-finish feeds
// legitimately produce no output.
type bufferedCompressor struct {
	data     []byte
	finished bool
	encode   func([]byte) ([]byte, error)
}

func (c *bufferedCompressor) compress(input []byte, finish bool) ([]byte, error) {
	if c.finished {
		return nil, stderrors.New("compress after finish")
	}
	c.data = append(c.data, input...)
	if !finish {
		return nil, nil
	}
	c.finished = true
	return c.encode(c.data)
}

// chunkDecompressor is the module-internal streaming decompressor behind
// one handle.
type chunkDecompressor interface {
	decompress(input []byte, finish bool) ([]byte, error)
}

// gzipChunkDecompressor decodes incrementally: each call re-decodes the
// accumulated stream and reports only the bytes past what was already
// emitted. A truncated prefix is "no output yet", not an error, until the
// finish call demands a complete stream.
type gzipChunkDecompressor struct {
	buf     []byte
	emitted int
}

func (d *gzipChunkDecompressor) decompress(input []byte, finish bool) ([]byte, error) {
	d.buf = append(d.buf, input...)
	total, complete, err := d.decodeAll()
	if err != nil {
		return nil, err
	}
	out := total[d.emitted:]
	d.emitted = len(total)
	if finish && !complete && len(out) == 0 {
		return nil, fmt.Errorf("truncated gzip stream: %w", io.ErrUnexpectedEOF)
	}
	return out, nil
}

func (d *gzipChunkDecompressor) decodeAll() ([]byte, bool, error) {
	zr, err := gzip.NewReader(bytes.NewReader(d.buf))
	if err != nil {
		if stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrUnexpectedEOF) {
			return nil, false, nil // header not complete yet
		}
		return nil, false, err
	}
	out, err := io.ReadAll(zr)
	if err != nil {
		if stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrUnexpectedEOF) {
			return out, false, nil // body still arriving
		}
		return nil, false, err // corrupt data or checksum mismatch
	}
	return out, true, nil
}

// lz4ChunkDecompressor buffers the whole frame: the format decodes only
// once the finish call supplies the complete input.
type lz4ChunkDecompressor struct {
	buf  []byte
	done bool
}

func (d *lz4ChunkDecompressor) decompress(input []byte, finish bool) ([]byte, error) {
	d.buf = append(d.buf, input...)
	if !finish || d.done {
		return nil, nil
	}
	d.done = true
	return io.ReadAll(lz4.NewReader(bytes.NewReader(d.buf)))
}

func clampGzipLevel(level int) int {
	switch {
	case level <= 0:
		return gzip.DefaultCompression
	case level > gzip.BestCompression:
		return gzip.BestCompression
	default:
		return level
	}
}

func clampBrotliLevel(level int) int {
	switch {
	case level <= 0:
		return brotli.DefaultCompression
	case level > brotli.BestCompression:
		return brotli.BestCompression
	default:
		return level
	}
}
