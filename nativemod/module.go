// Package nativemod implements the compute module ABI in pure Go: a
// simulated linear memory with a tracking allocator, handle tables for
// streaming codecs, and the shared result-code convention. It backs tests
// (the allocation counters make leak checking trivial) and hosts that run
// without a codec binary.
package nativemod

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wasmpress/wasmpress"
	"github.com/wasmpress/wasmpress/errors"
)

const rcFatal = -1

// exportFunc is one ABI entry point. Codec-level failures are encoded into
// the result code; returned errors are host-level problems only.
type exportFunc func(args []uint64) int64

// compressorState is one live streaming-compressor handle. pending holds
// output produced by a call whose output buffer was too small; the single
// sized retry collects it without resubmitting input.
type compressorState struct {
	c       chunkCompressor
	pending []byte
}

// decompressorState is one live streaming-decompressor handle. resize
// selects how an oversized result is reported: a retry code (whole-frame
// codecs that produce everything at once) or partial delivery that the
// drain loop collects (incremental codecs).
type decompressorState struct {
	d       chunkDecompressor
	pending []byte
	resize  bool
}

// Module is a pure-Go compute module. It satisfies wasmpress.Module.
// A single mutex serializes all entry points, like the single-threaded
// WASM instance it stands in for.
type Module struct {
	mu      sync.Mutex
	heap    *heap
	exports map[string]exportFunc
	comps   map[uint32]*compressorState
	decs    map[uint32]*decompressorState
	next    uint32
	closed  bool
	log     *zap.Logger
}

// Option configures the module.
type Option func(*Module)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Module) { m.log = l }
}

// New creates a native compute module with every codec registered.
func New(opts ...Option) *Module {
	m := &Module{
		heap:  newHeap(),
		comps: make(map[uint32]*compressorState),
		decs:  make(map[uint32]*decompressorState),
		next:  1,
		log:   zap.NewNop(),
	}
	for _, o := range opts {
		o(m)
	}
	m.exports = map[string]exportFunc{
		"alloc_bytes": func(args []uint64) int64 {
			return int64(m.heap.alloc(uint32(args[0])))
		},
		"free_bytes": func(args []uint64) int64 {
			_ = m.heap.free(uint32(args[0]), uint32(args[1]))
			return 0
		},

		"compress_gzip_level_1": m.oneShot(gzipCompressAll(1)),
		"compress_gzip_level_6": m.oneShot(gzipCompressAll(6)),
		"compress_gzip_level_9": m.oneShot(gzipCompressAll(9)),
		"decompress_gzip":       m.oneShot(gzipDecompressAll),

		"compress_lz4":         m.oneShot(lz4CompressAll),
		"decompress_lz4":       m.oneShot(lz4DecompressAll),
		"compress_lz4_block":   m.oneShot(lz4BlockCompress),
		"decompress_lz4_block": m.oneShotSized(lz4BlockDecompress),

		"compress_brotli_level_1": m.oneShot(brotliCompressAll(1)),
		"compress_brotli_level_4": m.oneShot(brotliCompressAll(4)),
		"compress_brotli_level_6": m.oneShot(brotliCompressAll(6)),
		"compress_brotli_level_9": m.oneShot(brotliCompressAll(9)),
		"decompress_brotli":       m.oneShot(brotliDecompressAll),

		"create_gzip_compressor": func(args []uint64) int64 {
			c, err := newGzipChunkCompressor(clampGzipLevel(int(int32(args[0]))))
			if err != nil {
				return 0
			}
			return int64(m.addCompressor(c))
		},
		"compress_gzip_chunk":     m.feedCompressor,
		"destroy_gzip_compressor": m.destroyCompressor,

		"create_gzip_decompressor": func([]uint64) int64 {
			return int64(m.addDecompressor(&gzipChunkDecompressor{}, false))
		},
		"decompress_gzip_chunk":     m.feedDecompressor,
		"destroy_gzip_decompressor": m.destroyDecompressor,

		"create_compressor": func([]uint64) int64 {
			return int64(m.addCompressor(&bufferedCompressor{encode: lz4CompressAll}))
		},
		"compress_chunk":     m.feedCompressor,
		"destroy_compressor": m.destroyCompressor,

		"create_decompressor": func([]uint64) int64 {
			return int64(m.addDecompressor(&lz4ChunkDecompressor{}, true))
		},
		"decompress_chunk":     m.feedDecompressor,
		"destroy_decompressor": m.destroyDecompressor,

		"create_brotli_compressor": func(args []uint64) int64 {
			c := &bufferedCompressor{encode: brotliCompressAll(clampBrotliLevel(int(int32(args[0]))))}
			return int64(m.addCompressor(c))
		},
		"compress_brotli_chunk":     m.feedCompressor,
		"destroy_brotli_compressor": m.destroyCompressor,
	}
	return m
}

var _ wasmpress.Module = (*Module)(nil)

// Memory returns the bounds-checked view over the simulated linear memory.
func (m *Module) Memory() wasmpress.Memory {
	return &nativeMemory{m: m}
}

// Alloc reserves size bytes.
func (m *Module) Alloc(_ context.Context, size uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errors.InvalidInput(errors.PhaseModule, "module closed")
	}
	if size == 0 {
		return 0, errors.InvalidInput(errors.PhaseMemory, "zero-length allocation")
	}
	return m.heap.alloc(size), nil
}

// Free releases an allocation. Unknown pointers and size mismatches error,
// which is what lets tests catch double frees.
func (m *Module) Free(_ context.Context, ptr, size uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heap.free(ptr, size)
}

// Invoke calls an export by name.
func (m *Module) Invoke(_ context.Context, export string, args ...uint64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errors.InvalidInput(errors.PhaseModule, "module closed")
	}
	fn, ok := m.exports[export]
	if !ok {
		return 0, errors.NotFound(export)
	}
	return fn(args), nil
}

// Close drops all handles and refuses further operations.
func (m *Module) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.comps = map[uint32]*compressorState{}
	m.decs = map[uint32]*decompressorState{}
	return nil
}

// AllocCount reports how many allocations the module has served.
func (m *Module) AllocCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heap.allocs
}

// FreeCount reports how many releases the module has served.
func (m *Module) FreeCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heap.frees
}

// LiveAllocations reports allocations not yet released.
func (m *Module) LiveAllocations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.heap.live)
}

// LiveHandles reports open streaming-codec handles.
func (m *Module) LiveHandles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.comps) + len(m.decs)
}

// addCompressor and addDecompressor run inside Invoke, which already holds
// the module mutex.
func (m *Module) addCompressor(c chunkCompressor) uint32 {
	h := m.next
	m.next++
	m.comps[h] = &compressorState{c: c}
	return h
}

func (m *Module) addDecompressor(d chunkDecompressor, resize bool) uint32 {
	h := m.next
	m.next++
	m.decs[h] = &decompressorState{d: d, resize: resize}
	return h
}

// oneShot wraps a whole-buffer codec function in the ABI calling
// convention: (inPtr, inLen, outPtr, outLen) -> result code.
func (m *Module) oneShot(fn func([]byte) ([]byte, error)) exportFunc {
	return m.oneShotSized(func(in []byte, _ uint32) ([]byte, error) {
		return fn(in)
	})
}

// oneShotSized also hands the codec the declared output capacity, for block
// formats whose decoder needs the expected size.
func (m *Module) oneShotSized(fn func([]byte, uint32) ([]byte, error)) exportFunc {
	return func(args []uint64) int64 {
		if len(args) != 4 {
			return rcFatal
		}
		in, err := m.heap.read(uint32(args[0]), uint32(args[1]))
		if err != nil {
			return rcFatal
		}
		outLen := uint32(args[3])
		out, err := fn(in, outLen)
		if err != nil {
			return rcFatal
		}
		if uint32(len(out)) > outLen {
			return -int64(len(out))
		}
		if err := m.heap.write(uint32(args[2]), out); err != nil {
			return rcFatal
		}
		return int64(len(out))
	}
}

// feedCompressor implements the compress_*_chunk exports:
// (handle, inPtr, inLen, outPtr, outLen, finish) -> result code.
// The handle is dropped once a finish call completes delivery.
func (m *Module) feedCompressor(args []uint64) int64 {
	if len(args) != 6 {
		return rcFatal
	}
	handle := uint32(args[0])
	st, ok := m.comps[handle]
	if !ok {
		return rcFatal
	}
	in, err := m.heap.read(uint32(args[1]), uint32(args[2]))
	if err != nil {
		return rcFatal
	}
	finish := args[5] != 0
	outLen := uint32(args[4])

	out := st.pending
	if out == nil {
		out, err = st.c.compress(in, finish)
		if err != nil {
			return rcFatal
		}
	}
	if len(out) == 0 {
		if finish {
			delete(m.comps, handle)
		}
		return 0
	}
	if uint32(len(out)) > outLen {
		// Keep the output for the sized retry; the input is consumed.
		st.pending = out
		return -int64(len(out))
	}
	if err := m.heap.write(uint32(args[3]), out); err != nil {
		return rcFatal
	}
	st.pending = nil
	if finish {
		delete(m.comps, handle)
	}
	return int64(len(out))
}

// feedDecompressor implements the decompress_*_chunk exports. Every input
// chunk is consumed into the codec even while earlier output still waits in
// pending; output is staged through pending and delivered up to the caller's
// buffer size. The handle stays alive while output remains and is dropped by
// the finish call that finds nothing left (or fails).
func (m *Module) feedDecompressor(args []uint64) int64 {
	if len(args) != 6 {
		return rcFatal
	}
	handle := uint32(args[0])
	st, ok := m.decs[handle]
	if !ok {
		return rcFatal
	}
	finish := args[5] != 0
	outLen := uint32(args[4])

	in, err := m.heap.read(uint32(args[1]), uint32(args[2]))
	if err != nil {
		return rcFatal
	}
	// Skip the codec only on input-less calls that just collect pending
	// output (sized retries and drain steps): running finish there would
	// misread staged-but-undelivered output as a truncated stream.
	if len(in) > 0 || len(st.pending) == 0 {
		out, err := st.d.decompress(in, finish)
		if err != nil {
			if finish {
				delete(m.decs, handle)
			}
			return rcFatal
		}
		st.pending = append(st.pending, out...)
	}

	if len(st.pending) == 0 {
		if finish {
			delete(m.decs, handle)
		}
		return 0
	}
	if uint32(len(st.pending)) > outLen {
		if st.resize {
			return -int64(len(st.pending))
		}
		if err := m.heap.write(uint32(args[3]), st.pending[:outLen]); err != nil {
			return rcFatal
		}
		st.pending = st.pending[outLen:]
		return int64(outLen)
	}
	n := len(st.pending)
	if err := m.heap.write(uint32(args[3]), st.pending); err != nil {
		return rcFatal
	}
	st.pending = nil
	return int64(n)
}

func (m *Module) destroyCompressor(args []uint64) int64 {
	if len(args) == 1 {
		delete(m.comps, uint32(args[0]))
	}
	return 0
}

func (m *Module) destroyDecompressor(args []uint64) int64 {
	if len(args) == 1 {
		delete(m.decs, uint32(args[0]))
	}
	return 0
}

// nativeMemory adapts the heap to the wasmpress.Memory view.
type nativeMemory struct {
	m *Module
}

func (nm *nativeMemory) Read(offset, length uint32) ([]byte, error) {
	nm.m.mu.Lock()
	defer nm.m.mu.Unlock()
	return nm.m.heap.read(offset, length)
}

func (nm *nativeMemory) Write(offset uint32, data []byte) error {
	nm.m.mu.Lock()
	defer nm.m.mu.Unlock()
	return nm.m.heap.write(offset, data)
}
