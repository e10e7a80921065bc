package nativemod

import (
	"bytes"
	"context"
	"testing"

	"github.com/wasmpress/wasmpress"
	"github.com/wasmpress/wasmpress/errors"
)

// allocWrite places data in the module's memory and returns its pointer.
func allocWrite(t *testing.T, m *Module, data []byte) uint32 {
	t.Helper()
	ptr, err := m.Alloc(context.Background(), uint32(len(data)))
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if err := m.Memory().Write(ptr, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	return ptr
}

func TestHeap_AllocFreePairing(t *testing.T) {
	ctx := context.Background()
	m := New()
	defer m.Close(ctx)

	ptr, err := m.Alloc(ctx, 32)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if ptr == 0 {
		t.Fatal("pointer 0 is reserved for failure")
	}
	if err := m.Free(ctx, ptr, 32); err != nil {
		t.Fatalf("free: %v", err)
	}
	if err := m.Free(ctx, ptr, 32); !errors.IsKind(err, errors.KindAllocation) {
		t.Errorf("double free must fail, got %v", err)
	}

	ptr2, _ := m.Alloc(ctx, 16)
	if err := m.Free(ctx, ptr2, 8); !errors.IsKind(err, errors.KindAllocation) {
		t.Errorf("size-mismatched free must fail, got %v", err)
	}
	if _, err := m.Alloc(ctx, 0); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("zero-length alloc must fail, got %v", err)
	}
}

func TestOneShot_ResultCodes(t *testing.T) {
	ctx := context.Background()
	m := New()
	defer m.Close(ctx)

	payload := bytes.Repeat([]byte("one shot abi "), 100)
	inPtr := allocWrite(t, m, payload)
	outSize := wasmpress.CompressBound(uint64(len(payload)))
	outPtr, err := m.Alloc(ctx, outSize)
	if err != nil {
		t.Fatalf("alloc out: %v", err)
	}

	rc, err := m.Invoke(ctx, "compress_gzip_level_6",
		uint64(inPtr), uint64(len(payload)), uint64(outPtr), uint64(outSize))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if rc <= 0 {
		t.Fatalf("compress rc = %d, want bytes written", rc)
	}
	compressed, err := m.Memory().Read(outPtr, uint32(rc))
	if err != nil {
		t.Fatalf("read out: %v", err)
	}

	// An undersized output buffer reports the exact size it needs.
	cPtr := allocWrite(t, m, compressed)
	tinyPtr, _ := m.Alloc(ctx, 4)
	rc, err = m.Invoke(ctx, "decompress_gzip",
		uint64(cPtr), uint64(len(compressed)), uint64(tinyPtr), 4)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if rc != -int64(len(payload)) {
		t.Fatalf("undersized rc = %d, want %d", rc, -len(payload))
	}

	// The sized retry succeeds.
	bigPtr, _ := m.Alloc(ctx, uint32(len(payload)))
	rc, err = m.Invoke(ctx, "decompress_gzip",
		uint64(cPtr), uint64(len(compressed)), uint64(bigPtr), uint64(len(payload)))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if rc != int64(len(payload)) {
		t.Fatalf("retry rc = %d, want %d", rc, len(payload))
	}
	got, err := m.Memory().Read(bigPtr, uint32(rc))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("round trip mismatch")
	}
}

func TestOneShot_MalformedInput(t *testing.T) {
	ctx := context.Background()
	m := New()
	defer m.Close(ctx)

	inPtr := allocWrite(t, m, []byte("not a gzip stream"))
	outPtr, _ := m.Alloc(ctx, 1024)
	rc, err := m.Invoke(ctx, "decompress_gzip", uint64(inPtr), 17, uint64(outPtr), 1024)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if rc != -1 {
		t.Errorf("malformed input rc = %d, want -1", rc)
	}
}

// The raw block format carries no framing, so its decoder relies entirely on
// the caller-declared output capacity.
func TestLZ4Block_SizedDecode(t *testing.T) {
	ctx := context.Background()
	m := New()
	defer m.Close(ctx)

	payload := bytes.Repeat([]byte("block data "), 200)
	inPtr := allocWrite(t, m, payload)
	bound := wasmpress.CompressBound(uint64(len(payload)))
	outPtr, _ := m.Alloc(ctx, bound)

	rc, err := m.Invoke(ctx, "compress_lz4_block",
		uint64(inPtr), uint64(len(payload)), uint64(outPtr), uint64(bound))
	if err != nil || rc <= 0 {
		t.Fatalf("compress rc = %d, err %v", rc, err)
	}
	block, _ := m.Memory().Read(outPtr, uint32(rc))

	bPtr := allocWrite(t, m, block)
	dPtr, _ := m.Alloc(ctx, uint32(len(payload)))
	rc, err = m.Invoke(ctx, "decompress_lz4_block",
		uint64(bPtr), uint64(len(block)), uint64(dPtr), uint64(len(payload)))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if rc != int64(len(payload)) {
		t.Fatalf("decode rc = %d, want %d", rc, len(payload))
	}
	got, _ := m.Memory().Read(dPtr, uint32(rc))
	if !bytes.Equal(got, payload) {
		t.Error("block round trip mismatch")
	}
}

// A finish call that completes delivery drops the handle: further chunk
// calls on it are fatal, and destroy on a dropped handle is a no-op.
func TestCompressorHandle_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m := New()
	defer m.Close(ctx)

	h, err := m.Invoke(ctx, "create_gzip_compressor", 6)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if h == 0 {
		t.Fatal("handle 0 means creation failure")
	}
	if m.LiveHandles() != 1 {
		t.Fatalf("%d live handles, want 1", m.LiveHandles())
	}

	payload := []byte("lifecycle")
	inPtr := allocWrite(t, m, payload)
	outPtr, _ := m.Alloc(ctx, 1024)
	rc, err := m.Invoke(ctx, "compress_gzip_chunk",
		uint64(h), uint64(inPtr), uint64(len(payload)), uint64(outPtr), 1024, 1)
	if err != nil || rc <= 0 {
		t.Fatalf("finish chunk rc = %d, err %v", rc, err)
	}
	if m.LiveHandles() != 0 {
		t.Errorf("handle must be dropped after a delivered finish, %d live", m.LiveHandles())
	}

	rc, err = m.Invoke(ctx, "compress_gzip_chunk",
		uint64(h), uint64(inPtr), uint64(len(payload)), uint64(outPtr), 1024, 0)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if rc != -1 {
		t.Errorf("chunk on dropped handle rc = %d, want -1", rc)
	}
	if rc, _ := m.Invoke(ctx, "destroy_gzip_compressor", uint64(h)); rc != 0 {
		t.Errorf("destroy on dropped handle rc = %d, want 0", rc)
	}
}

// Whole-block compressors return 0 for every non-finish chunk and keep the
// handle alive when a finish result does not fit the caller's buffer.
func TestBufferedCompressor_FinishRetry(t *testing.T) {
	ctx := context.Background()
	m := New()
	defer m.Close(ctx)

	h, err := m.Invoke(ctx, "create_compressor")
	if err != nil || h == 0 {
		t.Fatalf("create rc = %d, err %v", h, err)
	}

	payload := bytes.Repeat([]byte("buffered until finish "), 500)
	inPtr := allocWrite(t, m, payload)
	outPtr, _ := m.Alloc(ctx, 4)

	rc, err := m.Invoke(ctx, "compress_chunk",
		uint64(h), uint64(inPtr), uint64(len(payload)), uint64(outPtr), 4, 0)
	if err != nil || rc != 0 {
		t.Fatalf("non-finish chunk rc = %d, err %v, want 0", rc, err)
	}

	// Finish into a 4-byte buffer: the module keeps the output and the
	// handle, and reports the size it needs.
	rc, err = m.Invoke(ctx, "compress_chunk", uint64(h), 0, 0, uint64(outPtr), 4, 1)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if rc >= -1 {
		t.Fatalf("finish into tiny buffer rc = %d, want a size request", rc)
	}
	if m.LiveHandles() != 1 {
		t.Fatal("handle must survive until the retry collects the output")
	}

	need := uint32(-rc)
	bigPtr, _ := m.Alloc(ctx, need)
	rc, err = m.Invoke(ctx, "compress_chunk", uint64(h), 0, 0, uint64(bigPtr), uint64(need), 1)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if uint32(rc) != need {
		t.Fatalf("retry rc = %d, want %d", rc, need)
	}
	if m.LiveHandles() != 0 {
		t.Error("handle must be dropped once the finish output is delivered")
	}
}

// An incremental decompressor with a small output buffer delivers partially
// and stages the rest; input fed while output is staged is still consumed.
func TestDecompressor_PartialDelivery(t *testing.T) {
	ctx := context.Background()
	m := New()
	defer m.Close(ctx)

	payload := bytes.Repeat([]byte("partial delivery "), 300)
	inPtr := allocWrite(t, m, payload)
	bound := wasmpress.CompressBound(uint64(len(payload)))
	cPtr, _ := m.Alloc(ctx, bound)
	rc, err := m.Invoke(ctx, "compress_gzip_level_6",
		uint64(inPtr), uint64(len(payload)), uint64(cPtr), uint64(bound))
	if err != nil || rc <= 0 {
		t.Fatalf("compress rc = %d, err %v", rc, err)
	}
	compressed, _ := m.Memory().Read(cPtr, uint32(rc))

	h, err := m.Invoke(ctx, "create_gzip_decompressor")
	if err != nil || h == 0 {
		t.Fatalf("create rc = %d, err %v", h, err)
	}

	// Feed the stream in two halves through a 64-byte output buffer.
	half := len(compressed) / 2
	aPtr := allocWrite(t, m, compressed[:half])
	bPtr := allocWrite(t, m, compressed[half:])
	outPtr, _ := m.Alloc(ctx, 64)

	var got []byte
	collect := func(rc int64) {
		t.Helper()
		if rc < 0 {
			t.Fatalf("chunk rc = %d", rc)
		}
		out, err := m.Memory().Read(outPtr, uint32(rc))
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		got = append(got, out...)
	}

	rc, _ = m.Invoke(ctx, "decompress_gzip_chunk",
		uint64(h), uint64(aPtr), uint64(half), uint64(outPtr), 64, 0)
	collect(rc)
	rc, _ = m.Invoke(ctx, "decompress_gzip_chunk",
		uint64(h), uint64(bPtr), uint64(len(compressed)-half), uint64(outPtr), 64, 0)
	collect(rc)

	// Drain with finish calls until the module reports empty.
	for {
		rc, err = m.Invoke(ctx, "decompress_gzip_chunk",
			uint64(h), 0, 0, uint64(outPtr), 64, 1)
		if err != nil {
			t.Fatalf("invoke: %v", err)
		}
		if rc == 0 {
			break
		}
		collect(rc)
	}

	if !bytes.Equal(got, payload) {
		t.Errorf("reassembled %d bytes, want %d", len(got), len(payload))
	}
	if m.LiveHandles() != 0 {
		t.Error("empty finish must drop the handle")
	}
}

// A whole-frame decompressor reports a size request instead of delivering
// partially, and the input-less retry collects everything.
func TestDecompressor_ResizeCode(t *testing.T) {
	ctx := context.Background()
	m := New()
	defer m.Close(ctx)

	payload := bytes.Repeat([]byte{0}, 100000)
	inPtr := allocWrite(t, m, payload)
	bound := wasmpress.CompressBound(uint64(len(payload)))
	cPtr, _ := m.Alloc(ctx, bound)
	rc, err := m.Invoke(ctx, "compress_lz4",
		uint64(inPtr), uint64(len(payload)), uint64(cPtr), uint64(bound))
	if err != nil || rc <= 0 {
		t.Fatalf("compress rc = %d, err %v", rc, err)
	}
	compressed, _ := m.Memory().Read(cPtr, uint32(rc))

	h, err := m.Invoke(ctx, "create_decompressor")
	if err != nil || h == 0 {
		t.Fatalf("create rc = %d, err %v", h, err)
	}

	fPtr := allocWrite(t, m, compressed)
	smallPtr, _ := m.Alloc(ctx, 64)
	rc, err = m.Invoke(ctx, "decompress_chunk",
		uint64(h), uint64(fPtr), uint64(len(compressed)), uint64(smallPtr), 64, 1)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if rc != -int64(len(payload)) {
		t.Fatalf("rc = %d, want size request %d", rc, -len(payload))
	}

	bigPtr, _ := m.Alloc(ctx, uint32(len(payload)))
	rc, err = m.Invoke(ctx, "decompress_chunk",
		uint64(h), 0, 0, uint64(bigPtr), uint64(len(payload)), 1)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if rc != int64(len(payload)) {
		t.Fatalf("retry rc = %d, want %d", rc, len(payload))
	}

	// Nothing staged: this finish drops the handle.
	rc, err = m.Invoke(ctx, "decompress_chunk", uint64(h), 0, 0, uint64(bigPtr), 64, 1)
	if err != nil || rc != 0 {
		t.Fatalf("final finish rc = %d, err %v, want 0", rc, err)
	}
	if m.LiveHandles() != 0 {
		t.Error("handle leaked after final finish")
	}
}

func TestInvoke_UnknownExport(t *testing.T) {
	ctx := context.Background()
	m := New()
	defer m.Close(ctx)

	_, err := m.Invoke(ctx, "compress_zstd", 0, 0, 0, 0)
	if !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("expected not_found, got %v", err)
	}
}

func TestModule_Closed(t *testing.T) {
	ctx := context.Background()
	m := New()
	if err := m.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := m.Alloc(ctx, 8); err == nil {
		t.Error("alloc on closed module should fail")
	}
	if _, err := m.Invoke(ctx, "decompress_gzip", 0, 0, 0, 0); err == nil {
		t.Error("invoke on closed module should fail")
	}
}
