package nativemod

import (
	"github.com/wasmpress/wasmpress/errors"
)

// heap simulates the module's linear memory: a flat byte array with a bump
// allocator and explicit frees. Pointer 0 stays reserved as null, matching
// the ABI's "0 = failure" convention. Every allocation and release is
// counted so tests can assert the pairing invariant.
type heap struct {
	mem    []byte
	next   uint32
	live   map[uint32]uint32 // ptr -> size
	allocs uint64
	frees  uint64
}

func newHeap() *heap {
	return &heap{
		mem:  make([]byte, 64<<10),
		next: 8,
		live: make(map[uint32]uint32),
	}
}

func (h *heap) alloc(size uint32) uint32 {
	if size == 0 {
		return 0
	}
	ptr := h.next
	end := uint64(ptr) + uint64(size)
	for end > uint64(len(h.mem)) {
		h.mem = append(h.mem, make([]byte, len(h.mem))...)
	}
	// 8-byte alignment keeps pointers plausible for the real allocator.
	h.next = uint32((end + 7) &^ 7)
	h.live[ptr] = size
	h.allocs++
	return ptr
}

func (h *heap) free(ptr, size uint32) error {
	got, ok := h.live[ptr]
	if !ok {
		return errors.New(errors.PhaseMemory, errors.KindAllocation).
			Detail("free of unknown or already-freed pointer %d", ptr).
			Build()
	}
	if got != size {
		return errors.New(errors.PhaseMemory, errors.KindAllocation).
			Detail("free size %d does not match allocation size %d at %d", size, got, ptr).
			Build()
	}
	delete(h.live, ptr)
	h.frees++
	return nil
}

func (h *heap) read(offset, length uint32) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	end := uint64(offset) + uint64(length)
	if end > uint64(len(h.mem)) {
		return nil, errors.New(errors.PhaseMemory, errors.KindOutOfBounds).
			Detail("read %d bytes at offset %d past memory size %d", length, offset, len(h.mem)).
			Build()
	}
	out := make([]byte, length)
	copy(out, h.mem[offset:end])
	return out, nil
}

func (h *heap) write(offset uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	end := uint64(offset) + uint64(len(data))
	if end > uint64(len(h.mem)) {
		return errors.New(errors.PhaseMemory, errors.KindOutOfBounds).
			Detail("write %d bytes at offset %d past memory size %d", len(data), offset, len(h.mem)).
			Build()
	}
	copy(h.mem[offset:end], data)
	return nil
}
