package engine

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wasmpress/wasmpress"
	"github.com/wasmpress/wasmpress/errors"
)

// memory adapts wazero linear memory to the wasmpress.Memory view.
type memory struct {
	mem api.Memory
}

var _ wasmpress.Memory = (*memory)(nil)

// Read copies out of linear memory. wazero hands back a view into the
// underlying buffer that later calls may invalidate, so the copy is what
// keeps the result independent of the allocation's lifetime.
func (m *memory) Read(offset, length uint32) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	view, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.New(errors.PhaseMemory, errors.KindOutOfBounds).
			Detail("read %d bytes at offset %d past memory size %d", length, offset, m.mem.Size()).
			Build()
	}
	out := make([]byte, length)
	copy(out, view)
	return out, nil
}

func (m *memory) Write(offset uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if !m.mem.Write(offset, data) {
		return errors.New(errors.PhaseMemory, errors.KindOutOfBounds).
			Detail("write %d bytes at offset %d past memory size %d", len(data), offset, m.mem.Size()).
			Build()
	}
	return nil
}
