// Package arena moves bytes into and out of the compute module's linear
// memory and pairs every allocation with exactly one release.
package arena

import (
	"context"

	"github.com/wasmpress/wasmpress"
	"github.com/wasmpress/wasmpress/errors"
)

// Arena is one allocation inside the compute module's linear memory. It is
// exclusively owned by the call that allocated it until Free runs. Free is
// idempotent, so deferred release composes with early release on retry paths.
type Arena struct {
	mod   wasmpress.Module
	ptr   uint32
	size  uint32
	freed bool
}

// Alloc reserves size bytes inside the module. size must be greater than zero.
func Alloc(ctx context.Context, mod wasmpress.Module, size uint32) (*Arena, error) {
	if size == 0 {
		return nil, errors.InvalidInput(errors.PhaseMemory, "zero-length allocation")
	}
	ptr, err := mod.Alloc(ctx, size)
	if err != nil {
		return nil, errors.Allocation(errors.PhaseMemory, size, err)
	}
	return &Arena{mod: mod, ptr: ptr, size: size}, nil
}

// FromBytes allocates an arena sized to data and copies data into it.
// Empty data yields a null arena (ptr 0, size 0) that occupies no module
// memory; the ABI accepts zero-length input pointers.
func FromBytes(ctx context.Context, mod wasmpress.Module, data []byte) (*Arena, error) {
	if len(data) == 0 {
		return &Arena{mod: mod, freed: true}, nil
	}
	a, err := Alloc(ctx, mod, uint32(len(data)))
	if err != nil {
		return nil, err
	}
	if err := a.Write(data); err != nil {
		a.Free(ctx)
		return nil, err
	}
	return a, nil
}

// Ptr returns the location inside module memory, 0 for a null arena.
func (a *Arena) Ptr() uint32 { return a.ptr }

// Size returns the allocation length in bytes.
func (a *Arena) Size() uint32 { return a.size }

// Write copies host bytes into the arena. len(data) must not exceed the
// allocation.
func (a *Arena) Write(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if uint32(len(data)) > a.size {
		return errors.New(errors.PhaseMemory, errors.KindOutOfBounds).
			Detail("write %d bytes into %d-byte arena", len(data), a.size).
			Build()
	}
	if err := a.mod.Memory().Write(a.ptr, data); err != nil {
		return errors.Wrap(errors.PhaseMemory, errors.KindOutOfBounds, err, "write arena")
	}
	return nil
}

// Read copies length bytes out of the arena into a new host-owned buffer,
// independent of the arena's lifetime.
func (a *Arena) Read(length uint32) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	if length > a.size {
		return nil, errors.New(errors.PhaseMemory, errors.KindOutOfBounds).
			Detail("read %d bytes from %d-byte arena", length, a.size).
			Build()
	}
	out, err := a.mod.Memory().Read(a.ptr, length)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseMemory, errors.KindOutOfBounds, err, "read arena")
	}
	return out, nil
}

// Free releases the allocation. Safe to call more than once; only the first
// call reaches the module.
func (a *Arena) Free(ctx context.Context) error {
	if a.freed {
		return nil
	}
	a.freed = true
	if err := a.mod.Free(ctx, a.ptr, a.size); err != nil {
		return errors.Wrap(errors.PhaseMemory, errors.KindAllocation, err, "free arena")
	}
	return nil
}
