package wasmpress

import "context"

// Memory is a byte-addressable view over the compute module's linear memory.
// Read returns a copy: the result stays valid after the backing allocation
// is released or the memory grows.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
}

// Module is the compute module capability: an instantiated codec unit
// reachable only through its allocator, its linear memory, and named
// exported entry points with a pointer/length calling convention.
//
// Implementations must be safe for concurrent use by independent sessions;
// serialization of calls against one codec handle is the caller's job.
type Module interface {
	// Memory returns the module's linear memory view.
	Memory() Memory

	// Alloc reserves size bytes inside the module and returns the pointer.
	// size must be greater than zero.
	Alloc(ctx context.Context, size uint32) (uint32, error)

	// Free releases an allocation made by Alloc. The size must match the
	// original request.
	Free(ctx context.Context, ptr, size uint32) error

	// Invoke calls an exported function by name. Exports returning an i32
	// have it sign-extended into the result; exports with no results
	// produce 0.
	Invoke(ctx context.Context, export string, args ...uint64) (int64, error)

	// Close releases the module and everything inside it.
	Close(ctx context.Context) error
}
