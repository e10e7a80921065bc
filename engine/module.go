// Package engine hosts codec WebAssembly binaries on wazero and exposes
// them through the wasmpress.Module capability.
package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wasmpress/wasmpress"
	"github.com/wasmpress/wasmpress/errors"
)

// The allocator exports every codec binary must carry.
const (
	allocExport = "alloc_bytes"
	freeExport  = "free_bytes"
)

// Config holds configuration for module creation.
type Config struct {
	// MemoryLimitPages caps instance memory in 64KB pages.
	// 0 means the wazero default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// Logger overrides the package logger for this module.
	Logger *zap.Logger
}

// Module is a wazero-hosted compute module. It satisfies wasmpress.Module.
//
// The caller selects and fetches the binary (capability variants, SIMD
// detection) before handing the bytes here; this package only instantiates
// what it is given.
type Module struct {
	runtime wazero.Runtime
	mod     api.Module
	alloc   api.Function
	free    api.Function
	log     *zap.Logger
}

// New compiles and instantiates a codec binary. The binary must export
// alloc_bytes and free_bytes alongside its codec entry points.
func New(ctx context.Context, wasmBytes []byte, cfg *Config) (*Module, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	log := Logger()
	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.Logger != nil {
			log = cfg.Logger
		}
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	compiled, err := runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, errors.Wrap(errors.PhaseModule, errors.KindInvalidInput, err, "compile module")
	}

	mod, err := runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("codec"))
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, errors.Wrap(errors.PhaseModule, errors.KindInvalidInput, err, "instantiate module")
	}

	alloc := mod.ExportedFunction(allocExport)
	free := mod.ExportedFunction(freeExport)
	if alloc == nil || free == nil {
		_ = runtime.Close(ctx)
		missing := allocExport
		if alloc != nil {
			missing = freeExport
		}
		return nil, errors.NotFound(missing)
	}

	log.Debug("codec module instantiated",
		zap.Int("binary_bytes", len(wasmBytes)),
		zap.Uint32("memory_bytes", mod.Memory().Size()))

	return &Module{
		runtime: runtime,
		mod:     mod,
		alloc:   alloc,
		free:    free,
		log:     log,
	}, nil
}

// Memory returns a bounds-checked view over the instance's linear memory.
func (m *Module) Memory() wasmpress.Memory {
	return &memory{mem: m.mod.Memory()}
}

// Alloc reserves size bytes inside the module.
func (m *Module) Alloc(ctx context.Context, size uint32) (uint32, error) {
	if size == 0 {
		return 0, errors.InvalidInput(errors.PhaseMemory, "zero-length allocation")
	}
	results, err := m.alloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, errors.Allocation(errors.PhaseMemory, size, err)
	}
	ptr := uint32(results[0])
	if ptr == 0 {
		return 0, errors.Allocation(errors.PhaseMemory, size, nil)
	}
	return ptr, nil
}

// Free releases an allocation. size must match the original request; the
// module's allocator needs it to locate the block layout.
func (m *Module) Free(ctx context.Context, ptr, size uint32) error {
	if _, err := m.free.Call(ctx, uint64(ptr), uint64(size)); err != nil {
		return errors.Wrap(errors.PhaseMemory, errors.KindAllocation, err, "free module memory")
	}
	return nil
}

// Invoke calls a codec export by name.
func (m *Module) Invoke(ctx context.Context, export string, args ...uint64) (int64, error) {
	fn := m.mod.ExportedFunction(export)
	if fn == nil {
		return 0, errors.NotFound(export)
	}
	results, err := fn.Call(ctx, args...)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseModule, errors.KindInvalidInput, err, "invoke "+export)
	}
	if len(results) == 0 {
		return 0, nil
	}
	// Codec entry points return i32; sign-extend through the wazero u64.
	return int64(int32(uint32(results[0]))), nil
}

// Close releases the module and the runtime underneath it.
func (m *Module) Close(ctx context.Context) error {
	return m.runtime.Close(ctx)
}
