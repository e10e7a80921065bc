package arena

import (
	"bytes"
	"context"
	"testing"

	"github.com/wasmpress/wasmpress/errors"
	"github.com/wasmpress/wasmpress/nativemod"
)

func TestArena_WriteRead(t *testing.T) {
	ctx := context.Background()
	mod := nativemod.New()
	defer mod.Close(ctx)

	a, err := Alloc(ctx, mod, 16)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	defer a.Free(ctx)

	data := []byte("hello arena")
	if err := a.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := a.Read(uint32(len(data)))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("read back %q, want %q", got, data)
	}
}

func TestArena_ZeroLengthAlloc(t *testing.T) {
	ctx := context.Background()
	mod := nativemod.New()
	defer mod.Close(ctx)

	if _, err := Alloc(ctx, mod, 0); err == nil {
		t.Fatal("zero-length alloc should fail")
	}
}

func TestFromBytes_Empty(t *testing.T) {
	ctx := context.Background()
	mod := nativemod.New()
	defer mod.Close(ctx)

	a, err := FromBytes(ctx, mod, nil)
	if err != nil {
		t.Fatalf("FromBytes(nil): %v", err)
	}
	if a.Ptr() != 0 || a.Size() != 0 {
		t.Errorf("empty input should produce a null arena, got ptr=%d size=%d", a.Ptr(), a.Size())
	}
	if err := a.Free(ctx); err != nil {
		t.Errorf("freeing a null arena should be a no-op: %v", err)
	}
	if mod.AllocCount() != 0 {
		t.Errorf("null arena must not touch the module allocator, %d allocs", mod.AllocCount())
	}
}

func TestArena_WriteOverflow(t *testing.T) {
	ctx := context.Background()
	mod := nativemod.New()
	defer mod.Close(ctx)

	a, err := Alloc(ctx, mod, 4)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	defer a.Free(ctx)

	err = a.Write([]byte("more than four"))
	if !errors.IsKind(err, errors.KindOutOfBounds) {
		t.Errorf("expected out_of_bounds, got %v", err)
	}
	if _, err := a.Read(8); !errors.IsKind(err, errors.KindOutOfBounds) {
		t.Errorf("expected out_of_bounds read, got %v", err)
	}
}

func TestArena_FreeIdempotent(t *testing.T) {
	ctx := context.Background()
	mod := nativemod.New()
	defer mod.Close(ctx)

	a, err := Alloc(ctx, mod, 8)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if err := a.Free(ctx); err != nil {
		t.Fatalf("first free: %v", err)
	}
	if err := a.Free(ctx); err != nil {
		t.Fatalf("second free must be a no-op: %v", err)
	}
	if mod.FreeCount() != 1 {
		t.Errorf("module saw %d frees, want 1", mod.FreeCount())
	}
}

func TestScope_FreesEverything(t *testing.T) {
	ctx := context.Background()
	mod := nativemod.New()
	defer mod.Close(ctx)

	sc := NewScope(mod)
	if _, err := sc.Alloc(ctx, 32); err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if _, err := sc.FromBytes(ctx, []byte("tracked")); err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	if sc.Count() != 2 {
		t.Fatalf("scope tracks %d arenas, want 2", sc.Count())
	}

	if err := sc.Free(ctx); err != nil {
		t.Fatalf("scope free: %v", err)
	}
	if mod.LiveAllocations() != 0 {
		t.Errorf("%d allocations leaked", mod.LiveAllocations())
	}
	if mod.AllocCount() != mod.FreeCount() {
		t.Errorf("allocs %d != frees %d", mod.AllocCount(), mod.FreeCount())
	}
}

func TestScope_EarlyFreeThenScopeFree(t *testing.T) {
	ctx := context.Background()
	mod := nativemod.New()
	defer mod.Close(ctx)

	sc := NewScope(mod)
	a, err := sc.Alloc(ctx, 32)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	b, err := sc.Alloc(ctx, 64)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	_ = b

	// The retry path frees the undersized buffer before reallocating.
	if err := a.Free(ctx); err != nil {
		t.Fatalf("early free: %v", err)
	}
	if err := sc.Free(ctx); err != nil {
		t.Fatalf("scope free after early free: %v", err)
	}
	if mod.AllocCount() != mod.FreeCount() {
		t.Errorf("allocs %d != frees %d", mod.AllocCount(), mod.FreeCount())
	}
}
