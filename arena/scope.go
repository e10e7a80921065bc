package arena

import (
	"context"

	"github.com/wasmpress/wasmpress"
)

// Scope tracks arenas allocated within one operation so a single deferred
// Free releases all of them on every exit path, including errors thrown
// mid-operation. Arenas freed early (e.g. the undersized output buffer on
// the resize-retry path) are skipped by their own idempotence.
type Scope struct {
	mod    wasmpress.Module
	arenas []*Arena
}

// NewScope creates an empty scope bound to mod.
func NewScope(mod wasmpress.Module) *Scope {
	return &Scope{mod: mod, arenas: make([]*Arena, 0, 3)}
}

// Alloc reserves size bytes and tracks the arena for release.
func (s *Scope) Alloc(ctx context.Context, size uint32) (*Arena, error) {
	a, err := Alloc(ctx, s.mod, size)
	if err != nil {
		return nil, err
	}
	s.arenas = append(s.arenas, a)
	return a, nil
}

// FromBytes allocates and fills an arena from data, tracking it for release.
func (s *Scope) FromBytes(ctx context.Context, data []byte) (*Arena, error) {
	a, err := FromBytes(ctx, s.mod, data)
	if err != nil {
		return nil, err
	}
	s.arenas = append(s.arenas, a)
	return a, nil
}

// Free releases every tracked arena in reverse allocation order. Returns the
// first release error but keeps releasing the rest.
func (s *Scope) Free(ctx context.Context) error {
	var first error
	for i := len(s.arenas) - 1; i >= 0; i-- {
		if err := s.arenas[i].Free(ctx); err != nil && first == nil {
			first = err
		}
	}
	s.arenas = s.arenas[:0]
	return first
}

// Count returns the number of tracked arenas.
func (s *Scope) Count() int {
	return len(s.arenas)
}
