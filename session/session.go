// Package session implements stateful streaming codec sessions. A session
// wraps one compute-module handle, feeds it chunks tagged with a finish
// flag, and owns the handle's lifecycle from lazy creation to destruction.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wasmpress/wasmpress"
	"github.com/wasmpress/wasmpress/arena"
	"github.com/wasmpress/wasmpress/errors"
)

// State is the session lifecycle. Destroyed is terminal and idempotent to
// re-enter.
type State int32

const (
	StateUninitialized State = iota
	StateActive
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Session is a streaming codec instance. A mutex serializes all operations:
// the module-side handle carries internal state that concurrent calls would
// corrupt, so racing callers wait rather than interleave. Independent
// sessions own distinct handles and may run concurrently.
type Session struct {
	mod wasmpress.Module
	log *zap.Logger
	alg wasmpress.Algorithm

	create      string
	feed        string
	destroy     string
	createArgs  []uint64
	incremental bool
	decompress  bool

	mu     sync.Mutex
	state  State
	handle uint32
	fed    uint64 // input bytes accepted so far, drives finish-call estimates
}

// Option configures a session.
type Option func(*config)

type config struct {
	level int
	log   *zap.Logger
}

// WithLevel sets the compression level for compressor sessions that take
// one. 0 selects the codec default.
func WithLevel(level int) Option {
	return func(c *config) { c.level = level }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.log = l }
}

// NewCompressor creates a streaming compression session. The module handle
// is created lazily on the first Feed.
func NewCompressor(mod wasmpress.Module, alg wasmpress.Algorithm, opts ...Option) (*Session, error) {
	b, ok := alg.Binding()
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseSession, "unknown algorithm %q", alg)
	}
	if b.CreateCompressor == "" {
		return nil, errors.Unsupported(string(alg), "no streaming compressor in the module ABI")
	}
	cfg := applyOptions(opts)

	s := &Session{
		mod:         mod,
		log:         cfg.log,
		alg:         alg,
		create:      b.CreateCompressor,
		feed:        b.CompressChunk,
		destroy:     b.DestroyCompressor,
		incremental: b.IncrementalCompress,
	}
	if b.CreateTakesLevel {
		level := cfg.level
		if level <= 0 {
			level = wasmpress.DefaultLevel
		}
		s.createArgs = []uint64{uint64(level)}
	}
	return s, nil
}

// NewDecompressor creates a streaming decompression session.
func NewDecompressor(mod wasmpress.Module, alg wasmpress.Algorithm, opts ...Option) (*Session, error) {
	b, ok := alg.Binding()
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseSession, "unknown algorithm %q", alg)
	}
	if b.CreateDecompressor == "" {
		return nil, errors.Unsupported(string(alg), "no streaming decompressor in the module ABI")
	}
	cfg := applyOptions(opts)

	return &Session{
		mod:        mod,
		log:        cfg.log,
		alg:        alg,
		create:     b.CreateDecompressor,
		feed:       b.DecompressChunk,
		destroy:    b.DestroyDecompressor,
		decompress: true,
	}, nil
}

func applyOptions(opts []Option) *config {
	cfg := &config{log: zap.NewNop()}
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// Algorithm returns the session's codec.
func (s *Session) Algorithm() wasmpress.Algorithm { return s.alg }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Feed passes one chunk to the codec and returns whatever output it
// produced. An empty result on a non-finish chunk means the codec buffered
// the input internally; whole-block formats do this for every chunk until
// the finish call.
//
// A compressor session transitions to Destroyed once a finish feed
// completes, whatever its output length: the module drops the handle then.
// A decompressor may hold more output than one buffer returns, so it stays
// Active while finish feeds keep producing bytes and reaches Destroyed on
// the first empty one (see Drain).
//
// A failed Feed leaves the session in its prior state, and every arena
// opened within the call is released before it returns.
func (s *Session) Feed(ctx context.Context, chunk []byte, finish bool) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDestroyed {
		return nil, errors.SessionState("feed on destroyed %s session", s.alg)
	}
	if s.state == StateUninitialized {
		// First caller creates the handle; anyone racing is already
		// queued on the mutex and will observe the result.
		if err := s.init(ctx); err != nil {
			return nil, err
		}
	}

	out, err := s.feedLocked(ctx, chunk, finish)
	if err != nil {
		return nil, err
	}

	s.fed += uint64(len(chunk))
	if finish && (!s.decompress || len(out) == 0) {
		s.state = StateDestroyed
		s.log.Debug("session finished",
			zap.String("algorithm", string(s.alg)),
			zap.Uint32("handle", s.handle))
	}
	return out, nil
}

// Drain repeatedly feeds empty finish chunks until the codec stops
// producing output, forwarding each non-empty result to fn. Required after
// logical end-of-stream for decompression, which may hold more output than
// one buffer or trailing state past the final input chunk. The session ends
// Destroyed.
func (s *Session) Drain(ctx context.Context, fn func([]byte) error) error {
	for {
		if s.State() == StateDestroyed {
			return nil
		}
		out, err := s.Feed(ctx, nil, true)
		if err != nil {
			return err
		}
		if len(out) == 0 {
			return nil
		}
		if err := fn(out); err != nil {
			return err
		}
	}
}

// Destroy terminates the session early. Idempotent: safe before the first
// Feed, after a finish, and any number of times. A Destroy racing a Feed is
// ordered after it; the handle is never released mid-call.
func (s *Session) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prior := s.state
	s.state = StateDestroyed
	if prior != StateActive {
		return nil
	}
	if _, err := s.mod.Invoke(ctx, s.destroy, uint64(s.handle)); err != nil {
		return errors.Wrap(errors.PhaseSession, errors.KindInvalidInput, err, "invoke "+s.destroy)
	}
	s.log.Debug("session destroyed",
		zap.String("algorithm", string(s.alg)),
		zap.Uint32("handle", s.handle))
	return nil
}

// init creates the module-side handle. Caller holds s.mu.
func (s *Session) init(ctx context.Context) error {
	rc, err := s.mod.Invoke(ctx, s.create, s.createArgs...)
	if err != nil {
		return errors.Wrap(errors.PhaseSession, errors.KindAllocation, err, "invoke "+s.create)
	}
	if rc == 0 {
		return errors.New(errors.PhaseSession, errors.KindAllocation).
			Algorithm(string(s.alg)).
			Export(s.create).
			Detail("module refused to create a codec instance").
			Build()
	}
	s.handle = uint32(rc)
	s.state = StateActive
	s.log.Debug("session created",
		zap.String("algorithm", string(s.alg)),
		zap.Uint32("handle", s.handle))
	return nil
}

// feedLocked crosses the memory boundary once, with the single bounded
// resize retry. Caller holds s.mu. The retry re-invokes with an empty input
// arena: the module consumed the chunk on the first call and only needs a
// large enough buffer to hand the output back.
func (s *Session) feedLocked(ctx context.Context, chunk []byte, finish bool) ([]byte, error) {
	sc := arena.NewScope(s.mod)
	defer sc.Free(ctx)

	in, err := sc.FromBytes(ctx, chunk)
	if err != nil {
		return nil, err
	}
	estimate := s.estimate(len(chunk), finish)
	out, err := sc.Alloc(ctx, estimate)
	if err != nil {
		return nil, err
	}

	fin := uint64(0)
	if finish {
		fin = 1
	}
	rc, err := s.mod.Invoke(ctx, s.feed,
		uint64(s.handle), uint64(in.Ptr()), uint64(in.Size()),
		uint64(out.Ptr()), uint64(out.Size()), fin)
	if err != nil {
		return nil, errors.Wrap(s.phase(), errors.KindInvalidInput, err, "invoke "+s.feed)
	}

	outcome := wasmpress.Classify(rc)
	if outcome.Kind == wasmpress.OutcomeNeedsSize {
		s.log.Debug("chunk output buffer undersized, retrying",
			zap.String("export", s.feed),
			zap.Uint32("estimate", estimate),
			zap.Uint32("needed", outcome.N))

		out.Free(ctx)
		out, err = sc.Alloc(ctx, outcome.N)
		if err != nil {
			return nil, err
		}
		rc, err = s.mod.Invoke(ctx, s.feed,
			uint64(s.handle), 0, 0, uint64(out.Ptr()), uint64(out.Size()), fin)
		if err != nil {
			return nil, errors.Wrap(s.phase(), errors.KindInvalidInput, err, "invoke "+s.feed)
		}
		retried := wasmpress.Classify(rc)
		if retried.Kind == wasmpress.OutcomeNeedsSize {
			return nil, errors.RetryExceeded(s.phase(), string(s.alg), outcome.N, retried.N)
		}
		outcome = retried
	}

	switch outcome.Kind {
	case wasmpress.OutcomeFatal:
		if s.decompress {
			return nil, errors.Decode(string(s.alg), s.feed, "module reported unrecoverable failure")
		}
		return nil, errors.Encode(string(s.alg), s.feed, "module reported unrecoverable failure")
	default:
		if outcome.N == 0 {
			return nil, nil
		}
		if outcome.N > out.Size() {
			return nil, errors.New(s.phase(), errors.KindOutOfBounds).
				Algorithm(string(s.alg)).
				Detail("module claims %d bytes written into %d-byte buffer", outcome.N, out.Size()).
				Build()
		}
		return out.Read(outcome.N)
	}
}

func (s *Session) phase() errors.Phase {
	if s.decompress {
		return errors.PhaseDecompress
	}
	return errors.PhaseCompress
}

// estimate sizes the output arena for one feed. Compression bounds are
// conservative; decompression guesses an expansion ratio and leans on the
// bounded retry. Whole-block codecs emit everything on the finish call, so
// finish estimates cover the accumulated input rather than the last chunk.
func (s *Session) estimate(chunkLen int, finish bool) uint32 {
	total := s.fed + uint64(chunkLen)
	if s.decompress {
		if finish || chunkLen == 0 {
			return wasmpress.DecompressEstimate(total)
		}
		return wasmpress.DecompressEstimate(uint64(chunkLen))
	}
	if finish && !s.incremental {
		return wasmpress.CompressBound(total)
	}
	return wasmpress.CompressBound(uint64(chunkLen))
}
