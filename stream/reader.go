package stream

import (
	"context"
	"io"

	"github.com/wasmpress/wasmpress/session"
)

// defaultChunkSize is how much upstream input one fill pulls. Reads only
// consume upstream as the caller drains output, so backpressure falls out of
// the pull loop.
const defaultChunkSize = 32 << 10

// Reader is the pull transform: each Read serves buffered output first, then
// pulls one upstream chunk through the session. At upstream EOF it drains
// the session step by step and finally reports io.EOF.
type Reader struct {
	ctx    context.Context
	sess   *session.Session
	src    io.Reader
	chunk  []byte
	buf    []byte
	srcEOF bool
	done   bool
	err    error
}

// NewReader wraps sess as a pull transform over src. ctx bounds every module
// call made on behalf of this reader.
func NewReader(ctx context.Context, sess *session.Session, src io.Reader) *Reader {
	return &Reader{
		ctx:   ctx,
		sess:  sess,
		src:   src,
		chunk: make([]byte, defaultChunkSize),
	}
}

func (r *Reader) Read(p []byte) (int, error) {
	for {
		if len(r.buf) > 0 {
			n := copy(p, r.buf)
			r.buf = r.buf[n:]
			return n, nil
		}
		if r.err != nil {
			return 0, r.err
		}
		if r.done {
			return 0, io.EOF
		}
		if err := r.fill(); err != nil {
			r.err = err
			_ = r.sess.Destroy(r.ctx)
			return 0, err
		}
	}
}

// fill advances the transform by one step: either one upstream chunk fed
// through the session, or one drain step after upstream EOF.
func (r *Reader) fill() error {
	if !r.srcEOF {
		n, err := r.src.Read(r.chunk)
		if n > 0 {
			out, ferr := r.sess.Feed(r.ctx, r.chunk[:n], false)
			if ferr != nil {
				return ferr
			}
			r.buf = out
		}
		if err == io.EOF {
			r.srcEOF = true
			return nil
		}
		return err
	}

	if r.sess.State() == session.StateDestroyed {
		r.done = true
		return nil
	}
	out, err := r.sess.Feed(r.ctx, nil, true)
	if err != nil {
		return err
	}
	if len(out) == 0 {
		r.done = true
		return r.sess.Destroy(r.ctx)
	}
	r.buf = out
	return nil
}

// Close destroys the underlying session and discards buffered output.
// Subsequent Reads fail.
func (r *Reader) Close() error {
	if !r.done && r.err == nil {
		r.err = io.ErrClosedPipe
	}
	r.buf = nil
	return r.sess.Destroy(r.ctx)
}
