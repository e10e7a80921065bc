// Package stream adapts a streaming session to standard byte-stream
// transforms: a push-based io.WriteCloser and a pull-based io.ReadCloser
// with downstream backpressure.
package stream

import (
	"context"
	"io"

	"github.com/wasmpress/wasmpress/errors"
	"github.com/wasmpress/wasmpress/session"
)

// Writer is the push transform: every Write feeds the session one chunk and
// forwards whatever output it produced downstream. Close delivers the finish
// chunk, drains trailing output, and destroys the session. Any error from
// the session or the downstream writer aborts the transform and still
// releases the session.
//
// Writer is not safe for concurrent use; the session underneath serializes
// anyway, but interleaved Writes would interleave stream content.
type Writer struct {
	ctx    context.Context
	sess   *session.Session
	dst    io.Writer
	err    error
	closed bool
}

// NewWriter wraps sess as a push transform writing transformed bytes to dst.
// ctx bounds every module call made on behalf of this writer.
func NewWriter(ctx context.Context, sess *session.Session, dst io.Writer) *Writer {
	return &Writer{ctx: ctx, sess: sess, dst: dst}
}

func (w *Writer) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	if w.closed {
		return 0, errors.New(errors.PhaseStream, errors.KindSessionState).
			Detail("write after close").Build()
	}

	out, err := w.sess.Feed(w.ctx, p, false)
	if err != nil {
		return 0, w.abort(err)
	}
	if len(out) > 0 {
		if _, err := w.dst.Write(out); err != nil {
			return 0, w.abort(err)
		}
	}
	return len(p), nil
}

// Close finishes the stream: feeds the finish chunk, drains everything the
// codec still holds, and destroys the session. Safe to call twice.
func (w *Writer) Close() error {
	if w.closed {
		return w.err
	}
	w.closed = true

	err := w.sess.Drain(w.ctx, func(out []byte) error {
		_, werr := w.dst.Write(out)
		return werr
	})
	if err != nil {
		return w.abort(err)
	}
	if err := w.sess.Destroy(w.ctx); err != nil {
		w.err = err
		return err
	}
	return nil
}

func (w *Writer) abort(err error) error {
	w.err = err
	_ = w.sess.Destroy(w.ctx)
	return err
}
