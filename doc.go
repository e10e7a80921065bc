// Package wasmpress drives compression codecs that live inside a WebAssembly
// compute module, reachable only through an explicit pointer/length ABI.
//
// The library moves byte streams across the linear-memory boundary, negotiates
// output-buffer sizing, and manages the lifecycle of stateful per-stream codec
// handles, both as one-shot calls and as incremental streaming sessions.
//
// # Architecture Overview
//
//	wasmpress/       Root package: Module/Memory capabilities, the result-code
//	                 convention, and the per-algorithm export bindings
//	├── arena/       Allocation bridge into module linear memory with scoped release
//	├── codec/       One-shot compress/decompress and the packed wire format
//	├── session/     Stateful streaming sessions with finish and drain semantics
//	├── stream/      io.Reader/io.Writer adapters over a session
//	├── engine/      wazero-backed compute module implementation
//	├── nativemod/   Pure-Go compute module with the identical ABI (no binary needed)
//	└── errors/      Structured error types
//
// # Quick Start
//
// Compress a buffer through a codec binary:
//
//	mod, err := engine.New(ctx, wasmBytes, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mod.Close(ctx)
//
//	c := codec.New(mod)
//	packed, err := c.CompressPacked(ctx, wasmpress.Gzip, data, codec.Options{Level: 6})
//
// Stream a large payload chunk by chunk:
//
//	sess, err := session.NewCompressor(mod, wasmpress.Gzip)
//	out, err := sess.Feed(ctx, chunk, false)
//	...
//	tail, err := sess.Feed(ctx, nil, true)
//
// # The ABI
//
// A compute module exports alloc_bytes/free_bytes plus per-codec entry points
// such as compress_gzip_level_6 or create_gzip_compressor. Every codec call
// shares one result-code convention: n >= 0 means n bytes were written, -1 is
// an unrecoverable failure, and n < -1 asks the host to retry once with an
// output buffer of -n bytes. Non-finish chunk calls may legitimately return 0
// when the codec buffers input internally.
package wasmpress
