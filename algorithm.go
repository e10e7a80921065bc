package wasmpress

// Algorithm names a codec the compute module may implement.
type Algorithm string

const (
	// Gzip is the DEFLATE-based gzip frame format. Streaming compression
	// flushes output on every chunk.
	Gzip Algorithm = "gzip"
	// LZ4 is the standard LZ4 frame format. Streaming calls buffer input
	// and emit the whole frame on the finish chunk.
	LZ4 Algorithm = "lz4"
	// LZ4Block is the raw LZ4 block format with no framing. One-shot only;
	// decoding needs an externally supplied output size, which the packed
	// wire format provides.
	LZ4Block Algorithm = "lz4-block"
	// Brotli is the Brotli format. Streaming compression buffers input and
	// emits everything on the finish chunk; the ABI ships no streaming
	// decompressor for it.
	Brotli Algorithm = "brotli"
)

// Binding maps an algorithm onto the export names of the compute module ABI.
// Empty names mean the module does not expose that capability for the
// algorithm.
type Binding struct {
	// Compress selects the one-shot compression export for a level.
	// Modules export fixed level variants, so levels snap to the nearest.
	Compress   func(level int) string
	Decompress string

	CreateCompressor  string
	CreateTakesLevel  bool
	CompressChunk     string
	DestroyCompressor string

	CreateDecompressor  string
	DecompressChunk     string
	DestroyDecompressor string

	// IncrementalCompress reports whether streaming compression flushes
	// partial output on non-finish chunks. Whole-block codecs return empty
	// output for every non-finish feed and emit everything at the end.
	IncrementalCompress bool
}

var bindings = map[Algorithm]Binding{
	Gzip: {
		Compress:            gzipCompressExport,
		Decompress:          "decompress_gzip",
		CreateCompressor:    "create_gzip_compressor",
		CreateTakesLevel:    true,
		CompressChunk:       "compress_gzip_chunk",
		DestroyCompressor:   "destroy_gzip_compressor",
		CreateDecompressor:  "create_gzip_decompressor",
		DecompressChunk:     "decompress_gzip_chunk",
		DestroyDecompressor: "destroy_gzip_decompressor",
		IncrementalCompress: true,
	},
	LZ4: {
		Compress:            func(int) string { return "compress_lz4" },
		Decompress:          "decompress_lz4",
		CreateCompressor:    "create_compressor",
		CompressChunk:       "compress_chunk",
		DestroyCompressor:   "destroy_compressor",
		CreateDecompressor:  "create_decompressor",
		DecompressChunk:     "decompress_chunk",
		DestroyDecompressor: "destroy_decompressor",
	},
	LZ4Block: {
		Compress:   func(int) string { return "compress_lz4_block" },
		Decompress: "decompress_lz4_block",
	},
	Brotli: {
		Compress:          brotliCompressExport,
		Decompress:        "decompress_brotli",
		CreateCompressor:  "create_brotli_compressor",
		CreateTakesLevel:  true,
		CompressChunk:     "compress_brotli_chunk",
		DestroyCompressor: "destroy_brotli_compressor",
	},
}

// Binding returns the export binding for the algorithm.
func (a Algorithm) Binding() (Binding, bool) {
	b, ok := bindings[a]
	return b, ok
}

func (a Algorithm) Valid() bool {
	_, ok := bindings[a]
	return ok
}

// DefaultLevel is used when callers pass level 0.
const DefaultLevel = 6

func gzipCompressExport(level int) string {
	switch {
	case level <= 0:
		return "compress_gzip_level_6"
	case level <= 3:
		return "compress_gzip_level_1"
	case level <= 6:
		return "compress_gzip_level_6"
	default:
		return "compress_gzip_level_9"
	}
}

func brotliCompressExport(level int) string {
	switch {
	case level <= 0:
		return "compress_brotli_level_6"
	case level <= 2:
		return "compress_brotli_level_1"
	case level <= 4:
		return "compress_brotli_level_4"
	case level <= 6:
		return "compress_brotli_level_6"
	default:
		return "compress_brotli_level_9"
	}
}
