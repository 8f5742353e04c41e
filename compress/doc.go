// Package compress implements the codec registry that data block
// payloads pass through on their way to and from disk.
//
// A codec is an opaque byte transform selected by a numeric codec ID
// recorded in the data block. The engine hands the codec the raw
// serialized payload together with a Shape descriptor (datatype,
// post-stride frame count, values per frame, particle count) and
// stores the codec's output verbatim as block content. Decoding is
// symmetric.
//
// Built-in registrations:
//
//	0   uncompressed (NoOpCodec)
//	100 gzip
//	101 zstd
//	102 lz4
//	103 s2
//
// Codec IDs 1 (XTC) and 2 (TNG triple coding) are reserved by the
// format for the domain-specific trajectory codecs, which live outside
// this module; collaborators install them with Register. Using an
// unregistered ID fails at encode or decode time with the ID named.
//
// The zstd codec has two implementations selected at build time: the
// default pure-Go path (klauspost/compress/zstd) and a cgo path
// (valyala/gozstd) behind the cgozstd build tag.
package compress
