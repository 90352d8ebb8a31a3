package compress

import "fmt"

// Compress encodes and decodes opaque byte payloads.
type Compress interface {
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

// Codec ids are persisted in export headers; values are append-only.
const (
	CodecNop    byte = 0
	CodecGZip   byte = 1
	CodecBrotli byte = 2
	CodecLZ4    byte = 3
)

// FromCodec returns the codec registered under the given id.
func FromCodec(id byte) (Compress, error) {
	switch id {
	case CodecNop:
		return NewNop(), nil
	case CodecGZip:
		return NewGZip(), nil
	case CodecBrotli:
		return NewBrotli(), nil
	case CodecLZ4:
		return NewLZ4(), nil
	default:
		return nil, fmt.Errorf("unknown compression codec: %d", id)
	}
}

// CodecID returns the persisted id of a codec instance.
func CodecID(c Compress) byte {
	switch c.(type) {
	case GZip:
		return CodecGZip
	case Brotli:
		return CodecBrotli
	case LZ4:
		return CodecLZ4
	default:
		return CodecNop
	}
}

// FromName resolves a codec by its user-facing name.
func FromName(name string) (Compress, error) {
	switch name {
	case "", "none", "nop":
		return NewNop(), nil
	case "gzip":
		return NewGZip(), nil
	case "brotli":
		return NewBrotli(), nil
	case "lz4":
		return NewLZ4(), nil
	default:
		return nil, fmt.Errorf("unknown compression codec: %s", name)
	}
}
