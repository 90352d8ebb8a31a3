package compress

import (
	"bytes"

	"github.com/pierrec/lz4/v4"
)

// LZ4 favors speed over ratio, for large module exports.
type LZ4 struct{}

func NewLZ4() LZ4 {
	return LZ4{}
}

func (l LZ4) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	_, err := w.Write(data)
	if err != nil {
		return nil, err
	}

	err = w.Close()
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (l LZ4) Decode(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	var buf bytes.Buffer
	_, err := buf.ReadFrom(r)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
