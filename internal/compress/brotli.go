package compress

import (
	"bytes"

	"github.com/andybalholm/brotli"
)

// Brotli trades encode time for the smallest export payloads.
type Brotli struct{}

func NewBrotli() Brotli {
	return Brotli{}
}

func (b Brotli) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
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

func (b Brotli) Decode(data []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(data))
	var buf bytes.Buffer
	_, err := buf.ReadFrom(r)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
