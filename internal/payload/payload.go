// Package payload stores JSON documents zstd-compressed. Predictions carry
// hundreds of heatmap points and compress roughly tenfold.
package payload

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	encoderPool = sync.Pool{
		New: func() any {
			e, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1), zstd.WithEncoderLevel(zstd.SpeedDefault))
			if err != nil {
				panic(fmt.Sprintf("failed to create zstd encoder: %v", err))
			}
			return e
		},
	}
	decoderPool = sync.Pool{
		New: func() any {
			d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
			if err != nil {
				panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
			}
			return d
		},
	}
)

// Compress zstd-compresses raw bytes.
func Compress(raw []byte) []byte {
	enc := encoderPool.Get().(*zstd.Encoder)
	defer encoderPool.Put(enc)
	return enc.EncodeAll(raw, make([]byte, 0, len(raw)/4))
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	dec := decoderPool.Get().(*zstd.Decoder)
	defer decoderPool.Put(dec)
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}
	return out, nil
}

// Encode marshals v to JSON and compresses it.
func Encode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}
	return Compress(raw), nil
}

// Decode decompresses data and unmarshals it into v.
func Decode(data []byte, v any) error {
	raw, err := Decompress(data)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshaling payload: %w", err)
	}
	return nil
}
