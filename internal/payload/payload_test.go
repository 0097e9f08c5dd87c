package payload

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	type doc struct {
		Points []float64 `json:"points"`
	}
	in := doc{Points: make([]float64, 500)}
	for i := range in.Points {
		in.Points[i] = 0.25
	}

	data, err := Encode(in)
	require.NoError(t, err)

	var out doc
	require.NoError(t, Decode(data, &out))
	assert.Equal(t, in, out)
}

func TestCompress_Shrinks(t *testing.T) {
	raw := bytes.Repeat([]byte(`{"lat":52.52,"lng":13.40,"weight":0.7},`), 200)
	packed := Compress(raw)
	assert.Less(t, len(packed), len(raw)/5)

	back, err := Decompress(packed)
	require.NoError(t, err)
	assert.Equal(t, raw, back)
}

func TestDecompress_Garbage(t *testing.T) {
	_, err := Decompress([]byte("not zstd"))
	assert.Error(t, err)
}
