package arrayio

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func sample() *mat.Dense {
	return mat.NewDense(2, 3, []float64{1.5, -2, 0, 3.25, 1e-9, 7})
}

// TestRawLayout pins the header and byte order of the binary format
func TestRawLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRaw(&buf, sample()))

	b := buf.Bytes()
	require.Len(t, b, 8+6*8)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(b[0:4]))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(b[4:8]))

	back, err := ReadRaw(bytes.NewReader(b))
	require.NoError(t, err)
	assert.True(t, mat.Equal(sample(), back))
}

func TestReadRawTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRaw(&buf, sample()))

	_, err := ReadRaw(bytes.NewReader(buf.Bytes()[:20]))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ReadRaw(bytes.NewReader([]byte{0, 0, 0, 0, 1, 0, 0, 0}))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestReadRawUntrustedHeader(t *testing.T) {
	header := func(rows, cols uint32) []byte {
		var buf bytes.Buffer
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, [2]uint32{rows, cols}))
		return buf.Bytes()
	}

	// The element count overflows a 32-bit product.
	_, err := ReadRaw(bytes.NewReader(header(0xFFFFFFFF, 0xFFFFFFFF)))
	assert.ErrorIs(t, err, ErrMalformed)

	// Representable but far above the cap.
	_, err = ReadRaw(bytes.NewReader(header(65536, 65536)))
	assert.ErrorIs(t, err, ErrMalformed)

	// Within the cap but the body is missing.
	_, err = ReadRaw(bytes.NewReader(header(4096, 4096)))
	assert.ErrorIs(t, err, ErrMalformed)

	// Bodies longer than one read chunk still round-trip.
	big := mat.NewDense(3, readChunk, nil)
	big.Set(2, readChunk-1, 7.5)
	var buf bytes.Buffer
	require.NoError(t, WriteRaw(&buf, big))
	got, err := ReadRaw(&buf)
	require.NoError(t, err)
	assert.True(t, mat.Equal(big, got))
}

func TestReadJSONRagged(t *testing.T) {
	_, err := ReadJSON(strings.NewReader(`[[1, 2], [3]]`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ReadJSON(strings.NewReader(`[]`))
	assert.ErrorIs(t, err, ErrMalformed)

	m, err := ReadJSON(strings.NewReader(`[[1, 2], [3, 4]]`))
	require.NoError(t, err)
	assert.Equal(t, 4.0, m.At(1, 1))
}

func TestSaveLoadByExtension(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"sino.bin", "sino.JSON", "nested/sino.raw"} {
		path := filepath.Join(dir, name)
		require.NoError(t, Save(path, sample()), name)

		back, err := Load(path)
		require.NoError(t, err, name)
		assert.True(t, mat.Equal(sample(), back), name)
	}

	_, err := Load(filepath.Join(dir, "absent.bin"))
	assert.Error(t, err)
}
