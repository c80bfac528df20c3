// Package arrayio persists images and sinograms either as a compact little
// endian binary file or as nested JSON arrays.
//
// The binary layout is two uint32 values (rows, cols) followed by rows*cols
// float64 values in row-major order.
package arrayio

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ErrMalformed is returned for truncated or ragged input.
var ErrMalformed = errors.New("arrayio: malformed array")

// WriteRaw writes m in the binary layout.
func WriteRaw(w io.Writer, m *mat.Dense) error {
	rows, cols := m.Dims()
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, [2]uint32{uint32(rows), uint32(cols)}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i := 0; i < rows; i++ {
		if err := binary.Write(bw, binary.LittleEndian, m.RawRowView(i)); err != nil {
			return fmt.Errorf("failed to write binary data: %w", err)
		}
	}
	return bw.Flush()
}

// MaxElements bounds the size of an array accepted by ReadRaw.
const MaxElements = 1 << 26

// readChunk is the number of values decoded per read.
const readChunk = 4096

// ReadRaw reads a matrix written by WriteRaw. The header is not trusted:
// arrays above MaxElements are rejected and the body is read incrementally,
// so a truncated file fails before its claimed size is allocated.
func ReadRaw(r io.Reader) (*mat.Dense, error) {
	br := bufio.NewReader(r)
	var header [2]uint32
	if err := binary.Read(br, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	rows, cols := uint64(header[0]), uint64(header[1])
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("%w: empty %dx%d array", ErrMalformed, rows, cols)
	}
	total := rows * cols
	if total > MaxElements {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d elements", ErrMalformed, rows, cols, MaxElements)
	}

	var data []float64
	chunk := make([]float64, readChunk)
	for remaining := total; remaining > 0; {
		n := min(remaining, readChunk)
		if err := binary.Read(br, binary.LittleEndian, chunk[:n]); err != nil {
			return nil, fmt.Errorf("%w: body: %v", ErrMalformed, err)
		}
		data = append(data, chunk[:n]...)
		remaining -= n
	}
	return mat.NewDense(int(rows), int(cols), data), nil
}

// WriteJSON writes m as a JSON array of rows.
func WriteJSON(w io.Writer, m *mat.Dense) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(ToRows(m))
}

// ReadJSON reads a JSON array of equally long rows.
func ReadJSON(r io.Reader) (*mat.Dense, error) {
	var rows [][]float64
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return FromRows(rows)
}

// ToRows copies m into a slice of rows.
func ToRows(m *mat.Dense) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}

// FromRows builds a matrix from a non-empty rectangular slice of rows.
func FromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: empty array", ErrMalformed)
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrMalformed, i, len(row), cols)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), cols, data), nil
}

// Save writes m to path, as JSON when the extension is .json and in the
// binary layout otherwise. Parent directories are created.
func Save(path string, m *mat.Dense) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if isJSON(path) {
		err = WriteJSON(f, m)
	} else {
		err = WriteRaw(f, m)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Load reads a matrix written by Save.
func Load(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if isJSON(path) {
		return ReadJSON(f)
	}
	return ReadRaw(f)
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
