// Package wbio reads and writes matrices in the plain text format used by
// the course datasets: a header line holding the row and column counts
// followed by the values in row-major order, separated by whitespace.
package wbio

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/LynnColeArt/gudamm"
	"github.com/juju/errors"
)

// maxPrealloc bounds the values reserved before any of them is read.
const maxPrealloc = 1 << 20

// Import parses a matrix from r.
func Import(r io.Reader) (*gudamm.Matrix, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(bufio.ScanWords)

	next := func(what string) (string, error) {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", errors.Trace(err)
			}
			return "", errors.NotValidf("matrix data: missing %s", what)
		}
		return scanner.Text(), nil
	}
	dim := func(what string) (int, error) {
		token, err := next(what)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(token)
		if err != nil || n < 1 {
			return 0, errors.NotValidf("%s %q", what, token)
		}
		return n, nil
	}

	rows, err := dim("row count")
	if err != nil {
		return nil, err
	}
	cols, err := dim("column count")
	if err != nil {
		return nil, err
	}
	if rows > math.MaxInt/cols {
		return nil, errors.NotValidf("matrix dimensions %dx%d", rows, cols)
	}
	// the header is untrusted, the buffer grows with the values actually read
	n := rows * cols
	data := make([]float32, 0, min(n, maxPrealloc))
	for i := 0; i < n; i++ {
		token, err := next(fmt.Sprintf("value %d of %d", i+1, n))
		if err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(token, 32)
		if err != nil {
			return nil, errors.NotValidf("value %d %q", i+1, token)
		}
		data = append(data, float32(v))
	}
	if scanner.Scan() {
		return nil, errors.NotValidf("matrix data: trailing value %q after %dx%d matrix", scanner.Text(), rows, cols)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	return gudamm.NewMatrixFromData(rows, cols, data)
}

// Export writes m to w, one matrix row per line.
func Export(w io.Writer, m *gudamm.Matrix) error {
	if err := m.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%d %d\n", m.Rows, m.Columns); err != nil {
		return errors.Trace(err)
	}
	buf := make([]byte, 0, 32)
	for i := 0; i < m.Rows; i++ {
		for j, v := range m.Row(i) {
			buf = buf[:0]
			if j > 0 {
				buf = append(buf, ' ')
			}
			buf = strconv.AppendFloat(buf, float64(v), 'g', -1, 32)
			if _, err := bw.Write(buf); err != nil {
				return errors.Trace(err)
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(bw.Flush())
}

// ImportFile reads the matrix stored at path.
func ImportFile(path string) (*gudamm.Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer f.Close()
	m, err := Import(f)
	if err != nil {
		return nil, errors.Annotatef(err, "import %s", path)
	}
	return m, nil
}

// ExportFile writes m to path, replacing any existing file.
func ExportFile(path string, m *gudamm.Matrix) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = errors.Trace(closeErr)
		}
	}()
	return errors.Annotatef(Export(f, m), "export %s", path)
}
