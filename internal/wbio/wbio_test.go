package wbio

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/LynnColeArt/gudamm"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImport(t *testing.T) {
	m, err := Import(strings.NewReader("2 3\n1 2 3\n4.5 -5 6e-1\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Rows)
	assert.Equal(t, 3, m.Columns)
	assert.Equal(t, []float32{1, 2, 3, 4.5, -5, 0.6}, m.Data)
}

func TestImportLayoutIndependent(t *testing.T) {
	// values may wrap lines arbitrarily
	m, err := Import(strings.NewReader("2 2 1\n2 3\n\n4"))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, m.Data)
}

func TestImportInvalid(t *testing.T) {
	tests := map[string]string{
		"empty":              "",
		"missing cols":       "3",
		"zero rows":          "0 2",
		"negative cols":      "2 -1",
		"bad header":         "two 2",
		"too few values":     "2 2\n1 2 3",
		"bad value":          "1 2\n1 x",
		"trailing value":     "1 1\n1 2",
		// rows*cols wraps around int
		"overflowing header": "3037000500 3037000500 1",
		"huge header":        "100000 100000\n1 2",
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Import(strings.NewReader(text))
			assert.True(t, errors.Is(err, errors.NotValid), "got %v", err)
		})
	}
}

func TestExport(t *testing.T) {
	m, err := gudamm.NewMatrixFromRows([][]float32{{1, 0.5}, {-2, 3.25}})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, m))
	assert.Equal(t, "2 2\n1 0.5\n-2 3.25\n", buf.String())

	assert.Error(t, Export(&buf, &gudamm.Matrix{Rows: 2, Columns: 2}))
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.raw")
	m, err := gudamm.NewMatrixFromRows([][]float32{{1.1, 2.2, 3.3}, {4.4, 5.5, 6.6}})
	require.NoError(t, err)
	require.NoError(t, ExportFile(path, m))

	loaded, err := ImportFile(path)
	require.NoError(t, err)
	assert.Equal(t, m, loaded)

	_, err = ImportFile(filepath.Join(t.TempDir(), "missing.raw"))
	assert.Error(t, err)
}
