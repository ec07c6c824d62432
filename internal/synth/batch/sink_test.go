package batch

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkLine struct {
	N     int `json:"n"`
	Extra any `json:"extra,omitempty"`
}

func TestJSONLWriterFailedWriteLeavesNoPartialLines(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter[sinkLine](&buf)

	err := w.Write(sinkLine{N: 1}, sinkLine{N: 2, Extra: func() {}})
	require.Error(t, err)
	assert.Empty(t, buf.String())

	require.NoError(t, w.Write(sinkLine{N: 3}))
	assert.Equal(t, "{\"n\":3}\n", buf.String())
}

func TestJSONLWriterKeepsHTML(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter[map[string]string](&buf)
	require.NoError(t, w.Write(map[string]string{"Q": "stocks <and> bonds & cash"}))
	assert.Equal(t, "{\"Q\":\"stocks <and> bonds & cash\"}\n", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestJSONLWriterReportsWriteError(t *testing.T) {
	w := NewJSONLWriter[sinkLine](failingWriter{})
	assert.ErrorContains(t, w.Write(sinkLine{N: 1}), "disk full")
}

func TestCreateJSONLAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.jsonl")

	w, err := CreateJSONL[sinkLine](path, false)
	require.NoError(t, err)
	require.NoError(t, w.Write(sinkLine{N: 1}))
	require.NoError(t, w.Close())

	w, err = CreateJSONL[sinkLine](path, true)
	require.NoError(t, err)
	require.NoError(t, w.Write(sinkLine{N: 2}))
	require.NoError(t, w.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"n\":1}\n{\"n\":2}\n", string(b))
}
