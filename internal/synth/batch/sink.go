package batch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Sink receives whole units of output. One Write call is never interleaved
// with another.
type Sink[T any] interface {
	Write(items ...T) error
}

// JSONLWriter writes one JSON object per line. A Write is encoded in full
// before any byte reaches the underlying writer, so a failed call writes
// nothing and the lines of one call stay contiguous.
type JSONLWriter[T any] struct {
	mu     sync.Mutex
	w      io.Writer
	buf    bytes.Buffer
	enc    *json.Encoder
	closer io.Closer
}

func NewJSONLWriter[T any](w io.Writer) *JSONLWriter[T] {
	jw := &JSONLWriter[T]{w: w}
	jw.enc = json.NewEncoder(&jw.buf)
	jw.enc.SetEscapeHTML(false)
	if c, ok := w.(io.Closer); ok {
		jw.closer = c
	}
	return jw
}

// CreateJSONL opens path for writing, creating parent directories. With
// appendMode the existing content is kept.
func CreateJSONL[T any](path string, appendMode bool) (*JSONLWriter[T], error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return NewJSONLWriter[T](f), nil
}

func (j *JSONLWriter[T]) Write(items ...T) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.buf.Reset()
	for _, it := range items {
		if err := j.enc.Encode(it); err != nil {
			j.buf.Reset()
			return fmt.Errorf("encode line: %w", err)
		}
	}
	if _, err := j.w.Write(j.buf.Bytes()); err != nil {
		return fmt.Errorf("write lines: %w", err)
	}
	return nil
}

func (j *JSONLWriter[T]) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}
