// Package sink writes and reads the gzip JSON-lines files exchanged between
// pipeline stages, plus small JSON sidecar files.
package sink

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/rotisserie/eris"
)

// Writer streams values of type T to a gzip JSON-lines file. Output goes to
// a temporary file that replaces the target on Close, so a present target is
// always complete.
type Writer[T any] struct {
	path string
	tmp  *os.File
	bw   *bufio.Writer
	gz   *gzip.Writer
	enc  *json.Encoder
	n    int
}

// Create opens a writer for path, creating parent directories.
func Create[T any](path string) (*Writer[T], error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "sink: create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, eris.Wrapf(err, "sink: create %s", path)
	}
	bw := bufio.NewWriterSize(tmp, 1<<16)
	gz := gzip.NewWriter(bw)
	enc := json.NewEncoder(gz)
	enc.SetEscapeHTML(false)
	return &Writer[T]{path: path, tmp: tmp, bw: bw, gz: gz, enc: enc}, nil
}

// Write appends one value as a JSON line.
func (w *Writer[T]) Write(v T) error {
	if err := w.enc.Encode(v); err != nil {
		return eris.Wrapf(err, "sink: write %s", w.path)
	}
	w.n++
	return nil
}

// Count returns the number of values written.
func (w *Writer[T]) Count() int {
	return w.n
}

// Path returns the final output path.
func (w *Writer[T]) Path() string {
	return w.path
}

// Close flushes the file and moves it into place.
func (w *Writer[T]) Close() error {
	err := errors.Join(w.gz.Close(), w.bw.Flush(), w.tmp.Sync())
	if cerr := w.tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(w.tmp.Name())
		return eris.Wrapf(err, "sink: close %s", w.path)
	}
	if err := os.Rename(w.tmp.Name(), w.path); err != nil {
		_ = os.Remove(w.tmp.Name())
		return eris.Wrapf(err, "sink: rename %s", w.path)
	}
	return nil
}

// Abort discards everything written.
func (w *Writer[T]) Abort() error {
	_ = w.tmp.Close()
	if err := os.Remove(w.tmp.Name()); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "sink: abort %s", w.path)
	}
	return nil
}

// Read yields the values in a JSON-lines file, gzip-compressed or plain.
// Iteration stops after the first error.
func Read[T any](path string) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		f, err := os.Open(path)
		if err != nil {
			yield(zero, eris.Wrapf(err, "sink: open %s", path))
			return
		}
		defer f.Close() //nolint:errcheck

		r, err := decompress(bufio.NewReaderSize(f, 1<<16))
		if err != nil {
			yield(zero, eris.Wrapf(err, "sink: gzip header %s", path))
			return
		}
		dec := json.NewDecoder(r)
		for line := 1; ; line++ {
			var v T
			err := dec.Decode(&v)
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(zero, eris.Wrapf(err, "sink: decode %s value %d", path, line))
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// ReadAll collects every value in path.
func ReadAll[T any](path string) ([]T, error) {
	var out []T
	for v, err := range Read[T](path) {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decompress(br *bufio.Reader) (io.Reader, error) {
	magic, err := br.Peek(2)
	if err != nil || magic[0] != 0x1f || magic[1] != 0x8b {
		return br, nil
	}
	return gzip.NewReader(br)
}

// WriteJSON writes v as indented JSON to path, replacing it atomically.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "sink: marshal %s", path)
	}
	return WriteFile(path, append(data, '\n'))
}

// WriteFile writes data to path through a temporary file.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "sink: create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "sink: create %s", path)
	}
	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return eris.Wrapf(err, "sink: write %s", path)
	}
	return nil
}

// ReadJSON decodes the JSON document at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "sink: read %s", path)
	}
	return eris.Wrapf(json.Unmarshal(data, v), "sink: decode %s", path)
}

// Exists reports whether path names an existing file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
