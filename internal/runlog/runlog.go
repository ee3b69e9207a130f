// Package runlog persists one compressed JSONL event stream per run: every
// advance, action dispatch, check outcome and pause the engine performs.
package runlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Entry kinds.
const (
	KindChunkStart = "chunk_start"
	KindChunkEnd   = "chunk_end"
	KindAdvance    = "advance"
	KindAction     = "action"
	KindCheck      = "check"
	KindPause      = "pause"
	KindCleanup    = "cleanup"
	KindTransport  = "transport_error"
)

// Entry is one engine event.
type Entry struct {
	Time   time.Time `json:"time"`
	Kind   string    `json:"kind"`
	Chunk  int       `json:"chunk"`
	Tick   int       `json:"tick"`
	Test   string    `json:"test,omitempty"`
	Detail string    `json:"detail,omitempty"`
	Ticks  int       `json:"ticks,omitempty"` // advance width
	OK     *bool     `json:"ok,omitempty"`    // check outcome
}

// Writer appends zstd-compressed JSONL entries to one file.
type Writer struct {
	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

// Create opens a new run log at path, creating parent directories.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{
		f:   f,
		enc: enc,
		w:   bufio.NewWriterSize(enc, 128*1024),
	}, nil
}

// DefaultPath names a run log inside dir after the wall clock.
func DefaultPath(dir string) string {
	return filepath.Join(dir, fmt.Sprintf("run-%s.jsonl.zst", time.Now().UTC().Format("20060102-150405")))
}

func (w *Writer) Write(e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

// Read decodes every entry of a run log, calling fn per entry.
func Read(path string, fn func(Entry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return sc.Err()
}
