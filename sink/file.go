// Package sink moves flushed record batches out of a worker's memory:
// onto disk as JSON batch files (optionally zstd-compressed), or over
// the wire to a cloud ingest function. Reading accepts both persisted
// shapes: a bare array of records, or a full store object with
// identity and checkpoints.
package sink

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/tenuki-go/tenuki/selfplay"
)

// FileSink writes record batches under one directory. Safe for use
// from one flusher goroutine; the encoder is reused across writes.
type FileSink struct {
	dir      string
	compress bool
	encoder  *zstd.Encoder
}

func NewFileSink(dir string, compress bool) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	s := &FileSink{dir: dir, compress: compress}
	if compress {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, err
		}
		s.encoder = enc
	}
	return s, nil
}

// WriteBatch persists a record range as one batch file named after the
// producer identity and flush sequence, and returns the path.
func (s *FileSink) WriteBatch(identity string, flushSeq int64, records []selfplay.Record) (string, error) {
	data, err := selfplay.EncodeBatch(records)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("batch-%s-%d.json", identity, flushSeq)
	path, err := s.write(name, data)
	if err != nil {
		return "", err
	}
	log.Debug().Str("path", path).Int("records", len(records)).Msg("wrote batch file")
	return path, nil
}

// WriteStore persists the full-store shape (identity + checkpoints +
// records) the same way.
func (s *FileSink) WriteStore(store *selfplay.Store, flushSeq int64) (string, error) {
	data, err := store.EncodeJSON()
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("store-%s-%d.json", store.Identity(), flushSeq)
	return s.write(name, data)
}

// write lands data under name, compressing when configured. The bytes
// go to a temp file first and are renamed into place, so a reader
// never sees a half-written batch.
func (s *FileSink) write(name string, data []byte) (string, error) {
	if s.compress {
		data = s.encoder.EncodeAll(data, nil)
		name += ".zst"
	}
	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return path, nil
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// ReadBatchFile loads any batch file this pipeline writes: compressed
// or not (sniffed by magic bytes, not filename), bare record array or
// full store object. The records come back along with the identity
// and checkpoints when the file had them.
func ReadBatchFile(path string) (*selfplay.Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(data, zstdMagic) {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		if data, err = dec.DecodeAll(data, nil); err != nil {
			return nil, fmt.Errorf("decompressing %s: %w", path, err)
		}
	}

	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%s: empty batch file", path)
	}
	switch trimmed[0] {
	case '[':
		records, err := selfplay.DecodeBatch(trimmed)
		if err != nil {
			return nil, err
		}
		store := selfplay.NewStore("")
		for _, rec := range records {
			store.AddRecord(rec)
		}
		return store, nil
	case '{':
		return selfplay.DecodeStore(trimmed)
	default:
		return nil, fmt.Errorf("%s: not a JSON batch file", path)
	}
}
