package checkpoint

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const fileVersion = 1

var ErrFileVersion = errors.New("checkpoint: unsupported file version")

// Header is the JSON line at the top of a checkpoint file, readable with
// `zstdcat | head -1`.
type Header struct {
	Version int    `json:"version"`
	Scene   string `json:"scene"`
	Tick    uint64 `json:"tick"`
	Objects int    `json:"objects"`
}

// WriteFile persists c as a zstd stream holding the header line followed by
// the gob-encoded checkpoint.
func WriteFile(path, scene string, c Checkpoint) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	return Encode(f, scene, c)
}

// Encode writes c to w in the checkpoint file format. The zstd encoder is
// closed on every path.
func Encode(w io.Writer, scene string, c Checkpoint) (err error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := enc.Close(); err == nil {
			err = cerr
		}
	}()
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, err := json.Marshal(Header{Version: fileVersion, Scene: scene, Tick: c.Tick, Objects: c.Len()})
	if err != nil {
		return err
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&c); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return bw.Flush()
}

// ReadFile loads a checkpoint written by WriteFile.
func ReadFile(path string) (Header, Checkpoint, error) {
	var (
		h Header
		c Checkpoint
	)
	f, err := os.Open(path)
	if err != nil {
		return h, c, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, c, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, c, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, c, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != fileVersion {
		return h, c, fmt.Errorf("%w: %d", ErrFileVersion, h.Version)
	}
	if err := gob.NewDecoder(br).Decode(&c); err != nil {
		return h, c, fmt.Errorf("gob decode: %w", err)
	}
	return h, c, nil
}
