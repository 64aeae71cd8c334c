package backup

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Compressed reports whether path names a zstd-compressed backup.
func Compressed(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".zst")
}

// WriteFile writes doc to path, zstd-compressed when the path ends in .zst.
// The file is written to a temporary name and renamed into place.
func WriteFile(path string, doc *Document) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".backup-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	buf := bufio.NewWriter(tmp)
	var w io.Writer = buf
	var enc *zstd.Encoder
	if Compressed(path) {
		enc, err = zstd.NewWriter(buf)
		if err != nil {
			tmp.Close()
			return err
		}
		w = enc
	}

	if err := Write(w, doc); err != nil {
		tmp.Close()
		return err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := buf.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadFile parses the backup at path, decompressing .zst files.
func ReadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if Compressed(path) {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		r = dec
	}
	return Parse(r)
}
