package index

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/WessleyAI/wessley-docsearch/engine/domain"
)

// File layout, little-endian:
//
//	magic   [4]byte "WDIX"
//	version uint16
//	dim     uint32
//	count   uint32
//	data    count*dim float32
//	crc     uint32 (IEEE, over every preceding byte)
var magic = [4]byte{'W', 'D', 'I', 'X'}

const (
	formatVersion = 1
	headerSize    = 4 + 2 + 4 + 4
)

// Save writes the index to path, creating parent directories. The file is
// written to a temporary sibling and renamed into place.
func Save(f *Flat, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("index: save %s: %v: %w", path, err, domain.ErrIndexIO)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*")
	if err != nil {
		return fmt.Errorf("index: save %s: %v: %w", path, err, domain.ErrIndexIO)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp, f); err != nil {
		tmp.Close()
		return fmt.Errorf("index: save %s: %v: %w", path, err, domain.ErrIndexIO)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("index: save %s: %v: %w", path, err, domain.ErrIndexIO)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("index: save %s: %v: %w", path, err, domain.ErrIndexIO)
	}
	return nil
}

func write(w io.Writer, f *Flat) error {
	crc := crc32.NewIEEE()
	bw := bufio.NewWriter(io.MultiWriter(w, crc))

	var hdr [headerSize]byte
	copy(hdr[:4], magic[:])
	binary.LittleEndian.PutUint16(hdr[4:], formatVersion)
	binary.LittleEndian.PutUint32(hdr[6:], uint32(f.dim))
	binary.LittleEndian.PutUint32(hdr[10:], uint32(f.Len()))
	if _, err := bw.Write(hdr[:]); err != nil {
		return err
	}
	var buf [4]byte
	for _, v := range f.data {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		if _, err := bw.Write(buf[:]); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(buf[:], crc.Sum32())
	_, err := w.Write(buf[:])
	return err
}

// Load reads an index written by Save.
func Load(path string) (*Flat, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("index: load %s: %w: %w", path, domain.ErrIndexIO, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: load %s: %v: %w", path, err, domain.ErrIndexIO)
	}
	f, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("index: load %s: %v: %w: %w", path, err, domain.ErrIndexIO, domain.ErrCorruptIndex)
	}
	return f, nil
}

func decode(raw []byte) (*Flat, error) {
	if len(raw) < headerSize+4 {
		return nil, fmt.Errorf("truncated file (%d bytes)", len(raw))
	}
	body, trailer := raw[:len(raw)-4], raw[len(raw)-4:]
	if !bytes.Equal(body[:4], magic[:]) {
		return nil, fmt.Errorf("bad magic %q", body[:4])
	}
	if v := binary.LittleEndian.Uint16(body[4:]); v != formatVersion {
		return nil, fmt.Errorf("unsupported version %d", v)
	}
	if got, want := crc32.ChecksumIEEE(body), binary.LittleEndian.Uint32(trailer); got != want {
		return nil, fmt.Errorf("checksum mismatch: %08x != %08x", got, want)
	}

	dim := binary.LittleEndian.Uint32(body[6:])
	count := binary.LittleEndian.Uint32(body[10:])
	if dim == 0 || count == 0 {
		return nil, fmt.Errorf("empty index (dim=%d count=%d)", dim, count)
	}
	payload := body[headerSize:]
	// Compare by division: dim*count*4 can overflow for a forged header.
	cells := uint64(len(payload)) / 4
	if len(payload)%4 != 0 || cells%uint64(dim) != 0 || cells/uint64(dim) != uint64(count) {
		return nil, fmt.Errorf("payload is %d bytes, header says %d vectors of dimension %d", len(payload), count, dim)
	}

	data := make([]float32, int(dim)*int(count))
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
	}
	return &Flat{dim: int(dim), data: data}, nil
}
