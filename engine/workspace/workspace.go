// Package workspace knows the fixed on-disk layout of a docsearch run and
// reads and writes its JSON files.
package workspace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/WessleyAI/wessley-docsearch/engine/domain"
)

// Paths are the files a run reads and writes, all below one base directory.
type Paths struct {
	Base     string
	Input    string
	PDFDir   string
	Index    string
	Vocab    string
	Metadata string
	Output   string
}

// New returns the layout rooted at base.
func New(base string) Paths {
	return Paths{
		Base:     base,
		Input:    filepath.Join(base, "input", "input.json"),
		PDFDir:   filepath.Join(base, "input", "PDFs"),
		Index:    filepath.Join(base, "index", "sections.idx"),
		Vocab:    filepath.Join(base, "index", "vocab.json"),
		Metadata: filepath.Join(base, "metadata.json"),
		Output:   filepath.Join(base, "output", "challenge1b_output.json"),
	}
}

// PDF returns the path of a document inside the PDF directory.
func (p Paths) PDF(name string) string {
	return filepath.Join(p.PDFDir, name)
}

// RequireFile fails with ErrMissingFile unless path exists.
func RequireFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("workspace: %s: %w", path, domain.ErrMissingFile)
		}
		return fmt.Errorf("workspace: stat %s: %w", path, err)
	}
	return nil
}

// ReadJSON decodes a UTF-8 JSON file into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("workspace: %s: %w", path, domain.ErrMissingFile)
	}
	if err != nil {
		return fmt.Errorf("workspace: read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return fmt.Errorf("workspace: %s is not valid UTF-8: %w", path, domain.ErrMalformedInput)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("workspace: decode %s: %v: %w", path, err, domain.ErrMalformedInput)
	}
	return nil
}

// LoadInput reads input.json.
func LoadInput(path string) (domain.Input, error) {
	var in domain.Input
	if err := ReadJSON(path, &in); err != nil {
		return domain.Input{}, err
	}
	return in, nil
}

// WriteJSON writes v as indented UTF-8 JSON. Non-ASCII text is written as is,
// not as \u escapes. Parent directories are created and the file is replaced
// atomically through a temporary sibling.
func WriteJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("workspace: encode %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".write-*")
	if err != nil {
		return fmt.Errorf("workspace: write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("workspace: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("workspace: write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("workspace: write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("workspace: write %s: %w", path, err)
	}
	return nil
}
