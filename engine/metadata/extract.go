// Package metadata derives document metadata from PDF filenames such as
// "Manual - Setup_02.pdf" and merges it into extracted sections.
package metadata

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/WessleyAI/wessley-docsearch/engine/domain"
	"github.com/WessleyAI/wessley-docsearch/engine/normalize"
)

// Separator splits a filename into its categories.
const Separator = " - "

const (
	TagDocumentation = "documentation"
	TagReport        = "report"
)

// tagKeywords maps a tag to the filename keywords that imply it. Order is the
// order tags are emitted in.
var tagKeywords = []struct {
	tag      string
	keywords []string
}{
	{TagDocumentation, []string{"manual", "guide", "documentation"}},
	{TagReport, []string{"report", "analysis", "study"}},
}

var sequenceSuffix = regexp.MustCompile(`^(.*)_(\d+)$`)

// Extract derives metadata from a filename. It never fails: anything it
// cannot parse is logged and left at its zero value.
func Extract(filename string, log *slog.Logger) domain.DocumentMetadata {
	if log == nil {
		log = slog.Default()
	}

	md := domain.DocumentMetadata{
		DocumentName: filename,
		Categories:   []string{},
		Tags:         []string{},
	}

	base := filename
	if strings.HasSuffix(strings.ToLower(base), ".pdf") {
		base = base[:len(base)-len(".pdf")]
	}
	parts := strings.Split(base, Separator)

	md.MainType = parts[0]
	for _, p := range parts {
		md.Categories = append(md.Categories, strings.TrimSpace(p))
	}

	if len(parts) > 1 {
		last := parts[len(parts)-1]
		md.SubType = last
		if m := sequenceSuffix.FindStringSubmatch(last); m != nil {
			md.SubType = m[1]
			seq, err := strconv.Atoi(m[2])
			if err != nil {
				log.Warn("metadata: sequence", "document", filename, "value", m[2], "error", err)
			} else {
				md.Sequence = &seq
			}
		}
	}

	lower := strings.ToLower(filename)
	for _, tk := range tagKeywords {
		for _, kw := range tk.keywords {
			if strings.Contains(lower, kw) {
				md.Tags = append(md.Tags, tk.tag)
				break
			}
		}
	}

	return md
}

// Merge stamps document metadata onto every section and normalizes content.
// The input slice is not modified.
func Merge(sections []domain.Section, md domain.DocumentMetadata) []domain.Section {
	out := make([]domain.Section, len(sections))
	for i, s := range sections {
		s.Document = md.DocumentName
		s.MainType = md.MainType
		s.SubType = md.SubType
		s.Sequence = md.Sequence
		s.Categories = md.Categories
		s.Tags = md.Tags
		s.Content = normalize.Text(s.Content)
		out[i] = s
	}
	return out
}
