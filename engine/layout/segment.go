// Package layout turns positioned PDF text into titled sections using font
// size and letter-case cues.
package layout

import (
	"fmt"
	"strings"

	"github.com/WessleyAI/wessley-docsearch/engine/domain"
)

// DefaultFontSize is the average used for documents without any spans.
const DefaultFontSize = 12.0

// AverageFontSize returns the mean span font size over the whole document.
func AverageFontSize(pages []domain.Page) float64 {
	var sum float64
	n := 0
	for _, p := range pages {
		for _, b := range p.Blocks {
			for _, l := range b.Lines {
				for _, s := range l.Spans {
					sum += s.FontSize
					n++
				}
			}
		}
	}
	if n == 0 {
		return DefaultFontSize
	}
	return sum / float64(n)
}

// BlockText joins every span of the block with single spaces.
func BlockText(b domain.Block) string {
	var parts []string
	for _, l := range b.Lines {
		for _, s := range l.Spans {
			parts = append(parts, s.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// BlockFontSize returns the largest span size in the block, or avg when the
// block has no spans.
func BlockFontSize(b domain.Block, avg float64) float64 {
	size, found := 0.0, false
	for _, l := range b.Lines {
		for _, s := range l.Spans {
			if !found || s.FontSize > size {
				size, found = s.FontSize, true
			}
		}
	}
	if !found {
		return avg
	}
	return size
}

// Segment splits a document into sections. Each heading block opens a new
// section; other blocks are appended to the open one. Text that appears before
// the first heading goes into an implicit section titled "Page N".
//
// Only title, content and page number are set; document metadata is merged
// later.
func Segment(pages []domain.Page) []domain.Section {
	avg := AverageFontSize(pages)

	var (
		sections []domain.Section
		current  *domain.Section
	)
	flush := func() {
		if current != nil {
			sections = append(sections, *current)
			current = nil
		}
	}

	for _, page := range pages {
		for _, block := range page.Blocks {
			if len(block.Lines) == 0 {
				continue
			}
			text := BlockText(block)
			if text == "" {
				continue
			}

			switch {
			case IsHeading(text, BlockFontSize(block, avg), avg):
				flush()
				current = &domain.Section{Title: text, PageNumber: page.Number}
			case current != nil:
				current.Content += " " + text
			default:
				current = &domain.Section{
					Title:      fmt.Sprintf("Page %d", page.Number),
					Content:    text,
					PageNumber: page.Number,
				}
			}
		}
	}
	flush()
	return sections
}
