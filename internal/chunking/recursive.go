package chunking

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// RecursiveOverlap splits text on a separator hierarchy, recursing to finer
// separators whenever a piece exceeds the chunk size, then prepends a tail of
// the previous chunk to each chunk for context continuity.
type RecursiveOverlap struct {
	separators   []string
	chunkSize    int
	chunkOverlap int
}

// NewRecursiveOverlap creates a recursive splitter. chunkSize is the maximum
// chunk length in characters; overlapRatio is the fraction of chunkSize
// carried over from the previous chunk (must be < 1.0).
func NewRecursiveOverlap(chunkSize int, overlapRatio float64) (*RecursiveOverlap, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be a positive integer, got %d", chunkSize)
	}
	if overlapRatio < 0 {
		overlapRatio = 0
	}
	if overlapRatio >= 1.0 {
		return nil, fmt.Errorf("overlap ratio must be smaller than 1.0, got %g", overlapRatio)
	}
	return &RecursiveOverlap{
		separators:   []string{"\n\n", "\n", ". ", " "},
		chunkSize:    chunkSize,
		chunkOverlap: int(float64(chunkSize) * overlapRatio),
	}, nil
}

func (c *RecursiveOverlap) Name() string { return "recursive_overlap_chunker" }

func (c *RecursiveOverlap) Chunk(_ context.Context, req Request) (Response, error) {
	var all []Chunk
	for _, item := range req.Items {
		base := c.splitText(item.Text)
		for _, text := range c.applyOverlap(base) {
			if text == "" {
				continue
			}
			all = append(all, Chunk{
				Source:        item.Source,
				Text:          text,
				LenCharacters: utf8.RuneCountInString(text),
			})
		}
	}
	return Response{Chunks: all}, nil
}

func (c *RecursiveOverlap) splitText(text string) []string {
	var chunks []string
	c.splitFragment(strings.TrimSpace(text), 0, &chunks)
	return chunks
}

func (c *RecursiveOverlap) splitFragment(fragment string, level int, chunks *[]string) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return
	}
	if utf8.RuneCountInString(fragment) <= c.chunkSize {
		*chunks = append(*chunks, fragment)
		return
	}

	// All separators exhausted: slice at fixed width.
	if level >= len(c.separators) {
		runes := []rune(fragment)
		for start := 0; start < len(runes); start += c.chunkSize {
			end := start + c.chunkSize
			if end > len(runes) {
				end = len(runes)
			}
			if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
				*chunks = append(*chunks, chunk)
			}
		}
		return
	}

	separator := c.separators[level]
	pieces := strings.Split(fragment, separator)
	if len(pieces) == 1 {
		c.splitFragment(fragment, level+1, chunks)
		return
	}

	buffer := ""
	for idx, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		candidate := piece
		if buffer != "" {
			candidate = buffer + separator + piece
		}
		switch {
		case utf8.RuneCountInString(candidate) > c.chunkSize && buffer != "":
			c.splitFragment(buffer, level+1, chunks)
			buffer = piece
		case utf8.RuneCountInString(candidate) > c.chunkSize:
			c.splitFragment(piece, level+1, chunks)
			buffer = ""
		default:
			buffer = candidate
		}

		if buffer != "" && idx < len(pieces)-1 {
			buffer += separator
		}
	}

	if buffer != "" {
		buffer = strings.TrimSuffix(buffer, separator)
		c.splitFragment(buffer, level+1, chunks)
	}
}

// applyOverlap prepends the tail of the previous chunk to each chunk. The
// combined chunk is clamped to chunkSize from the right so the new content is
// never truncated.
func (c *RecursiveOverlap) applyOverlap(chunks []string) []string {
	if c.chunkOverlap <= 0 || len(chunks) <= 1 {
		return chunks
	}

	overlapped := make([]string, 0, len(chunks))
	prev := ""
	for _, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		if prev == "" {
			overlapped = append(overlapped, chunk)
		} else {
			prevRunes := []rune(prev)
			start := len(prevRunes) - c.chunkOverlap
			if start < 0 {
				start = 0
			}
			combined := string(prevRunes[start:]) + chunk
			if combinedRunes := []rune(combined); len(combinedRunes) > c.chunkSize {
				combined = string(combinedRunes[len(combinedRunes)-c.chunkSize:])
			}
			overlapped = append(overlapped, combined)
		}
		prev = chunk
	}
	return overlapped
}
