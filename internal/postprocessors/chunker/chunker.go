// Package chunker splits raw document text into overlapping semantic units.
//
// The splitter seeks natural boundaries hierarchically: paragraph breaks
// first, then lines, then sentence-terminal punctuation, then whitespace,
// and raw runes as a last resort. Segments are accumulated up to the target
// size, each new chunk re-including the trailing overlap of its predecessor
// to preserve cross-boundary context.
package chunker

import "strings"

// Default chunking parameters, in characters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultMinChunkSize = 100
)

// boundaryClasses orders separator candidates from most to least semantic.
// The empty class means raw rune windows.
var boundaryClasses = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? "},
	{" "},
	{},
}

// Splitter splits text into chunks. The zero value is not usable; construct
// with New.
type Splitter struct {
	chunkSize    int
	overlap      int
	minChunkSize int
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithChunkSize sets the target chunk size in characters.
func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between consecutive chunks in characters.
func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

// WithMinChunkSize sets the smallest chunk emitted. Shorter chunks are
// dropped unless they carry a document's only content.
func WithMinChunkSize(size int) Option {
	return func(s *Splitter) {
		if size >= 0 {
			s.minChunkSize = size
		}
	}
}

// New creates a splitter with the given options.
func New(opts ...Option) *Splitter {
	s := &Splitter{
		chunkSize:    DefaultChunkSize,
		overlap:      DefaultChunkOverlap,
		minChunkSize: DefaultMinChunkSize,
	}

	for _, opt := range opts {
		opt(s)
	}

	// Ensure overlap doesn't exceed chunk size
	if s.overlap >= s.chunkSize {
		s.overlap = s.chunkSize / 4
	}

	return s
}

// Split divides text into whitespace-collapsed chunks in document reading
// order. It is a pure function: the same input always yields the same
// sequence. Empty or whitespace-only input yields nil, not an error.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	segments := s.divide(text, 0)
	raw := s.merge(segments)

	chunks := make([]string, 0, len(raw))
	for _, c := range raw {
		collapsed := collapseWhitespace(c)
		if collapsed == "" {
			continue
		}
		if len(collapsed) < s.minChunkSize {
			continue
		}
		chunks = append(chunks, collapsed)
	}

	// Dropping short chunks must never erase a document entirely.
	if len(chunks) == 0 {
		if collapsed := collapseWhitespace(text); collapsed != "" {
			if len(collapsed) > s.chunkSize {
				collapsed = truncateRunes(collapsed, s.chunkSize)
			}
			chunks = append(chunks, collapsed)
		}
	}

	return chunks
}

// divide recursively splits text into segments no longer than the target
// size, preferring the most semantic boundary class that fits. Separators
// stay attached to the preceding segment so no content is lost.
func (s *Splitter) divide(text string, class int) []string {
	if len(text) <= s.chunkSize {
		return []string{text}
	}
	if class >= len(boundaryClasses) {
		return []string{text}
	}

	seps := boundaryClasses[class]
	if len(seps) == 0 {
		return runeWindows(text, s.chunkSize)
	}

	parts := splitAfterAny(text, seps)
	if len(parts) == 1 {
		// Boundary class absent from the text, try the next one.
		return s.divide(text, class+1)
	}

	var segments []string
	for _, p := range parts {
		if len(p) > s.chunkSize {
			segments = append(segments, s.divide(p, class+1)...)
		} else {
			segments = append(segments, p)
		}
	}
	return segments
}

// merge accumulates segments until the target size would be exceeded, then
// starts a new chunk seeded with the previous chunk's trailing overlap.
func (s *Splitter) merge(segments []string) []string {
	var chunks []string
	var cur strings.Builder

	for _, seg := range segments {
		if cur.Len() > 0 && cur.Len()+len(seg) > s.chunkSize {
			chunk := cur.String()
			chunks = append(chunks, chunk)
			cur.Reset()
			if s.overlap > 0 {
				cur.WriteString(overlapTail(chunk, s.overlap))
			}
		}
		cur.WriteString(seg)
	}

	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// splitAfterAny splits text after each occurrence of any separator, keeping
// the separator attached to the preceding piece.
func splitAfterAny(text string, seps []string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(text); {
		matched := ""
		for _, sep := range seps {
			if strings.HasPrefix(text[i:], sep) {
				matched = sep
				break
			}
		}
		if matched == "" {
			i++
			continue
		}
		i += len(matched)
		parts = append(parts, text[start:i])
		start = i
	}
	if start < len(text) {
		parts = append(parts, text[start:])
	}
	return parts
}

// runeWindows cuts text into fixed-size rune windows, the last-resort
// boundary class.
func runeWindows(text string, size int) []string {
	runes := []rune(text)
	var out []string
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

// overlapTail returns the trailing n bytes of chunk snapped back to a rune
// boundary.
func overlapTail(chunk string, n int) string {
	if n >= len(chunk) {
		return chunk
	}
	start := len(chunk) - n
	for start < len(chunk) && !isRuneStart(chunk[start]) {
		start++
	}
	return chunk[start:]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// collapseWhitespace normalises all runs of whitespace to single spaces.
func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// truncateRunes shortens text to at most n bytes without splitting a rune.
func truncateRunes(text string, n int) string {
	if len(text) <= n {
		return text
	}
	for n > 0 && !isRuneStart(text[n]) {
		n--
	}
	return text[:n]
}
