package fs

import (
	"strings"
	"unicode/utf8"
)

// Default chunk sizes, in runes.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// Chunker splits text into line-aligned chunks of roughly ChunkSize runes.
// Consecutive chunks share trailing lines totalling at least ChunkOverlap
// runes. A single line longer than ChunkSize becomes its own chunk.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker applies defaults for non-positive sizes and clamps the overlap
// below the chunk size.
func NewChunker(opts ChunkOptions) *Chunker {
	size := opts.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	overlap := opts.ChunkOverlap
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Chunker{size: size, overlap: overlap}
}

// Chunk splits content. Blank content yields no chunks.
func (c *Chunker) Chunk(content string) []Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")

	var chunks []Chunk
	start := 0 // first line of the current chunk
	size := 0
	for i := 0; i < len(lines); i++ {
		n := utf8.RuneCountInString(lines[i]) + 1
		if size+n > c.size && i > start {
			chunks = append(chunks, c.emit(lines, start, i, len(chunks)))
			next := c.overlapStart(lines, start, i)
			size = 0
			for j := next; j < i; j++ {
				size += utf8.RuneCountInString(lines[j]) + 1
			}
			start = next
		}
		size += n
	}
	chunks = append(chunks, c.emit(lines, start, len(lines), len(chunks)))

	out := chunks[:0]
	for _, ch := range chunks {
		if strings.TrimSpace(ch.Content) != "" {
			ch.Index = len(out)
			out = append(out, ch)
		}
	}
	return out
}

func (c *Chunker) emit(lines []string, start, end, index int) Chunk {
	return Chunk{
		Content:   strings.Join(lines[start:end], "\n"),
		StartLine: start + 1,
		EndLine:   end,
		Index:     index,
	}
}

// overlapStart walks back from end to cover the overlap, always leaving at
// least one new line so the chunker makes progress.
func (c *Chunker) overlapStart(lines []string, start, end int) int {
	if c.overlap == 0 {
		return end
	}
	size := 0
	i := end
	for i > start+1 && size < c.overlap {
		i--
		size += utf8.RuneCountInString(lines[i]) + 1
	}
	return i
}
