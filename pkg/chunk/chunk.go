// Package chunk decomposes source files into syntax-respecting chunks.
//
// Files in a supported language are parsed with tree-sitter and split at
// a fixed set of splittable node kinds per grammar. Anything else, and
// any file the parser cannot handle, goes through a character-based
// splitter instead. Chunking never fails.
package chunk

import (
	"os"
	"strconv"
	"strings"
)

const (
	defaultChunkSize    = 2500
	defaultChunkOverlap = 300
)

// Chunk is a contiguous region of a source file.
// Line numbers are 1-based and inclusive.
type Chunk struct {
	Content   string
	StartLine int
	EndLine   int
	Language  string
	FilePath  string
}

// Config holds chunking configuration.
type Config struct {
	ChunkSize    int // Maximum chunk length in characters
	ChunkOverlap int // Characters of the previous chunk prepended to each chunk (0 disables)
}

// DefaultConfig returns the default chunking config, honoring
// CHUNK_SIZE and CHUNK_OVERLAP environment overrides.
func DefaultConfig() *Config {
	cfg := &Config{
		ChunkSize:    defaultChunkSize,
		ChunkOverlap: defaultChunkOverlap,
	}
	if v := os.Getenv("CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ChunkSize = n
		}
	}
	if v := os.Getenv("CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.ChunkOverlap = n
		}
	}
	return cfg
}

// ChunkFile splits content into ordered chunks. The language tag selects
// the grammar; unknown tags fall back to the extension of filePath, and
// unsupported languages use the character splitter.
func ChunkFile(content, language, filePath string, cfg *Config) []Chunk {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if content == "" {
		return nil
	}

	grammar := GetGrammar(language)
	if grammar == nil {
		grammar = GetGrammarByPath(filePath)
	}

	var chunks []Chunk
	if grammar != nil {
		chunks = splitSyntax(content, grammar, filePath)
	}
	if chunks == nil {
		chunks = splitCharacters(content, language, filePath, cfg.ChunkSize)
	}

	chunks = refine(chunks, cfg.ChunkSize)
	chunks = dedupeByRange(chunks)
	if cfg.ChunkOverlap > 0 {
		chunks = addOverlap(chunks, cfg.ChunkOverlap)
	}
	return chunks
}

// refine splits every chunk longer than ChunkSize into line-accumulated
// sub-chunks. A single line longer than ChunkSize is force-included on
// its own rather than truncated.
func refine(chunks []Chunk, chunkSize int) []Chunk {
	var result []Chunk
	for _, c := range chunks {
		if len(c.Content) <= chunkSize {
			result = append(result, c)
			continue
		}
		result = append(result, splitByLines(c, chunkSize)...)
	}
	return result
}

func splitByLines(c Chunk, chunkSize int) []Chunk {
	lines := strings.Split(c.Content, "\n")
	var out []Chunk
	var buf []string
	bufLen := 0
	startLine := c.StartLine

	flush := func(endLine int) {
		if len(buf) == 0 {
			return
		}
		out = append(out, Chunk{
			Content:   strings.Join(buf, "\n"),
			StartLine: startLine,
			EndLine:   endLine,
			Language:  c.Language,
			FilePath:  c.FilePath,
		})
		buf = nil
		bufLen = 0
	}

	for i, line := range lines {
		added := len(line)
		if len(buf) > 0 {
			added++ // joining newline
		}
		if bufLen+added > chunkSize && len(buf) > 0 {
			flush(c.StartLine + i - 1)
			startLine = c.StartLine + i
			added = len(line)
		}
		buf = append(buf, line)
		bufLen += added
	}
	flush(c.EndLine)
	return out
}

// dedupeByRange removes chunks whose (StartLine, EndLine) pair already
// appeared; the first occurrence wins. Nested constructs that resolve to
// the same range (an export statement wrapping a function declaration)
// collapse here.
func dedupeByRange(chunks []Chunk) []Chunk {
	seen := make(map[[2]int]bool, len(chunks))
	out := chunks[:0]
	for _, c := range chunks {
		key := [2]int{c.StartLine, c.EndLine}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// addOverlap prepends the tail of each chunk's predecessor. The overlap
// is a character count; StartLine shifts up by the newlines in the
// prepended slice, clamped to 1.
func addOverlap(chunks []Chunk, overlap int) []Chunk {
	if len(chunks) < 2 {
		return chunks
	}
	originals := make([]string, len(chunks))
	for i, c := range chunks {
		originals[i] = c.Content
	}
	for i := 1; i < len(chunks); i++ {
		prev := originals[i-1]
		tail := prev
		if len(prev) > overlap {
			tail = prev[len(prev)-overlap:]
		}
		chunks[i].Content = tail + "\n" + originals[i]
		chunks[i].StartLine -= strings.Count(tail, "\n") + 1
		if chunks[i].StartLine < 1 {
			chunks[i].StartLine = 1
		}
	}
	return chunks
}
