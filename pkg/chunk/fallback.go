package chunk

import "strings"

// splitCharacters is the character-based fallback splitter. It packs
// whole lines into chunks of at most chunkSize characters, preferring to
// close a chunk at a paragraph boundary once it is half full. Pure
// string operation; never fails.
func splitCharacters(content, language, filePath string, chunkSize int) []Chunk {
	lines := strings.Split(content, "\n")

	var chunks []Chunk
	var buf []string
	bufLen := 0
	startLine := 1

	flush := func(endLine int) {
		if len(buf) == 0 {
			return
		}
		text := strings.Join(buf, "\n")
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, Chunk{
				Content:   text,
				StartLine: startLine,
				EndLine:   endLine,
				Language:  language,
				FilePath:  filePath,
			})
		}
		buf = nil
		bufLen = 0
	}

	for i, line := range lines {
		added := len(line)
		if len(buf) > 0 {
			added++
		}
		if bufLen+added > chunkSize && len(buf) > 0 {
			flush(i) // previous line is 1-based i
			startLine = i + 1
			added = len(line)
		}
		buf = append(buf, line)
		bufLen += added

		// Paragraph boundary: a blank line closes the chunk early once
		// it is at least half full.
		if line == "" && bufLen >= chunkSize/2 {
			flush(i + 1)
			startLine = i + 2
		}
	}
	flush(len(lines))

	if len(chunks) == 0 && strings.TrimSpace(content) != "" {
		chunks = append(chunks, Chunk{
			Content:   content,
			StartLine: 1,
			EndLine:   len(lines),
			Language:  language,
			FilePath:  filePath,
		})
	}
	return chunks
}
