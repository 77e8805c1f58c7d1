package chunk

import (
	"strings"
	"testing"
)

func TestSplitCharacters_SingleSmallChunk(t *testing.T) {
	content := "one\ntwo\nthree"
	chunks := splitCharacters(content, "text", "t.txt", 2500)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Content != content {
		t.Errorf("content must be preserved, got %q", chunks[0].Content)
	}
	if chunks[0].StartLine != 1 || chunks[0].EndLine != 3 {
		t.Errorf("expected lines 1-3, got %d-%d", chunks[0].StartLine, chunks[0].EndLine)
	}
}

func TestSplitCharacters_RespectsChunkSize(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString(strings.Repeat("a", 40))
		b.WriteString("\n")
	}
	chunks := splitCharacters(b.String(), "text", "t.txt", 200)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len(c.Content) > 200 {
			t.Errorf("chunk of %d chars exceeds the limit", len(c.Content))
		}
	}
}

func TestSplitCharacters_LineAccounting(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString(strings.Repeat("z", 20))
		b.WriteString("\n")
	}
	content := strings.TrimSuffix(b.String(), "\n")
	chunks := splitCharacters(content, "text", "t.txt", 100)

	lines := strings.Split(content, "\n")
	for _, c := range chunks {
		want := strings.Join(lines[c.StartLine-1:c.EndLine], "\n")
		if c.Content != want {
			t.Errorf("chunk %d-%d does not equal its line range", c.StartLine, c.EndLine)
		}
	}
}

func TestSplitCharacters_WhitespaceOnly(t *testing.T) {
	chunks := splitCharacters("  \n \n ", "text", "t.txt", 100)
	if len(chunks) != 0 {
		t.Errorf("whitespace-only content should yield no chunks, got %d", len(chunks))
	}
}
