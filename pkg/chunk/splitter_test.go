package chunk

import (
	"strings"
	"testing"
)

// noOverlap keeps assertions on raw byte ranges simple.
var noOverlap = &Config{ChunkSize: 2500, ChunkOverlap: 0}

func TestSplitSyntax_TSXGroupedImports(t *testing.T) {
	content := `import React from "react";
import { useState } from "react";
import { Button } from "./button";

export function App() {
  const [count, setCount] = useState(0);
  return <Button onClick={() => setCount(count + 1)}>{count}</Button>;
}
`
	chunks := ChunkFile(content, "tsx", "app.tsx", noOverlap)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}

	header := chunks[0]
	if header.StartLine != 1 || header.EndLine != 3 {
		t.Errorf("grouped imports should span lines 1-3, got %d-%d", header.StartLine, header.EndLine)
	}
	for _, imp := range []string{`"react"`, `"./button"`} {
		if !strings.Contains(header.Content, imp) {
			t.Errorf("grouped import chunk missing %s", imp)
		}
	}

	foundComponent := false
	for _, c := range chunks[1:] {
		if strings.Contains(c.Content, "function App") {
			foundComponent = true
		}
		if c.StartLine == 1 && c.EndLine == 1 {
			t.Error("no stray single-import chunk should survive grouping")
		}
	}
	if !foundComponent {
		t.Error("component declaration should be its own chunk")
	}
}

func TestSplitSyntax_InterleavedImports(t *testing.T) {
	content := `import a from "a";
import b from "b";

const x = 1;

import c from "c";
`
	chunks := ChunkFile(content, "typescript", "mod.ts", noOverlap)

	var header *Chunk
	for i, c := range chunks {
		if c.StartLine == 1 {
			header = &chunks[i]
			break
		}
	}
	if header == nil {
		t.Fatal("expected a grouped import chunk starting at line 1")
	}
	if header.EndLine != 2 {
		t.Errorf("grouped chunk should end at line 2, got %d", header.EndLine)
	}
	if strings.Contains(header.Content, `"c"`) {
		t.Error("grouped chunk must not contain the later import")
	}

	foundLater := false
	for _, c := range chunks {
		if c.StartLine >= 4 && strings.Contains(c.Content, `"c"`) {
			foundLater = true
		}
	}
	if !foundLater {
		t.Error("the later import should be its own chunk at line >= 4")
	}
}

func TestSplitSyntax_DuplicateRangeDedup(t *testing.T) {
	content := `export function C(){return 1;}`
	chunks := ChunkFile(content, "tsx", "c.tsx", noOverlap)

	count := 0
	for _, c := range chunks {
		if c.StartLine == 1 && c.EndLine == 1 {
			count++
		}
	}
	if count != 1 {
		t.Errorf("export+function at one range should collapse to 1 chunk, got %d", count)
	}
}

func TestSplitSyntax_GoDeclarations(t *testing.T) {
	content := `package demo

import (
	"fmt"
)

const answer = 42

type Greeter struct {
	name string
}

func (g Greeter) Greet() string {
	return fmt.Sprintf("hello %s", g.name)
}

func main() {
	fmt.Println(Greeter{name: "world"}.Greet())
}
`
	chunks := ChunkFile(content, "go", "demo.go", noOverlap)
	if len(chunks) < 4 {
		t.Fatalf("expected chunks for import/const/type/funcs, got %d", len(chunks))
	}

	wants := []string{"const answer", "type Greeter", "func (g Greeter) Greet", "func main"}
	for _, want := range wants {
		found := false
		for _, c := range chunks {
			if strings.Contains(c.Content, want) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("no chunk contains %q", want)
		}
	}
}

func TestSplitSyntax_PythonDefinitions(t *testing.T) {
	content := `import os
import sys

class Config:
    def load(self):
        return os.environ

def main():
    print(sys.argv)
`
	chunks := ChunkFile(content, "python", "main.py", noOverlap)

	if chunks[0].StartLine != 1 || chunks[0].EndLine != 2 {
		t.Errorf("imports should group into lines 1-2, got %d-%d", chunks[0].StartLine, chunks[0].EndLine)
	}

	foundClass, foundDef := false, false
	for _, c := range chunks {
		if strings.Contains(c.Content, "class Config") {
			foundClass = true
		}
		if strings.HasPrefix(c.Content, "def main") {
			foundDef = true
		}
	}
	if !foundClass || !foundDef {
		t.Errorf("expected class and function chunks, class=%v def=%v", foundClass, foundDef)
	}
}

func TestSplitSyntax_ContentMatchesByteRange(t *testing.T) {
	content := `function one() { return 1; }
function two() { return 2; }
`
	chunks := ChunkFile(content, "javascript", "f.js", noOverlap)
	lines := strings.Split(content, "\n")
	for _, c := range chunks {
		joined := strings.Join(lines[c.StartLine-1:c.EndLine], "\n")
		if !strings.Contains(joined, strings.TrimSpace(c.Content)) {
			t.Errorf("chunk %d-%d content does not match file range", c.StartLine, c.EndLine)
		}
	}
}

func TestSplitSyntax_MonotoneLineNumbers(t *testing.T) {
	content := `import a from "a";
import b from "b";

export const one = 1;
export function f() { return one; }
`
	chunks := ChunkFile(content, "typescript", "m.ts", noOverlap)
	for i, c := range chunks {
		if c.StartLine < 1 || c.EndLine < c.StartLine {
			t.Errorf("chunk %d has invalid range %d-%d", i, c.StartLine, c.EndLine)
		}
	}
}

func TestChunkFile_UnsupportedLanguageFallsBack(t *testing.T) {
	content := "some plain text\nwith a few lines\nof nothing in particular\n"
	chunks := ChunkFile(content, "brainfuck", "notes.txt", noOverlap)
	if len(chunks) == 0 {
		t.Fatal("fallback must always produce chunks for non-blank content")
	}
	if chunks[0].StartLine != 1 {
		t.Errorf("fallback chunk should start at line 1, got %d", chunks[0].StartLine)
	}
}

func TestGetGrammar(t *testing.T) {
	for _, tag := range []string{"javascript", "typescript", "tsx", "python", "java", "c", "cpp", "go", "rust", "csharp", "ruby", "scala"} {
		if GetGrammar(tag) == nil {
			t.Errorf("no grammar registered for %q", tag)
		}
	}
	if GetGrammar("cobol") != nil {
		t.Error("unexpected grammar for cobol")
	}
	if GetGrammarByPath("x/y/z.tsx") == nil {
		t.Error("tsx extension should resolve")
	}
}
