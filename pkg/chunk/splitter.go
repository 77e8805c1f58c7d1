package chunk

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// splitSyntax parses content with the grammar and emits one chunk per
// splittable node, grouping consecutive top-level imports first.
// Returns nil when the parse fails entirely; the caller then uses the
// character splitter.
func splitSyntax(content string, grammar *Grammar, filePath string) []Chunk {
	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(newLanguage(grammar.Language())); err != nil {
		return nil
	}

	tree := parser.Parse([]byte(content), nil)
	if tree == nil {
		return nil
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil
	}

	src := []byte(content)
	consumed := make(map[uint]bool) // start bytes of grouped import nodes

	var chunks []Chunk
	if header := groupImports(root, src, grammar, filePath, consumed); header != nil {
		chunks = append(chunks, *header)
	}

	walk(root, src, grammar, filePath, consumed, &chunks)

	if len(chunks) == 0 {
		chunks = append(chunks, Chunk{
			Content:   content,
			StartLine: 1,
			EndLine:   int(root.EndPosition().Row) + 1,
			Language:  grammar.Name,
			FilePath:  filePath,
		})
	}
	return chunks
}

// groupImports scans top-level siblings from the first child, collecting
// consecutive import nodes (comments skipped). Two or more imports merge
// into one chunk spanning first start to last end; the merged nodes are
// marked consumed so the traversal does not re-emit them.
func groupImports(root *tree_sitter.Node, src []byte, grammar *Grammar, filePath string, consumed map[uint]bool) *Chunk {
	if len(grammar.ImportKinds) == 0 {
		return nil
	}

	var imports []*tree_sitter.Node
	count := root.NamedChildCount()
	for i := uint(0); i < count; i++ {
		child := root.NamedChild(i)
		if child == nil {
			continue
		}
		kind := child.Kind()
		if grammar.isComment(kind) {
			continue
		}
		if !grammar.isImport(kind) {
			break
		}
		imports = append(imports, child)
	}

	if len(imports) < 2 {
		return nil
	}

	first, last := imports[0], imports[len(imports)-1]
	start, end := first.StartByte(), last.EndByte()
	if end > uint(len(src)) {
		return nil
	}
	for _, n := range imports {
		consumed[n.StartByte()] = true
	}
	return &Chunk{
		Content:   string(src[start:end]),
		StartLine: int(first.StartPosition().Row) + 1,
		EndLine:   int(last.EndPosition().Row) + 1,
		Language:  grammar.Name,
		FilePath:  filePath,
	}
}

// walk traverses the AST in pre-order, emitting a chunk for every
// splittable, non-consumed node with non-blank text. Children are always
// visited; nested splittable nodes emit their own chunks and collapse
// later in dedupeByRange.
func walk(node *tree_sitter.Node, src []byte, grammar *Grammar, filePath string, consumed map[uint]bool, chunks *[]Chunk) {
	kind := node.Kind()
	if grammar.splittable(kind) && !consumed[node.StartByte()] {
		start, end := node.StartByte(), node.EndByte()
		if start < uint(len(src)) && end <= uint(len(src)) {
			text := string(src[start:end])
			if strings.TrimSpace(text) != "" {
				*chunks = append(*chunks, Chunk{
					Content:   text,
					StartLine: int(node.StartPosition().Row) + 1,
					EndLine:   int(node.EndPosition().Row) + 1,
					Language:  grammar.Name,
					FilePath:  filePath,
				})
			}
		}
	}

	count := node.NamedChildCount()
	for i := uint(0); i < count; i++ {
		if child := node.NamedChild(i); child != nil {
			walk(child, src, grammar, filePath, consumed, chunks)
		}
	}
}
