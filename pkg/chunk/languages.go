package chunk

import (
	"path/filepath"
	"strings"
	"unsafe"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// Grammar defines how a language is parsed and which node kinds open a
// chunk boundary.
type Grammar struct {
	Name       string
	Extensions []string
	Language   func() unsafe.Pointer // tree-sitter language pointer

	// Splittable holds the node kinds emitted as chunks.
	Splittable []string
	// ImportKinds holds the node kinds grouped into a single header
	// chunk when they appear consecutively at the top level.
	ImportKinds []string
	// CommentKinds are skipped while scanning for consecutive imports.
	CommentKinds []string
}

func (g *Grammar) splittable(kind string) bool {
	for _, k := range g.Splittable {
		if k == kind {
			return true
		}
	}
	return false
}

func (g *Grammar) isImport(kind string) bool {
	for _, k := range g.ImportKinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (g *Grammar) isComment(kind string) bool {
	for _, k := range g.CommentKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// registry holds all supported grammars keyed by language tag.
var registry = map[string]*Grammar{}

// extensionMap for lookup by file extension.
var extensionMap = map[string]*Grammar{}

// RegisterGrammar adds a grammar to the registry.
func RegisterGrammar(g *Grammar) {
	registry[g.Name] = g
	for _, ext := range g.Extensions {
		extensionMap[ext] = g
	}
}

// GetGrammar returns the grammar for a language tag, or nil.
func GetGrammar(language string) *Grammar {
	return registry[strings.ToLower(language)]
}

// GetGrammarByPath returns the grammar for a file path's extension, or nil.
func GetGrammarByPath(path string) *Grammar {
	return extensionMap[strings.ToLower(filepath.Ext(path))]
}

// Supported reports whether a language tag has a registered grammar.
func Supported(language string) bool {
	return GetGrammar(language) != nil
}

// newLanguage creates a tree-sitter Language from an unsafe pointer.
func newLanguage(ptr unsafe.Pointer) *tree_sitter.Language {
	return tree_sitter.NewLanguage(ptr)
}
