package chunk

import (
	"unsafe"

	tree_sitter_ruby "github.com/tree-sitter/tree-sitter-ruby/bindings/go"
)

func init() {
	RegisterGrammar(&Grammar{
		Name:       "ruby",
		Extensions: []string{".rb", ".rake"},
		Language:   func() unsafe.Pointer { return tree_sitter_ruby.Language() },
		Splittable: []string{
			"method",
			"singleton_method",
			"class",
			"module",
		},
		// Ruby requires are plain method calls; there is no import node
		// kind to group.
		CommentKinds: []string{"comment"},
	})
}
