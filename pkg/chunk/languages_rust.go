package chunk

import (
	"unsafe"

	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
)

func init() {
	RegisterGrammar(&Grammar{
		Name:       "rust",
		Extensions: []string{".rs"},
		Language:   func() unsafe.Pointer { return tree_sitter_rust.Language() },
		Splittable: []string{
			"use_declaration",
			"function_item",
			"impl_item",
			"struct_item",
			"enum_item",
			"trait_item",
			"mod_item",
			"static_item",
			"const_item",
		},
		ImportKinds:  []string{"use_declaration"},
		CommentKinds: []string{"line_comment", "block_comment"},
	})
}
