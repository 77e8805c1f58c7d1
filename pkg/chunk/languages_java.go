package chunk

import (
	"unsafe"

	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
)

func init() {
	RegisterGrammar(&Grammar{
		Name:       "java",
		Extensions: []string{".java"},
		Language:   func() unsafe.Pointer { return tree_sitter_java.Language() },
		Splittable: []string{
			"package_declaration",
			"import_declaration",
			"class_declaration",
			"interface_declaration",
			"method_declaration",
			"constructor_declaration",
			"field_declaration",
			"local_variable_declaration",
		},
		ImportKinds:  []string{"import_declaration"},
		CommentKinds: []string{"line_comment", "block_comment"},
	})
}
