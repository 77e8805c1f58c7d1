package chunk

import (
	"unsafe"

	tree_sitter_scala "github.com/tree-sitter/tree-sitter-scala/bindings/go"
)

func init() {
	RegisterGrammar(&Grammar{
		Name:       "scala",
		Extensions: []string{".scala", ".sc"},
		Language:   func() unsafe.Pointer { return tree_sitter_scala.Language() },
		Splittable: []string{
			"function_definition",
			"class_definition",
			"object_definition",
			"trait_definition",
			"enum_definition",
		},
		ImportKinds:  []string{"import_declaration"},
		CommentKinds: []string{"comment", "block_comment"},
	})
}
