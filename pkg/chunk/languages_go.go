package chunk

import (
	"unsafe"

	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
)

func init() {
	RegisterGrammar(&Grammar{
		Name:       "go",
		Extensions: []string{".go"},
		Language:   func() unsafe.Pointer { return tree_sitter_go.Language() },
		Splittable: []string{
			"import_declaration",
			"function_declaration",
			"method_declaration",
			"type_declaration",
			"var_declaration",
			"const_declaration",
		},
		ImportKinds:  []string{"import_declaration"},
		CommentKinds: []string{"comment"},
	})
}
