package chunk

import (
	"unsafe"

	tree_sitter_c "github.com/tree-sitter/tree-sitter-c/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
)

func init() {
	RegisterGrammar(&Grammar{
		Name:       "c",
		Extensions: []string{".c", ".h"},
		Language:   func() unsafe.Pointer { return tree_sitter_c.Language() },
		Splittable: []string{
			"function_definition",
			"declaration",
		},
		ImportKinds:  []string{"preproc_include"},
		CommentKinds: []string{"comment"},
	})

	RegisterGrammar(&Grammar{
		Name:       "cpp",
		Extensions: []string{".cpp", ".cc", ".cxx", ".hpp", ".hxx"},
		Language:   func() unsafe.Pointer { return tree_sitter_cpp.Language() },
		Splittable: []string{
			"function_definition",
			"class_specifier",
			"namespace_definition",
			"declaration",
		},
		ImportKinds:  []string{"preproc_include"},
		CommentKinds: []string{"comment"},
	})
}
