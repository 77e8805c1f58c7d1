package chunk

import (
	"unsafe"

	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

func init() {
	RegisterGrammar(&Grammar{
		Name:       "python",
		Extensions: []string{".py", ".pyw"},
		Language:   func() unsafe.Pointer { return tree_sitter_python.Language() },
		Splittable: []string{
			"function_definition",
			"class_definition",
			"decorated_definition",
			"import_statement",
			"import_from_statement",
			"assignment",
		},
		ImportKinds:  []string{"import_statement", "import_from_statement", "future_import_statement"},
		CommentKinds: []string{"comment"},
	})
}
