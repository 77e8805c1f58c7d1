package chunk

import (
	"unsafe"

	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

func init() {
	jsSplittable := []string{
		"import_statement",
		"export_statement",
		"function_declaration",
		"generator_function_declaration",
		"function_expression",
		"arrow_function",
		"class_declaration",
		"method_definition",
		"variable_declaration",
		"lexical_declaration",
	}

	RegisterGrammar(&Grammar{
		Name:         "javascript",
		Extensions:   []string{".js", ".jsx", ".mjs", ".cjs"},
		Language:     func() unsafe.Pointer { return tree_sitter_javascript.Language() },
		Splittable:   jsSplittable,
		ImportKinds:  []string{"import_statement"},
		CommentKinds: []string{"comment"},
	})

	tsSplittable := append([]string{
		"interface_declaration",
		"type_alias_declaration",
	}, jsSplittable...)

	RegisterGrammar(&Grammar{
		Name:         "typescript",
		Extensions:   []string{".ts", ".mts", ".cts"},
		Language:     func() unsafe.Pointer { return tree_sitter_typescript.LanguageTypescript() },
		Splittable:   tsSplittable,
		ImportKinds:  []string{"import_statement"},
		CommentKinds: []string{"comment"},
	})

	RegisterGrammar(&Grammar{
		Name:         "tsx",
		Extensions:   []string{".tsx"},
		Language:     func() unsafe.Pointer { return tree_sitter_typescript.LanguageTSX() },
		Splittable:   tsSplittable,
		ImportKinds:  []string{"import_statement"},
		CommentKinds: []string{"comment"},
	})
}
