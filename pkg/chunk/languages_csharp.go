package chunk

import (
	"unsafe"

	tree_sitter_c_sharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"
)

func init() {
	RegisterGrammar(&Grammar{
		Name:       "csharp",
		Extensions: []string{".cs"},
		Language:   func() unsafe.Pointer { return tree_sitter_c_sharp.Language() },
		Splittable: []string{
			"method_declaration",
			"class_declaration",
			"interface_declaration",
			"struct_declaration",
			"enum_declaration",
		},
		ImportKinds:  []string{"using_directive"},
		CommentKinds: []string{"comment"},
	})
}
