package lang

func init() {
	Register(&LanguageSpec{
		Language:       TSX,
		FileExtensions: []string{".tsx"},
		FunctionNodeTypes: []string{
			"function_declaration",
			"generator_function_declaration",
			"method_definition",
			"arrow_function",
		},
		ClassNodeTypes:    []string{"class_declaration", "interface_declaration"},
		ModuleNodeTypes:   []string{"program"},
		CallNodeTypes:     []string{"call_expression", "new_expression"},
		ImportNodeTypes:   []string{"import_statement"},
		PackageIndicators: []string{"package.json", "tsconfig.json"},
	})
}
