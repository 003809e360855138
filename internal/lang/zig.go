package lang

func init() {
	Register(&LanguageSpec{
		Language:          Zig,
		FileExtensions:    []string{".zig"},
		FunctionNodeTypes: []string{"function_declaration"},
		ClassNodeTypes:    nil, // struct types are expressions in zig
		ModuleNodeTypes:   []string{"source_file"},
		CallNodeTypes:     []string{"call_expression", "builtin_call_expression"},
		ImportNodeTypes:   []string{"builtin_call_expression"}, // @import
		PackageIndicators: []string{"build.zig"},
	})
}
