package lang

func init() {
	Register(&LanguageSpec{
		Language:          CPP,
		FileExtensions:    []string{".cpp", ".cc", ".cxx", ".hpp", ".hxx", ".hh"},
		FunctionNodeTypes: []string{"function_definition"},
		ClassNodeTypes:    []string{"class_specifier", "struct_specifier", "enum_specifier"},
		ModuleNodeTypes:   []string{"translation_unit"},
		CallNodeTypes:     []string{"call_expression"},
		ImportNodeTypes:   []string{"preproc_include"},
		PackageIndicators: []string{"CMakeLists.txt"},
	})
}
