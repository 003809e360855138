package lang

func init() {
	Register(&LanguageSpec{
		Language:          CSharp,
		FileExtensions:    []string{".cs"},
		FunctionNodeTypes: []string{"method_declaration", "constructor_declaration", "local_function_statement"},
		ClassNodeTypes:    []string{"class_declaration", "interface_declaration", "struct_declaration", "record_declaration"},
		ModuleNodeTypes:   []string{"compilation_unit"},
		CallNodeTypes:     []string{"invocation_expression", "object_creation_expression"},
		ImportNodeTypes:   []string{"using_directive"},
		PackageIndicators: []string{".csproj"},
	})
}
