package lang

func init() {
	Register(&LanguageSpec{
		Language:          OCaml,
		FileExtensions:    []string{".ml", ".mli"},
		FunctionNodeTypes: []string{"let_binding"},
		ClassNodeTypes:    []string{"type_definition", "module_definition"},
		ModuleNodeTypes:   []string{"compilation_unit"},
		CallNodeTypes:     []string{"application_expression"},
		ImportNodeTypes:   []string{"open_module"},
		PackageIndicators: []string{"dune-project"},
	})
}
