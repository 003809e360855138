package lang

func init() {
	Register(&LanguageSpec{
		Language:          Rust,
		FileExtensions:    []string{".rs"},
		FunctionNodeTypes: []string{"function_item"},
		ClassNodeTypes:    []string{"struct_item", "enum_item", "trait_item", "impl_item"},
		ModuleNodeTypes:   []string{"source_file", "mod_item"},
		CallNodeTypes:     []string{"call_expression", "macro_invocation"},
		ImportNodeTypes:   []string{"use_declaration"},
		PackageIndicators: []string{"Cargo.toml"},
	})
}
