package lang

func init() {
	Register(&LanguageSpec{
		Language:          CSS,
		FileExtensions:    []string{".css"},
		FunctionNodeTypes: nil,
		ClassNodeTypes:    nil,
		ModuleNodeTypes:   []string{"stylesheet"},
		CallNodeTypes:     nil,
		ImportNodeTypes:   []string{"import_statement"},
	})
}
