package lang

func init() {
	Register(&LanguageSpec{
		Language:          HTML,
		FileExtensions:    []string{".html", ".htm"},
		FunctionNodeTypes: nil,
		ClassNodeTypes:    nil,
		ModuleNodeTypes:   []string{"document"},
		CallNodeTypes:     nil,
		ImportNodeTypes:   []string{"script_element"},
	})
}
