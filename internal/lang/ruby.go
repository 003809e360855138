package lang

func init() {
	Register(&LanguageSpec{
		Language:          Ruby,
		FileExtensions:    []string{".rb", ".rake"},
		FunctionNodeTypes: []string{"method", "singleton_method"},
		ClassNodeTypes:    []string{"class", "module"},
		ModuleNodeTypes:   []string{"program"},
		CallNodeTypes:     []string{"call"},
		ImportNodeTypes:   []string{"call"}, // require/require_relative are plain calls
		PackageIndicators: []string{"Gemfile"},
	})
}
