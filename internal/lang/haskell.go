package lang

func init() {
	Register(&LanguageSpec{
		Language:          Haskell,
		FileExtensions:    []string{".hs"},
		FunctionNodeTypes: []string{"function", "bind"},
		ClassNodeTypes:    []string{"data_type", "newtype", "type_synomym", "class"},
		ModuleNodeTypes:   []string{"haskell"},
		CallNodeTypes:     []string{"apply"},
		ImportNodeTypes:   []string{"import"},
		PackageIndicators: []string{"stack.yaml", "cabal.project"},

		// The haskell scanner has a history of stack overflows on windows.
		UnstableOn: []string{"windows"},
	})
}
