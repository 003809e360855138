package lang

func init() {
	Register(&LanguageSpec{
		Language:          Elixir,
		FileExtensions:    []string{".ex", ".exs"},
		FunctionNodeTypes: []string{"call"}, // def/defp are calls in the elixir AST
		ClassNodeTypes:    []string{"call"}, // defmodule likewise
		ModuleNodeTypes:   []string{"source"},
		CallNodeTypes:     []string{"call"},
		ImportNodeTypes:   []string{"call"}, // import/alias/require likewise
		PackageIndicators: []string{"mix.exs"},
	})
}
