package lang

// Language represents a supported programming language.
type Language string

const (
	Python     Language = "python"
	JavaScript Language = "javascript"
	TypeScript Language = "typescript"
	TSX        Language = "tsx"
	Go         Language = "go"
	Rust       Language = "rust"
	Java       Language = "java"
	C          Language = "c"
	CPP        Language = "cpp"
	CSharp     Language = "c-sharp"
	Ruby       Language = "ruby"
	PHP        Language = "php"
	Bash       Language = "bash"
	Scala      Language = "scala"
	Kotlin     Language = "kotlin"
	Lua        Language = "lua"
	Zig        Language = "zig"
	OCaml      Language = "ocaml"
	Haskell    Language = "haskell"
	Elixir     Language = "elixir"
	HTML       Language = "html"
	CSS        Language = "css"
)

// AllLanguages returns all supported languages.
func AllLanguages() []Language {
	return []Language{
		Python, JavaScript, TypeScript, TSX, Go, Rust, Java, C, CPP, CSharp,
		Ruby, PHP, Bash, Scala, Kotlin, Lua, Zig, OCaml, Haskell, Elixir,
		HTML, CSS,
	}
}

// LanguageSpec defines the tree-sitter node types for a language.
// Specs are immutable after registration.
type LanguageSpec struct {
	Language          Language
	FileExtensions    []string
	FunctionNodeTypes []string
	ClassNodeTypes    []string
	ModuleNodeTypes   []string
	CallNodeTypes     []string
	ImportNodeTypes   []string
	PackageIndicators []string

	// UnstableOn lists GOOS values where the grammar is known to misbehave.
	// Loading is skipped there unless the unstable override is enabled.
	UnstableOn []string
}

// registry maps file extensions to language specs.
var registry = map[string]*LanguageSpec{}

// Register adds a LanguageSpec to the global registry.
func Register(spec *LanguageSpec) {
	for _, ext := range spec.FileExtensions {
		registry[ext] = spec
	}
}

// ForExtension returns the LanguageSpec for a file extension (e.g. ".go").
func ForExtension(ext string) *LanguageSpec {
	return registry[ext]
}

// ForLanguage returns the LanguageSpec for a language.
func ForLanguage(lang Language) *LanguageSpec {
	for _, spec := range registry {
		if spec.Language == lang {
			return spec
		}
	}
	return nil
}

// LanguageForExtension returns the Language for a file extension.
func LanguageForExtension(ext string) (Language, bool) {
	spec := registry[ext]
	if spec == nil {
		return "", false
	}
	return spec.Language, true
}
