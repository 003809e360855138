package queries

import "strings"

// Kind is a canonical capture kind. Every language's raw capture labels
// collapse onto one of these so downstream extraction is language-agnostic.
type Kind string

const (
	KindFunction Kind = "function"
	KindClass    Kind = "class"
	KindCall     Kind = "call"
	KindImport   Kind = "import"
	KindInherit  Kind = "inherit"
)

// kindAliases maps raw capture label heads onto canonical kinds.
var kindAliases = map[string]Kind{
	"function":  KindFunction,
	"method":    KindFunction,
	"func":      KindFunction,
	"class":     KindClass,
	"interface": KindClass,
	"trait":     KindClass,
	"struct":    KindClass,
	"type":      KindClass,
	"call":      KindCall,
	"import":    KindImport,
	"include":   KindImport,
	"inherits":  KindInherit,
	"extends":   KindInherit,
	"base":      KindInherit,
}

// Canonical maps a raw capture label (e.g. "definition.function",
// "function.method", "reference.call") onto a canonical Kind.
func Canonical(label string) (Kind, bool) {
	parts := strings.Split(label, ".")
	head := parts[0]
	// "definition.X" / "reference.X" conventions carry the kind in the tail.
	if (head == "definition" || head == "reference") && len(parts) > 1 {
		head = parts[1]
	}
	kind, ok := kindAliases[head]
	return kind, ok
}
