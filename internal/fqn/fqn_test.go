package fqn

import "testing"

func TestCompute(t *testing.T) {
	cases := []struct {
		project, relPath string
		names            []string
		want             string
	}{
		{"app", "main.py", []string{"run"}, "app.main.run"},
		{"app", "src/core/util.py", []string{"Widget", "render"}, "app.src.core.util.Widget.render"},
		{"app", "pkg/__init__.py", []string{"helper"}, "app.pkg.helper"},
		{"app", "components/index.ts", []string{"Button"}, "app.components.Button"},
		{"app", "lib.rs", nil, "app.lib"},
		{"app", "a.py", []string{"", "f"}, "app.a.f"},
	}
	for _, tt := range cases {
		if got := Compute(tt.project, tt.relPath, tt.names...); got != tt.want {
			t.Errorf("Compute(%q, %q, %v) = %q, want %q",
				tt.project, tt.relPath, tt.names, got, tt.want)
		}
	}
}

func TestModuleQN(t *testing.T) {
	if got := ModuleQN("app", "src/a.py"); got != "app.src.a" {
		t.Errorf("ModuleQN = %q", got)
	}
}

func TestSimpleName(t *testing.T) {
	cases := map[string]string{
		"app.src.a.run": "run",
		"run":           "run",
	}
	for in, want := range cases {
		if got := SimpleName(in); got != want {
			t.Errorf("SimpleName(%q) = %q, want %q", in, got, want)
		}
	}
}
