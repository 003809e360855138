// Package fqn computes canonical dot-separated qualified names for code
// entities: <project>.<rel_path_parts>.<container>.<name>.
package fqn

import (
	"path/filepath"
	"strings"
)

// Compute returns the canonical qualified name for a node.
// Examples:
//   - myproject.cmd.server.main.HandleRequest
//   - myproject.pkg.service.OrderService.Process
func Compute(project, relPath string, names ...string) string {
	relPath = strings.TrimSuffix(relPath, filepath.Ext(relPath))
	parts := strings.Split(filepath.ToSlash(relPath), "/")

	// Python packages: drop the __init__ segment
	if len(parts) > 0 && parts[len(parts)-1] == "__init__" {
		parts = parts[:len(parts)-1]
	}
	// JS/TS index files
	if len(parts) > 0 && parts[len(parts)-1] == "index" {
		parts = parts[:len(parts)-1]
	}

	all := append([]string{project}, parts...)
	for _, n := range names {
		if n != "" {
			all = append(all, n)
		}
	}
	return strings.Join(all, ".")
}

// ModuleQN returns the qualified name for a module (file without entity name).
func ModuleQN(project, relPath string) string {
	return Compute(project, relPath)
}

// SimpleName extracts the final dot-separated segment of a qualified name.
func SimpleName(qn string) string {
	if idx := strings.LastIndex(qn, "."); idx >= 0 {
		return qn[idx+1:]
	}
	return qn
}
