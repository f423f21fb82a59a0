package internalcheck

import (
	"fmt"
	"go/ast"
	"strings"
	"testing"
)

// TestNoKeysInLogRecords flags logging.Logger calls that pass a variable or
// field named like raw key content (key, cancelKey, OwnerKey, expr, ...).
// Placeholders and counts are fine.
func TestNoKeysInLogRecords(t *testing.T) {
	var findings []string

	for _, pkg := range loadLibrary(t) {
		if pkg.PkgPath == loggingPath {
			continue
		}
		for _, file := range pkg.Syntax {
			fset := pkg.Fset
			ast.Inspect(file, func(n ast.Node) bool {
				call, ok := n.(*ast.CallExpr)
				if !ok {
					return true
				}
				selector, ok := call.Fun.(*ast.SelectorExpr)
				if !ok {
					return true
				}
				obj := pkg.TypesInfo.Uses[selector.Sel]
				if obj == nil || obj.Pkg() == nil || obj.Pkg().Path() != loggingPath {
					return true
				}
				switch obj.Name() {
				case "Debug", "Info", "Warn", "Error":
				default:
					return true
				}

				// ctx, msg, then key/value pairs.
				for _, arg := range call.Args[min(2, len(call.Args)):] {
					if name, ok := rawName(arg); ok && sensitiveName(name) {
						pos := fset.Position(arg.Pos())
						findings = append(findings, fmt.Sprintf("%s: %s passed to logger; log a placeholder instead", pos, name))
					}
				}
				return true
			})
		}
	}

	if len(findings) > 0 {
		t.Fatalf("key logging policy violation:\n%s", strings.Join(findings, "\n"))
	}
}

func rawName(e ast.Expr) (string, bool) {
	switch v := e.(type) {
	case *ast.Ident:
		return v.Name, true
	case *ast.SelectorExpr:
		return v.Sel.Name, true
	}
	return "", false
}

func sensitiveName(name string) bool {
	n := strings.ToLower(name)
	return n == "expr" || n == "orig" || strings.HasSuffix(n, "key")
}

func TestSensitiveName(t *testing.T) {
	for name, want := range map[string]bool{
		"key":         true,
		"cancelKey":   true,
		"OwnerKey":    true,
		"expr":        true,
		"placeholder": false,
		"keys":        false,
		"rewritten":   false,
	} {
		if got := sensitiveName(name); got != want {
			t.Errorf("sensitiveName(%q) = %v, want %v", name, got, want)
		}
	}
}
