package internalcheck

import (
	"testing"

	"golang.org/x/tools/go/packages"
)

const (
	libraryPattern = "github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/..."
	loggingPath    = "github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/logging"
)

func loadLibrary(t *testing.T) []*packages.Package {
	t.Helper()
	cfg := &packages.Config{
		Mode: packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo | packages.NeedFiles | packages.NeedName,
	}
	pkgs, err := packages.Load(cfg, libraryPattern)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	if n := packages.PrintErrors(pkgs); n > 0 {
		t.Fatalf("%d errors while loading %s", n, libraryPattern)
	}
	return pkgs
}
