package server

import (
	"go/parser"
	"go/token"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// TestServerDoesNotImportClient verifies the server builds without the HTTP
// client package.
func TestServerDoesNotImportClient(t *testing.T) {
	const clientPkg = "github.com/claude/liftlog/internal/client"

	files, err := filepath.Glob("*.go")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	fset := token.NewFileSet()
	for _, name := range files {
		if strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, name, nil, parser.ImportsOnly)
		if err != nil {
			t.Fatalf("parsing %s: %v", name, err)
		}
		for _, imp := range f.Imports {
			path, _ := strconv.Unquote(imp.Path.Value)
			if path == clientPkg {
				t.Errorf("%s imports %s", name, clientPkg)
			}
		}
	}
}
