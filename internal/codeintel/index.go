// Package codeintel provides a lightweight, in-memory symbol index the
// Planner consults to turn a vague "refactor X" request into concrete
// PlanStep file targets.
package codeintel

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Symbol is one named declaration found while indexing the workspace.
type Symbol struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"` // "function", "method", "type", "var", "const"
	File     string `json:"file"`
	Line     int    `json:"line"`
	Exported bool   `json:"exported"`
}

// FileIndex holds the symbols found in one file.
type FileIndex struct {
	Path    string
	Symbols []Symbol
}

// Index is a process-wide symbol table built by scanning the workspace
// once at startup and refreshed on demand by IndexFile.
type Index struct {
	mu    sync.RWMutex
	files map[string]*FileIndex
}

// NewIndex builds an empty Index.
func NewIndex() *Index {
	return &Index{files: make(map[string]*FileIndex)}
}

// ScanWorkspace walks root indexing every .go file found. Parse errors on
// individual files are skipped rather than aborting the whole scan.
func (idx *Index) ScanWorkspace(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if info.Name() == "vendor" || info.Name() == "node_modules" || strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, ".go") {
			_, _ = idx.IndexFile(path)
		}
		return nil
	})
}

// IndexFile parses a single Go file and (re)populates its symbol entry.
func (idx *Index) IndexFile(path string) (*FileIndex, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, err
	}

	fi := &FileIndex{Path: path}
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			kind := "function"
			name := d.Name.Name
			if d.Recv != nil && len(d.Recv.List) > 0 {
				kind = "method"
				name = recvTypeName(d.Recv.List[0].Type) + "." + name
			}
			fi.Symbols = append(fi.Symbols, Symbol{
				Name: name, Kind: kind, File: path,
				Line: fset.Position(d.Pos()).Line, Exported: d.Name.IsExported(),
			})
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					fi.Symbols = append(fi.Symbols, Symbol{
						Name: s.Name.Name, Kind: "type", File: path,
						Line: fset.Position(s.Pos()).Line, Exported: s.Name.IsExported(),
					})
				case *ast.ValueSpec:
					for _, n := range s.Names {
						kind := "var"
						if d.Tok == token.CONST {
							kind = "const"
						}
						fi.Symbols = append(fi.Symbols, Symbol{
							Name: n.Name, Kind: kind, File: path,
							Line: fset.Position(n.Pos()).Line, Exported: n.IsExported(),
						})
					}
				}
			}
		}
	}

	idx.mu.Lock()
	idx.files[path] = fi
	idx.mu.Unlock()
	return fi, nil
}

func recvTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return recvTypeName(t.X)
	case *ast.Ident:
		return t.Name
	default:
		return "?"
	}
}

// FindSymbol returns every indexed symbol whose name matches exactly or
// contains the query as a substring, exact matches first.
func (idx *Index) FindSymbol(query string) []Symbol {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var exact, partial []Symbol
	for _, fi := range idx.files {
		for _, s := range fi.Symbols {
			if s.Name == query {
				exact = append(exact, s)
			} else if strings.Contains(strings.ToLower(s.Name), strings.ToLower(query)) {
				partial = append(partial, s)
			}
		}
	}
	return append(exact, partial...)
}

// FindFiles returns every indexed file path whose base name or directory
// contains the query as a substring (case-insensitive).
func (idx *Index) FindFiles(query string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	q := strings.ToLower(query)
	var out []string
	for path := range idx.files {
		if strings.Contains(strings.ToLower(path), q) {
			out = append(out, path)
		}
	}
	return out
}

// Files returns every currently indexed file path.
func (idx *Index) Files() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.files))
	for path := range idx.files {
		out = append(out, path)
	}
	return out
}
