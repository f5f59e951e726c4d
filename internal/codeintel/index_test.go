package codeintel

import (
	"os"
	"path/filepath"
	"testing"
)

func writeGoFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIndexFile_FindsFunctionsTypesAndMethods(t *testing.T) {
	dir := t.TempDir()
	path := writeGoFile(t, dir, "a.go", `package a

type Widget struct{ Name string }

func (w *Widget) Render() string { return w.Name }

func NewWidget(name string) *Widget { return &Widget{Name: name} }

const MaxWidgets = 10
`)

	idx := NewIndex()
	fi, err := idx.IndexFile(path)
	if err != nil {
		t.Fatalf("IndexFile: %v", err)
	}

	kinds := map[string]string{}
	for _, s := range fi.Symbols {
		kinds[s.Name] = s.Kind
	}
	if kinds["Widget"] != "type" {
		t.Errorf("expected Widget to be indexed as a type, got %q", kinds["Widget"])
	}
	if kinds["Widget.Render"] != "method" {
		t.Errorf("expected Widget.Render to be indexed as a method, got %q", kinds["Widget.Render"])
	}
	if kinds["NewWidget"] != "function" {
		t.Errorf("expected NewWidget to be indexed as a function, got %q", kinds["NewWidget"])
	}
	if kinds["MaxWidgets"] != "const" {
		t.Errorf("expected MaxWidgets to be indexed as a const, got %q", kinds["MaxWidgets"])
	}
}

func TestScanWorkspace_SkipsVendorAndUnparsableFiles(t *testing.T) {
	dir := t.TempDir()
	writeGoFile(t, dir, "good.go", "package a\n\nfunc Good() {}\n")

	vendorDir := filepath.Join(dir, "vendor")
	os.MkdirAll(vendorDir, 0o755)
	writeGoFile(t, vendorDir, "skip.go", "package skip\n\nfunc Skip() {}\n")

	writeGoFile(t, dir, "broken.go", "package a\n\nfunc ( {{{ broken")

	idx := NewIndex()
	if err := idx.ScanWorkspace(dir); err != nil {
		t.Fatalf("ScanWorkspace: %v", err)
	}

	if len(idx.FindSymbol("Good")) != 1 {
		t.Fatalf("expected Good to be indexed")
	}
	if len(idx.FindSymbol("Skip")) != 0 {
		t.Fatalf("expected vendor directory to be skipped")
	}
}

func TestFindSymbol_ExactMatchesRankBeforePartial(t *testing.T) {
	dir := t.TempDir()
	writeGoFile(t, dir, "a.go", `package a

func Run() {}
func RunAll() {}
`)
	idx := NewIndex()
	idx.ScanWorkspace(dir)

	results := idx.FindSymbol("Run")
	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(results))
	}
	if results[0].Name != "Run" {
		t.Fatalf("expected the exact match first, got %q", results[0].Name)
	}
}

func TestFindFiles_CaseInsensitiveSubstring(t *testing.T) {
	dir := t.TempDir()
	writeGoFile(t, dir, "Handler.go", "package a\n")

	idx := NewIndex()
	idx.ScanWorkspace(dir)

	if len(idx.FindFiles("handler")) != 1 {
		t.Fatalf("expected a case-insensitive substring match")
	}
	if len(idx.Files()) != 1 {
		t.Fatalf("expected exactly one indexed file, got %d", len(idx.Files()))
	}
}
