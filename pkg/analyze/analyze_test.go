package analyze

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/edumoot/debugInfo/pkg/buildmatrix"
)

func TestCleanup(t *testing.T) {
	outdir := t.TempDir()

	mkbin := func(name string) *buildmatrix.Binary {
		p := filepath.Join(outdir, name)
		if err := os.WriteFile(p, []byte("\x7fELF"), 0755); err != nil {
			t.Fatal(err)
		}
		return &buildmatrix.Binary{Path: p, Lines: map[string][]int{"a.c": {1}}}
	}

	a := &SingleSource{
		outputDir: outdir,
		binaries:  []*buildmatrix.Binary{mkbin("a_O0_D1.out"), mkbin("a_O2_D1.out")},
	}
	a.Cleanup()

	if a.binaries != nil {
		t.Fatalf("binaries not released")
	}
	if _, err := os.Stat(outdir); !os.IsNotExist(err) {
		t.Fatalf("empty output directory not removed")
	}
}

func TestCleanupKeepsNonEmptyDir(t *testing.T) {
	outdir := t.TempDir()
	stray := filepath.Join(outdir, "stray.txt")
	if err := os.WriteFile(stray, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	a := &SingleSource{outputDir: outdir}
	a.Cleanup()

	if _, err := os.Stat(outdir); err != nil {
		t.Fatalf("non-empty output directory was removed: %v", err)
	}
	if _, err := os.Stat(stray); err != nil {
		t.Fatalf("stray file was deleted: %v", err)
	}
}

func TestCleanupIdempotent(t *testing.T) {
	a := &SingleSource{}
	a.Cleanup()
	a.Cleanup()
}

func TestFindCFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"b.c", "a.c", "notes.txt", "sub/c.c"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("int x;\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := FindCFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(dir, "a.c"),
		filepath.Join(dir, "b.c"),
		filepath.Join(dir, "sub", "c.c"),
	}
	if !reflect.DeepEqual(files, want) {
		t.Fatalf("expected %v, got %v", want, files)
	}
}
