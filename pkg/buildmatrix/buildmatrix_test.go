package buildmatrix

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// fakeCompiler writes a script that emits output depending only on the -O
// flag, so every debug level of the same optimization level collapses to one
// binary, and that fails outright for -O3.
const fakeCompiler = `#!/bin/sh
opt=""
out=""
prev=""
for a in "$@"; do
	case "$a" in
	-O*) opt="$a" ;;
	esac
	if [ "$prev" = "-o" ]; then
		out="$a"
	fi
	prev="$a"
done
if [ "$opt" = "-O3" ]; then
	echo "error: internal compiler error" >&2
	exit 1
fi
echo "binary for $opt" > "$out"
`

func writeFakeCompiler(t *testing.T, dir string) string {
	t.Helper()
	cc := filepath.Join(dir, "fakecc")
	if err := os.WriteFile(cc, []byte(fakeCompiler), 0755); err != nil {
		t.Fatal(err)
	}
	return cc
}

func testConfig(t *testing.T, dir string) *Config {
	return &Config{
		CC:          writeFakeCompiler(t, dir),
		OptLevels:   []string{"0", "2", "3"},
		DebugLevels: []string{"1", "2", "3"},
	}
}

func TestBuildDedup(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test compiler is a shell script")
	}
	dir := t.TempDir()
	outdir := t.TempDir()
	cfg := testConfig(t, dir)

	src := filepath.Join(dir, "case.c")
	if err := os.WriteFile(src, []byte("int main(void) { return 0; }\n"), 0644); err != nil {
		t.Fatal(err)
	}

	binaries := Build(context.Background(), cfg, src, outdir, 10*time.Second)

	// -O3 fails, -O0 and -O2 each collapse across the three -g levels.
	if len(binaries) != 2 {
		t.Fatalf("expected 2 deduplicated binaries, got %d", len(binaries))
	}
	seen := make(map[string]bool)
	for _, b := range binaries {
		if b.Hash == "" {
			t.Fatalf("binary %s has no hash", b.Name())
		}
		if seen[b.Hash] {
			t.Fatalf("duplicate hash retained: %s", b.Hash)
		}
		seen[b.Hash] = true
		if _, err := os.Stat(b.Path); err != nil {
			t.Fatalf("retained binary missing on disk: %v", err)
		}
	}

	// Insertion order follows the sweep order.
	if binaries[0].OptLevel != "0" || binaries[1].OptLevel != "2" {
		t.Fatalf("unexpected retention order: %s, %s", binaries[0].Name(), binaries[1].Name())
	}

	// Discarded duplicates must not be left on disk.
	entries, err := os.ReadDir(outdir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 artifacts in output dir, found %d", len(entries))
	}
}

func TestOutputName(t *testing.T) {
	got := outputName("/tmp/work/case7.c", "s", "2")
	if got != "case7_Os_D2.out" {
		t.Fatalf("unexpected output name %q", got)
	}
}

func TestExtraFlags(t *testing.T) {
	cfg := &Config{CFlags: `-fno-inline '-DGREETING=hello world'`}
	flags, err := cfg.ExtraFlags()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"-fno-inline", "-DGREETING=hello world"}
	if len(flags) != len(want) {
		t.Fatalf("expected %v, got %v", want, flags)
	}
	for i := range want {
		if flags[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, flags)
		}
	}
}
