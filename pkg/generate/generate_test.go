package generate

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/edumoot/debugInfo/pkg/checker"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatal(err)
	}
	return p
}

// quietChecker returns a Checker whose compilers and interpreter all accept
// everything, so a screen passes unconditionally.
func quietChecker(t *testing.T, dir string) *checker.Checker {
	t.Helper()
	quiet := writeScript(t, dir, "quietcc", `for a in "$@"; do
	case "$a" in
	-o?*)
		out="${a#-o}"
		if [ "$out" != /dev/null ]; then
			printf '#!/bin/sh\nexit 0\n' > "$out"
			chmod +x "$out"
		fi
		;;
	esac
done
exit 0
`)
	c := checker.New()
	c.GCC = quiet
	c.Clang = quiet
	c.CompCert = quiet
	return c
}

func TestRunCsmith(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake generator is a shell script")
	}
	dir := t.TempDir()
	csmith := writeScript(t, dir, "csmith", `echo "int main(void) { return 0; }"
`)

	g := New()
	g.Csmith = csmith
	out, err := g.RunCsmith(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "int main") {
		t.Fatalf("unexpected generator output %q", out)
	}
}

func TestRunCsmithGivesUp(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake generator is a shell script")
	}
	dir := t.TempDir()
	csmith := writeScript(t, dir, "csmith", "exit 1\n")

	g := New()
	g.Csmith = csmith
	if _, err := g.RunCsmith(context.Background()); err == nil {
		t.Fatalf("expected error from a generator that always fails")
	}
}

func TestInterestingCaseSizeBounds(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake generator is a shell script")
	}
	dir := t.TempDir()
	// The first call is too small; the retry produces an acceptable case.
	marker := filepath.Join(dir, "ran-once")
	csmith := writeScript(t, dir, "csmith", `if [ -e `+marker+` ]; then
	echo "int main(void) { return 12345; }"
else
	touch `+marker+`
	echo "x"
fi
`)

	g := New()
	g.Csmith = csmith
	g.Checker = quietChecker(t, dir)
	g.MinSize = 10
	g.MaxSize = 100
	g.rng = rand.New(rand.NewSource(1))

	source, err := g.InterestingCase(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(source, "12345") {
		t.Fatalf("expected the second candidate, got %q", source)
	}
}

func TestParallel(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake generator is a shell script")
	}
	dir := t.TempDir()
	csmith := writeScript(t, dir, "csmith", `echo "int main(void) { return 0; }"
`)

	g := New()
	g.Csmith = csmith
	g.Checker = quietChecker(t, dir)
	g.MinSize = 1
	g.MaxSize = 1000

	outdir := filepath.Join(dir, "cases")
	if err := g.Parallel(context.Background(), outdir, 3, 2); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"d_00000.c", "d_00001.c", "d_00002.c"} {
		if _, err := os.Stat(filepath.Join(outdir, name)); err != nil {
			t.Fatalf("missing generated case %s: %v", name, err)
		}
	}
}
