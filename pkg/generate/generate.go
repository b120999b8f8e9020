// Package generate produces random C cases with csmith and keeps only those
// that survive the interestingness screen.
package generate

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/edumoot/debugInfo/pkg/checker"
	"github.com/edumoot/debugInfo/pkg/logflags"
)

// toggleOptions are csmith features that are randomly enabled or disabled
// per case to vary the generated programs.
var toggleOptions = []string{
	"arrays", "bitfields", "checksum", "comma-operators",
	"compound-assignment", "consts", "divs", "embedded-assigns",
	"jumps", "longlong", "force-non-uniform-arrays", "math64",
	"muls", "packed-struct", "paranoid", "pointers", "structs",
	"inline-function", "return-structs", "arg-structs",
	"dangling-global-pointers",
}

// baseArgs are always passed: no unions, checked math, nothing volatile.
var baseArgs = []string{
	"--no-unions", "--safe-math", "--no-argc",
	"--no-volatiles", "--no-volatile-pointers",
}

// Generator produces screened cases.
type Generator struct {
	// Csmith is the generator executable.
	Csmith string
	// Checker screens candidates.
	Checker *checker.Checker
	// MinSize and MaxSize bound the accepted source size in bytes.
	MinSize int
	MaxSize int
	// Flags are extra compiler flags used during screening.
	Flags string

	rng *rand.Rand
}

// New returns a Generator with the conventional defaults.
func New() *Generator {
	return &Generator{
		Csmith:  "csmith",
		Checker: checker.New(),
		MinSize: 4000,
		MaxSize: 30000,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

var errCsmithFailed = errors.New("csmith failed 10 times in a row")

// RunCsmith invokes csmith once with a random feature selection. It retries
// a failed invocation up to 10 times before giving up.
func (g *Generator) RunCsmith(ctx context.Context) (string, error) {
	args := append([]string{}, baseArgs...)
	for _, opt := range toggleOptions {
		if g.rng.Intn(2) == 0 {
			args = append(args, "--no-"+opt)
		} else {
			args = append(args, "--"+opt)
		}
	}

	for i := 0; i < 10; i++ {
		runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		out, err := exec.CommandContext(runCtx, g.Csmith, args...).Output()
		cancel()
		if err == nil {
			return string(out), nil
		}
		logflags.GeneratorLogger().Warnf("csmith attempt %d failed: %v", i+1, err)
	}
	return "", errCsmithFailed
}

// InterestingCase generates candidates until one passes the size bounds and
// the full screen, and returns its source text.
func (g *Generator) InterestingCase(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate, err := g.RunCsmith(ctx)
		if err != nil {
			return "", err
		}
		if len(candidate) < g.MinSize || len(candidate) > g.MaxSize {
			continue
		}
		ok, err := g.screen(ctx, candidate)
		if err != nil {
			return "", err
		}
		if ok {
			return candidate, nil
		}
	}
}

func (g *Generator) screen(ctx context.Context, candidate string) (bool, error) {
	f, err := ioutil.TempFile("", "dwatch-*.c")
	if err != nil {
		return false, err
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(candidate); err != nil {
		f.Close()
		return false, err
	}
	if err := f.Close(); err != nil {
		return false, err
	}
	return g.Checker.Sanitize(ctx, f.Name(), g.Flags), nil
}

// Parallel writes n screened cases named d_00000.c .. into dir using the
// given number of workers. Failed generations are logged and counted as
// done; the survivors determine how many files actually appear.
func (g *Generator) Parallel(ctx context.Context, dir string, n, workers int) error {
	logger := logflags.GeneratorLogger()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if workers <= 0 {
		workers = 1
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			// Each worker needs its own rng; rand.Rand is not safe
			// for concurrent use.
			w := *g
			w.rng = rand.New(rand.NewSource(time.Now().UnixNano() + int64(i)))
			source, err := w.InterestingCase(ctx)
			if err != nil {
				logger.Errorf("error generating case %d: %v", i, err)
				return
			}
			name := filepath.Join(dir, fmt.Sprintf("d_%05d.c", i))
			if err := ioutil.WriteFile(name, []byte(source), 0644); err != nil {
				logger.Errorf("error writing case %d: %v", i, err)
				return
			}
			logger.Infof("generated %s", name)
		}(i)
	}
	wg.Wait()
	return ctx.Err()
}
