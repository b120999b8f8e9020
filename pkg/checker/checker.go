// Package checker screens candidate C programs: a case is only worth
// analyzing when both compilers accept it without suspicious warnings, the
// sanitizers find no undefined behavior, and it actually exercises the
// debug-info features under test.
package checker

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/edumoot/debugInfo/pkg/dwarfdump"
	"github.com/edumoot/debugInfo/pkg/logflags"
)

// suspiciousWarnings are compiler diagnostics that mark a generated case as
// unusable: they usually indicate latent undefined behavior or code the two
// compilers disagree about.
var suspiciousWarnings = []string{
	"conversions than data arguments",
	"incompatible redeclaration",
	"ordered comparison between pointer",
	"eliding middle term",
	"end of non-void function",
	"invalid in C99",
	"specifies type",
	"should return a value",
	"uninitialized",
	"incompatible pointer to",
	"incompatible integer to",
	"comparison of distinct pointer types",
	"type specifier missing",
	"Wimplicit-int",
	"division by zero",
	"without a cast",
	"control reaches end",
	"return type defaults",
	"cast from pointer to integer",
	"useless type name in empty declaration",
	"no semicolon at end",
	"type defaults to",
	"too few arguments for format",
	"incompatible pointer",
	"ordered comparison of pointer with integer",
	"declaration does not declare anything",
	"expects type",
	"pointer from integer",
	"incompatible implicit",
	"excess elements in struct initializer",
	"comparison between pointer and integer",
	"return type of 'main' is not 'int'",
	"past the end of the array",
	"no return statement in function returning non-void",
	"undefined behavior",
}

// Checker runs the interestingness screen. All external invocations are
// memoized per (tool, file, flags) because the same case is screened several
// times along the pipeline.
type Checker struct {
	GCC      string
	Clang    string
	CompCert string
	Dump     *dwarfdump.Tool

	// CompileTimeout bounds one compiler invocation, ExecTimeout one run
	// of an instrumented binary.
	CompileTimeout time.Duration
	ExecTimeout    time.Duration

	cache *lru.Cache
}

// New returns a Checker with the conventional tool names.
func New() *Checker {
	cache, _ := lru.New(128)
	return &Checker{
		GCC:            "gcc",
		Clang:          "clang",
		CompCert:       "ccomp",
		Dump:           &dwarfdump.Tool{Path: "llvm-dwarfdump"},
		CompileTimeout: 8 * time.Second,
		ExecTimeout:    2 * time.Second,
		cache:          cache,
	}
}

type ccResult struct {
	code   int
	output string
}

// compilerOutput compiles file to /dev/null with the warning set enabled and
// returns the exit code and combined diagnostics, memoized.
func (c *Checker) compilerOutput(ctx context.Context, cc, file, flags string) ccResult {
	key := cc + "\x00" + file + "\x00" + flags
	if v, ok := c.cache.Get(key); ok {
		return v.(ccResult)
	}

	args := []string{file, "-c", "-o/dev/null", "-Wall", "-Wextra", "-Wpedantic",
		"-O3", "-Wno-builtin-declaration-mismatch", "-I/usr/local/include/"}
	if flags != "" {
		args = append(args, strings.Fields(flags)...)
	}
	res := c.run(ctx, c.CompileTimeout, cc, args...)
	c.cache.Add(key, res)
	return res
}

func (c *Checker) run(ctx context.Context, timeout time.Duration, name string, args ...string) ccResult {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		code := 1
		if ee, ok := err.(*exec.ExitError); ok && ee.ExitCode() > 0 {
			code = ee.ExitCode()
		}
		return ccResult{code: code, output: string(out)}
	}
	return ccResult{code: 0, output: string(out)}
}

// CheckWarnings reports whether both compilers accept the file without any
// suspicious diagnostic.
func (c *Checker) CheckWarnings(ctx context.Context, file, flags string) bool {
	clang := c.compilerOutput(ctx, c.Clang, file, flags)
	gcc := c.compilerOutput(ctx, c.GCC, file, flags)
	if clang.code != 0 || gcc.code != 0 {
		return false
	}
	for _, w := range suspiciousWarnings {
		if strings.Contains(clang.output, w) || strings.Contains(gcc.output, w) {
			return false
		}
	}
	return true
}

// RunSanitizers builds the file with the undefined-behavior and address
// sanitizers and runs it once; both steps must succeed.
func (c *Checker) RunSanitizers(ctx context.Context, file, flags string) bool {
	tmpdir, err := ioutil.TempDir("", "dwatch-san")
	if err != nil {
		return false
	}
	defer os.RemoveAll(tmpdir)

	binary := filepath.Join(tmpdir, "test.out")
	args := []string{file, "-O0", "-fsanitize=undefined,address", "-o" + binary}
	if flags != "" {
		args = append(args, strings.Fields(flags)...)
	}
	if res := c.run(ctx, c.CompileTimeout, c.Clang, args...); res.code != 0 {
		return false
	}
	return c.run(ctx, c.ExecTimeout, binary).code == 0
}

// VerifyWithCompCert cross-checks the file with the CompCert reference
// interpreter.
func (c *Checker) VerifyWithCompCert(ctx context.Context, file, flags string) bool {
	args := []string{file, "-interp", "-fall"}
	if flags != "" {
		args = append(args, strings.Fields(flags)...)
	}
	return c.run(ctx, 2*c.CompileTimeout, c.CompCert, args...).code == 0
}

// Sanitize is the full screen: warning-free on both compilers, clean under
// the sanitizers and accepted by the reference interpreter.
func (c *Checker) Sanitize(ctx context.Context, file, flags string) bool {
	return c.CheckWarnings(ctx, file, flags) &&
		c.RunSanitizers(ctx, file, flags) &&
		c.VerifyWithCompCert(ctx, file, flags)
}

// Features describes which constructs a case exercises.
type Features struct {
	Pointers bool
	Structs  bool
	Unions   bool
	Arrays   bool
}

// Any reports whether at least one feature is present.
func (f Features) Any() bool {
	return f.Pointers || f.Structs || f.Unions || f.Arrays
}

var arrayRegexp = regexp.MustCompile(`\w+\s*\[[^\]]*\]`)

// StaticCheck looks for the features in the source text, memoized.
func (c *Checker) StaticCheck(file string) (Features, error) {
	key := "static\x00" + file
	if v, ok := c.cache.Get(key); ok {
		return v.(Features), nil
	}
	data, err := ioutil.ReadFile(file)
	if err != nil {
		return Features{}, err
	}
	code := string(data)
	f := Features{
		Pointers: strings.Contains(code, "*"),
		Structs:  strings.Contains(code, "struct"),
		Unions:   strings.Contains(code, "union"),
		Arrays:   arrayRegexp.MatchString(code),
	}
	c.cache.Add(key, f)
	return f, nil
}

// DynamicCheck compiles the file once at -O2 -g and looks for the features
// in the emitted debug info, memoized.
func (c *Checker) DynamicCheck(ctx context.Context, file string) (Features, error) {
	key := "dynamic\x00" + file
	if v, ok := c.cache.Get(key); ok {
		return v.(Features), nil
	}

	tmpdir, err := ioutil.TempDir("", "dwatch-dyn")
	if err != nil {
		return Features{}, err
	}
	defer os.RemoveAll(tmpdir)

	binary := filepath.Join(tmpdir, "test_program")
	res := c.run(ctx, c.CompileTimeout, c.Clang, "-I/usr/local/include/", "-g", "-O2", file, "-o", binary)
	if res.code != 0 {
		return Features{}, fmt.Errorf("could not compile %s: %s", file, strings.TrimSpace(res.output))
	}

	dump, err := c.Dump.DebugInfo(ctx, binary)
	if err != nil {
		return Features{}, err
	}
	f := Features{
		Pointers: strings.Contains(dump, "DW_TAG_pointer_type"),
		Structs:  strings.Contains(dump, "DW_TAG_structure_type"),
		Unions:   strings.Contains(dump, "DW_TAG_union_type"),
		Arrays:   strings.Contains(dump, "DW_TAG_array_type"),
	}
	c.cache.Add(key, f)
	return f, nil
}

// InterestingWithPointers reports whether the case declares and actually
// emits pointer types.
func (c *Checker) InterestingWithPointers(ctx context.Context, file string) bool {
	static, err := c.StaticCheck(file)
	if err != nil || !static.Pointers {
		return false
	}
	dynamic, err := c.DynamicCheck(ctx, file)
	if err != nil {
		logflags.CheckerLogger().Errorf("dynamic check failed for %s: %v", file, err)
		return false
	}
	return dynamic.Pointers
}

// Interesting is the overall predicate: undefined-behavior free and
// exercising pointers.
func (c *Checker) Interesting(ctx context.Context, file string) bool {
	return c.Sanitize(ctx, file, "-g") && c.InterestingWithPointers(ctx, file)
}
