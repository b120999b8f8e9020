// Package buildmatrix compiles one source file into a matrix of binaries
// across optimization and debug-info levels, deduplicated by content hash.
package buildmatrix

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/cosiner/argv"

	"github.com/edumoot/debugInfo/pkg/logflags"
)

// Config describes the compiler and the sweep. Immutable once constructed.
type Config struct {
	// CC is the compiler executable.
	CC string
	// OptLevels is the ordered set of -O levels to sweep.
	OptLevels []string
	// DebugLevels is the ordered set of -g levels to sweep.
	DebugLevels []string
	// IncludeDir is passed as -I<dir> to every invocation.
	IncludeDir string
	// CFlags holds extra flags, quoted the way a shell would accept them.
	CFlags string
}

// Binary is one compiled artifact of the sweep.
type Binary struct {
	// Source is the path of the source file this binary was built from.
	Source string
	// OptLevel and DebugLevel are the levels this binary was built with.
	OptLevel   string
	DebugLevel string
	// Path is where the artifact was written.
	Path string
	// Hash is the hex encoded sha256 digest of the artifact, computed
	// right after a successful build.
	Hash string

	// Lines maps a source file base name to its verified line numbers.
	// Written once by the verifier, read by the issue detector.
	Lines map[string][]int
}

// Name returns the artifact base name, derived from the source stem and the
// levels that produced it.
func (b *Binary) Name() string {
	return filepath.Base(b.Path)
}

func outputName(source, opt, dbg string) string {
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return fmt.Sprintf("%s_O%s_D%s.out", stem, opt, dbg)
}

// ExtraFlags parses the CFlags string into individual arguments.
func (cfg *Config) ExtraFlags() ([]string, error) {
	if cfg.CFlags == "" {
		return nil, nil
	}
	v, err := argv.Argv(cfg.CFlags, func(s string) (string, error) {
		return "", fmt.Errorf("backtick not supported in %q", s)
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal cflags %q", cfg.CFlags)
	}
	return v[0], nil
}

// Build sweeps every (optimization, debug) level pair and returns the
// binaries that built successfully and are not byte-identical to an earlier
// one. Failed pairs are logged and skipped; they never abort the sweep.
// Retained binaries keep insertion order.
func Build(ctx context.Context, cfg *Config, source, outputDir string, timeout time.Duration) []*Binary {
	logger := logflags.BuildLogger()

	extra, err := cfg.ExtraFlags()
	if err != nil {
		logger.Errorf("could not parse extra compiler flags: %v", err)
		return nil
	}

	var binaries []*Binary
	seen := make(map[string]bool)
	for _, opt := range cfg.OptLevels {
		for _, dbg := range cfg.DebugLevels {
			b := &Binary{
				Source:     source,
				OptLevel:   opt,
				DebugLevel: dbg,
				Path:       filepath.Join(outputDir, outputName(source, opt, dbg)),
			}
			if err := compile(ctx, cfg, b, extra, timeout); err != nil {
				logger.Errorf("failed to compile %s with -O%s -g%s: %v", source, opt, dbg, err)
				continue
			}
			b.Hash, err = fileHash(b.Path)
			if err != nil {
				logger.Errorf("could not hash %s: %v", b.Path, err)
				Remove(b.Path)
				continue
			}
			if seen[b.Hash] {
				// Identical to a binary produced by an earlier
				// pair, not a distinct variant.
				Remove(b.Path)
				continue
			}
			seen[b.Hash] = true
			binaries = append(binaries, b)
		}
	}
	return binaries
}

func compile(ctx context.Context, cfg *Config, b *Binary, extra []string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	args := []string{b.Source}
	if cfg.IncludeDir != "" {
		args = append(args, "-I"+cfg.IncludeDir)
	}
	args = append(args, "-O"+b.OptLevel, "-g"+b.DebugLevel)
	args = append(args, extra...)
	args = append(args, "-o", b.Path)

	cmd := exec.CommandContext(ctx, cfg.CC, args...)
	cmd.Dir = filepath.Dir(b.Path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if len(out) > 0 {
			return fmt.Errorf("%v: %s", err, strings.TrimSpace(string(out)))
		}
		return err
	}
	return nil
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Remove deletes the file at path and issues a warning if this fails.
// Open files can be removed on Unix, but not on Windows, where there also
// appears to be a delay in releasing the binary when the debuggee exits, so
// removal is retried there.
func Remove(path string) {
	var err error
	for i := 0; i < 20; i++ {
		err = os.Remove(path)
		if err == nil || runtime.GOOS != "windows" {
			break
		}
		time.Sleep(1 * time.Millisecond)
	}
	if err != nil && !os.IsNotExist(err) {
		logflags.BuildLogger().Warnf("could not remove %v: %v", path, err)
	}
}
