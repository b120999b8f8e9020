// Package analyze sequences the pipeline for one source file and fans it
// out across source files: build the variant matrix, verify statement lines
// for every binary, classify debug values, record evidence, release
// everything.
package analyze

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/edumoot/debugInfo/pkg/buildmatrix"
	"github.com/edumoot/debugInfo/pkg/detect"
	"github.com/edumoot/debugInfo/pkg/evidence"
	"github.com/edumoot/debugInfo/pkg/extract"
	"github.com/edumoot/debugInfo/pkg/logflags"
)

// Options carries the read-only configuration shared by all analyses.
type Options struct {
	// Build describes the compiler sweep.
	Build *buildmatrix.Config
	// DwarfDumpPath and DebuggerPath are the external tools handed to
	// the per-binary verification workers.
	DwarfDumpPath string
	DebuggerPath  string
	// ExtractorPath is the external debug-value extractor; empty skips
	// issue detection.
	ExtractorPath string
	// EvidenceDir receives flagged sources and binaries.
	EvidenceDir string

	// CompileTimeout bounds one compiler invocation, AnalysisTimeout one
	// verification worker, ExtractTimeout one extractor invocation.
	CompileTimeout  time.Duration
	AnalysisTimeout time.Duration
	ExtractTimeout  time.Duration

	// Workers bounds every worker pool. Zero means NumCPU.
	Workers int
}

func (o *Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.NumCPU()
}

// SingleSource is the analysis of one source file. It owns a temporary
// output directory and every binary built into it until Cleanup.
type SingleSource struct {
	opts   *Options
	source string

	outputDir string
	binaries  []*buildmatrix.Binary
}

// NewSingleSource returns the analysis for one source file.
func NewSingleSource(opts *Options, source string) *SingleSource {
	return &SingleSource{opts: opts, source: source}
}

// Run executes the pipeline. The caller must invoke Cleanup afterwards on
// every exit path.
func (a *SingleSource) Run(ctx context.Context) error {
	logger := logflags.AnalyzeLogger()

	outputDir, err := ioutil.TempDir("", "dwatch-out")
	if err != nil {
		return err
	}
	a.outputDir = outputDir

	a.binaries = buildmatrix.Build(ctx, a.opts.Build, a.source, a.outputDir, a.opts.CompileTimeout)
	if len(a.binaries) == 0 {
		return fmt.Errorf("no binaries produced for %s", a.source)
	}
	logger.Debugf("%s: %d distinct binaries", a.source, len(a.binaries))

	a.verifyAll(ctx)

	if a.opts.ExtractorPath == "" {
		logger.Infof("%s: no extractor configured, skipping issue detection", filepath.Base(a.source))
		return nil
	}
	extractor := &extract.CommandExtractor{Path: a.opts.ExtractorPath, Timeout: a.opts.ExtractTimeout}
	issues := detect.FindIssues(ctx, a.binaries, extractor, a.opts.workers())
	if len(issues) == 0 {
		logger.Infof("%s: no issues found, skipping result writing", filepath.Base(a.source))
		return nil
	}
	rec := evidence.NewRecorder(a.opts.EvidenceDir, a.opts.Build.CC)
	return rec.Write(issues, a.binaries, filepath.Dir(a.source))
}

// verifyAll populates every binary's verified line map. Each binary is
// verified in its own worker process because the debugger session owns
// process-global state; a worker that fails or times out leaves its binary
// with no verified lines and the analysis carries on.
func (a *SingleSource) verifyAll(ctx context.Context) {
	logger := logflags.AnalyzeLogger()

	sem := make(chan struct{}, a.opts.workers())
	var wg sync.WaitGroup
	for _, b := range a.binaries {
		wg.Add(1)
		sem <- struct{}{}
		go func(b *buildmatrix.Binary) {
			defer wg.Done()
			defer func() { <-sem }()
			lines, err := a.runVerifyWorker(ctx, b)
			if err != nil {
				logger.Errorf("verification worker failed for %s: %v", b.Name(), err)
				b.Lines = map[string][]int{}
				return
			}
			b.Lines = lines
		}(b)
	}
	wg.Wait()
}

// Cleanup deletes every binary artifact and removes the output directory if
// it is left empty. Safe to call multiple times and after partial failures.
func (a *SingleSource) Cleanup() {
	for _, b := range a.binaries {
		buildmatrix.Remove(b.Path)
		b.Lines = nil
	}
	a.binaries = nil
	if a.outputDir != "" {
		// Only an empty directory is removed; anything else in it was
		// not ours to delete.
		if entries, err := ioutil.ReadDir(a.outputDir); err == nil && len(entries) == 0 {
			os.Remove(a.outputDir)
		}
	}
}

// FindCFiles returns every .c file under dir, sorted for reproducible runs.
func FindCFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".c") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ParallelSources distributes independent per-source analyses over a worker
// pool. A failed analysis is logged and the pool carries on with the other
// files.
func ParallelSources(ctx context.Context, opts *Options, sources []string) {
	logger := logflags.AnalyzeLogger()

	sem := make(chan struct{}, opts.workers())
	var wg sync.WaitGroup
	for _, source := range sources {
		wg.Add(1)
		sem <- struct{}{}
		go func(source string) {
			defer wg.Done()
			defer func() { <-sem }()
			analysis := NewSingleSource(opts, source)
			defer analysis.Cleanup()
			if err := analysis.Run(ctx); err != nil {
				logger.Errorf("analysis of %s failed: %v", source, err)
				return
			}
			logger.Infof("analysis of %s complete", source)
		}(source)
	}
	wg.Wait()
}
