// Package detect classifies extracted debug values into issues, per binary
// and verified line.
package detect

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/edumoot/debugInfo/pkg/buildmatrix"
	"github.com/edumoot/debugInfo/pkg/extract"
	"github.com/edumoot/debugInfo/pkg/logflags"
)

// Issue flags one suspect debug value. Issues are pure values; they are
// appended to a flat ordered list and never mutated.
type Issue struct {
	// Binary is the artifact name the value was read from.
	Binary string
	// SourceFile and Line locate the reading.
	SourceFile string
	Line       int
	// Message is "<name> - <error message>".
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s %s %d: %s", i.Binary, i.SourceFile, i.Line, i.Message)
}

// Classify applies the classification rules to the values read at one
// (binary, file, line). Every rule is evaluated independently and all
// matching rules fire, so a value can be recorded more than once; duplicate
// signal is acceptable evidence weight.
//
// Note the deliberate asymmetry: a pointer value whose error is a known
// benign class is still recorded (rule three), while a non-pointer value
// with a known error is not (rule two). Do not "fix" this without revisiting
// the evidence corpus that depends on it.
func Classify(binary, sourceFile string, line int, values []extract.DebugValue) []Issue {
	logger := logflags.DetectorLogger()
	var issues []Issue
	for i := range values {
		v := &values[i]
		if v.IsPointer() {
			// Pointers are surfaced for visual inspection even
			// when nothing is wrong with them.
			logger.Infof("%s %s %d: %s", binary, sourceFile, line, v)
		}
		if v.ErrorMessage != "" && !v.IsKnownError() {
			issues = append(issues, Issue{
				Binary:     binary,
				SourceFile: sourceFile,
				Line:       line,
				Message:    fmt.Sprintf("%s - %s", v.Name, v.ErrorMessage),
			})
		}
		if v.IsPointer() && v.ErrorMessage != "" {
			issues = append(issues, Issue{
				Binary:     binary,
				SourceFile: sourceFile,
				Line:       line,
				Message:    fmt.Sprintf("%s - %s", v.Name, v.ErrorMessage),
			})
		}
	}
	return issues
}

// FindIssues runs value extraction over every verified line of every binary
// and returns the flattened issue list in binary order. Binaries are
// processed by one worker each; the result is joined, not streamed, because
// evidence writing needs the complete list. Extraction failures degrade the
// result and are logged, never fatal.
func FindIssues(ctx context.Context, binaries []*buildmatrix.Binary, extractor extract.Extractor, workers int) []Issue {
	logger := logflags.DetectorLogger()
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	perBinary := make([][]Issue, len(binaries))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := range binaries {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			b := binaries[i]
			var issues []Issue
			for sourceFile, lines := range b.Lines {
				for _, line := range lines {
					values, err := extractor.Extract(ctx, sourceFile, b.Path, line)
					if err != nil {
						logger.Errorf("extraction failed for %s %s:%d: %v", b.Name(), sourceFile, line, err)
						continue
					}
					issues = append(issues, Classify(b.Name(), sourceFile, line, values)...)
				}
			}
			perBinary[i] = issues
		}(i)
	}
	wg.Wait()

	var all []Issue
	for _, issues := range perBinary {
		all = append(all, issues...)
	}
	return all
}
