// Package evidence persists flagged source files and binaries together with
// the findings that flagged them.
package evidence

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/edumoot/debugInfo/pkg/buildmatrix"
	"github.com/edumoot/debugInfo/pkg/detect"
	"github.com/edumoot/debugInfo/pkg/logflags"
)

// Recorder writes evidence for one analysis run into a flat directory.
type Recorder struct {
	// Dir is the evidence directory. Created if missing.
	Dir string
	// CC is the compiler whose version tags the comment block.
	CC string

	// now stands in for time.Now in tests.
	now func() time.Time
}

// NewRecorder returns a Recorder writing to dir.
func NewRecorder(dir, cc string) *Recorder {
	return &Recorder{Dir: dir, CC: cc, now: time.Now}
}

// Write persists evidence for the issues found while analyzing sourceDir.
// An empty issue list writes nothing and is not an error. Issues are grouped
// by source file; each flagged source is copied into the evidence directory
// with an appended comment block, and each referenced binary is copied under
// its generated name. A binary that was already cleaned up is skipped with a
// warning.
func (r *Recorder) Write(issues []detect.Issue, binaries []*buildmatrix.Binary, sourceDir string) error {
	logger := logflags.DetectorLogger()
	if len(issues) == 0 {
		return nil
	}
	if err := os.MkdirAll(r.Dir, 0755); err != nil {
		return err
	}

	byFile := make(map[string][]detect.Issue)
	var order []string
	for _, issue := range issues {
		if _, seen := byFile[issue.SourceFile]; !seen {
			order = append(order, issue.SourceFile)
		}
		byFile[issue.SourceFile] = append(byFile[issue.SourceFile], issue)
	}

	header := fmt.Sprintf("\n\n//%s%s %s\n", strings.ToUpper(filepath.Base(r.CC)),
		CompilerVersion(r.CC), r.now().Format("2006-01-02 15:04:05"))
	for _, sourceFile := range order {
		dst := filepath.Join(r.Dir, filepath.Base(sourceFile))
		if err := copyFile(filepath.Join(sourceDir, sourceFile), dst); err != nil {
			return fmt.Errorf("could not copy %s to evidence: %v", sourceFile, err)
		}
		f, err := os.OpenFile(dst, os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		f.WriteString(header)
		for _, issue := range byFile[sourceFile] {
			fmt.Fprintf(f, "// %s %d: %s\n", issue.Binary, issue.Line, issue.Message)
		}
		f.WriteString("\n")
		if err := f.Close(); err != nil {
			return err
		}
	}

	// Copy each referenced binary once, under its generated name.
	referenced := make(map[string]bool)
	for _, issue := range issues {
		referenced[issue.Binary] = true
	}
	for name := range referenced {
		var binary *buildmatrix.Binary
		for _, b := range binaries {
			if b.Name() == name {
				binary = b
				break
			}
		}
		if binary == nil {
			logger.Warnf("binary %s not found, skipping evidence copy", name)
			continue
		}
		if err := copyFile(binary.Path, filepath.Join(r.Dir, name)); err != nil {
			logger.Warnf("could not copy binary %s to evidence: %v", name, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	fi, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fi.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// CompilerVersion returns the last field of the first line printed by
// `cc --version`, or the empty string if the compiler cannot be queried.
func CompilerVersion(cc string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, cc, "--version").Output()
	if err != nil {
		logflags.DetectorLogger().Errorf("failed to get version for %s: %v", cc, err)
		return ""
	}
	lines := strings.SplitN(string(out), "\n", 2)
	fields := strings.Fields(lines[0])
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
