// Package dwarfdump obtains candidate statement lines for a binary by
// parsing the textual output of llvm-dwarfdump. The dump grammar, not the
// binary .debug_line section, is the interface boundary here: any tool that
// produces the same text can substitute for llvm-dwarfdump.
package dwarfdump

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/edumoot/debugInfo/pkg/logflags"
)

// Tool invokes llvm-dwarfdump (or a compatible replacement).
type Tool struct {
	// Path is the dump executable.
	Path string
	// Timeout bounds one invocation. Zero means no bound beyond the
	// caller's context.
	Timeout time.Duration
}

// debugFilePath returns the file that actually carries the DWARF sections.
// On darwin the linker splits them into a dSYM bundle next to the binary.
func debugFilePath(binary string) string {
	if runtime.GOOS == "darwin" {
		return fmt.Sprintf("%s.dSYM/Contents/Resources/DWARF/%s", binary, filepath.Base(binary))
	}
	return binary
}

func (t *Tool) run(ctx context.Context, binary string, section string) (string, error) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	debugFile := debugFilePath(binary)
	cmd := exec.CommandContext(ctx, t.Path, section, debugFile)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("could not dump %s of %s: %v", section, debugFile, err)
	}
	return string(out), nil
}

// DebugLine runs the dump tool on the binary's line-number program.
func (t *Tool) DebugLine(ctx context.Context, binary string) (string, error) {
	return t.run(ctx, binary, "--debug-line")
}

// DebugInfo runs the dump tool on the binary's debug-info section.
func (t *Tool) DebugInfo(ctx context.Context, binary string) (string, error) {
	return t.run(ctx, binary, "--debug-info")
}

// CandidateLines returns, for every compile unit of the binary, the sorted
// candidate statement lines of its line-number program. Files that appear in
// the line table but are not compile units are left out.
func (t *Tool) CandidateLines(ctx context.Context, binary string) (map[string][]int, error) {
	logger := logflags.DwarfDumpLogger()

	infoDump, err := t.DebugInfo(ctx, binary)
	if err != nil {
		return nil, err
	}
	units := CompileUnits(infoDump)
	if len(units) == 0 {
		logger.Warnf("no compile units in %s", binary)
		return nil, nil
	}

	lineDump, err := t.DebugLine(ctx, binary)
	if err != nil {
		return nil, err
	}
	fileTable, entries := ParseDebugLine(lineDump)
	byFile := StatementLines(fileTable, entries)
	logger.Debugf("%s: %d line rows, %d files with statement lines", binary, len(entries), len(byFile))

	isUnit := make(map[string]bool, len(units))
	for _, u := range units {
		isUnit[u] = true
	}
	candidates := make(map[string][]int)
	for name, lines := range byFile {
		if isUnit[name] {
			candidates[name] = lines
		}
	}
	return candidates, nil
}

// String implements fmt.Stringer for logging.
func (t *Tool) String() string {
	return strings.TrimSpace(t.Path)
}
