// Package extract consumes the external debug-value extraction capability:
// given a source file, a binary and a line, it produces zero or more named
// values read during a debugging session at that line.
package extract

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DebugValue is one variable/expression reading taken at a source line.
type DebugValue struct {
	// Name of the variable or expression.
	Name string `json:"name"`
	// Value is the textual rendering the extractor produced.
	Value string `json:"value"`
	// Type is the declared type, when the extractor reports one.
	Type string `json:"type"`
	// ErrorMessage is set when the reading failed or looked suspect.
	ErrorMessage string `json:"error,omitempty"`
}

// IsPointer reports whether the value is pointer typed.
func (v *DebugValue) IsPointer() bool {
	if strings.Contains(v.Type, "*") {
		return true
	}
	return strings.HasPrefix(v.Value, "0x")
}

// knownErrors are extractor error classes considered benign: they indicate a
// limitation of the extraction tooling, not of the compiler's debug info.
var knownErrors = []string{
	"optimized out",
	"value may have been optimized out",
	"no symbol",
	"variable not available",
	"cannot access memory",
	"could not evaluate",
}

// IsKnownError reports whether the value's error belongs to a known benign
// class.
func (v *DebugValue) IsKnownError() bool {
	if v.ErrorMessage == "" {
		return false
	}
	msg := strings.ToLower(v.ErrorMessage)
	for _, k := range knownErrors {
		if strings.Contains(msg, k) {
			return true
		}
	}
	return false
}

func (v *DebugValue) String() string {
	if v.ErrorMessage != "" {
		return fmt.Sprintf("%s = %s <%s>", v.Name, v.Value, v.ErrorMessage)
	}
	return fmt.Sprintf("%s = %s", v.Name, v.Value)
}

// Extractor is the external value-extraction capability.
type Extractor interface {
	// Extract returns the debug values readable at (sourceFile, line) in
	// the given binary.
	Extract(ctx context.Context, sourceFile, binaryPath string, line int) ([]DebugValue, error)
}

// CommandExtractor invokes an external program with
// <source file> <binary> <line> and decodes one JSON value object per
// output line.
type CommandExtractor struct {
	// Path is the extractor executable.
	Path string
	// Timeout bounds one invocation.
	Timeout time.Duration
}

// Extract implements Extractor.
func (e *CommandExtractor) Extract(ctx context.Context, sourceFile, binaryPath string, line int) ([]DebugValue, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, e.Path, sourceFile, binaryPath, strconv.Itoa(line))
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("extractor failed on %s:%d: %v", sourceFile, line, err)
	}
	return decodeValues(out)
}

func decodeValues(out []byte) ([]DebugValue, error) {
	var values []DebugValue
	scan := bufio.NewScanner(bytes.NewReader(out))
	for scan.Scan() {
		line := bytes.TrimSpace(scan.Bytes())
		if len(line) == 0 {
			continue
		}
		var v DebugValue
		if err := json.Unmarshal(line, &v); err != nil {
			return nil, fmt.Errorf("malformed extractor output %q: %v", line, err)
		}
		values = append(values, v)
	}
	return values, scan.Err()
}
