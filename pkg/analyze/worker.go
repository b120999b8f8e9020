package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/edumoot/debugInfo/pkg/buildmatrix"
	"github.com/edumoot/debugInfo/pkg/debugger"
	"github.com/edumoot/debugInfo/pkg/dwarfdump"
	"github.com/edumoot/debugInfo/pkg/logflags"
	"github.com/edumoot/debugInfo/pkg/verify"
)

// VerifyWorkerCommand is the hidden subcommand under which the orchestrator
// re-executes this program to verify one binary in an isolated process.
const VerifyWorkerCommand = "verify-worker"

// workerResult is the JSON document a verification worker prints on stdout:
// the verified line numbers per compile-unit file.
type workerResult struct {
	Lines map[string][]int `json:"lines"`
}

// runVerifyWorker verifies one binary in a fresh worker process and returns
// its verified line map. The worker inherits nothing but the tool paths; on
// timeout its whole process group is killed so a wedged debugger or debuggee
// cannot outlive the analysis.
func (a *SingleSource) runVerifyWorker(ctx context.Context, b *buildmatrix.Binary) (map[string][]int, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	if a.opts.AnalysisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.AnalysisTimeout)
		defer cancel()
	}

	cmd := exec.Command(exe, VerifyWorkerCommand,
		"--binary", b.Path,
		"--wd", a.outputDir,
		"--dwarfdump", a.opts.DwarfDumpPath,
		"--debugger", a.opts.DebuggerPath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err = <-done:
	case <-ctx.Done():
		killProcessGroup(cmd)
		<-done
		return nil, fmt.Errorf("verification of %s timed out", b.Name())
	}
	if err != nil {
		return nil, fmt.Errorf("worker: %v: %s", err, strings.TrimSpace(stderr.String()))
	}

	var res workerResult
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		return nil, fmt.Errorf("malformed worker output: %v", err)
	}
	if res.Lines == nil {
		res.Lines = map[string][]int{}
	}
	return res.Lines, nil
}

// VerifyWorkerMain is the body of the verify-worker subcommand: parse the
// dump, verify every compile unit of one binary and print the result as
// JSON. It runs in its own process because the debugger session owns
// process-global state.
func VerifyWorkerMain(ctx context.Context, binaryPath, wd, dwarfDumpPath, debuggerPath string) error {
	logger := logflags.VerifierLogger()

	tool := &dwarfdump.Tool{Path: dwarfDumpPath}
	candidates, err := tool.CandidateLines(ctx, binaryPath)
	if err != nil {
		return err
	}
	logger.Debugf("%s: %d candidate files", binaryPath, len(candidates))

	newSession := func() (debugger.Session, error) {
		return debugger.NewMISession(debuggerPath, 0)
	}
	lines := verify.Binary(newSession, binaryPath, wd, candidates)

	return json.NewEncoder(os.Stdout).Encode(workerResult{Lines: lines})
}
