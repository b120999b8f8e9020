// Package verify confirms candidate statement lines by planting breakpoints
// and running the binary once to completion under debugger control. A line
// present in the DWARF table does not guarantee the compiler emitted
// reachable code there; only an observed breakpoint hit is trusted.
package verify

import (
	"errors"
	"sort"

	"github.com/edumoot/debugInfo/pkg/debugger"
	"github.com/edumoot/debugInfo/pkg/logflags"
)

// SessionFactory opens a fresh debugger session. Every call must return a
// session that has never been used; sessions are consumed by one
// verification and closed there.
type SessionFactory func() (debugger.Session, error)

// Lines verifies the candidate lines of one (binary, source file) pair by
// running the binary once in wd. It returns the subset of candidates whose
// breakpoints actually fired, sorted ascending. Failures return a nil set
// and an error; they must not abort sibling files or binaries.
func Lines(newSession SessionFactory, binaryPath, sourceFile, wd string, candidates []int) (verified []int, err error) {
	logger := logflags.VerifierLogger()

	sess, err := newSession()
	if err != nil {
		return nil, err
	}
	// Release everything on every exit path. Close kills the debuggee
	// and destroys the debugger instance even after protocol errors.
	defer func() {
		if cerr := sess.Close(); cerr != nil && err == nil {
			logger.Warnf("error closing session for %s: %v", binaryPath, cerr)
		}
	}()

	target, err := sess.CreateTarget(binaryPath)
	if err != nil {
		return nil, err
	}
	if !target.Valid() {
		return nil, errors.New("target is not valid")
	}
	defer func() {
		target.DeleteAllBreakpoints()
		target.Detach()
	}()

	var breakpoints []debugger.Breakpoint
	for _, line := range candidates {
		bp, err := target.SetBreakpoint(sourceFile, line)
		if err != nil || !bp.Valid() {
			// The debugger rejected the location; drop the line,
			// keep the session.
			logger.Warnf("could not create breakpoint at %s:%d: %v", sourceFile, line, err)
			continue
		}
		breakpoints = append(breakpoints, bp)
	}

	process, err := target.Launch(wd)
	if err != nil {
		return nil, err
	}
	if !process.Valid() && process.State() != debugger.StateExited {
		return nil, errors.New("could not launch process")
	}
	defer process.Kill()

	hits := make(map[int]bool)
	for process.State() == debugger.StateStopped {
		reason, err := process.StopReason()
		if err == nil && reason == debugger.StopBreakpoint {
			// Trust the frame's current line, not the requested
			// one: optimization may have moved the stop.
			_, hitLine, err := process.FrameLine()
			if err == nil {
				for _, bp := range breakpoints {
					if bp.Line() != hitLine {
						continue
					}
					if n, err := bp.HitCount(); err == nil && n > 0 {
						hits[hitLine] = true
					}
					break
				}
			}
		}
		if err := process.Continue(); err != nil {
			return nil, err
		}
	}

	verified = make([]int, 0, len(hits))
	for line := range hits {
		verified = append(verified, line)
	}
	sort.Ints(verified)
	return verified, nil
}

// Binary verifies every compile-unit file of a binary and returns the
// per-file verified line sets. Files whose verification fails are logged and
// left out; an empty map is not an error.
func Binary(newSession SessionFactory, binaryPath, wd string, candidates map[string][]int) map[string][]int {
	logger := logflags.VerifierLogger()
	result := make(map[string][]int)
	for file, lines := range candidates {
		verified, err := Lines(newSession, binaryPath, file, wd, lines)
		if err != nil {
			logger.Errorf("verification of %s in %s failed: %v", file, binaryPath, err)
			continue
		}
		if len(verified) > 0 {
			result[file] = verified
		}
	}
	return result
}
