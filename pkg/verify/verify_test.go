package verify

import (
	"errors"
	"reflect"
	"testing"

	"github.com/edumoot/debugInfo/pkg/debugger"
)

// fakeSession scripts a debugger session: the process stops once at every
// line in stops, in order, then exits.
type fakeSession struct {
	stops      []int
	rejectLine int

	closed      bool
	bpsCleared  bool
	detached    bool
	breakpoints map[int]*fakeBreakpoint
}

func newFake(stops []int, rejectLine int) *fakeSession {
	return &fakeSession{stops: stops, rejectLine: rejectLine, breakpoints: make(map[int]*fakeBreakpoint)}
}

func (s *fakeSession) CreateTarget(path string) (debugger.Target, error) {
	return &fakeTarget{s: s}, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeTarget struct {
	s *fakeSession
}

func (t *fakeTarget) Valid() bool { return true }

func (t *fakeTarget) SetBreakpoint(file string, line int) (debugger.Breakpoint, error) {
	if line == t.s.rejectLine {
		return nil, errors.New("no code at line")
	}
	bp := &fakeBreakpoint{line: line}
	t.s.breakpoints[line] = bp
	return bp, nil
}

func (t *fakeTarget) Launch(wd string) (debugger.Process, error) {
	p := &fakeProcess{s: t.s}
	p.advance()
	return p, nil
}

func (t *fakeTarget) DeleteAllBreakpoints() error {
	t.s.bpsCleared = true
	return nil
}

func (t *fakeTarget) Detach() error {
	t.s.detached = true
	return nil
}

type fakeBreakpoint struct {
	line int
	hits int
}

func (bp *fakeBreakpoint) Valid() bool            { return true }
func (bp *fakeBreakpoint) Line() int              { return bp.line }
func (bp *fakeBreakpoint) HitCount() (int, error) { return bp.hits, nil }

type fakeProcess struct {
	s       *fakeSession
	state   debugger.State
	curLine int
}

// advance moves execution to the next scripted stop, skipping lines without
// a planted breakpoint the way a real run would.
func (p *fakeProcess) advance() {
	for len(p.s.stops) > 0 {
		line := p.s.stops[0]
		p.s.stops = p.s.stops[1:]
		if bp := p.s.breakpoints[line]; bp != nil {
			bp.hits++
			p.curLine = line
			p.state = debugger.StateStopped
			return
		}
	}
	p.state = debugger.StateExited
}

func (p *fakeProcess) Valid() bool           { return p.state == debugger.StateStopped }
func (p *fakeProcess) State() debugger.State { return p.state }

func (p *fakeProcess) StopReason() (debugger.StopReason, error) {
	return debugger.StopBreakpoint, nil
}

func (p *fakeProcess) FrameLine() (string, int, error) {
	return "a.c", p.curLine, nil
}

func (p *fakeProcess) Continue() error {
	p.advance()
	return nil
}

func (p *fakeProcess) Kill() error {
	p.state = debugger.StateInvalid
	return nil
}

func TestVerifyStraightLineRun(t *testing.T) {
	// The program executes lines 5, 6, 7; breakpoints are requested at
	// {5, 6, 9} and line 9 never executes.
	fake := newFake([]int{5, 6, 7}, 0)
	verified, err := Lines(func() (debugger.Session, error) { return fake, nil },
		"case_O2_D2.out", "a.c", ".", []int{5, 6, 9})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(verified, []int{5, 6}) {
		t.Fatalf("expected [5 6], got %v", verified)
	}
	if !fake.closed || !fake.bpsCleared || !fake.detached {
		t.Fatalf("session not fully released: %+v", fake)
	}
}

func TestVerifySubsetInvariant(t *testing.T) {
	// A stop at a line that was never requested must not enter the
	// verified set.
	fake := newFake([]int{5, 5, 6}, 0)
	verified, err := Lines(func() (debugger.Session, error) { return fake, nil },
		"bin", "a.c", ".", []int{5})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(verified, []int{5}) {
		t.Fatalf("expected [5], got %v", verified)
	}
}

func TestVerifyRejectedBreakpoint(t *testing.T) {
	fake := newFake([]int{5, 6}, 6)
	verified, err := Lines(func() (debugger.Session, error) { return fake, nil },
		"bin", "a.c", ".", []int{5, 6})
	if err != nil {
		t.Fatal(err)
	}
	// Line 6's breakpoint was rejected: the line is dropped but the
	// session carries on.
	if !reflect.DeepEqual(verified, []int{5}) {
		t.Fatalf("expected [5], got %v", verified)
	}
	if !fake.closed {
		t.Fatalf("session leaked")
	}
}

func TestVerifySessionFailure(t *testing.T) {
	_, err := Lines(func() (debugger.Session, error) { return nil, errors.New("no debugger") },
		"bin", "a.c", ".", []int{1})
	if err == nil {
		t.Fatalf("expected error when session creation fails")
	}
}

func TestVerifyBinary(t *testing.T) {
	mk := func() (debugger.Session, error) {
		return newFake([]int{5, 6, 7}, 0), nil
	}
	got := Binary(mk, "bin", ".", map[string][]int{"a.c": {5, 6, 9}})
	want := map[string][]int{"a.c": {5, 6}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
