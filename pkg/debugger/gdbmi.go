package debugger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/edumoot/debugInfo/pkg/logflags"
)

// MISession drives a debugger speaking the GDB/MI level 2 protocol over a
// pipe. One session is one debugger process; it is not safe for concurrent
// use and cannot be reused after Close.
type MISession struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan string
	rderr chan error

	// timeout bounds every wait for a protocol response, including the
	// wait for the next stop of a running process.
	timeout time.Duration

	log *logrus.Entry

	target *miTarget
	closed bool
}

const miPrompt = "(gdb)"

// DefaultTimeout bounds MI responses when the caller does not say otherwise.
const DefaultTimeout = 60 * time.Second

// NewMISession starts debuggerPath with the MI2 interpreter and consumes its
// banner. The caller must Close the session on every exit path.
func NewMISession(debuggerPath string, timeout time.Duration) (*MISession, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cmd := exec.Command(debuggerPath, "--interpreter=mi2", "--nx", "--quiet")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("could not start debugger %s: %v", debuggerPath, err)
	}

	s := &MISession{
		cmd:     cmd,
		stdin:   stdin,
		lines:   make(chan string),
		rderr:   make(chan error, 1),
		timeout: timeout,
		log:     logflags.MIWireLogger(),
	}
	go s.reader(stdout)

	// The banner ends with the first prompt.
	if err := s.waitPrompt(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *MISession) reader(stdout io.Reader) {
	rdr := bufio.NewReader(stdout)
	for {
		line, err := rdr.ReadString('\n')
		if line != "" {
			s.lines <- strings.TrimRight(line, "\r\n")
		}
		if err != nil {
			s.rderr <- err
			close(s.lines)
			return
		}
	}
}

var errSessionWedged = errors.New("debugger did not respond within the session timeout")

func (s *MISession) readLine() (string, error) {
	select {
	case line, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		if logflags.MIWire() {
			s.log.Debugf("<- %s", line)
		}
		return line, nil
	case <-time.After(s.timeout):
		// The protocol is wedged; the only safe recovery is killing
		// the debugger process.
		s.cmd.Process.Kill()
		return "", errSessionWedged
	}
}

func (s *MISession) waitPrompt() error {
	for {
		line, err := s.readLine()
		if err != nil {
			return err
		}
		if strings.HasPrefix(line, miPrompt) {
			return nil
		}
	}
}

// send issues one MI command and returns its result record. Async records
// received while waiting are folded into the session state.
func (s *MISession) send(cmd string) (*miRecord, error) {
	if logflags.MIWire() {
		s.log.Debugf("-> %s", cmd)
	}
	if _, err := fmt.Fprintf(s.stdin, "%s\n", cmd); err != nil {
		return nil, &ProtocolError{Context: "send", Cmd: cmd, Msg: err.Error()}
	}

	var result *miRecord
	for {
		line, err := s.readLine()
		if err != nil {
			return nil, &ProtocolError{Context: "response", Cmd: cmd, Msg: err.Error()}
		}
		switch {
		case strings.HasPrefix(line, miPrompt):
			if result == nil {
				continue
			}
			if result.class == "error" {
				return nil, &ProtocolError{Context: "response", Cmd: cmd, Msg: result.str("msg")}
			}
			return result, nil
		case strings.HasPrefix(line, "^"):
			result, err = parseMIRecord(line[1:])
			if err != nil {
				return nil, &ProtocolError{Context: "response", Cmd: cmd, Msg: err.Error()}
			}
		case strings.HasPrefix(line, "*"):
			s.execAsync(line[1:])
		default:
			// Console, log and notify streams only matter for the
			// wire log.
		}
	}
}

// waitStop reads records until the next exec async stop arrives. It returns
// the *stopped record, or nil if the debuggee exited without one.
func (s *MISession) waitStop() (*miRecord, error) {
	for {
		line, err := s.readLine()
		if err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, &ProtocolError{Context: "wait for stop", Msg: err.Error()}
		}
		if strings.HasPrefix(line, "*") {
			rec := s.execAsync(line[1:])
			if rec != nil && rec.class == "stopped" {
				return rec, nil
			}
		}
	}
}

func (s *MISession) execAsync(payload string) *miRecord {
	rec, err := parseMIRecord(payload)
	if err != nil {
		s.log.Warnf("discarding malformed async record: %v", err)
		return nil
	}
	return rec
}

// CreateTarget loads the binary into the debugger.
func (s *MISession) CreateTarget(path string) (Target, error) {
	if s.target != nil {
		return nil, errors.New("session already owns a target")
	}
	_, err := s.send("-file-exec-and-symbols " + path)
	if err != nil {
		return nil, err
	}
	s.target = &miTarget{s: s, path: path, valid: true}
	return s.target, nil
}

// Close tears the session down unconditionally: kill the debuggee if any,
// ask the debugger to exit, and reap the debugger process even if the
// protocol is already wedged.
func (s *MISession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.target != nil && s.target.proc != nil && s.target.proc.Valid() {
		s.target.proc.Kill()
	}
	fmt.Fprintf(s.stdin, "-gdb-exit\n")
	s.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- s.cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		s.cmd.Process.Kill()
		return <-done
	}
}

type miTarget struct {
	s     *MISession
	path  string
	valid bool
	proc  *miProcess
}

func (t *miTarget) Valid() bool { return t.valid }

func (t *miTarget) SetBreakpoint(file string, line int) (Breakpoint, error) {
	rec, err := t.s.send(fmt.Sprintf("-break-insert %s:%d", file, line))
	if err != nil {
		return nil, err
	}
	num := rec.str("bkpt", "number")
	if num == "" {
		return nil, &ProtocolError{Context: "breakpoint insert", Cmd: file, Msg: "no breakpoint in response"}
	}
	return &miBreakpoint{s: t.s, num: num, line: line}, nil
}

func (t *miTarget) Launch(wd string) (Process, error) {
	if wd != "" {
		if _, err := t.s.send("-environment-cd " + wd); err != nil {
			return nil, err
		}
	}
	if _, err := t.s.send("-exec-run"); err != nil {
		return nil, err
	}
	t.proc = &miProcess{s: t.s, state: StateRunning}
	t.proc.waitNextStop()
	return t.proc, nil
}

func (t *miTarget) DeleteAllBreakpoints() error {
	_, err := t.s.send("-break-delete")
	return err
}

func (t *miTarget) Detach() error {
	_, err := t.s.send("-target-detach")
	t.valid = false
	return err
}

type miBreakpoint struct {
	s    *MISession
	num  string
	line int
}

func (bp *miBreakpoint) Valid() bool { return bp.num != "" }

func (bp *miBreakpoint) Line() int { return bp.line }

// HitCount queries the breakpoint's cumulative hit count through
// -break-info, which wraps the breakpoint in a result table.
func (bp *miBreakpoint) HitCount() (int, error) {
	rec, err := bp.s.send("-break-info " + bp.num)
	if err != nil {
		return 0, err
	}
	body, _ := rec.results["BreakpointTable"].(miTuple)
	lst, _ := body["body"].(miList)
	for _, item := range lst {
		t, ok := item.(miTuple)
		if !ok {
			continue
		}
		bkpt, ok := t["bkpt"].(miTuple)
		if !ok {
			continue
		}
		if n, _ := bkpt["number"].(string); n == bp.num {
			r := &miRecord{results: bkpt}
			times := r.intval("times")
			if times < 0 {
				return 0, &ProtocolError{Context: "hit count", Cmd: bp.num, Msg: "no times field"}
			}
			return times, nil
		}
	}
	return 0, &ProtocolError{Context: "hit count", Cmd: bp.num, Msg: "breakpoint not listed"}
}

type miProcess struct {
	s     *MISession
	state State
	// lastStop is the most recent *stopped record.
	lastStop *miRecord
}

func (p *miProcess) Valid() bool {
	return p.state == StateStopped || p.state == StateRunning
}

func (p *miProcess) State() State { return p.state }

// waitNextStop blocks until the debuggee stops or exits and folds the stop
// record into the process state.
func (p *miProcess) waitNextStop() {
	rec, err := p.s.waitStop()
	if err != nil {
		p.s.log.Errorf("error waiting for stop: %v", err)
		p.state = StateInvalid
		return
	}
	if rec == nil {
		p.state = StateExited
		return
	}
	p.lastStop = rec
	if strings.HasPrefix(rec.str("reason"), "exited") {
		p.state = StateExited
	} else {
		p.state = StateStopped
	}
}

func (p *miProcess) StopReason() (StopReason, error) {
	if p.state != StateStopped || p.lastStop == nil {
		return StopUnknown, errors.New("process is not stopped")
	}
	if p.lastStop.str("reason") == "breakpoint-hit" {
		return StopBreakpoint, nil
	}
	return StopOther, nil
}

func (p *miProcess) FrameLine() (string, int, error) {
	if p.lastStop == nil {
		return "", 0, errors.New("no stop recorded")
	}
	file := p.lastStop.str("frame", "file")
	line := p.lastStop.intval("frame", "line")
	if file == "" || line < 0 {
		return "", 0, &ProtocolError{Context: "frame line", Msg: "stop record carries no frame"}
	}
	return file, line, nil
}

func (p *miProcess) Continue() error {
	if _, err := p.s.send("-exec-continue"); err != nil {
		return err
	}
	p.waitNextStop()
	return nil
}

func (p *miProcess) Kill() error {
	if p.state == StateExited || p.state == StateInvalid {
		return nil
	}
	_, err := p.s.send("-exec-abort")
	p.state = StateInvalid
	return err
}
