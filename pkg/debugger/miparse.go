package debugger

import (
	"fmt"
	"strconv"
	"strings"
)

// The GDB/MI output grammar, as much of it as we consume:
//
//	result-record  → "^" class ( "," result )*
//	async-record   → ("*"|"=") class ( "," result )*
//	result         → variable "=" value
//	value          → const | tuple | list
//	const          → c-string
//	tuple          → "{}" | "{" result ( "," result )* "}"
//	list           → "[]" | "[" value ( "," value )* "]"
//	               | "[" result ( "," result )* "]"
//
// Values are represented as string, miTuple or miList.

type miTuple map[string]interface{}

type miList []interface{}

// miRecord is one parsed result or async record.
type miRecord struct {
	// class is the record class: done, running, error, stopped, ...
	class string
	// results holds the record's variable bindings.
	results miTuple
}

type miParser struct {
	s   string
	pos int
}

func (p *miParser) errf(format string, args ...interface{}) error {
	return fmt.Errorf("malformed MI output at %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *miParser) peek() byte {
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *miParser) results(stop byte) (miTuple, error) {
	res := make(miTuple)
	for {
		if p.pos >= len(p.s) || p.peek() == stop {
			return res, nil
		}
		name, val, err := p.result()
		if err != nil {
			return nil, err
		}
		res[name] = val
		if p.peek() == ',' {
			p.pos++
		}
	}
}

func (p *miParser) result() (string, interface{}, error) {
	eq := strings.IndexByte(p.s[p.pos:], '=')
	if eq < 0 {
		return "", nil, p.errf("expected variable=value")
	}
	name := p.s[p.pos : p.pos+eq]
	p.pos += eq + 1
	val, err := p.value()
	return name, val, err
}

func (p *miParser) value() (interface{}, error) {
	switch p.peek() {
	case '"':
		return p.cstring()
	case '{':
		p.pos++
		res, err := p.results('}')
		if err != nil {
			return nil, err
		}
		if p.peek() != '}' {
			return nil, p.errf("unterminated tuple")
		}
		p.pos++
		return res, nil
	case '[':
		return p.list()
	default:
		return nil, p.errf("unexpected value start %q", p.peek())
	}
}

func (p *miParser) list() (interface{}, error) {
	p.pos++ // consume '['
	lst := miList{}
	for {
		switch p.peek() {
		case ']':
			p.pos++
			return lst, nil
		case ',':
			p.pos++
		case 0:
			return nil, p.errf("unterminated list")
		}
		if c := p.peek(); c == '"' || c == '{' || c == '[' {
			v, err := p.value()
			if err != nil {
				return nil, err
			}
			lst = append(lst, v)
			continue
		}
		// A result inside a list (e.g. body=[bkpt={...}]) is kept as a
		// single-binding tuple.
		name, val, err := p.result()
		if err != nil {
			return nil, err
		}
		lst = append(lst, miTuple{name: val})
	}
}

func (p *miParser) cstring() (string, error) {
	if p.peek() != '"' {
		return "", p.errf("expected string")
	}
	var sb strings.Builder
	for i := p.pos + 1; i < len(p.s); i++ {
		switch p.s[i] {
		case '\\':
			if i+1 >= len(p.s) {
				return "", p.errf("truncated escape")
			}
			i++
			switch p.s[i] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			default:
				sb.WriteByte(p.s[i])
			}
		case '"':
			p.pos = i + 1
			return sb.String(), nil
		default:
			sb.WriteByte(p.s[i])
		}
	}
	return "", p.errf("unterminated string")
}

// parseMIRecord parses one result or async record, without its leading
// '^'/'*'/'=' marker.
func parseMIRecord(line string) (*miRecord, error) {
	comma := strings.IndexByte(line, ',')
	if comma < 0 {
		return &miRecord{class: line, results: miTuple{}}, nil
	}
	rec := &miRecord{class: line[:comma]}
	p := &miParser{s: line, pos: comma + 1}
	results, err := p.results(0)
	if err != nil {
		return nil, err
	}
	rec.results = results
	return rec, nil
}

// str walks nested tuples along path and returns the string leaf, or "".
func (r *miRecord) str(path ...string) string {
	var cur interface{} = r.results
	for _, name := range path {
		t, ok := cur.(miTuple)
		if !ok {
			return ""
		}
		cur = t[name]
	}
	s, _ := cur.(string)
	return s
}

// intval is like str but converts the leaf to an int, returning -1 when the
// leaf is absent or not numeric.
func (r *miRecord) intval(path ...string) int {
	s := r.str(path...)
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}
