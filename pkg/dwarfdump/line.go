package dwarfdump

import (
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// FileEntry is one entry of the line-number program file table, scoped to a
// single binary.
type FileEntry struct {
	Name     string
	DirIndex int
}

// FileTable maps the file indexes used by a compilation unit's line program
// to their entries.
type FileTable map[int]*FileEntry

// LineEntry is one row of the DWARF line-number program as printed by the
// dump tool. ISA and discriminator are carried through unmodified.
type LineEntry struct {
	Address       uint64
	Line          int
	Column        int
	File          int
	ISA           int
	Discriminator int
	Flags         string
}

// IsStmt reports whether the row is marked as a recommended breakpoint
// location.
func (e *LineEntry) IsStmt() bool {
	for _, tok := range strings.Fields(e.Flags) {
		if tok == "is_stmt" {
			return true
		}
	}
	return false
}

var (
	fileTableRegexp = regexp.MustCompile(`file_names\[\s*(\d+)\]:`)
	fileNameRegexp  = regexp.MustCompile(`name: "(.+)"`)
	dirIndexRegexp  = regexp.MustCompile(`dir_index: (\d+)`)
	lineEntryRegexp = regexp.MustCompile(`0x([0-9a-f]+)\s+(\d+)\s+(\d+)\s+(\d+)\s+(\d+)\s+(\d+)\s+(.*)`)
)

// ParseDebugLine parses the textual dump of a binary's DWARF line-number
// program into its file table and the ordered list of address rows. The scan
// is line oriented and never backtracks: a file_names header switches into
// file-table mode, a dir_index declaration completes the current entry and
// switches back, and the address listing header does the same.
func ParseDebugLine(output string) (FileTable, []LineEntry) {
	fileTable := make(FileTable)
	var entries []LineEntry

	currentFile := -1
	parsingFileTable := false

	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.HasPrefix(line, "file_names["):
			parsingFileTable = true
			if m := fileTableRegexp.FindStringSubmatch(line); m != nil {
				currentFile, _ = strconv.Atoi(m[1])
				fileTable[currentFile] = &FileEntry{}
			}
		case parsingFileTable:
			if m := fileNameRegexp.FindStringSubmatch(line); m != nil {
				fileTable[currentFile].Name = m[1]
			} else if m := dirIndexRegexp.FindStringSubmatch(line); m != nil {
				fileTable[currentFile].DirIndex, _ = strconv.Atoi(m[1])
				parsingFileTable = false
			}
		case strings.HasPrefix(line, "Address"):
			parsingFileTable = false
		default:
			if m := lineEntryRegexp.FindStringSubmatch(line); m != nil {
				var e LineEntry
				e.Address, _ = strconv.ParseUint(m[1], 16, 64)
				e.Line, _ = strconv.Atoi(m[2])
				e.Column, _ = strconv.Atoi(m[3])
				e.File, _ = strconv.Atoi(m[4])
				e.ISA, _ = strconv.Atoi(m[5])
				e.Discriminator, _ = strconv.Atoi(m[6])
				e.Flags = strings.TrimSpace(m[7])
				entries = append(entries, e)
			}
		}
	}

	return fileTable, entries
}

// StatementLines folds the line table into a per-file sorted set of
// candidate statement lines. Only rows flagged is_stmt count: rows without
// the flag are not recommended breakpoint locations and rows whose file
// index does not resolve are dropped. The fold is idempotent and
// order-independent for a fixed dump.
func StatementLines(fileTable FileTable, entries []LineEntry) map[string][]int {
	sets := make(map[string]map[int]bool)
	for i := range entries {
		e := &entries[i]
		if !e.IsStmt() {
			continue
		}
		fe := fileTable[e.File]
		if fe == nil || fe.Name == "" {
			continue
		}
		name := filepath.Base(fe.Name)
		if sets[name] == nil {
			sets[name] = make(map[int]bool)
		}
		sets[name][e.Line] = true
	}

	lines := make(map[string][]int, len(sets))
	for name, set := range sets {
		v := make([]int, 0, len(set))
		for line := range set {
			v = append(v, line)
		}
		sort.Ints(v)
		lines[name] = v
	}
	return lines
}

var compileUnitRegexp = regexp.MustCompile(`(?s)DW_TAG_compile_unit.*?DW_AT_name\s+\("(.+?)"\)`)

// CompileUnits scans the structured debug-info dump for compile units and
// returns their base names. Verification is restricted to these files so
// headers and generated snippets that contributed line rows are excluded.
func CompileUnits(output string) []string {
	var units []string
	for _, m := range compileUnitRegexp.FindAllStringSubmatch(output, -1) {
		units = append(units, filepath.Base(m[1]))
	}
	return units
}
