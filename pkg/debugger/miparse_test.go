package debugger

import (
	"testing"
)

func TestParseStoppedRecord(t *testing.T) {
	rec, err := parseMIRecord(`stopped,reason="breakpoint-hit",disp="keep",bkptno="2",frame={addr="0x0000000000401116",func="main",args=[],file="a.c",fullname="/tmp/work/a.c",line="11"},thread-id="1",stopped-threads="all"`)
	if err != nil {
		t.Fatal(err)
	}
	if rec.class != "stopped" {
		t.Fatalf("unexpected class %q", rec.class)
	}
	if rec.str("reason") != "breakpoint-hit" {
		t.Fatalf("unexpected reason %q", rec.str("reason"))
	}
	if rec.str("frame", "file") != "a.c" || rec.intval("frame", "line") != 11 {
		t.Fatalf("unexpected frame %q:%d", rec.str("frame", "file"), rec.intval("frame", "line"))
	}
}

func TestParseBreakInsertResult(t *testing.T) {
	rec, err := parseMIRecord(`done,bkpt={number="1",type="breakpoint",disp="keep",enabled="y",addr="0x0000000000401106",func="main",file="a.c",fullname="/tmp/work/a.c",line="10",thread-groups=["i1"],times="0",original-location="a.c:10"}`)
	if err != nil {
		t.Fatal(err)
	}
	if rec.str("bkpt", "number") != "1" {
		t.Fatalf("unexpected breakpoint number %q", rec.str("bkpt", "number"))
	}
	if rec.intval("bkpt", "times") != 0 {
		t.Fatalf("unexpected times %d", rec.intval("bkpt", "times"))
	}
}

func TestParseBreakInfoTable(t *testing.T) {
	rec, err := parseMIRecord(`done,BreakpointTable={nr_rows="1",nr_cols="6",hdr=[{width="7",alignment="-1",col_name="number",colhdr="Num"}],body=[bkpt={number="2",type="breakpoint",times="3"}]}`)
	if err != nil {
		t.Fatal(err)
	}
	table, ok := rec.results["BreakpointTable"].(miTuple)
	if !ok {
		t.Fatalf("no BreakpointTable in %v", rec.results)
	}
	body, ok := table["body"].(miList)
	if !ok || len(body) != 1 {
		t.Fatalf("unexpected body %v", table["body"])
	}
	item, ok := body[0].(miTuple)
	if !ok {
		t.Fatalf("body item is %T", body[0])
	}
	bkpt, ok := item["bkpt"].(miTuple)
	if !ok || bkpt["times"] != "3" {
		t.Fatalf("unexpected bkpt %v", item)
	}
}

func TestParseEscapes(t *testing.T) {
	rec, err := parseMIRecord(`error,msg="No symbol table is loaded.  Use the \"file\" command."`)
	if err != nil {
		t.Fatal(err)
	}
	if rec.class != "error" {
		t.Fatalf("unexpected class %q", rec.class)
	}
	want := `No symbol table is loaded.  Use the "file" command.`
	if rec.str("msg") != want {
		t.Fatalf("expected %q, got %q", want, rec.str("msg"))
	}
}

func TestParseBareClass(t *testing.T) {
	rec, err := parseMIRecord("running")
	if err != nil {
		t.Fatal(err)
	}
	if rec.class != "running" || len(rec.results) != 0 {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestProtocolErrorString(t *testing.T) {
	err := &ProtocolError{Context: "response", Cmd: "-exec-run", Msg: "no executable"}
	want := `protocol error "no executable" during response for command "-exec-run"`
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}
