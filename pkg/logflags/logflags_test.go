package logflags

import (
	"testing"
)

func resetFlags() {
	build = false
	dump = false
	verifier = false
	detector = false
	miWire = false
	checker = false
	generator = false
	analyze = false
}

func TestSetup(t *testing.T) {
	defer resetFlags()
	if err := Setup(true, "build,miwire", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !Build() || !MIWire() {
		t.Fatalf("expected build and miwire to be enabled")
	}
	if Verifier() || Detector() {
		t.Fatalf("unexpected components enabled")
	}
}

func TestSetupDefault(t *testing.T) {
	defer resetFlags()
	if err := Setup(true, "", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !Analyze() {
		t.Fatalf("expected analyze to be the default component")
	}
}

func TestSetupErrors(t *testing.T) {
	defer resetFlags()
	if err := Setup(false, "build", ""); err == nil {
		t.Fatalf("expected error for --log-output without --log")
	}
	if err := Setup(true, "nosuchcomponent", ""); err == nil {
		t.Fatalf("expected error for unknown component")
	}
}
