package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yml")

	in := Default()
	in.CompilerPath = "clang-17"
	in.OptLevels = []string{"0", "2"}
	in.CFlags = "-fno-inline '-DWIDTH=4'"
	in.MaxWorkers = 3

	if err := WriteConfigFile(in, p); err != nil {
		t.Fatalf("WriteConfigFile: %v", err)
	}
	out, err := LoadConfigFile(p)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\nin:  %#v\nout: %#v", in, out)
	}
}

func TestLoadConfigCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	os.Setenv("DWATCH_HOME", dir)
	defer os.Unsetenv("DWATCH_HOME")

	c := LoadConfig()
	if c.CompilerPath != "clang" {
		t.Fatalf("expected default compiler, got %q", c.CompilerPath)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yml")); err != nil {
		t.Fatalf("default config file was not created: %v", err)
	}
}
