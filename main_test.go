package rigging_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kanengo/rigging"
)

func TestMainDumpsIDL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.idl")
	t.Setenv(rigging.IDLDumpKey, path)

	p := counterProgram()
	if err := rigging.Main(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want, err := p.IDL()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("dumped idl (-want +got):\n%s", diff)
	}
}

func TestMainBadConfig(t *testing.T) {
	file := filepath.Join(t.TempDir(), "rigging.toml")
	if err := os.WriteFile(file, []byte("[devnode]\nport = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(rigging.IDLDumpKey, "")
	t.Setenv(rigging.ConfigKey, file)
	if err := rigging.Main(context.Background(), counterProgram()); err == nil {
		t.Fatal("Main accepted an unknown devnode key")
	}
}
