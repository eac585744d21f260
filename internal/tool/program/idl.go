package program

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/kanengo/rigging"
	"github.com/kanengo/rigging/internal/env"
	"github.com/kanengo/rigging/internal/files"
	"github.com/kanengo/rigging/internal/tool"
	"github.com/kanengo/rigging/pkg/idl"
)

const idlUsage = `Print the IDL of a program binary.

Usage:
  rigging idl <binary|package dir> [-o file] [--ids]

Description:
  idl runs the binary with RIGGING_IDL_DUMP set, so that rigging.Main writes
  the program IDL instead of serving the program. A package directory is
  built with go build first, unless RIGGING_BUILDER_DISABLE is set. The IDL is validated and
  printed in canonical form, or written to file with -o. With --ids the
  interface id of every service is printed as well.`

var (
	idlFlags = flag.NewFlagSet("idl", flag.ContinueOnError)
	idlOut   = idlFlags.String("o", "", "Write the IDL to this file.")
	idlIDs   = idlFlags.Bool("ids", false, "Print service interface ids.")
)

var idlCmd = tool.Command{
	Name:        "idl",
	Description: "Print the IDL of a program binary",
	Help:        idlUsage,
	Flags:       idlFlags,
	Fn:          printIDL,
}

func printIDL(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return tool.Usagef("want exactly one binary, got %d", len(args))
	}
	binary, cleanup, err := build(ctx, env.Resolve(env.ManifestDir, args[0]))
	if err != nil {
		return err
	}
	defer cleanup()
	doc, err := DumpIDL(ctx, binary)
	if err != nil {
		return err
	}
	text := idl.Format(doc)
	if *idlOut != "" {
		if err := files.WriteFile(*idlOut, []byte(text)); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprint(os.Stdout, text)
	}
	if !*idlIDs {
		return nil
	}
	for _, svc := range doc.Services {
		id, err := idl.InterfaceID(doc, svc)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "// %s: 0x%016x\n", svc.Name, id)
	}
	return nil
}

// build returns path when it is a file, otherwise it builds the main package
// in directory path.
func build(ctx context.Context, path string) (string, func(), error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, err
	}
	if !info.IsDir() {
		return path, func() {}, nil
	}
	if env.Enabled(env.BuilderDisable) {
		return "", nil, fmt.Errorf("%s is a package and %s is set", path, env.BuilderDisable)
	}
	tmp, err := os.MkdirTemp("", "rigging-build")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(tmp) }
	binary := filepath.Join(tmp, "program")
	cmd := exec.CommandContext(ctx, "go", "build", "-o", binary, ".")
	cmd.Dir = path
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("build %s: %w", path, err)
	}
	return binary, cleanup, nil
}

// DumpIDL runs binary with the IDL dump variable set and parses what it writes.
func DumpIDL(ctx context.Context, binary string) (*idl.Document, error) {
	tmp, err := os.MkdirTemp("", "rigging-idl")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)
	out := filepath.Join(tmp, "program.idl")

	cmd := exec.CommandContext(ctx, binary)
	cmd.Env = append(os.Environ(), rigging.IDLDumpKey+"="+out)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("run %s: %w", binary, err)
	}
	doc, err := idl.ParseFile(out)
	if err != nil {
		return nil, fmt.Errorf("IDL of %s: %w", binary, err)
	}
	return doc, nil
}
