// Package scaffold creates the skeleton of a new program module.
package scaffold

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"github.com/kanengo/rigging/internal/codegen"
	"github.com/kanengo/rigging/internal/files"
	"github.com/kanengo/rigging/pkg/idl"
	"github.com/kanengo/rigging/runtime/idlgen"
	"github.com/kanengo/rigging/runtime/version"
)

const Usage = `Create a new program module.

Usage:
  rigging new-program <path> [--name name] [--module path] [--no-client] [--no-gtest]

Description:
  new-program writes a Go module into path holding a program with one
  service, a binary serving it, a rigging.toml, and unless disabled a
  gtest test and a generated client. The directory must not exist or be
  empty. The name defaults to the last element of path.

Examples:
  rigging new-program ./greeter
  rigging new-program --name vault --no-client ./programs/vault`

// Options 描述要生成的程序模块
type Options struct {
	Name string
	// Module is the module path, the name when empty.
	Module   string
	NoClient bool
	NoGtest  bool
}

var validName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

type params struct {
	Name    string
	Module  string
	Package string
	Service string
	Version string
	Rigging string
	Client  bool
}

// New writes the program module into dir and returns the written files.
func New(dir string, opts Options) ([]string, error) {
	if opts.Name == "" {
		opts.Name = strings.ReplaceAll(filepath.Base(filepath.Clean(dir)), "-", "_")
	}
	if !validName.MatchString(opts.Name) {
		return nil, fmt.Errorf("invalid program name %q: use lower case letters, digits and _", opts.Name)
	}
	if opts.Module == "" {
		opts.Module = opts.Name
	}
	if err := checkEmpty(dir); err != nil {
		return nil, err
	}

	p := params{
		Name:    opts.Name,
		Module:  opts.Module,
		Package: strings.ReplaceAll(opts.Name, "_", ""),
		Service: idlgen.PascalCase(opts.Name),
		Version: version.Version.String(),
		Rigging: "github.com/kanengo/rigging",
		Client:  !opts.NoClient,
	}

	out := []struct {
		path string
		tmpl *template.Template
		skip bool
	}{
		{"go.mod", goModTmpl, false},
		{"rigging.toml", configTmpl, false},
		{p.Name + ".go", programTmpl, false},
		{filepath.Join("cmd", p.Name, "main.go"), mainTmpl, false},
		{p.Name + "_test.go", testTmpl, opts.NoGtest},
		{p.Name + ".idl", idlTmpl, opts.NoClient},
	}
	var written []string
	for _, f := range out {
		if f.skip {
			continue
		}
		var buf bytes.Buffer
		if err := f.tmpl.Execute(&buf, p); err != nil {
			return written, fmt.Errorf("render %s: %w", f.path, err)
		}
		path := filepath.Join(dir, f.path)
		if err := files.WriteFile(path, buf.Bytes()); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if opts.NoClient {
		return written, nil
	}
	client, err := codegen.GenerateFile(filepath.Join(dir, p.Name+".idl"), filepath.Join(dir, "client"), codegen.Options{
		Package:     "client",
		ProgramName: p.Name,
	})
	if err != nil {
		return written, err
	}
	return append(written, client), nil
}

func checkEmpty(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return fmt.Errorf("%s is not empty", dir)
	}
	return nil
}

// IDL returns the IDL of the generated program.
func IDL(name string) (*idl.Document, error) {
	var buf bytes.Buffer
	if err := idlTmpl.Execute(&buf, params{Service: idlgen.PascalCase(name)}); err != nil {
		return nil, err
	}
	return idl.Parse(buf.String())
}

var goModTmpl = template.Must(template.New("go.mod").Parse(`module {{.Module}}

go 1.22.0

require {{.Rigging}} {{.Version}}
`))

var configTmpl = template.Must(template.New("rigging.toml").Parse(`[rigging]
name = "{{.Name}}"
log_level = "info"
{{- if .Client}}

[client]
out_dir = "client"
program_name = "{{.Name}}"
{{- end}}

[devnode]
addr = "127.0.0.1:9944"
block_time = "1s"
`))

var programTmpl = template.Must(template.New("program").Parse(`// Package {{.Package}} is the {{.Name}} program.
package {{.Package}}

import (
	"{{.Rigging}}"
	"{{.Rigging}}/runtime/scale"
)

type State struct {
	Greeted uint32
}

type GreetParams struct {
	Name string
}

// Program returns the {{.Name}} program.
func Program() *rigging.Program[State] {
	p := rigging.NewProgram[State]("{{.Name}}")
	rigging.Ctor(p, "New", func(c *rigging.Context, _ scale.Unit) (State, error) {
		return State{}, nil
	})

	svc := rigging.NewService[State]("{{.Service}}")
	welcomed := rigging.NewEvent[State, string](svc, "Welcomed")
	rigging.Command(svc, "Greet", func(c *rigging.Context, st *State, p GreetParams) (string, error) {
		st.Greeted++
		return "Hello, " + p.Name, welcomed.Emit(c, p.Name)
	})
	rigging.Query(svc, "Greeted", func(c *rigging.Context, st State, _ scale.Unit) (uint32, error) {
		return st.Greeted, nil
	})
	return p.Expose("{{.Service}}", svc)
}
`))

var mainTmpl = template.Must(template.New("main").Parse(`package main

import (
	"context"
	"fmt"
	"os"

	"{{.Rigging}}"
	"{{.Module}}"
)

func main() {
	if err := rigging.Main(context.Background(), {{.Package}}.Program()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
`))

var testTmpl = template.Must(template.New("test").Parse(`package {{.Package}}_test

import (
	"context"
	"testing"

	"{{.Rigging}}/runtime/codegen"
	"{{.Rigging}}/runtime/gtest"
	"{{.Rigging}}/runtime/remoting"
	"{{.Rigging}}/runtime/scale"
	"{{.Rigging}}/runtime/wire"

	"{{.Module}}"
)

var (
	ctorNew = wire.NewCtorIO[scale.Unit]("New", 0)
	greet   = wire.NewIO[{{.Package}}.GreetParams, string]("{{.Service}}", "Greet", 0)
	greeted = wire.NewIO[scale.Unit, uint32]("{{.Service}}", "Greeted", 1)
)

func TestGreet(t *testing.T) {
	ctx := context.Background()
	sys := gtest.NewSystem()
	defer sys.Close()
	env := sys.Env()

	f, err := codegen.Activate(ctx, env, sys.UploadCode({{.Package}}.Program()), nil, ctorNew, scale.Unit{}, remoting.Args{})
	if err != nil {
		t.Fatal(err)
	}
	id, err := f.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}

	stub := codegen.NewStub(env, id, "test")
	got, err := codegen.Call(ctx, stub, greet, {{.Package}}.GreetParams{Name: "rigging"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "Hello, rigging" {
		t.Fatalf("Greet = %q", got)
	}
	if n, err := codegen.Query(ctx, stub, greeted, scale.Unit{}); err != nil || n != 1 {
		t.Fatalf("Greeted = %d, %v", n, err)
	}
}
`))

var idlTmpl = template.Must(template.New("idl").Parse(`constructor {
  New : ();
};

service {{.Service}} {
  Greet : (name: str) -> str;
  query Greeted : () -> u32;

  events {
    Welcomed: str;
  }
};
`))
