package program

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/kanengo/rigging/internal/scaffold"
	"github.com/kanengo/rigging/internal/tool"
)

var (
	newProgramFlags    = flag.NewFlagSet("new-program", flag.ContinueOnError)
	newProgramName     = newProgramFlags.String("name", "", "Program name, the last element of path by default.")
	newProgramModule   = newProgramFlags.String("module", "", "Module path, the program name by default.")
	newProgramNoClient = newProgramFlags.Bool("no-client", false, "Do not write an IDL file and a generated client.")
	newProgramNoGtest  = newProgramFlags.Bool("no-gtest", false, "Do not write a gtest test.")
)

var newProgramCmd = tool.Command{
	Name:        "new-program",
	Description: "Create a new program module",
	Help:        scaffold.Usage,
	Flags:       newProgramFlags,
	Fn:          newProgram,
}

func newProgram(_ context.Context, args []string) error {
	if len(args) != 1 {
		return tool.Usagef("want exactly one path, got %d", len(args))
	}
	written, err := scaffold.New(args[0], scaffold.Options{
		Name:     *newProgramName,
		Module:   *newProgramModule,
		NoClient: *newProgramNoClient,
		NoGtest:  *newProgramNoGtest,
	})
	for _, f := range written {
		_, _ = fmt.Fprintf(os.Stdout, "created %s\n", f)
	}
	return err
}
