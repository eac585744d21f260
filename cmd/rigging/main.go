// Command rigging creates, inspects and runs rigging programs.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kanengo/rigging/internal/tool"
	"github.com/kanengo/rigging/internal/tool/node"
	"github.com/kanengo/rigging/internal/tool/program"
	"github.com/kanengo/rigging/runtime/version"
)

//go:generate go install

var versionCmd = tool.Command{
	Name:        "version",
	Description: "Print the rigging version",
	Help:        "Usage:\n  rigging version",
	Fn: func(context.Context, []string) error {
		_, err := fmt.Println("rigging", version.Version)
		return err
	},
}

func main() {
	commands := map[string]*tool.Command{"version": &versionCmd}
	for _, group := range []map[string]*tool.Command{program.Commands, node.Commands} {
		for name, cmd := range group {
			commands[name] = cmd
		}
	}
	os.Exit(tool.Run(context.Background(), "rigging", commands, os.Args[1:], os.Stderr))
}
