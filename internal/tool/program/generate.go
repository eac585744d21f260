package program

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/kanengo/rigging/internal/codegen"
	"github.com/kanengo/rigging/internal/env"
	"github.com/kanengo/rigging/internal/tool"
	"github.com/kanengo/rigging/runtime"
)

var (
	generateFlags       = flag.NewFlagSet("generate-client", flag.ContinueOnError)
	generateOut         = generateFlags.String("o", "", "Output directory, $RIGGING_OUT_DIR or [client] out_dir of the config by default.")
	generatePackage     = generateFlags.String("package", "", "Package name of the generated file.")
	generateProgramName = generateFlags.String("program-name", "", "Program name, the IDL file name by default.")
	generateMocks       = generateFlags.Bool("mocks", false, "Also generate mocks of every service.")
	generateConfig      = generateFlags.String("config", "rigging.toml", "Config file.")
)

var generateClientCmd = tool.Command{
	Name:        "generate-client",
	Description: "Generate a Go client from an IDL file",
	Help:        codegen.Usage,
	Flags:       generateFlags,
	Fn:          generateClient,
}

func generateClient(_ context.Context, args []string) error {
	if len(args) != 1 {
		return tool.Usagef("want exactly one IDL file, got %d", len(args))
	}
	config, err := runtime.LoadConfig(*generateConfig)
	if err != nil {
		return err
	}
	var client runtime.ClientConfig
	if err := runtime.ParseConfigSection("client", "", config.Sections, &client); err != nil {
		return err
	}

	opts := codegen.Options{
		Package:     *generatePackage,
		ProgramName: client.ProgramName,
		Mocks:       client.Mocks || *generateMocks,
	}
	if *generateProgramName != "" {
		opts.ProgramName = *generateProgramName
	}
	out := client.OutDir
	if dir := os.Getenv(env.OutDir); dir != "" {
		out = dir
	}
	if *generateOut != "" {
		out = *generateOut
	}

	file, err := codegen.GenerateFile(env.Resolve(env.ManifestDir, args[0]), out, opts)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stdout, "generated %s\n", file)
	return nil
}
