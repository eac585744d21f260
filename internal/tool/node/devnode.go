package node

import (
	"context"
	"flag"

	"github.com/kanengo/rigging/examples/counter"
	"github.com/kanengo/rigging/examples/pingpong"
	"github.com/kanengo/rigging/internal/tool"
	"github.com/kanengo/rigging/runtime"
	"github.com/kanengo/rigging/runtime/host"
	"github.com/kanengo/rigging/runtime/noderpc"
)

const devnodeUsage = `Run a development node.

Usage:
  rigging devnode [--config file] [--addr host:port] [--journal file]

Description:
  devnode serves an in-process runtime over JSON-RPC. The bundled counter,
  pinger and ponger programs are uploaded at start. A block is produced
  every block_time. Every executed message is journaled to sqlite when a
  journal file is configured. Settings come from the [devnode] section of
  the config file, flags override them.`

var (
	devnodeFlags   = flag.NewFlagSet("devnode", flag.ContinueOnError)
	devnodeConfig  = devnodeFlags.String("config", "rigging.toml", "Config file.")
	devnodeAddr    = devnodeFlags.String("addr", "", "Listen address.")
	devnodeJournal = devnodeFlags.String("journal", "", "Sqlite journal file.")
)

var devnodeCmd = tool.Command{
	Name:        "devnode",
	Description: "Run a development node",
	Help:        devnodeUsage,
	Flags:       devnodeFlags,
	Fn:          devnode,
}

// Bundled returns the programs uploaded by devnode.
func Bundled() []host.Code {
	return []host.Code{counter.Program(), pingpong.Pinger(), pingpong.Ponger()}
}

func devnode(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return tool.Usagef("unexpected arguments %v", args)
	}
	config, logger, err := tool.LoadConfig(*devnodeConfig)
	if err != nil {
		return err
	}
	var nc runtime.DevnodeConfig
	if err := runtime.ParseConfigSection("devnode", "", config.Sections, &nc); err != nil {
		return err
	}
	if *devnodeAddr != "" {
		nc.Addr = *devnodeAddr
	}
	if *devnodeJournal != "" {
		nc.Journal = *devnodeJournal
	}

	node, err := noderpc.NewNode(ctx, nc, logger, Bundled()...)
	if err != nil {
		return err
	}
	defer node.Close()
	codes, err := node.Gateway().Codes(ctx)
	if err != nil {
		return err
	}
	for _, c := range codes {
		logger.Info("code uploaded", "name", c.Name, "code", c.ID)
	}
	return node.Serve(ctx)
}
