package rigging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kanengo/rigging/internal/files"
	"github.com/kanengo/rigging/runtime"
	"github.com/kanengo/rigging/runtime/host"
	"github.com/kanengo/rigging/runtime/logging"
	"github.com/kanengo/rigging/runtime/noderpc"
)

const (
	// IDLDumpKey names the environment variable that makes Main write the
	// program IDL to the given path and return.
	IDLDumpKey = "RIGGING_IDL_DUMP"
	// ConfigKey names the environment variable holding the config file path.
	ConfigKey = "RIGGING_CONFIG"
)

// Describer is a program that can render its IDL.
type Describer interface {
	host.Code
	IDL() (string, error)
}

// Main runs a program binary. With RIGGING_IDL_DUMP set it writes the IDL
// of p and returns, otherwise it serves p on a dev node configured by the
// [devnode] section of rigging.toml until SIGINT or SIGTERM.
func Main(ctx context.Context, p Describer) error {
	if path := os.Getenv(IDLDumpKey); path != "" {
		return DumpIDL(p, path)
	}

	file := os.Getenv(ConfigKey)
	if file == "" {
		file = "rigging.toml"
	}
	config, err := runtime.LoadConfig(file)
	if err != nil {
		return err
	}
	if err := config.ApplyEnv(); err != nil {
		return err
	}
	var devnode runtime.DevnodeConfig
	if err := runtime.ParseConfigSection("devnode", "", config.Sections, &devnode); err != nil {
		return err
	}

	logger := slog.New(logging.NewPrettyHandler(os.Stderr, config.LogLevel))
	node, err := noderpc.NewNode(ctx, devnode, logger, p)
	if err != nil {
		return err
	}
	defer node.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return node.Serve(ctx)
}

// DumpIDL writes the IDL of p to path atomically.
func DumpIDL(p Describer, path string) error {
	text, err := p.IDL()
	if err != nil {
		return fmt.Errorf("describe %s: %w", p.Name(), err)
	}
	return files.WriteFile(path, []byte(text))
}
