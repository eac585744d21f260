// Package tool holds the command plumbing of the rigging binary.
package tool

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/kanengo/rigging/runtime"
	"github.com/kanengo/rigging/runtime/logging"
)

type Command struct {
	Name        string
	Description string
	Help        string
	// Flags are parsed before Fn runs, they may be interleaved with positional arguments.
	Flags *flag.FlagSet
	Fn    func(ctx context.Context, args []string) error
}

// ErrUsage 表示命令行参数错误, 打印命令帮助
var ErrUsage = errors.New("usage error")

// Usagef returns an error wrapping ErrUsage.
func Usagef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// ParseArgs parses fs from args, allowing flags after positional arguments.
// "--" ends flag parsing.
func ParseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		if args[0] == "--" {
			return append(positional, args[1:]...), nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

// Run runs the command named by args[0] and returns the process exit code.
func Run(ctx context.Context, prog string, commands map[string]*Command, args []string, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		if len(args) > 1 {
			if cmd, ok := commands[args[1]]; ok {
				_, _ = fmt.Fprintln(stderr, cmd.Help)
				return 0
			}
		}
		_, _ = fmt.Fprint(stderr, Usage(prog, commands))
		if len(args) == 0 {
			return 2
		}
		return 0
	}

	cmd, ok := commands[args[0]]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "command %q not found\n\n%s", args[0], Usage(prog, commands))
		return 2
	}

	args = args[1:]
	if cmd.Flags != nil {
		cmd.Flags.SetOutput(stderr)
		cmd.Flags.Usage = func() { _, _ = fmt.Fprintln(stderr, cmd.Help) }
		var err error
		if args, err = ParseArgs(cmd.Flags, args); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return 0
			}
			return 2
		}
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := cmd.Fn(ctx, args); err != nil {
		if errors.Is(err, ErrUsage) {
			_, _ = fmt.Fprintf(stderr, "%s %s: %v\n\n%s\n", prog, cmd.Name, err, cmd.Help)
			return 2
		}
		_, _ = fmt.Fprintf(stderr, "%s %s: %v\n", prog, cmd.Name, err)
		return 1
	}
	return 0
}

// Usage lists the commands.
func Usage(prog string, commands map[string]*Command) string {
	names := make([]string, 0, len(commands))
	width := 0
	for name := range commands {
		names = append(names, name)
		width = max(width, len(name))
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "USAGE\n\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %s %-*s  %s\n", prog, width, name, commands[name].Description)
	}
	fmt.Fprintf(&b, "\nUse \"%s help <command>\" for more information about a command.\n", prog)
	return b.String()
}

// LoadConfig reads the config file and builds the tool logger from its log level.
func LoadConfig(file string) (*runtime.Config, *slog.Logger, error) {
	config, err := runtime.LoadConfig(file)
	if err != nil {
		return nil, nil, err
	}
	if err := config.ApplyEnv(); err != nil {
		return nil, nil, err
	}
	return config, slog.New(logging.NewPrettyHandler(os.Stderr, config.LogLevel)), nil
}
