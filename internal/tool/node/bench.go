package node

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/kanengo/rigging/internal/tool"
	"github.com/kanengo/rigging/runtime"
	"github.com/kanengo/rigging/runtime/bench"
)

const benchUsage = `Run the benchmarks.

Usage:
  rigging bench [--config file] [--file bench_data.json] [--threshold pct] [--dry-run]

Description:
  bench measures the gas of the benchmark programs on an in-process runtime
  and merges the figures into the bench file, holding a lock on it so that
  concurrent runs keep each other's figures. The previous figures are
  compared against the new ones. With --threshold every category whose
  relative difference exceeds pct percent fails the command.`

var (
	benchFlags     = flag.NewFlagSet("bench", flag.ContinueOnError)
	benchConfig    = benchFlags.String("config", "rigging.toml", "Config file.")
	benchFile      = benchFlags.String("file", "", "Bench file, [bench] file of the config by default.")
	benchThreshold = benchFlags.Float64("threshold", -1, "Fail when a category changes by more than this percentage.")
	benchDryRun    = benchFlags.Bool("dry-run", false, "Compare without updating the bench file.")
)

var benchCmd = tool.Command{
	Name:        "bench",
	Description: "Run the benchmarks and update the bench file",
	Help:        benchUsage,
	Flags:       benchFlags,
	Fn:          runBench,
}

func runBench(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return tool.Usagef("unexpected arguments %v", args)
	}
	config, logger, err := tool.LoadConfig(*benchConfig)
	if err != nil {
		return err
	}
	var bc runtime.BenchConfig
	if err := runtime.ParseConfigSection("bench", "", config.Sections, &bc); err != nil {
		return err
	}
	file := bc.File
	if *benchFile != "" {
		file = *benchFile
	}
	var threshold *float64
	if *benchThreshold >= 0 {
		threshold = benchThreshold
	}

	previous, err := bench.Read(file)
	if errors.Is(err, os.ErrNotExist) {
		previous, err = nil, nil
	}
	if err != nil {
		return err
	}

	current, err := bench.Run(ctx, logger)
	if err != nil {
		return err
	}
	if !*benchDryRun {
		err := bench.Store(file, func(d *bench.Data) {
			for c, v := range current.Entries() {
				d.Set(c, v)
			}
		})
		if err != nil {
			return err
		}
		logger.Info("bench file updated", "file", file)
	}

	if previous == nil {
		return Report(os.Stdout, bench.Compare(current, current, nil))
	}
	comparisons := bench.Compare(current, previous, threshold)
	if err := Report(os.Stdout, comparisons); err != nil {
		return err
	}
	failed := 0
	for _, c := range comparisons {
		if c.Failed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d categories changed by more than %.2f%%", failed, *threshold)
	}
	return nil
}

var statusColors = map[bench.Status]*color.Color{
	bench.SignificantImprovement: color.New(color.FgGreen, color.Bold),
	bench.MinorImprovement:       color.New(color.FgGreen),
	bench.MinorRegression:        color.New(color.FgYellow),
	bench.SignificantRegression:  color.New(color.FgRed, color.Bold),
	bench.Pass:                   color.New(color.FgGreen),
	bench.Fail:                   color.New(color.FgRed, color.Bold),
}

// Report writes comparisons as a table.
func Report(w io.Writer, comparisons []bench.Comparison) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(tw, "category\tcurrent\tprevious\tdiff\tdiff %\tstatus\t")
	for _, c := range comparisons {
		row := c.Row()
		if col, ok := statusColors[c.Status]; ok {
			row[len(row)-1] = col.Sprint(row[len(row)-1])
		}
		for _, cell := range row {
			_, _ = fmt.Fprintf(tw, "%s\t", cell)
		}
		_, _ = fmt.Fprintln(tw)
	}
	return tw.Flush()
}
