package cmd

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/strata-sim/strata-sim/sim/trace"
)

var catalogPath string

// catalogCmd prints the fluid and material catalog as yaml.
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the fluid and material catalog",
	Run: func(cmd *cobra.Command, args []string) {
		c, err := loadCatalog(catalogPath)
		if err != nil {
			logrus.Fatalf("Failed to load catalog: %v", err)
		}
		out, err := marshalCatalog(c)
		if err != nil {
			logrus.Fatalf("Failed to render catalog: %v", err)
		}
		_, _ = os.Stdout.Write(out)
	},
}

// summaryCmd summarizes a trace written by run --trace-out.
var summaryCmd = &cobra.Command{
	Use:   "summary <trace-file>",
	Short: "Summarize a recorded trace",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		f, err := os.Open(args[0])
		if err != nil {
			logrus.Fatalf("Failed to open trace: %v", err)
		}
		defer f.Close()
		header, st, err := trace.ReadTrace(f)
		if err != nil {
			logrus.Fatalf("Failed to read trace: %v", err)
		}
		fmt.Fprintf(os.Stdout, "Run %s (level %s, seed %d)\n", header.RunID, header.Level, header.Seed)
		printSummary(os.Stdout, trace.Summarize(st))
	},
}

func printSummary(w io.Writer, s *trace.TraceSummary) {
	fmt.Fprintln(w, "=== Trace Summary ===")
	fmt.Fprintf(w, "Ticks traced      : %d\n", s.Ticks)
	for _, name := range slices.Sorted(maps.Keys(s.Transitions)) {
		fmt.Fprintf(w, "Groups %-10s : %d\n", name, s.Transitions[name])
	}
	fmt.Fprintf(w, "Falls             : %d (%d blocks)\n", s.Falls, s.BlocksFallen)
	fmt.Fprintf(w, "Fall energy       : %d\n", s.TotalFallEnergy)
	fmt.Fprintf(w, "Max fall distance : %d\n", s.MaxFallDistance)
	fmt.Fprintf(w, "Peak unstable     : %d\n", s.PeakUnstable)
	if s.SettledAt >= 0 {
		fmt.Fprintf(w, "Settled at        : tick %d\n", s.SettledAt)
	}
	for _, name := range slices.Sorted(maps.Keys(s.FinalFluidVolume)) {
		fmt.Fprintf(w, "Final %-11s : %d\n", name, s.FinalFluidVolume[name])
	}
}

func init() {
	catalogCmd.Flags().StringVar(&catalogPath, "catalog", "", "Catalog YAML file (default: built-in catalog)")
}
