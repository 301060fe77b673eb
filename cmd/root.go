package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/strata-sim/strata-sim/sim"
	"github.com/strata-sim/strata-sim/sim/trace"
)

var (
	// CLI flags for the run command
	scenarioPath      string // Scenario yaml; empty runs the built-in demo
	seed              int64  // Overrides the scenario seed when set
	simulationHorizon int64  // Overrides the scenario horizon when set
	workers           int    // Goroutines for the fluid read phase
	fluidPiston       bool   // Push displaced fluid upward instead of destroying it
	logLevel          string // Log verbosity level
	traceLevel        string // Trace verbosity: none, events, ticks
	traceOut          string // Compressed JSONL trace output path
	summarizeTrace    bool   // Print a trace summary after the run
	metricsAddr       string // Serve prometheus metrics on this address while running
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "strata-sim",
	Short: "Voxel fluid and cave-in simulator",
}

// runCmd executes the simulation using a scenario and parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scenario",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level: %s (want none, events or ticks)", traceLevel)
		}

		spec, err := loadScenario(scenarioPath)
		if err != nil {
			logrus.Fatalf("Failed to load scenario: %v", err)
		}
		// Flags only override the scenario when given explicitly.
		if cmd.Flags().Changed("seed") {
			spec.Seed = seed
		}
		if cmd.Flags().Changed("horizon") {
			spec.Engine.Horizon = simulationHorizon
		}
		if cmd.Flags().Changed("workers") {
			spec.Engine.Workers = workers
		}
		if cmd.Flags().Changed("fluid-piston") {
			spec.Engine.FluidPiston = fluidPiston
		}
		if err := spec.Validate(); err != nil {
			logrus.Fatalf("Invalid scenario: %v", err)
		}

		s, err := spec.Build()
		if err != nil {
			logrus.Fatalf("Failed to build scenario: %v", err)
		}
		if traceLevel != "" && trace.TraceLevel(traceLevel) != trace.TraceLevelNone {
			s.Trace = trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevel(traceLevel)})
		}

		logrus.Infof("Starting scenario %q: %dx%dx%d, seed=%d, horizon=%d ticks",
			spec.Name, spec.Size.X, spec.Size.Y, spec.Size.Z, spec.Seed, spec.Engine.Horizon)
		if err := runSimulation(s, spec.Seed); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

// runSimulation runs s to completion and writes its outputs. The metrics server,
// when enabled, is shut down before it returns.
func runSimulation(s *sim.Simulation, seed int64) error {
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		collectors, err := sim.NewCollectors(reg)
		if err != nil {
			return fmt.Errorf("registering collectors: %w", err)
		}
		s.Collectors = collectors
		stop, err := serveMetrics(metricsAddr, reg)
		if err != nil {
			return fmt.Errorf("serving metrics: %w", err)
		}
		defer stop()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	startTime := time.Now()
	if err := s.Run(ctx); err != nil {
		return fmt.Errorf("simulation failed at tick %d: %w", s.Clock, err)
	}
	s.Metrics.Print(os.Stdout)
	logrus.Infof("Simulation complete in %s.", time.Since(startTime).Round(time.Millisecond))

	if s.Trace == nil {
		return nil
	}
	if traceOut != "" {
		if err := writeTrace(traceOut, s.Trace, seed); err != nil {
			return fmt.Errorf("writing trace: %w", err)
		}
	}
	if summarizeTrace {
		printSummary(os.Stdout, trace.Summarize(s.Trace))
	}
	return nil
}

// serveMetrics exposes reg on addr until the returned stop function is called.
// stop returns once the listener is closed.
func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	server := &http.Server{
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		logrus.Infof("Prometheus /metrics available on %s", l.Addr())
		if err := server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("Prometheus HTTP server: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
		<-done
	}, nil
}

func writeTrace(path string, st *trace.SimulationTrace, seed int64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w, err := trace.NewWriter(f, st.Config.Level, seed)
	if err != nil {
		f.Close()
		return err
	}
	if err := w.WriteTrace(st); err != nil {
		w.Close()
		f.Close()
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	logrus.Infof("Trace %s written to %s", w.RunID(), path)
	return f.Close()
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&scenarioPath, "scenario", "", "Scenario YAML file (default: built-in demo)")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for terrain and source placement (overrides the scenario)")
	runCmd.Flags().Int64Var(&simulationHorizon, "horizon", 100, "Last tick to simulate (overrides the scenario)")
	runCmd.Flags().IntVar(&workers, "workers", 0, "Goroutines used to read fluid groups (0 = one per CPU)")
	runCmd.Flags().BoolVar(&fluidPiston, "fluid-piston", false, "Push fluid displaced by a new solid upward")
	runCmd.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")

	runCmd.Flags().StringVar(&traceLevel, "trace-level", "none", "Trace verbosity (none, events, ticks)")
	runCmd.Flags().StringVar(&traceOut, "trace-out", "", "Write the trace as zstd-compressed JSONL to this file")
	runCmd.Flags().BoolVar(&summarizeTrace, "summarize-trace", false, "Print a trace summary after the run")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running (e.g. :2112)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(summaryCmd)
}
