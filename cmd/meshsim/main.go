package main

import (
	"context"
	"fmt"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/meshsim/internal/analysis"
	"github.com/san-kum/meshsim/internal/automation"
	"github.com/san-kum/meshsim/internal/compute"
	"github.com/san-kum/meshsim/internal/config"
	"github.com/san-kum/meshsim/internal/control"
	"github.com/san-kum/meshsim/internal/dynamo"
	"github.com/san-kum/meshsim/internal/export"
	"github.com/san-kum/meshsim/internal/mesh"
	"github.com/san-kum/meshsim/internal/metrics"
	"github.com/san-kum/meshsim/internal/optim"
	"github.com/san-kum/meshsim/internal/scene"
	"github.com/san-kum/meshsim/internal/sim"
	"github.com/san-kum/meshsim/internal/storage"
	"github.com/san-kum/meshsim/internal/stream"
	"github.com/san-kum/meshsim/internal/viz"
)

var (
	dataDir   string
	logFormat string
	logLevel  string
	// Run settings
	configFile string
	preset     string
	dt         float64
	ticks      int
	backend    string
	seed       int64
	frameEvery int
	// Physics
	mass          float64
	damping       float64
	stiffness     float64
	restLength    float64
	maxTouchForce float64
	// Input
	scenarioFile string
	numTaps      int
	jsonOut      bool
	holdDepth    float64
	// Sweeps
	sweepMin   float64
	sweepMax   float64
	sweepSteps int
	trials     int
	// Tuning
	ranges     []string
	metricName string
	// SVG output
	svgKind  string
	svgTick  int
	svgOut   string
	svgTheme string
	// Serving
	addr string
)

// main registers the meshsim commands and runs the root command, exiting
// with status 1 on error.
func main() {
	rootCmd := &cobra.Command{
		Use:          "meshsim",
		Short:        "spring-mass sheet simulator",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(logFormat, logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return viz.RunPicker(nil)
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".meshsim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a headless simulation and store it",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	addConfigFlags(runCmd)
	runCmd.Flags().StringVar(&scenarioFile, "scenario", "", "scenario file (yaml)")
	runCmd.Flags().IntVar(&numTaps, "taps", 10, "random taps when no scenario is given")
	runCmd.Flags().BoolVar(&jsonOut, "json", false, "print the run as json")
	runCmd.Flags().Float64Var(&holdDepth, "hold-depth", 0, "press the center with PID feedback to this depth instead of tapping")
	runCmd.MarkFlagsMutuallyExclusive("scenario", "hold-depth")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run the mesh with live visualization",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	addConfigFlags(liveCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run metrics",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata and metrics as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tGRID\tMASS\tDAMPING\tSTIFFNESS\tREST\tDT")
			for _, name := range config.ListPresets() {
				c := config.Presets[name]
				fmt.Fprintf(w, "%s\t%dx%d\t%g\t%g\t%g\t%g\t%g\n",
					name, c.Tiles().Width(), c.Tiles().Height(),
					c.Physics.Mass, c.Physics.Damping, c.Physics.Stiffness, c.Physics.RestLength, c.Dt)
			}
			return w.Flush()
		},
	}

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "benchmark backends across grid sizes",
		RunE:  benchBackends,
	}
	benchCmd.Flags().IntVar(&ticks, "ticks", 200, "ticks per measurement")

	sweepCmd := &cobra.Command{
		Use:   "sweep [param]",
		Short: "sweep one parameter and compare settling",
		Args:  cobra.ExactArgs(1),
		RunE:  runSweep,
	}
	addConfigFlags(sweepCmd)
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 5, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 60, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 5, "number of values")

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo",
		Short: "tap the mesh at random and check it stays bounded",
		RunE:  runMonteCarlo,
	}
	addConfigFlags(monteCarloCmd)
	monteCarloCmd.Flags().IntVar(&trials, "trials", 16, "number of trials")
	monteCarloCmd.Flags().IntVar(&numTaps, "taps", 10, "taps per trial")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search physics parameters for the lowest metric",
		Args:  cobra.NoArgs,
		RunE:  runTune,
	}
	addConfigFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&ranges, "range", []string{"stiffness=10:60:6", "damping=0.9:0.99:4"}, "parameter range name=min:max:steps")
	tuneCmd.Flags().StringVar(&metricName, "metric", "settle_time", "metric to minimize (settle_time, max_displacement, peak_energy)")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "find the ringing frequency of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}

	svgCmd := &cobra.Command{
		Use:   "svg [run_id]",
		Short: "render a stored run as svg",
		Args:  cobra.ExactArgs(1),
		RunE:  svgRun,
	}
	svgCmd.Flags().StringVar(&svgKind, "kind", "heightmap", "what to draw (heightmap, profile, energy)")
	svgCmd.Flags().IntVar(&svgTick, "tick", -1, "stored frame to draw, latest at or before this tick (-1 for last)")
	svgCmd.Flags().StringVarP(&svgOut, "out", "o", "", "output file (default stdout)")
	svgCmd.Flags().StringVar(&svgTheme, "theme", "ocean", "color theme (ocean, sunset, retro)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "stream the mesh to websocket clients",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	addConfigFlags(serveCmd)
	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")

	rootCmd.AddCommand(serveCmd, runCmd, liveCmd, listCmd, plotCmd, exportCmd, presetsCmd, benchCmd, sweepCmd, monteCarloCmd,
		tuneCmd, analyzeCmd, svgCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(format, level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unknown log format: %s (available: text, json)", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func addConfigFlags(cmd *cobra.Command) {
	d := config.DefaultConfig()
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().Float64Var(&dt, "dt", d.Dt, "timestep")
	cmd.Flags().IntVar(&ticks, "ticks", d.Ticks, "ticks to run")
	cmd.Flags().StringVar(&backend, "backend", d.Backend, "dispatch backend (cpu, serial)")
	cmd.Flags().Int64Var(&seed, "seed", d.Seed, "random seed")
	cmd.Flags().IntVar(&frameEvery, "frame-every", d.FrameEvery, "store positions every n ticks (0 disables)")
	cmd.Flags().Float64Var(&mass, "mass", d.Physics.Mass, "vertex mass")
	cmd.Flags().Float64Var(&damping, "damping", d.Physics.Damping, "velocity damping per tick")
	cmd.Flags().Float64Var(&stiffness, "stiffness", d.Physics.Stiffness, "spring stiffness")
	cmd.Flags().Float64Var(&restLength, "rest-length", d.Physics.RestLength, "spring rest length")
	cmd.Flags().Float64Var(&maxTouchForce, "max-touch-force", d.Physics.MaxTouchForce, "force at full pressure")
}

// resolveConfig layers defaults, preset, config file and explicitly set
// flags, in that order.
func resolveConfig(cmd *cobra.Command) (*config.Config, string, error) {
	cfg := config.DefaultConfig()
	name := "default"

	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, "", fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
		name = preset
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		name = strings.TrimSuffix(configFile[strings.LastIndex(configFile, "/")+1:], ".yaml")
	}

	flags := cmd.Flags()
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("ticks") {
		cfg.Ticks = ticks
	}
	if flags.Changed("backend") {
		cfg.Backend = backend
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("frame-every") {
		cfg.FrameEvery = frameEvery
	}
	if flags.Changed("mass") {
		cfg.Physics.Mass = mass
	}
	if flags.Changed("damping") {
		cfg.Physics.Damping = damping
	}
	if flags.Changed("stiffness") {
		cfg.Physics.Stiffness = stiffness
	}
	if flags.Changed("rest-length") {
		cfg.Physics.RestLength = restLength
	}
	if flags.Changed("max-touch-force") {
		cfg.Physics.MaxTouchForce = maxTouchForce
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, name, nil
}

func newSimulation(cfg *config.Config) (*sim.Simulation, error) {
	simCfg, opts, err := cfg.ToSim()
	if err != nil {
		return nil, err
	}
	return sim.New(simCfg, opts...)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, name, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	var sc *automation.Scenario
	if scenarioFile != "" {
		sc, err = automation.LoadScenario(scenarioFile)
		if err != nil {
			return fmt.Errorf("failed to load scenario: %w", err)
		}
		name = sc.Name
	} else {
		ex := float64(cfg.Tiles().Width()) * cfg.Physics.RestLength
		ey := float64(cfg.Tiles().Height()) * cfg.Physics.RestLength
		sc = &automation.Scenario{
			Name:  name,
			Dt:    cfg.Dt,
			Ticks: cfg.Ticks,
			Taps:  automation.RandomTaps(cfg.Seed, numTaps, cfg.Ticks/2, ex, ey, 1),
		}
	}

	s, err := newSimulation(cfg)
	if err != nil {
		return err
	}
	defer s.Shutdown()

	s.AddMetric(metrics.NewEnergy())
	s.AddMetric(metrics.NewPeakEnergy())
	s.AddMetric(metrics.NewDisplacement())
	s.AddMetric(metrics.NewSettleTime(1e-3))
	s.AddMetric(metrics.NewStability(float64(cfg.Tiles().Width()) * cfg.Physics.RestLength))

	rec := metrics.NewRecorder(0)
	frames := storage.NewFrameRecorder(cfg.FrameEvery)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	slog.Info("running simulation", "name", name, "ticks", sc.Ticks, "backend", s.BackendName(),
		"width", s.Grid().Width, "height", s.Grid().Height)
	start := time.Now()

	var runErr error
	if holdDepth > 0 {
		hold, err := control.NewDepthHold(s.Field(), 0, 0, control.NewPID(4, 2, 0.1, holdDepth))
		if err != nil {
			return err
		}
		s.AddObserver(rec)
		s.AddObserver(frames)
		s.AddObserver(hold)
		sc.Taps = nil
		_, runErr = s.Run(ctx, sc.Ticks, sc.Dt, hold)
		depth, pressure := hold.State()
		slog.Info("depth hold finished", "target", holdDepth, "depth", depth, "pressure", pressure)
	} else {
		_, runErr = automation.RunScenario(ctx, s, sc, rec, frames)
	}
	elapsed := time.Since(start)
	if runErr != nil && len(rec.Samples()) == 0 {
		return runErr
	}

	summary := metrics.Summarize(rec.Samples())
	result := s.Metrics()
	for k, v := range summary.AsMap() {
		result[k] = v
	}

	final := s.Params()
	run := &storage.Run{
		Meta: storage.RunMetadata{
			Name:       name,
			Seed:       cfg.Seed,
			Dt:         sc.Dt,
			Ticks:      s.CurrentTick(),
			Width:      s.Grid().Width,
			Height:     s.Grid().Height,
			Backend:    s.BackendName(),
			FrameEvery: cfg.FrameEvery,
			Params:     final.GetParams(),
			Metrics:    result,
		},
		Frames: frames.Rows(),
		Series: rec.Samples(),
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(run)
	if err != nil {
		return err
	}
	run.Meta.ID = runID
	slog.Info("run stored", "id", runID, "elapsed", elapsed, "summary", summary)

	if jsonOut {
		return storage.ExportJSON(os.Stdout, run)
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("ticks: %d\n", s.CurrentTick())
	fmt.Println("\nmetrics:")
	for _, k := range sortedKeys(result) {
		fmt.Printf("  %s: %.6f\n", k, result[k])
	}

	return runErr
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, name, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	s, err := newSimulation(cfg)
	if err != nil {
		return err
	}
	defer s.Shutdown()
	return viz.Run(s, name, cfg.Dt)
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTIME\tTICKS\tDT\tGRID\tBACKEND\tPEAK DEPTH")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.4fs\t%dx%d\t%s\t%.4f\n",
			run.ID,
			run.Name,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Ticks,
			run.Dt,
			run.Width, run.Height,
			run.Backend,
			run.Metrics["peak_displacement"],
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	series, err := st.LoadSeries(runID)
	if err != nil {
		return err
	}

	if len(series) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("grid: %dx%d\n", meta.Width, meta.Height)
	fmt.Printf("samples: %d\n\n", len(series))

	columns := []struct {
		caption string
		column  func(metrics.Sample) float64
	}{
		{"kinetic energy", metrics.KineticColumn},
		{"total speed", metrics.SpeedColumn},
		{"max displacement", metrics.DisplacementColumn},
	}
	for _, c := range columns {
		data := make([]float64, len(series))
		for i, s := range series {
			data[i] = c.column(s)
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(c.caption),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	series, err := st.LoadSeries(runID)
	if err != nil {
		return err
	}

	return storage.ExportJSON(os.Stdout, &storage.Run{Meta: *meta, Series: series})
}

func benchBackends(cmd *cobra.Command, args []string) error {
	layouts := []dynamo.TileConfig{
		{GroupsX: 2, GroupsY: 2, ThreadsX: 4, ThreadsY: 4},
		dynamo.DefaultTiles(),
		{GroupsX: 32, GroupsY: 32, ThreadsX: 8, ThreadsY: 8},
	}
	backends := []string{"serial", "cpu"}

	fmt.Printf("benchmarking %d ticks per run\n\n", ticks)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GRID\tVERTICES\tBACKEND\tTIME\tTICKS/SEC\tVERTS/SEC")

	for _, tiles := range layouts {
		for _, name := range backends {
			b, err := compute.Select(name)
			if err != nil {
				return err
			}
			s, err := sim.New(sim.Config{Tiles: tiles, Params: dynamo.DefaultParams()}, sim.WithBackend(b))
			if err != nil {
				return err
			}

			source := &automation.Scenario{Taps: []automation.Tap{{Duration: ticks, Pressure: 0.5}}}
			start := time.Now()
			_, err = s.Run(context.Background(), ticks, config.DefaultDt, source)
			elapsed := time.Since(start)
			s.Shutdown()
			if err != nil {
				return err
			}

			perSec := float64(ticks) / elapsed.Seconds()
			fmt.Fprintf(w, "%dx%d\t%d\t%s\t%v\t%.0f\t%.3g\n",
				tiles.Width(), tiles.Height(), tiles.Width()*tiles.Height(), name, elapsed,
				perSec, perSec*float64(tiles.Width()*tiles.Height()))
		}
	}

	return w.Flush()
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	sweep := &automation.ParameterSweep{
		ParamName:       args[0],
		ParamMin:        sweepMin,
		ParamMax:        sweepMax,
		NumSteps:        sweepSteps,
		Ticks:           cfg.Ticks,
		Dt:              cfg.Dt,
		Taps:            []automation.Tap{{Tick: 0, Duration: 10, Pressure: 1}},
		SettleThreshold: 1e-3,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := automation.RunSweep(ctx, cfg, sweep)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tPEAK DEPTH\tPEAK ENERGY\tSETTLED AT\n", strings.ToUpper(args[0]))
	for _, r := range results {
		settled := "-"
		if r.SettleTime >= 0 {
			settled = fmt.Sprintf("%.3fs", r.SettleTime)
		}
		fmt.Fprintf(w, "%.4f\t%.4f\t%.4f\t%s\n", r.ParamValue, r.PeakDisplacement, r.PeakEnergy, settled)
	}
	return w.Flush()
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	mc := &automation.MonteCarloConfig{
		NumTrials:    trials,
		TapsPerTrial: numTaps,
		MaxPressure:  1,
		Ticks:        cfg.Ticks,
		Dt:           cfg.Dt,
		Bound:        float64(cfg.Tiles().Width()) * cfg.Physics.RestLength,
		Seed:         cfg.Seed,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := automation.RunMonteCarlo(ctx, cfg, mc)
	if err != nil {
		return err
	}

	stable, unstable := automation.MonteCarloStats(results)
	peaks := make([]float64, len(results))
	for i, r := range results {
		peaks[i] = r.PeakDisplacement
	}
	fmt.Printf("trials: %d  stable: %d  unstable: %d\n", len(results), stable, unstable)
	fmt.Printf("peak depth per trial: %s\n", viz.SparklineChart(peaks, len(peaks)))
	return nil
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(ranges))
	values := make([][]float64, 0, len(ranges))
	for _, r := range ranges {
		name, vals, err := optim.ParseRange(r)
		if err != nil {
			return err
		}
		names = append(names, name)
		values = append(values, vals)
	}

	simCfg, opts, err := cfg.ToSim()
	if err != nil {
		return err
	}
	obj := optim.Objective{
		Ticks:  cfg.Ticks,
		Dt:     cfg.Dt,
		Source: &automation.Scenario{Taps: []automation.Tap{{Tick: 0, Duration: 10, Pressure: 1}}},
		Metrics: func() []dynamo.Metric {
			return []dynamo.Metric{
				metrics.NewDisplacement(),
				metrics.NewPeakEnergy(),
				metrics.NewSettleTime(1e-3),
			}
		},
		MetricName: metricName,
	}
	if metricName == "settle_time" {
		obj.Score = func(v float64) float64 {
			if v < 0 {
				return math.Inf(1)
			}
			return v
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	best, val, err := optim.NewGridSearch(names, values).Search(ctx, simCfg, opts, obj)
	if err != nil {
		return err
	}

	fmt.Printf("best %s: %.6f\n", metricName, val)
	for _, k := range sortedKeys(best) {
		fmt.Printf("  %s: %.4f\n", k, best[k])
	}
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	series, err := st.LoadSeries(args[0])
	if err != nil {
		return err
	}
	if len(series) < 4 {
		return fmt.Errorf("run %s has too few samples to analyze", meta.ID)
	}

	depth := make([]float64, len(series))
	for i, s := range series {
		depth[i] = metrics.DisplacementColumn(s)
	}
	freq, ps := analysis.DominantFrequency(depth, meta.Dt)

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("samples: %d at %.4fs\n", len(series), meta.Dt)
	if freq == 0 {
		fmt.Println("no oscillation found")
		return nil
	}
	fmt.Printf("dominant frequency: %.4f Hz (period %.4fs)\n\n", freq, 1/freq)

	n := min(len(ps), 64)
	fmt.Println(asciigraph.Plot(ps[1:n],
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption("displacement spectrum"),
	))
	return nil
}

func svgRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	theme := viz.GetTheme(svgTheme)

	var out string
	switch svgKind {
	case "energy":
		series, err := st.LoadSeries(args[0])
		if err != nil {
			return err
		}
		xs := make([]float64, len(series))
		ys := make([]float64, len(series))
		for i, s := range series {
			xs[i] = s.Time
			ys[i] = metrics.KineticColumn(s)
		}
		out = export.SeriesToSVG(xs, ys, 800, 300, string(theme.Primary))
	case "heightmap", "profile":
		sp, err := loadSpawner(st, meta, svgTick)
		if err != nil {
			return err
		}
		if svgKind == "heightmap" {
			out = export.HeightMapSVG(sp, 12, theme)
			break
		}
		g := sp.Grid()
		heights := make([]float64, g.Width)
		span := 1e-9
		for x := range heights {
			e, _ := sp.At(x, g.Height/2)
			heights[x] = e.Position.Y
			span = math.Max(span, math.Abs(heights[x]))
		}
		canvas := viz.NewCanvas(g.Width, 8)
		canvas.Profile(heights, span)
		out = export.CanvasToSVG(canvas, 4, theme)
	default:
		return fmt.Errorf("unknown svg kind: %s (available: heightmap, profile, energy)", svgKind)
	}
	if out == "" {
		return fmt.Errorf("run %s has nothing to draw", meta.ID)
	}

	if svgOut == "" {
		fmt.Println(out)
		return nil
	}
	if err := os.WriteFile(svgOut, []byte(out), 0644); err != nil {
		return err
	}
	slog.Info("svg written", "path", svgOut, "kind", svgKind)
	return nil
}

// loadSpawner rebuilds the scene from the stored frame nearest to, but not
// after, tick.
func loadSpawner(st *storage.Store, meta *storage.RunMetadata, tick int) (*scene.Spawner, error) {
	rows, err := st.LoadFrames(meta.ID)
	if err != nil {
		return nil, err
	}
	ticks, frames := storage.GroupFrames(rows)
	if len(frames) == 0 {
		return nil, fmt.Errorf("run %s stored no frames (run with --frame-every)", meta.ID)
	}

	pick := len(frames) - 1
	if tick >= 0 {
		pick = sort.SearchInts(ticks, tick+1) - 1
		if pick < 0 {
			return nil, fmt.Errorf("no frame at or before tick %d", tick)
		}
	}

	g, err := mesh.NewGrid(meta.Width, meta.Height)
	if err != nil {
		return nil, err
	}
	sp, err := scene.NewSpawner(g, meta.Params["rest_length"])
	if err != nil {
		return nil, err
	}
	snap := sim.Snapshot{Tick: ticks[pick], Width: g.Width, Height: g.Height, Positions: frames[pick]}
	if err := sp.Sync(snap); err != nil {
		return nil, err
	}
	return sp, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, name, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	s, err := newSimulation(cfg)
	if err != nil {
		return err
	}
	defer s.Shutdown()

	scfg := stream.DefaultConfig()
	scfg.Dt = cfg.Dt
	scfg.Interval = time.Duration(cfg.Dt * float64(time.Second))
	srv, err := stream.New(s, scfg, slog.Default())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	errc := make(chan error, 1)
	go func() { errc <- srv.Run(ctx) }()

	slog.Info("serving mesh", "name", name, "addr", addr, "grid", fmt.Sprintf("%dx%d", s.Grid().Width, s.Grid().Height))
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
