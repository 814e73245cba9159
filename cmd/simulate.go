package cmd

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/simonkienzler/reqsniffer/pkg/scorer"
	"github.com/simonkienzler/reqsniffer/pkg/simulator"
)

type simulateOptions struct {
	speed       float64
	angleY      float64
	angleZ      float64
	seam        float64
	restitution float64
	friction    float64
	logFile     string
}

func newSimulateCmd(root *options) *cobra.Command {
	opts := &simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulates a single cricket delivery",
		Long: `simulate bowls one delivery and reports where it pitched, how far it
swung and whether it hit the stumps. Parameters not given as flags come from
the simulation.delivery section of the config file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSimulate(cmd, root, opts)
		},
	}

	defaults := simulator.DefaultParams()
	flags := cmd.Flags()
	flags.Float64Var(&opts.speed, "speed", defaults.Speed, "release speed in m/s")
	flags.Float64Var(&opts.angleY, "angle-y", defaults.AngleY, "vertical release angle in degrees")
	flags.Float64Var(&opts.angleZ, "angle-z", defaults.AngleZ, "horizontal release angle in degrees")
	flags.Float64Var(&opts.seam, "seam", defaults.SeamAngle, "seam angle in degrees")
	flags.Float64Var(&opts.restitution, "restitution", defaults.Restitution, "coefficient of restitution of the bounce")
	flags.Float64Var(&opts.friction, "friction", defaults.Friction, "friction factor of the bounce")
	flags.StringVar(&opts.logFile, "log", "", "write the trajectory as CSV to this file")

	return cmd
}

func runSimulate(cmd *cobra.Command, root *options, opts *simulateOptions) error {
	logger, conf, format, err := prepare(cmd, root)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	params := conf.Simulation.Delivery
	flags := cmd.Flags()
	for name, dst := range map[string]struct {
		to   *float64
		from float64
	}{
		"speed":       {&params.Speed, opts.speed},
		"angle-y":     {&params.AngleY, opts.angleY},
		"angle-z":     {&params.AngleZ, opts.angleZ},
		"seam":        {&params.SeamAngle, opts.seam},
		"restitution": {&params.Restitution, opts.restitution},
		"friction":    {&params.Friction, opts.friction},
	} {
		if flags.Changed(name) {
			*dst.to = dst.from
		}
	}
	logger.Debug("Simulating delivery", zap.Stringer("params", params))

	sim := simulator.New(conf.Simulation.Physics)
	outcome, err := sim.Evaluate(params)
	if err != nil {
		return err
	}

	if opts.logFile != "" {
		if err := writeTrajectory(opts.logFile, outcome.Trajectory); err != nil {
			return err
		}
		logger.Debug("Wrote trajectory", zap.String("path", opts.logFile), zap.Int("samples", len(outcome.Trajectory.Samples)))
	}

	return simulator.RenderOutcome(cmd.OutOrStdout(), outcome, format == scorer.FormatJSON)
}

func writeTrajectory(path string, t *simulator.Trajectory) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating trajectory log: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return simulator.WriteLog(f, t)
}

type generateOptions struct {
	seed        uint64
	logDir      string
	output      string
	concurrency int
}

const defaultDeliveries = 1000

func newGenerateCmd(root *options) *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate [count]",
		Short: "Generates a dataset of random deliveries",
		Long: fmt.Sprintf(`generate bowls random deliveries with parameters drawn from the
simulation.ranges section of the config file until count of them (default %d)
stayed on the pitch, then prints hit statistics.`, defaultDeliveries),
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, args, root, opts)
		},
	}

	flags := cmd.Flags()
	flags.Uint64Var(&opts.seed, "seed", 0, "random seed, 0 picks one from the clock")
	flags.StringVar(&opts.logDir, "log-dir", "", "write one trajectory CSV per delivery into this directory")
	flags.StringVar(&opts.output, "output", "", "write the dataset as CSV to this file")
	flags.IntVar(&opts.concurrency, "concurrency", 0, "deliveries simulated in parallel")

	return cmd
}

func runGenerate(cmd *cobra.Command, args []string, root *options, opts *generateOptions) error {
	count := defaultDeliveries
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("count must be a positive number, got %q", args[0])
		}
		count = n
	}

	logger, conf, format, err := prepare(cmd, root)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	sc := conf.Simulation
	if cmd.Flags().Changed("seed") {
		sc.Seed = opts.seed
	}
	if sc.Seed == 0 {
		sc.Seed = uint64(time.Now().UnixNano())
	}
	if opts.logDir != "" {
		sc.LogDir = opts.logDir
	}
	if opts.concurrency > 0 {
		sc.Concurrency = opts.concurrency
	}
	logger.Debug("Generating dataset",
		zap.Int("count", count),
		zap.Uint64("seed", sc.Seed),
		zap.String("logDir", sc.LogDir))

	gen := &simulator.Generator{
		Simulator:   simulator.New(sc.Physics),
		Ranges:      sc.Ranges,
		Rand:        rand.New(rand.NewPCG(sc.Seed, sc.Seed)),
		Logger:      logger,
		LogDir:      sc.LogDir,
		Concurrency: sc.Concurrency,
	}
	ds, err := gen.Generate(cmd.Context(), count)
	if err != nil {
		return err
	}

	if opts.output != "" {
		if err := writeDataset(opts.output, ds); err != nil {
			return err
		}
	}

	st, err := ds.Stats()
	if err != nil {
		return err
	}
	return simulator.RenderStats(cmd.OutOrStdout(), st, format == scorer.FormatJSON)
}

func writeDataset(path string, ds *simulator.Dataset) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating dataset file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return ds.WriteCSV(f)
}
