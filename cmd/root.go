package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flexalloc/flexalloc-sim/sim"
	"github.com/flexalloc/flexalloc-sim/sim/evaluation"
	"github.com/flexalloc/flexalloc-sim/sim/policy"
	"github.com/flexalloc/flexalloc-sim/sim/training"
)

var (
	logLevel string // Log verbosity level

	// gen-envs
	settingsFiles []string // Env settings files to draw from
	envCount      int      // Number of environments to write
	envOutDir     string   // Output directory for environment files
	envSeed       int64    // Seed for world generation
	overwrite     bool     // Replace existing environment files

	// train / eval
	configPath  string // Run config YAML
	metricsAddr string // Listen address for /metrics; empty disables
	reportDir   string // Directory for periodic evaluation reports
	envsDir     string // Evaluation environments (overrides eval_env_dir)
	reportPath  string // Evaluation report output; stdout when empty
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "flexalloc-sim",
	Short: "Auction and resource-allocation simulator for training compute-market policies",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
		return nil
	},
	SilenceUsage: true,
}

var genEnvsCmd = &cobra.Command{
	Use:   "gen-envs",
	Short: "Generate evaluation environment files",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := make([]*sim.EnvSettings, 0, len(settingsFiles))
		for _, p := range settingsFiles {
			s, err := sim.LoadEnvSettings(p)
			if err != nil {
				return err
			}
			settings = append(settings, s)
		}
		if len(settings) == 0 {
			return fmt.Errorf("at least one --settings file is required")
		}
		_, err := generateEnvs(settings, envSeed, envCount, envOutDir, overwrite)
		return err
	},
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the pricing and weighting agent pools",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		cfg, err := LoadRunConfig(configPath)
		if err != nil {
			return err
		}
		_, err = runTraining(ctx, cfg, metricsAddr, reportDir)
		return err
	},
}

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate the configured agent pools over saved environments",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadRunConfig(configPath)
		if err != nil {
			return err
		}
		if envsDir != "" {
			abs, err := filepath.Abs(envsDir)
			if err != nil {
				return err
			}
			cfg.EvalEnvDir = abs
		}
		report, err := runEvaluation(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if reportPath != "" {
			return report.Save(reportPath)
		}
		out, err := yaml.Marshal(report)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

// runTraining builds the engine and agent pools from cfg and trains for cfg.Episodes.
func runTraining(ctx context.Context, cfg *RunConfig, metricsAddr, reportDir string) ([]training.EpisodeStats, error) {
	settings, err := cfg.LoadSettings()
	if err != nil {
		return nil, err
	}
	metrics := training.NewMetrics()
	pricing, weighting, err := cfg.AgentPools(metrics)
	if err != nil {
		return nil, err
	}

	var evaluator *evaluation.Runner
	if cfg.EvalFrequency > 0 {
		tmpRoot, err := os.MkdirTemp("", "flexalloc-eval-")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(tmpRoot)
		files, err := evalEnvs(cfg, settings, tmpRoot)
		if err != nil {
			return nil, err
		}
		if len(files) > 0 {
			evaluator = evaluation.NewRunner(files, cfg.Rewards.FailureMultiplier)
		}
	}
	if reportDir != "" {
		if err := os.MkdirAll(reportDir, 0755); err != nil {
			return nil, fmt.Errorf("creating report dir: %w", err)
		}
	}

	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: metricsMux(metrics), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.Errorf("metrics server: %v", err)
			}
		}()
		defer srv.Close()
		logrus.Infof("serving metrics on %s/metrics", metricsAddr)
	}

	engine := sim.NewEngine(settings, cfg.Seed)
	orch := training.NewOrchestrator(engine, pricing, weighting, cfg.Rewards, cfg.Epsilon, metrics)
	logrus.Infof("training %d episodes: %d pricing agents, %d weighting agents, seed %d",
		cfg.Episodes, len(pricing), len(weighting), cfg.Seed)
	start := time.Now()
	history, err := orch.Run(ctx, training.RunOptions{
		Episodes:      cfg.Episodes,
		EvalFrequency: cfg.EvalFrequency,
		Evaluator:     evaluator,
		ReportDir:     reportDir,
	})
	if err != nil {
		return history, err
	}
	logrus.Infof("training complete: %d episodes, %d decisions in %s",
		len(history), orch.ActionCount(), time.Since(start).Round(time.Millisecond))
	return history, nil
}

// runEvaluation evaluates freshly built pools over the configured environments.
func runEvaluation(ctx context.Context, cfg *RunConfig) (*evaluation.Report, error) {
	if cfg.EvalEnvDir == "" {
		return nil, fmt.Errorf("no evaluation environments: set eval_env_dir or --envs")
	}
	files, err := evalEnvs(cfg, nil, "")
	if err != nil {
		return nil, err
	}
	pricing, weighting, err := cfg.AgentPools(nil)
	if err != nil {
		return nil, err
	}
	pp := make([]policy.PricingPolicy, len(pricing))
	for i, a := range pricing {
		pp[i] = a.Pricing()
	}
	wp := make([]policy.WeightingPolicy, len(weighting))
	for i, a := range weighting {
		wp[i] = a.Weighting()
	}
	runner := evaluation.NewRunner(files, cfg.Rewards.FailureMultiplier)
	return runner.Evaluate(ctx, 0, pp, wp)
}

func metricsMux(m *training.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")

	genEnvsCmd.Flags().StringSliceVar(&settingsFiles, "settings", nil, "Env settings YAML files (repeatable)")
	genEnvsCmd.Flags().IntVar(&envCount, "count", 20, "Number of environments to generate")
	genEnvsCmd.Flags().StringVar(&envOutDir, "out", "envs", "Output directory")
	genEnvsCmd.Flags().Int64Var(&envSeed, "seed", 42, "Seed for world generation")
	genEnvsCmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing environment files")

	trainCmd.Flags().StringVar(&configPath, "config", "run.yaml", "Run config YAML")
	trainCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	trainCmd.Flags().StringVar(&reportDir, "report-dir", "", "Write periodic evaluation reports to this directory")

	evalCmd.Flags().StringVar(&configPath, "config", "run.yaml", "Run config YAML")
	evalCmd.Flags().StringVar(&envsDir, "envs", "", "Directory of environment files (overrides eval_env_dir)")
	evalCmd.Flags().StringVar(&reportPath, "report", "", "Write the report here instead of stdout")

	rootCmd.AddCommand(genEnvsCmd, trainCmd, evalCmd)
}
