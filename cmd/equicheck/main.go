package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"equicheck/internal/analyze"
	"equicheck/internal/component"
	"equicheck/internal/config"
	"equicheck/internal/logging"
	"equicheck/internal/match"
	"equicheck/internal/precond"
	"equicheck/internal/runner"
	"equicheck/internal/workflow"
)

const version = "0.3.0"

var (
	configPath       string
	logVerbosity     string
	preconditionPath string
	reportPath       string
	strict           bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "equicheck <module-a> <module-b>",
	Short: "equicheck - functional equivalence workflow for Rust modules",
	Long: `equicheck establishes functional equivalence between two versions of a
Rust module. It matches the callable surfaces of both modules, generates
verification and testing harnesses for the configured backends (bounded
model checking, property-based testing, differential fuzzing, IR-level
translation validation), runs them, and aggregates their verdicts into one
report.

Verdicts from bounded backends are always qualified by their bounds; a
passing run is evidence within those bounds, not an unconditional proof.`,
	Args: cobra.ExactArgs(2),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v, err := logging.ParseVerbosity(logVerbosity)
		if err != nil {
			return err
		}
		logger, err = logging.New(v)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	SilenceUsage: true,
	RunE:         runWorkflow,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the equicheck version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("equicheck %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "workflow.toml",
		"workflow configuration file (TOML)")
	rootCmd.PersistentFlags().StringVar(&logVerbosity, "log", "normal",
		"log verbosity: brief|normal|verbose")
	rootCmd.Flags().StringVarP(&preconditionPath, "preconditions", "p", "",
		"precondition specification file")
	rootCmd.Flags().StringVar(&reportPath, "report", "",
		"write the run report as YAML to this path")
	rootCmd.Flags().BoolVar(&strict, "strict", false,
		"abort on the first mismatch or tool error")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Warn("received shutdown signal")
		cancel()
	}()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	unitA, unitB, err := analyze.LoadUnits(ctx, logger, args[0], args[1])
	if err != nil {
		return fmt.Errorf("module analysis failed: %w", err)
	}

	pre, err := loadPreconditions(ctx)
	if err != nil {
		return err
	}

	result := match.Match(unitA, unitB)
	for _, e := range result.Unmatched {
		logger.Warn("unmatched entity",
			zap.String("side", e.Side),
			zap.String("name", e.Name),
			zap.String("reason", e.Reason))
	}
	if len(result.Pairs) == 0 {
		return fmt.Errorf("no structurally compatible pairs between %s and %s", args[0], args[1])
	}
	logger.Info("matched pairs",
		zap.Int("pairs", len(result.Pairs)),
		zap.Int("unmatched", len(result.Unmatched)))

	v, _ := logging.ParseVerbosity(logVerbosity)
	st := workflow.NewState(logger, unitA, unitB, cfg, pre,
		runner.New(logger, v.Streams()), result.Pairs)
	st.UsePreconditions = pre != nil

	orch := workflow.NewOrchestrator(logger, component.Build(cfg), strict)
	report := orch.Run(ctx, st)

	if reportPath != "" {
		if err := report.ExportYAML(reportPath); err != nil {
			return err
		}
		logger.Info("report written", zap.String("path", reportPath))
	}
	printSummary(report)

	if report.Status != workflow.Success {
		return fmt.Errorf("workflow finished with status %s", report.Status)
	}
	return nil
}

// loadConfig resolves the workflow configuration. A missing default file
// falls back to built-in defaults; an explicitly named missing file is an
// error.
func loadConfig(cmd *cobra.Command) (*config.Workflow, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if !cmd.Flags().Changed("config") {
			logger.Debug("no workflow.toml, using defaults")
			return config.Default(), nil
		}
		return nil, fmt.Errorf("workflow config %s does not exist", configPath)
	}
	return config.Load(configPath, logger)
}

func loadPreconditions(ctx context.Context) (*precond.Set, error) {
	if preconditionPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(preconditionPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read precondition file: %w", err)
	}
	set, errs := precond.Translate(ctx, logger, string(data))
	for _, te := range errs {
		logger.Warn("precondition dropped",
			zap.String("entry", te.Name),
			zap.String("reason", te.Reason))
	}
	logger.Info("preconditions loaded", zap.Int("count", set.Len()))
	return set, nil
}

func printSummary(report *workflow.Report) {
	counts := make(map[workflow.Verdict]int)
	for _, res := range report.Results {
		counts[res.Verdict]++
	}
	fmt.Printf("\nrun %s: %s\n", report.RunID, report.Status)
	fmt.Printf("  equivalent: %d  mismatch: %d  tool-error: %d  timeout: %d  skipped: %d\n",
		counts[workflow.Equivalent], counts[workflow.Mismatch],
		counts[workflow.ToolError], counts[workflow.Timeout], counts[workflow.Skipped])
	for _, res := range report.Results {
		if res.Verdict == workflow.Mismatch {
			fmt.Printf("  mismatch: %s [%s] %s\n", res.Pair, res.Backend, res.Witness)
		}
	}
	if len(report.TestedOnly) > 0 {
		fmt.Printf("  tested but not formally verified: %v\n", report.TestedOnly)
	}
	if len(report.Unverified) > 0 {
		fmt.Printf("  never formally verified: %v\n", report.Unverified)
	}
}
