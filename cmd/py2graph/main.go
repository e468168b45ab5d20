package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/py2graph/internal/config"
	"github.com/dusk-indust/py2graph/internal/diff"
	"github.com/dusk-indust/py2graph/internal/orchestrator"
)

// version is set by goreleaser at build time.
var version = "dev"

var (
	flagProject     string
	flagConfig      string
	flagDiff        string
	flagCalcThreads int
	flagIOThreads   int
	flagVBatch      int
	flagEBatch      int
	flagForce       bool
	flagBuild       bool
	flagLog         string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "py2graph",
	Short:         "Turn a Python source tree into a property graph",
	Long:          "py2graph parses every Python file of a project into statement vertices linked by control-flow, data-flow and call edges, and writes them to a graph store.",
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	Args:          cobra.NoArgs,
	RunE:          runIngest,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", config.DefaultPath, "YAML configuration file")
	pf.StringVarP(&flagLog, "log", "l", "INFO", "log level: DEBUG|INFO|WARNING|ERROR|CRITICAL")

	f := rootCmd.Flags()
	f.StringVarP(&flagProject, "project", "p", "", "project root (overrides projectPath in the config)")
	f.StringVarP(&flagDiff, "diff", "d", "", "change set file (.json, .yaml, .diff or .patch)")
	f.IntVar(&flagCalcThreads, "calc-thread", 0, "analysis workers per frontend (default: sized from the file count)")
	f.IntVar(&flagIOThreads, "io-thread", 0, "maximum graph store writers (default: CPU count)")
	f.IntVar(&flagVBatch, "v-batch", 500, "vertices per bulk write")
	f.IntVar(&flagEBatch, "e-batch", 200, "edges per bulk write")
	f.BoolVarP(&flagForce, "force", "f", false, "drop the stored graph and the id cache first (ignored with --diff)")
	f.BoolVarP(&flagBuild, "build", "b", false, "analyze the project and write the graph")

	rootCmd.AddCommand(serveCmd)
}

// parseLevel maps the level names accepted by --log to slog levels.
func parseLevel(name string) (slog.Level, error) {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARNING", "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	case "CRITICAL":
		return slog.LevelError + 4, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}

func newLogger() (*slog.Logger, error) {
	level, err := parseLevel(flagLog)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, nil
}

// loadConfig reads the config file, applies the project override and
// validates the result.
func loadConfig(project string) (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if project != "" {
		cfg.ProjectPath = project
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runIngest(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(flagProject)
	if err != nil {
		return err
	}

	opts := orchestrator.Options{
		ProjectPath: cfg.ProjectPath,
		CalcWorkers: flagCalcThreads,
		IOWorkers:   flagIOThreads,
		VertexBatch: flagVBatch,
		EdgeBatch:   flagEBatch,
		Force:       flagForce,
		Build:       flagBuild,
	}
	if flagDiff != "" {
		d, err := diff.Load(flagDiff)
		if err != nil {
			return err
		}
		opts.Diff = d
	}

	env, err := orchestrator.OpenEnv(cfg, logger)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := runContext(cmd)
	defer stop()

	p := orchestrator.NewPipeline(env, opts, logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range p.Progress() {
			fmt.Fprintln(os.Stderr, orchestrator.FormatProgress(ev))
		}
	}()

	res, err := p.Run(ctx)
	p.Close()
	<-done
	if err != nil {
		return err
	}

	printResult(res)
	return nil
}

func printResult(res *orchestrator.Result) {
	fmt.Printf("run %s finished in %s\n", res.RunID, res.Duration.Round(time.Millisecond))
	if res.Readd != nil {
		fmt.Printf("  rebuilt files:   %d\n", len(res.Readd))
	}
	if !flagBuild {
		return
	}
	fmt.Printf("  files analyzed:  %d (%d failed)\n", res.Files, res.Failed)
	fmt.Printf("  call pairs:      %d\n", res.CallPairs)
	fmt.Printf("  vertices:        %d\n", res.Backend.Vertices)
	fmt.Printf("  edges:           %d\n", res.Backend.Edges)
	if skipped := res.Backend.InvalidEdges + res.Backend.Unresolved; skipped > 0 {
		fmt.Printf("  edges skipped:   %d\n", skipped)
	}
	if res.Backend.DroppedBatches > 0 {
		fmt.Printf("  dropped batches: %d\n", res.Backend.DroppedBatches)
	}
}

// runContext is used by subcommands that run until interrupted.
func runContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
