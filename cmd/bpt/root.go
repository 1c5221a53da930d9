package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/boardindex/bpt/internal/buildinfo"
	"github.com/boardindex/bpt/internal/cleanup"
	"github.com/boardindex/bpt/internal/config"
	"github.com/boardindex/bpt/internal/index"
	"github.com/boardindex/bpt/internal/logging"
	"github.com/boardindex/bpt/internal/middleware"
	"github.com/boardindex/bpt/internal/registry"
	"github.com/boardindex/bpt/internal/workflow"
)

// app is the state of one command invocation
type app struct {
	cfg            *config.Config
	log            *logging.Logger
	guard          *cleanup.Guard
	runID          string
	shutdownTracer func(context.Context) error
	out            io.Writer
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "bpt",
		Short: "Board package tool for Arduino board package indexes",
		Long: `bpt checks locally maintained Arduino board packages against a published
board package index, publishes new package versions into the index and runs a
local server for testing the index with the Arduino IDE.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.BoolP("debug", "d", false, "enable debug output")
	flags.StringP("board-config", "c", config.DefaultBoardConfig, "registry file listing the board packages (INI, or YAML with a .yaml/.yml extension)")
	flags.StringP("board-index", "i", config.DefaultBoardIndex, "board index JSON file that publishes all the packages")
	flags.String("log-file", "", "also write logs to this file")
	flags.String("otlp-endpoint", "", "OTLP/gRPC endpoint for traces")

	root.AddCommand(
		newCheckCmd(a),
		newUpdateCmd(a),
		newServeCmd(a),
		newVerifyCmd(a),
		newVersionCmd(a),
	)
	return root
}

// setup runs before every command: config, logging, tracing and the cleanup
// guard.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.out = cmd.OutOrStdout()

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel(), FilePath: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	a.runID = uuid.NewString()
	logger.SugaredLogger = logger.With("run_id", a.runID)
	a.log = logger
	a.guard = cleanup.New(logger.SugaredLogger)

	a.log.Debugw("starting command",
		"command", cmd.Name(),
		"version", buildinfo.Get().Version,
		"board_config", cfg.BoardConfig,
		"board_index", cfg.BoardIndex,
	)

	shutdown, err := middleware.InitTracer(cmd.Context(), cfg.OTLPEndpoint, buildinfo.Get().Version)
	if err != nil {
		a.log.Warnw("failed to initialize tracer, continuing without tracing", "error", err)
	}
	a.shutdownTracer = shutdown
	return nil
}

// close releases everything the command acquired, whatever its outcome.
func (a *app) close() {
	if a.guard != nil {
		a.guard.Release()
	}
	if a.shutdownTracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.shutdownTracer(ctx); err != nil && a.log != nil {
			a.log.Warnw("tracer shutdown error", "error", err)
		}
		cancel()
	}
	if a.log != nil {
		_ = a.log.Close()
	}
}

// load reads the registry and the index.
func (a *app) load() (*registry.Registry, *index.Index, error) {
	reg, err := registry.Load(a.cfg.BoardConfig, registry.Options{
		Token:  a.cfg.GitToken,
		Logger: a.log.SugaredLogger,
	})
	if err != nil {
		return nil, nil, err
	}
	idx, err := index.Load(a.cfg.BoardIndex, a.log.SugaredLogger)
	if err != nil {
		return nil, nil, err
	}
	return reg, idx, nil
}

func (a *app) workflow(reg *registry.Registry, idx *index.Index) *workflow.Workflow {
	w := &workflow.Workflow{
		Registry: reg,
		Index:    idx,
		Guard:    a.guard,
		Logger:   a.log.SugaredLogger,
		Out:      a.out,
	}
	if a.cfg.Debug {
		w.NewProgress = newProgressBar
	}
	return w
}

func newProgressBar(total int64, description string) io.Writer {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
