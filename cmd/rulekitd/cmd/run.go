package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/rulekit"
	"github.com/GoCodeAlone/rulekit/config"
	"github.com/GoCodeAlone/rulekit/internal/demo"
	"github.com/GoCodeAlone/rulekit/internal/host"
	"github.com/GoCodeAlone/rulekit/logging"
)

// NewRunCommand runs the demo process until interrupted.
func NewRunCommand() *cobra.Command {
	var (
		path   string
		status string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the demo process",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd.ErrOrStderr(), path, status)
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "rulekit.yaml", "Host configuration file")
	cmd.Flags().StringVar(&status, "status", "", "Override the status server address")
	return cmd
}

// newFacade builds the logging facade described by cfg.
func newFacade(w io.Writer, cfg config.LogConfig) (*logging.Facade, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := []logging.Option{logging.WithMinLevel(level), logging.WithTags(cfg.Tags...)}
	if cfg.Format == "json" {
		return logging.NewJSON(w, opts...), nil
	}
	return logging.NewText(w, opts...), nil
}

func run(ctx context.Context, out io.Writer, path, statusOverride string) error {
	cfg, err := loadChecked(path)
	if err != nil {
		return err
	}
	facade, err := newFacade(out, cfg.Log)
	if err != nil {
		return err
	}
	logger := facade.Engine()

	baseDir := filepath.Dir(path)
	store := rulekit.NewMapConfigStore(nil)
	if err := cfg.FillStore(store, baseDir); err != nil {
		return err
	}

	clock := rulekit.NewFrameClock()
	proc, setups, err := demo.NewProcess(demo.Deps{Logger: logger, Clock: clock}, cfg.InitialMode,
		rulekit.WithLogger(logger),
		rulekit.WithClock(clock),
		rulekit.WithConfigStore(store),
	)
	if err != nil {
		return err
	}
	if err := cfg.ApplyModes(setups); err != nil {
		return err
	}

	opts := []host.Option{
		host.WithFrameDuration(cfg.FrameDuration()),
		host.WithLogger(facade),
	}
	addr := cfg.Status.Address
	if statusOverride != "" {
		addr = statusOverride
	}
	if cfg.Status.Enabled || statusOverride != "" {
		opts = append(opts, host.WithStatusServer(addr))
	}
	schedule, err := cfg.RestartParsed()
	if err != nil {
		return err
	}
	if schedule != nil {
		opts = append(opts, host.WithRestartSchedule(schedule))
	}
	if cfg.Watch {
		watcher, err := config.NewWatcher(path)
		if err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		defer watcher.Close()
		go func() {
			for err := range watcher.Errors() {
				facade.Warning(logging.DefaultTag, "Configuration watcher error", "error", err)
			}
		}()
		opts = append(opts, host.WithConfigReload(watcher.Changes(), func() error {
			reloaded, err := config.Load(path)
			if err != nil {
				return err
			}
			return reloaded.FillStore(store, baseDir)
		}))
	}

	h, err := host.New(proc, clock, opts...)
	if err != nil {
		return err
	}
	facade.Info(logging.DefaultTag, "Starting process", "process", proc.Name(), "id", proc.ID(), "fps", cfg.FrameRate)
	return h.Run(ctx)
}
