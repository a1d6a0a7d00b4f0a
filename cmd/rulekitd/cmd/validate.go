package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/rulekit/config"
	"github.com/GoCodeAlone/rulekit/internal/demo"
)

// ErrUnknownService is returned when the configuration names a service the binary
// does not provide.
var ErrUnknownService = errors.New("unknown service setup")

// NewValidateCommand loads a configuration file and checks it against the demo setups.
func NewValidateCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a host configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadChecked(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (service %s, %d fps, %d mode overrides)\n",
				path, cfg.Service, cfg.FrameRate, len(cfg.Modes))
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "rulekit.yaml", "Host configuration file")
	return cmd
}

// loadChecked loads path and verifies that every setup it names exists.
func loadChecked(path string) (*config.HostConfig, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := checkSetups(cfg, demo.Setups(demo.Deps{})); err != nil {
		return nil, err
	}
	return cfg, nil
}

func checkSetups(cfg *config.HostConfig, setups config.SetupMap) error {
	if cfg.Service != demo.ServiceName {
		return fmt.Errorf("%w: %s", ErrUnknownService, cfg.Service)
	}
	if cfg.InitialMode != "" {
		if _, ok := setups.Lookup(cfg.InitialMode); !ok {
			return fmt.Errorf("%w: initialMode %s", config.ErrInvalidConfig, cfg.InitialMode)
		}
	}
	return cfg.ApplyModes(setups)
}
