// labrigd is the orchestrator daemon: it loads a configuration document,
// activates the configured startup modules, and serves remote module
// access until signaled to stop.
//
// Exit codes:
//
//	0  clean shutdown
//	42 a module or operator requested a restart
//	1  startup failed
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/labrig-project/labrig/pkg/app"
	"github.com/labrig-project/labrig/pkg/logging"
	"github.com/labrig-project/labrig/pkg/module"
)

var (
	configPath string
	debug      bool
	noGUI      bool
	logDir     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "labrigd",
	Short:         "Laboratory experiment orchestrator daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if debug {
			logging.SetLevel("debug")
		}
		if logDir != "" {
			if err := os.MkdirAll(logDir, 0755); err != nil {
				return fmt.Errorf("creating log directory: %w", err)
			}
			f, err := os.OpenFile(filepath.Join(logDir, "labrigd.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("opening log file: %w", err)
			}
			logging.SetOutput(f)
		}

		registry := module.NewRegistry()
		// Built-in class registrations live in integrator-specific packages,
		// not here: labrigd ships with no instrument modules of its own,
		// mirroring the split between the orchestrator core and the
		// separately maintained hardware/logic plugin repositories it loads.
		a := app.New(registry)
		if noGUI {
			// --no-gui is only logged: gui-base modules are constructed and
			// startup_modules entries under gui are activated exactly as
			// without the flag.
			logging.Logger.Debug("--no-gui requested")
		}

		if err := a.Start(configPath); err != nil {
			return fmt.Errorf("starting orchestrator: %w", err)
		}
		if err := a.Run(); err != nil {
			return fmt.Errorf("running orchestrator: %w", err)
		}
		os.Exit(a.ExitCode())
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to the configuration document (default: resolved search chain)")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&noGUI, "no-gui", false, "log a headless request (gui-base modules are still started)")
	rootCmd.Flags().StringVar(&logDir, "logdir", "", "write logs to labrigd.log in this directory instead of stderr")
}
