// Package cmd implements the aura CLI commands.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aura-comms/aura/internal/version"
	"github.com/aura-comms/aura/pkg/clierror"
	"github.com/aura-comms/aura/pkg/config"
	"github.com/aura-comms/aura/pkg/store"
)

var (
	// Global flags
	outputFormat string
	configDir    string

	// Shared collaborators, opened by the root pre-run.
	cliStore store.Store
	// storeOwned marks a store the pre-run opened itself; injected
	// stores (tests) are left open across invocations.
	storeOwned bool
	cliCfg     config.Config
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "aura",
	Short: "Decentralized account runtime CLI",
	Long: `aura manages the local account runtime: authorities, contexts,
and threshold signing ceremonies.

State lives in the configured store (sqlite by default) under the
directory named by --config-dir or AURA_CONFIG_DIR.`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "completion" || cmd.Name() == "help" {
			return nil
		}

		dir := configDir
		if dir == "" {
			dir = config.Dir()
		}
		cfg, err := config.Load(dir)
		if err != nil {
			return clierror.FromFault(err)
		}
		cliCfg = cfg

		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.Log.SlogLevel(),
		}))

		if cliStore == nil {
			switch cfg.Storage.Backend {
			case "memory":
				cliStore = store.NewMemory()
			default:
				s, err := store.OpenSQLite(cfg.Storage.Path)
				if err != nil {
					return clierror.StorageFailed(err)
				}
				cliStore = s
			}
			storeOwned = true
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if cliStore != nil && storeOwned {
			cliStore.Close()
			cliStore = nil
			storeOwned = false
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Config directory (default: AURA_CONFIG_DIR or ~/.aura)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// OutputFormat returns the selected output format for error rendering.
func OutputFormat() string {
	return outputFormat
}

// formatOutput renders data as indented JSON when -o json is selected.
// Table format is handled by each command.
func formatOutput(data any) error {
	if outputFormat != "json" {
		return nil
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func printf(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format, args...)
}

func printfw(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
