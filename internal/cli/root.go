// Package cli implements the forge command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgeworks/forge/internal/daemon"
	"github.com/forgeworks/forge/internal/domain"
)

var (
	configPath   string
	conversation string
)

var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "Celestial Forge perk tracker",
	Long: `forge tracks a character's Celestial Forge progress across a chat
roleplay: points earned per AI response, acquired and banked perks, scaling
levels and the shared perk catalog. Run 'forge serve' for the host-facing
HTTP API, or use the subcommands to inspect and edit state directly.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.toml (default ~/.forge/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&conversation, "conversation", "c", "", "Conversation id (empty for the global state)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func loadConfig() (daemon.Config, error) {
	path := configPath
	if path == "" {
		path = daemon.ConfigPath()
	}
	return daemon.LoadConfig(path)
}

// withDaemon opens local state for the selected conversation, runs fn and
// closes everything, flushing remote writes.
func withDaemon(cmd *cobra.Command, fn func(d *daemon.Daemon) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	d, err := daemon.New(ctx, cfg, conversation)
	if err != nil {
		return err
	}
	defer d.Close()
	return fn(d)
}

// printJSON writes v indented to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// explain decorates a domain error with its reason code and any suggestion.
func explain(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", domain.ReasonOf(err), err)
}
