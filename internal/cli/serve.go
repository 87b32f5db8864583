package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forgeworks/forge/internal/daemon"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "", "Override api.host")
	serveCmd.Flags().Int("port", 0, "Override api.port")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API for the chat host",
	Long: `Start the forge service. The chat host posts each finished AI message
to /api/messages and conversation changes to /api/conversation; every
tracker command is available under /api.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.API.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.API.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := daemon.New(ctx, cfg, conversation)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Serve(ctx)
}
