package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/storefront/internal/config"
)

const serviceName = "storefront"

// Version is stamped at build time with -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "storefront",
	Short: "Storefront backend",
	Long: `Storefront serves the catalog, cart, checkout, payment and shipping API.

Run "storefront serve" to start the HTTP server or "storefront migrate" to
bring the database schema up to date.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Development() {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With("service", serviceName)
}
