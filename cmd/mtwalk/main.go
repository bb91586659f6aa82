package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mtwalk",
	Short: "Multi-threaded filesystem traversal tools",
	Long: `mtwalk is a family of tools built on a shared multi-threaded
filesystem traversal engine: disk usage reporting, outlier detection,
parallel deletion, and one-way tree synchronization.`,
}

var verbose bool

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(duCmd)
	rootCmd.AddCommand(outliersCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(syncCmd)
}

// newLogger builds the process-wide structured logger, level gated by
// the persistent --verbose flag.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}
