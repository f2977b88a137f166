package main

import (
	"fmt"
	"os"

	"github.com/cuemby/gpirm/pkg/rmlog"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gpirm",
	Short: "GPI Resource Manager - capability resource broker and cascade-cleanup engine",
	Long: `gpirm boots the GPI Resource Manager: a single trusted server that
brokers address spaces, CPU threads, memory objects, processes, endpoints
and user-defined resource types, and performs model-driven cascading
cleanup when a process terminates.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("gpirm version %s\ncommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(bootCmd)
	rootCmd.AddCommand(demoCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	rmlog.Init(rmlog.Config{
		Level:      rmlog.Level(logLevel),
		JSONOutput: logJSON,
	})
}
