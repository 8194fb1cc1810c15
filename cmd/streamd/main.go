package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "streamd",
		Short: "Streamcore - realtime job-search event daemon",
		Long: `Streamcore consumes the AI backend's push channels, reduces them into
typed bot and research state, drives the three-stage debate arena, and
serves the resulting state to the web UI over HTTP, SSE and websockets.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
