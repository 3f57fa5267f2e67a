package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/phenobot/carousel/logger"
	"github.com/phenobot/carousel/version"
)

var (
	configPath string
	jsonLogs   bool
)

var rootCmd = &cobra.Command{
	Use:   "carouseld",
	Short: "carouseld - plant phenotyping carousel controller",
	Long: `carouseld drives a motorized tray carousel and its camera.

It schedules recurring capture jobs, talks to the motion controller over
HTTP, files the captured frames and relocates them to the lab server, and
serves a control page with a live status feed.

Examples:
  carouseld serve                     # run with ./settings.json
  carouseld serve -c /etc/carousel.json
  carouseld version`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the carouseld version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "settings.json", "Path to the settings file")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit JSON logs instead of console output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
