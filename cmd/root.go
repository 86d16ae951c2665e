package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/odhiambocuttice/instagram-audio-downloader/config"
	"github.com/odhiambocuttice/instagram-audio-downloader/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "reelaudio",
	Short: "Download reel audio as mp3 and cut/merge segments of it.",
	Long: `reelaudio extracts the audio track of Instagram reels and similar posts,
stores it as mp3 and lets clients cut and merge segments into new files.

Without a subcommand it starts the HTTP server.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
}

// setup loads the configuration and initializes the global logger.
func setup() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := logger.InitLogger(cfg.Log); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

func ensureDirExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("creating directory", logger.String("path", path))
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	} else if err != nil {
		return fmt.Errorf("check directory %s: %w", path, err)
	}
	return nil
}

// ffmpegLocation returns path only when it names a file, since yt-dlp expects
// a location rather than a command name.
func ffmpegLocation(path string) string {
	if path == "" || filepath.Base(path) == path {
		return ""
	}
	return path
}
