package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odhiambocuttice/instagram-audio-downloader/core/audio"
	"github.com/odhiambocuttice/instagram-audio-downloader/core/download"
	"github.com/odhiambocuttice/instagram-audio-downloader/logger"
)

var installYtdlp bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that ffmpeg and yt-dlp are usable",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()
		ctx := cmd.Context()

		processor := audio.NewFFmpegProcessor(audio.WithFFmpegPath(cfg.Tools.FFmpegPath))
		if err := processor.VerifyInstalled(ctx); err != nil {
			fmt.Printf("✗ ffmpeg (%s): %v\n", cfg.Tools.FFmpegPath, err)
		} else {
			fmt.Printf("✓ ffmpeg (%s)\n", cfg.Tools.FFmpegPath)
		}

		if installYtdlp {
			if err := download.Install(ctx); err != nil {
				return err
			}
			fmt.Println("✓ yt-dlp installed")
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&installYtdlp, "install-ytdlp", false, "download a yt-dlp binary into the user cache")
	rootCmd.AddCommand(doctorCmd)
}
