package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/odhiambocuttice/instagram-audio-downloader/core/download"
	"github.com/odhiambocuttice/instagram-audio-downloader/logger"
	"github.com/odhiambocuttice/instagram-audio-downloader/model"
	"github.com/odhiambocuttice/instagram-audio-downloader/repository"
)

var downloadCmd = &cobra.Command{
	Use:   "download [url...]",
	Short: "Download reel audio without starting the server",
	Long: `Runs the download pipeline in-process for the given URLs and prints
where each mp3 was written. Without arguments it asks for URLs one per line
until a blank answer, then for the output directory.`,
	RunE: runDownload,
}

var outputDir string

// askOne is swapped out in tests.
var askOne = survey.AskOne

func init() {
	downloadCmd.Flags().StringVarP(&outputDir, "output", "o", "", "directory to write mp3 files to (default media.root)")
	rootCmd.AddCommand(downloadCmd)
}

// promptURLs collects URLs until a blank answer. At least one is required.
func promptURLs() ([]string, error) {
	var urls []string
	for {
		message := "Reel URL (blank to finish):"
		if len(urls) == 0 {
			message = "Reel URL:"
		}
		answer := ""
		if err := askOne(&survey.Input{Message: message}, &answer); err != nil {
			return nil, err
		}
		answer = strings.TrimSpace(answer)
		if answer == "" {
			if len(urls) == 0 {
				fmt.Println("at least one URL is required")
				continue
			}
			return urls, nil
		}
		urls = append(urls, answer)
	}
}

func promptOutputDir(def string) (string, error) {
	answer := ""
	prompt := &survey.Input{Message: "Output directory:", Default: def}
	if err := askOne(prompt, &answer); err != nil {
		return "", err
	}
	if answer = strings.TrimSpace(answer); answer == "" {
		return def, nil
	}
	return answer, nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	urls := args
	if len(urls) == 0 {
		if urls, err = promptURLs(); err != nil {
			return err
		}
		if outputDir == "" {
			if outputDir, err = promptOutputDir(cfg.Media.Root); err != nil {
				return err
			}
		}
	}
	if outputDir != "" {
		cfg.Media.Root = outputDir
	}
	if err := ensureDirExists(cfg.Media.Root); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := repository.NewMemoryTaskRepository()
	extractor := download.NewYtdlpExtractor(
		download.WithYtdlpPath(cfg.Tools.YtdlpPath),
		download.WithFFmpegLocation(ffmpegLocation(cfg.Tools.FFmpegPath)),
	)
	manager := download.NewManager(cfg, store, extractor)
	manager.Start(ctx)
	defer shutdownManager(cfg, manager)

	tasks, err := manager.SubmitBatch(ctx, urls)
	if err != nil {
		return err
	}

	failed := 0
	for _, task := range tasks {
		final, err := waitForTask(ctx, manager, task.ID)
		if err != nil {
			return err
		}
		switch final.Status {
		case model.TaskStatusCompleted:
			fmt.Printf("✓ %s\n  %s\n", final.URL, manager.ArtifactPath(final))
		default:
			failed++
			fmt.Printf("✗ %s\n  %s\n", final.URL, final.ErrorMessage)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(tasks))
	}
	return nil
}

func waitForTask(ctx context.Context, m *download.Manager, id string) (*model.DownloadTask, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	lastProgress := -1
	for {
		task, err := m.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if task.Progress != lastProgress && !task.Status.IsTerminal() {
			fmt.Printf("  %s %3d%% %s\n", task.ID[:8], task.Progress, task.Status)
			lastProgress = task.Progress
		}
		if task.Status.IsTerminal() {
			return task, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
