package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/odhiambocuttice/instagram-audio-downloader/cache"
	"github.com/odhiambocuttice/instagram-audio-downloader/config"
	"github.com/odhiambocuttice/instagram-audio-downloader/core/audio"
	"github.com/odhiambocuttice/instagram-audio-downloader/core/download"
	"github.com/odhiambocuttice/instagram-audio-downloader/core/edit"
	"github.com/odhiambocuttice/instagram-audio-downloader/db"
	"github.com/odhiambocuttice/instagram-audio-downloader/logger"
	"github.com/odhiambocuttice/instagram-audio-downloader/repository"
	"github.com/odhiambocuttice/instagram-audio-downloader/server"
	"github.com/odhiambocuttice/instagram-audio-downloader/storage"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP server",
	Long:  `Starts the download workers, the temp file sweeper and the HTTP API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(parent context.Context) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, dir := range []string{cfg.Media.Root, cfg.Media.EditsDir()} {
		if err := ensureDirExists(dir); err != nil {
			return err
		}
	}

	gdb, err := db.ConnectGormDB(cfg)
	if err != nil {
		return err
	}
	defer db.CloseGormDB(gdb)
	if err := db.AutoMigrate(gdb); err != nil {
		return err
	}
	taskRepo := repository.NewGormTaskRepository(gdb)
	editRepo := repository.NewGormEditRepository(gdb)

	var (
		downloadOpts []download.Option
		editOpts     []edit.Option
		progress     server.ProgressSubscriber
	)

	// Redis and MinIO are optional; the service runs without them.
	if cfg.Redis.Enabled {
		client, err := db.ConnectRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, progress falls back to polling", logger.ErrorField(err))
		} else {
			defer client.Close()
			pc := cache.NewProgressCache(client)
			downloadOpts = append(downloadOpts, download.WithPublisher(pc), download.WithSnapshotCache(pc))
			progress = pc
		}
	}
	if cfg.MinIO.Enabled {
		archiver, err := storage.NewArchiver(ctx, cfg.MinIO)
		if err != nil {
			logger.Warn("minio unavailable, artifacts stay local only", logger.ErrorField(err))
		} else {
			downloadOpts = append(downloadOpts, download.WithArchiver(archiver))
			editOpts = append(editOpts, edit.WithArchiver(archiver))
		}
	}

	extractor := download.NewYtdlpExtractor(
		download.WithYtdlpPath(cfg.Tools.YtdlpPath),
		download.WithFFmpegLocation(ffmpegLocation(cfg.Tools.FFmpegPath)),
	)
	manager := download.NewManager(cfg, taskRepo, extractor, downloadOpts...)
	manager.Start(ctx)
	defer shutdownManager(cfg, manager)

	processor := audio.NewFFmpegProcessor(
		audio.WithFFmpegPath(cfg.Tools.FFmpegPath),
		audio.WithTimeouts(cfg.Edit.CutTimeout, cfg.Edit.ConcatTimeout),
	)
	if err := processor.VerifyInstalled(ctx); err != nil {
		logger.Warn("ffmpeg not found, edits will fail", logger.ErrorField(err))
	}
	orchestrator := edit.NewOrchestrator(cfg, taskRepo, processor, editRepo, editOpts...)

	sweeper := edit.NewSweeper(cfg)
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	srv := server.New(cfg, server.Deps{
		Downloads: manager,
		Edits:     orchestrator,
		Progress:  progress,
	})
	return srv.Run(ctx)
}

func shutdownManager(cfg *config.Config, m *download.Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		logger.Warn("download manager did not stop in time", logger.ErrorField(err))
	}
}
