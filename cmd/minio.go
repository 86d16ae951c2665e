package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odhiambocuttice/instagram-audio-downloader/logger"
	"github.com/odhiambocuttice/instagram-audio-downloader/storage"
)

var minioPrefix string

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "List archived artifacts in the MinIO bucket",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinIO.Endpoint, cfg.MinIO.Bucket)
		archiver, err := storage.NewArchiver(cmd.Context(), cfg.MinIO)
		if err != nil {
			return fmt.Errorf("无法连接到MinIO: %w", err)
		}

		objects, err := archiver.List(cmd.Context(), minioPrefix)
		if err != nil {
			return fmt.Errorf("列出文件失败: %w", err)
		}

		var total int64
		for _, obj := range objects {
			total += obj.Size
			fmt.Printf("%-60s %10s  %s\n", obj.Key, storage.FormatSize(obj.Size), obj.LastModified.Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("\n共 %d 个文件, %s\n", len(objects), storage.FormatSize(total))
		return nil
	},
}

func init() {
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "only list objects under this prefix")
	rootCmd.AddCommand(minioCmd)
}
