package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odhiambocuttice/instagram-audio-downloader/db"
	"github.com/odhiambocuttice/instagram-audio-downloader/logger"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试Redis连接是否成功，并进行基本读写操作。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()
		ctx := cmd.Context()

		fmt.Printf("Redis配置: %s, DB: %d\n", cfg.Redis.Addr(), cfg.Redis.DB)
		client, err := db.ConnectRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("无法连接到Redis: %w", err)
		}
		defer client.Close()
		fmt.Println("Redis连接成功！")

		if err := db.TestRedis(ctx, client); err != nil {
			return fmt.Errorf("Redis操作测试失败: %w", err)
		}
		fmt.Println("Redis基本操作测试成功！")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
