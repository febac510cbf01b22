package cmd

import (
	"github.com/spf13/cobra"

	"audioscribe/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动转写服务的HTTP服务器",
	Long:  `启动HTTP服务器，提供批处理触发、状态查询和转写结果接口。`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
