package agent

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dcn-collector/pkg/config"
)

var defaultCfg = config.NewDefaultConfig()

// NewRootCmd 构造命令树；每次调用得到独立的 flag 集合
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dcn-collector",
		Short:         "Periodic storage/infra metric collector publishing to Kafka",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfigWithCli(cmd)
			if err != nil {
				return fmt.Errorf("load config: %w (check the file path or pass -c)", err)
			}
			return runAgent(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "-> Config file path (配置文件路径)")
	// 注册分组 flag
	initGeneralFlags(root)
	initKafkaFlags(root)
	initServerFlags(root)
	initCollectorFlags(root)
	initLogFlags(root)

	root.AddCommand(newConfigCmd())
	return root
}

// Execute 入口；错误统一输出到 stderr 并以非 0 退出
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func initGeneralFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.Int("cadence_seconds", defaultCfg.Cadence, "-> Collection cycle length in seconds (采集周期)")
	f.Duration("shutdown_timeout", defaultCfg.ShutdownTimeout, "-> Hard deadline for the in-flight cycle after a stop signal (硬关闭截止时间)")
}
