// =============================================================================
// Arvalo 主入口
// =============================================================================
// 使用方法:
//
//	arvalo serve                          # 启动 HTTP 服务与定时巡检
//	arvalo serve --config config.yaml     # 指定配置文件
//	arvalo analyze <purchase-id> --user u # 分析单笔购买
//	arvalo sweep                          # 立即执行一次降价巡检
//	arvalo migrate up|down|status|version # 数据库迁移
//	arvalo version                        # 版本信息
// =============================================================================

package main

import (
	"fmt"
	"os"

	"github.com/arvalo/arvalo/config"
	"github.com/spf13/cobra"
)

// 版本信息（构建时注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// rootOptions 所有子命令共享的参数
type rootOptions struct {
	configPath string
	envFiles   []string
}

// loadConfig 默认值 → YAML → .env / 环境变量
func (o *rootOptions) loadConfig() (*config.Config, *config.Loader, error) {
	loader := config.NewLoader().WithDotEnv(o.envFiles...)
	if o.configPath != "" {
		loader = loader.WithConfigPath(o.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, loader, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "arvalo",
		Short:         "Arvalo purchase assistant agents",
		Long:          `Arvalo runs tool-using agents over your purchases: receipts, returns, price drops, subscriptions and warranties.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files loaded before environment variables")

	root.AddCommand(
		newServeCmd(opts),
		newAnalyzeCmd(opts),
		newSweepCmd(opts),
		newMigrateCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Arvalo %s\n", Version)
			fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
		},
	}
}
