// mochimoctl 是运维命令行：数据库迁移、outbox 重放、创建管理员、健康检查。
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mochimo/config"
	"mochimo/pkg/db"
	"mochimo/pkg/logger"
)

var (
	configEnv string
	configDir string
	verbose   bool

	log = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:           "mochimoctl",
	Short:         "Operate a mochimo deployment",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "warn"
		if verbose {
			level = "debug"
		}
		log = logger.NewLogger("production", level)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configEnv, "env", "", "Config environment (default: $CONFIG_ENV or local)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Config directory (default: $CONFIG_DIR or ./config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(migrateCmd, outboxCmd, userCmd, healthcheckCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configEnv == "" && configDir == "" {
		return config.Load()
	}
	env, dir := configEnv, configDir
	if env == "" {
		env = os.Getenv("CONFIG_ENV")
	}
	if env == "" {
		env = "local"
	}
	if dir == "" {
		dir = "config"
	}
	return config.LoadFrom(env, dir)
}

// openDB 读取配置并连接数据库；调用方负责 Close
func openDB(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	return cfg, pool, nil
}
