package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ricardogal/defi-scalping-rebate/pkg/config"
	"github.com/ricardogal/defi-scalping-rebate/pkg/logger"
)

var (
	configPath string
	logLevel   string
)

func firstExistingFile(paths ...string) (string, bool) {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// loadConfig 读取配置并初始化日志；quiet 时只写文件不写终端颜色（面板用）
func loadConfig(quiet bool) (*config.Config, error) {
	path := configPath
	if path == "" {
		if p, ok := firstExistingFile("yml/config.yaml", "config.yaml", "config.json"); ok {
			path = p
		}
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
		NoColor:    quiet,
	}); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	if path != "" {
		logrus.Infof("使用配置文件: %s", path)
	} else {
		logrus.Warnf("未找到配置文件，使用环境变量和默认值")
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "scalper",
		Short:         "现货价差剥头皮 + maker 返佣机器人",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径（支持 .yaml, .yml, .json）")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "覆盖配置中的日志级别")

	root.AddCommand(
		newRunCmd(),
		newOnceCmd(),
		newReconcileCmd(),
		newStopCmd(),
		newReplayCmd(),
		newPanelCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
