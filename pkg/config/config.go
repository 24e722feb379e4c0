package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ExchangeConfig 交易所连接配置
type ExchangeConfig struct {
	Name              string  `yaml:"name" json:"name"` // binance | paper
	Testnet           bool    `yaml:"testnet" json:"testnet"`
	BaseURL           string  `yaml:"base_url" json:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	APIKey            string  `yaml:"-" json:"-"`
	APISecret         string  `yaml:"-" json:"-"`
}

// PaperConfig 纸面交易账户
type PaperConfig struct {
	Balances       map[string]float64 `yaml:"balances" json:"balances"`
	CommissionRate float64            `yaml:"commission_rate" json:"commission_rate"`
}

// StorageConfig 持久化配置
type StorageConfig struct {
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// JournalFile 交易/事件/日志所在的 SQLite 文件（相对 DataDir）
	JournalFile string `yaml:"journal_file" json:"journal_file"`
	// OpenOrdersBackend 本地挂单集合的存储：badger | sqlite | json
	OpenOrdersBackend string `yaml:"open_orders_backend" json:"open_orders_backend"`
}

// ReconcileConfig 过期挂单清理
type ReconcileConfig struct {
	IntervalSeconds int `yaml:"interval_seconds" json:"interval_seconds"`
	MaxAgeSeconds   int `yaml:"max_age_seconds" json:"max_age_seconds"`
}

// RiskConfig 熔断阈值，0 表示不限制
type RiskConfig struct {
	MaxConsecutiveErrors int     `yaml:"max_consecutive_errors" json:"max_consecutive_errors"`
	DailyLossLimit       float64 `yaml:"daily_loss_limit" json:"daily_loss_limit"`
}

// RankingConfig 涨幅榜选币
type RankingConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	TopN            int    `yaml:"top_n" json:"top_n"`
	Quote           string `yaml:"quote" json:"quote"`
	CacheTTLMinutes int    `yaml:"cache_ttl_minutes" json:"cache_ttl_minutes"`
}

// Config 应用配置
type Config struct {
	Pairs             []string           `yaml:"pairs" json:"pairs"`
	CapitalLimits     map[string]float64 `yaml:"capital_limits" json:"capital_limits"`
	DefaultQuantity   float64            `yaml:"default_quantity" json:"default_quantity"`
	QuantityOverrides map[string]float64 `yaml:"quantity_overrides" json:"quantity_overrides"`
	TargetSpread      float64            `yaml:"target_spread" json:"target_spread"`
	SlippageTolerance float64            `yaml:"slippage_tolerance" json:"slippage_tolerance"`
	Simulation        bool               `yaml:"simulation" json:"simulation"`
	FlexibleScan      bool               `yaml:"flexible_scan" json:"flexible_scan"`

	ScanIntervalSeconds int     `yaml:"scan_interval_seconds" json:"scan_interval_seconds"`
	PairPauseMs         int     `yaml:"pair_pause_ms" json:"pair_pause_ms"`
	ExecutionMode       string  `yaml:"execution_mode" json:"execution_mode"` // limit | market
	OrderTimeoutSeconds int     `yaml:"order_timeout_seconds" json:"order_timeout_seconds"`
	PollIntervalMs      int     `yaml:"poll_interval_ms" json:"poll_interval_ms"`
	RebateRate          float64 `yaml:"rebate_rate" json:"rebate_rate"`

	Reconcile ReconcileConfig `yaml:"reconcile" json:"reconcile"`
	Ranking   RankingConfig   `yaml:"ranking" json:"ranking"`
	Risk      RiskConfig      `yaml:"risk" json:"risk"`
	Exchange  ExchangeConfig  `yaml:"exchange" json:"exchange"`
	Paper     PaperConfig     `yaml:"paper" json:"paper"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`

	LogLevel    string `yaml:"log_level" json:"log_level"`
	LogFile     string `yaml:"log_file" json:"log_file"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	ControlAddr string `yaml:"control_addr" json:"control_addr"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		DefaultQuantity:     1,
		TargetSpread:        0.001,
		SlippageTolerance:   0.0005,
		Simulation:          true,
		ScanIntervalSeconds: 10,
		PairPauseMs:         500,
		ExecutionMode:       "limit",
		OrderTimeoutSeconds: 15,
		PollIntervalMs:      1000,
		RebateRate:          0.0001,
		Reconcile: ReconcileConfig{
			IntervalSeconds: 30,
			MaxAgeSeconds:   60,
		},
		Risk: RiskConfig{
			MaxConsecutiveErrors: 5,
		},
		Ranking: RankingConfig{
			TopN:            10,
			Quote:           "USDT",
			CacheTTLMinutes: 30,
		},
		Exchange: ExchangeConfig{
			Name:              "binance",
			RequestsPerSecond: 10,
		},
		Paper: PaperConfig{
			Balances: map[string]float64{"USDT": 1000},
		},
		Storage: StorageConfig{
			DataDir:           "./data",
			JournalFile:       "scalping.db",
			OpenOrdersBackend: "badger",
		},
		LogLevel:    "info",
		LogFile:     "logs/scalper.log",
		ControlAddr: "127.0.0.1:8089",
	}
}

// LoadFromFile 优先级：环境变量 > 配置文件 > 默认值。
// 当前目录下的 .env 会先被加载进环境变量（已存在的变量不覆盖）。
func LoadFromFile(filePath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if filePath != "" {
		if err := loadConfigFile(filePath, cfg); err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return cfg, nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON），覆盖到 cfg 上
func loadConfigFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}
	return nil
}

// applyEnv 环境变量覆盖
func applyEnv(c *Config) {
	c.Exchange.APIKey = getEnv("BINANCE_API_KEY", c.Exchange.APIKey)
	c.Exchange.APISecret = getEnv("BINANCE_API_SECRET", c.Exchange.APISecret)
	c.Exchange.Name = getEnv("EXCHANGE", c.Exchange.Name)
	c.Exchange.Testnet = parseBoolEnv("BINANCE_TESTNET", c.Exchange.Testnet)

	c.Simulation = parseBoolEnv("SIMULATION", parseBoolEnv("DRY_RUN", c.Simulation))
	c.ExecutionMode = getEnv("EXECUTION_MODE", c.ExecutionMode)
	c.TargetSpread = parseFloatEnv("TARGET_SPREAD", c.TargetSpread)
	c.ScanIntervalSeconds = parseIntEnv("SCAN_INTERVAL_SECONDS", c.ScanIntervalSeconds)

	c.Storage.DataDir = getEnv("DATA_DIR", c.Storage.DataDir)
	c.Storage.OpenOrdersBackend = getEnv("OPEN_ORDERS_BACKEND", c.Storage.OpenOrdersBackend)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.ControlAddr = getEnv("CONTROL_ADDR", c.ControlAddr)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if len(c.Pairs) == 0 && !c.Ranking.Enabled {
		return fmt.Errorf("pairs 不能为空（或启用 ranking）")
	}
	for _, p := range c.Pairs {
		if !strings.Contains(p, "/") {
			return fmt.Errorf("无效的交易对 %q，格式应为 BASE/QUOTE", p)
		}
	}
	for p, v := range c.CapitalLimits {
		if v < 0 {
			return fmt.Errorf("capital_limits[%s] 不能为负数", p)
		}
	}
	if c.DefaultQuantity <= 0 {
		return fmt.Errorf("default_quantity 必须大于 0")
	}
	for p, v := range c.QuantityOverrides {
		if v <= 0 {
			return fmt.Errorf("quantity_overrides[%s] 必须大于 0", p)
		}
	}
	if c.TargetSpread < 0 {
		return fmt.Errorf("target_spread 不能为负数")
	}
	if c.SlippageTolerance < 0 || c.SlippageTolerance >= 1 {
		return fmt.Errorf("slippage_tolerance 必须在 [0, 1) 之间")
	}
	switch c.ExecutionMode {
	case "limit", "market":
	default:
		return fmt.Errorf("未知的 execution_mode: %s", c.ExecutionMode)
	}
	if c.OrderTimeoutSeconds <= 0 {
		return fmt.Errorf("order_timeout_seconds 必须大于 0")
	}
	if c.PollIntervalMs <= 0 {
		return fmt.Errorf("poll_interval_ms 必须大于 0")
	}
	if c.Reconcile.IntervalSeconds <= 0 || c.Reconcile.MaxAgeSeconds <= 0 {
		return fmt.Errorf("reconcile.interval_seconds / max_age_seconds 必须大于 0")
	}
	if c.Risk.MaxConsecutiveErrors < 0 || c.Risk.DailyLossLimit < 0 {
		return fmt.Errorf("risk 阈值不能为负数")
	}
	switch c.Exchange.Name {
	case "binance":
		if !c.Simulation && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
			return fmt.Errorf("BINANCE_API_KEY / BINANCE_API_SECRET 未配置")
		}
	case "paper":
	default:
		return fmt.Errorf("未知的交易所: %s", c.Exchange.Name)
	}
	switch c.Storage.OpenOrdersBackend {
	case "badger", "sqlite", "json":
	default:
		return fmt.Errorf("未知的 open_orders_backend: %s", c.Storage.OpenOrdersBackend)
	}
	return nil
}

// ScanInterval 两次扫描之间的间隔
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSeconds) * time.Second
}

// PairPause 同一轮扫描中两个交易对之间的停顿
func (c *Config) PairPause() time.Duration {
	return time.Duration(c.PairPauseMs) * time.Millisecond
}

// OrderTimeout 单笔限价单等待成交的超时
func (c *Config) OrderTimeout() time.Duration {
	return time.Duration(c.OrderTimeoutSeconds) * time.Second
}

// PollInterval 订单状态轮询间隔
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// ReconcileInterval 清理器运行间隔
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Reconcile.IntervalSeconds) * time.Second
}

// ReconcileMaxAge 挂单最大存活时间
func (c *Config) ReconcileMaxAge() time.Duration {
	return time.Duration(c.Reconcile.MaxAgeSeconds) * time.Second
}

// JournalPath SQLite 文件完整路径
func (c *Config) JournalPath() string {
	if filepath.IsAbs(c.Storage.JournalFile) {
		return c.Storage.JournalFile
	}
	return filepath.Join(c.Storage.DataDir, c.Storage.JournalFile)
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseFloatEnv 解析浮点数环境变量
func parseFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseBoolEnv 解析布尔环境变量
func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
