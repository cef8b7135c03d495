package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Log      LogConfig      `mapstructure:"log"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig 选择存储驱动：mysql（生产）或 sqlite（本地开发）
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	LogLevel string `mapstructure:"log_level"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	LedgerEvent string `mapstructure:"ledger_event"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// LedgerConfig 账本业务参数
type LedgerConfig struct {
	ExpireHorizonDays int      `mapstructure:"expire_horizon_days"` // 即将过期的统计窗口
	ExchangeRate      string   `mapstructure:"exchange_rate"`       // 1 元人民币兑换的硬币数
	CheckinReward     int64    `mapstructure:"checkin_reward"`      // 每日签到赠送的免费硬币
	CheckinExpireDays int      `mapstructure:"checkin_expire_days"` // 签到硬币有效期
	CheckinExperience int64    `mapstructure:"checkin_experience"`  // 签到经验值
	BountyReputation  int64    `mapstructure:"bounty_reputation"`   // 评论被采纳后增加的声望
	RechargeMethods   []string `mapstructure:"recharge_methods"`    // 支持的充值方式
}

type BusinessConfig struct {
	OrderTimeoutMinutes   int `mapstructure:"order_timeout_minutes"`
	MaxRetryCount         int `mapstructure:"max_retry_count"`
	ReaperIntervalSeconds int `mapstructure:"reaper_interval_seconds"`
	ReconcileIntervalMins int `mapstructure:"reconcile_interval_minutes"`
}

// LoadConfig 加载配置文件，环境变量 COINLEDGER_* 可覆盖文件中的配置
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("COINLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return config, nil
}

// Default 返回只包含默认值的配置，测试和命令行工具使用
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	config := &Config{}
	_ = v.Unmarshal(config)
	return config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("sqlite.path", "coinledger.db")

	v.SetDefault("kafka.topic.ledger_event", "ledger_event")

	v.SetDefault("log.level", "info")

	v.SetDefault("ledger.expire_horizon_days", 7)
	v.SetDefault("ledger.exchange_rate", "10")
	v.SetDefault("ledger.checkin_reward", 5)
	v.SetDefault("ledger.checkin_expire_days", 30)
	v.SetDefault("ledger.checkin_experience", 10)
	v.SetDefault("ledger.bounty_reputation", 10)
	v.SetDefault("ledger.recharge_methods", []string{"alipay", "wechat"})

	v.SetDefault("business.order_timeout_minutes", 30)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.reaper_interval_seconds", 300)
	v.SetDefault("business.reconcile_interval_minutes", 60)
}
