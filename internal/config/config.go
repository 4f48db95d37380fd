// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	IPFS     IPFSConfig     `mapstructure:"ipfs"`
	Chain    ChainConfig    `mapstructure:"chain"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。token 由外部认证服务签发，这里只做校验。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 事件总线的配置。Brokers 为空时只使用进程内的事件 Hub。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// Enabled 表示是否配置了 Kafka。
func (c KafkaConfig) Enabled() bool {
	return strings.TrimSpace(c.Brokers) != ""
}

// BrokerList 将逗号分隔的 brokers 拆分为列表。
func (c KafkaConfig) BrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// IPFSConfig 存储内容寻址存储（pin 服务）的配置。
type IPFSConfig struct {
	// Backend 取值 "pinata" 或 "minio"。
	Backend       string       `mapstructure:"backend"`
	Pinata        PinataConfig `mapstructure:"pinata"`
	CacheTTLHours int          `mapstructure:"cache_ttl_hours"`
}

// CacheTTL 返回 CID 缓存的过期时间，0 表示不启用缓存。
func (c IPFSConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// PinataConfig 存储 Pinata pinning API 的配置。
type PinataConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	JWT            string `mapstructure:"jwt"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ChainConfig 存储区块链网关的配置。
type ChainConfig struct {
	RPCURL                string `mapstructure:"rpc_url"`
	PrivateKey            string `mapstructure:"private_key"`
	ContractAddress       string `mapstructure:"contract_address"`
	GasLimit              uint64 `mapstructure:"gas_limit"`
	Confirmations         uint64 `mapstructure:"confirmations"`
	ConfirmTimeoutSeconds int    `mapstructure:"confirm_timeout_seconds"`
	PollIntervalMillis    int    `mapstructure:"poll_interval_millis"`
}

// ConfirmTimeout 返回等待交易确认的超时时间，默认 2 分钟。
func (c ChainConfig) ConfirmTimeout() time.Duration {
	if c.ConfirmTimeoutSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.ConfirmTimeoutSeconds) * time.Second
}

// PollInterval 返回确认数轮询间隔，默认 1 秒。
func (c ChainConfig) PollInterval() time.Duration {
	if c.PollIntervalMillis <= 0 {
		return time.Second
	}
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

// Load 从指定路径读取 YAML 配置，环境变量可以覆盖同名键（例如 CHAIN_PRIVATE_KEY）。
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.topic", "answer-events")
	v.SetDefault("ipfs.backend", "pinata")
	v.SetDefault("ipfs.pinata.base_url", "https://api.pinata.cloud")
	v.SetDefault("ipfs.pinata.timeout_seconds", 30)
	v.SetDefault("chain.confirmations", 1)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
