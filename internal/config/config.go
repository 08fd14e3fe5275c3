// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Chat          ChatConfig          `mapstructure:"chat"`
	Catalog       CatalogConfig       `mapstructure:"catalog"`
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
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
// Addresses 为空表示未配置向量后端，检索全部走关键词兜底。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
	Prompt     LLMPromptConfig     `mapstructure:"prompt"`
	RateLimit  RateLimitConfig     `mapstructure:"rate_limit"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置系统提示与菜单上下文包裹格式（可选，均有默认值）。
type LLMPromptConfig struct {
	Rules        string `mapstructure:"rules"`
	MenuStart    string `mapstructure:"menu_start"`
	MenuEnd      string `mapstructure:"menu_end"`
	NoResultText string `mapstructure:"no_result_text"`
}

// RateLimitConfig 配置进程级 LLM 调用限流。
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// ChatConfig 配置对话与会话管理行为。
type ChatConfig struct {
	TopK            int `mapstructure:"top_k"`             // 每轮检索候选数量
	HistoryLimit    int `mapstructure:"history_limit"`     // 注入 prompt 的历史消息条数
	RetentionCap    int `mapstructure:"retention_cap"`     // 会话保留的最大消息数（FIFO 淘汰）
	SessionTTLHours int `mapstructure:"session_ttl_hours"` // 空闲会话的淘汰阈值
}

// CatalogConfig 配置菜单目录的初始化导入。
type CatalogConfig struct {
	SeedFile string `mapstructure:"seed_file"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}

	applyDefaults()
}

// applyDefaults 为未配置的行为参数填入默认值。
func applyDefaults() {
	if Conf.Chat.TopK <= 0 {
		Conf.Chat.TopK = 5
	}
	if Conf.Chat.HistoryLimit <= 0 {
		Conf.Chat.HistoryLimit = 6
	}
	if Conf.Chat.RetentionCap <= 0 {
		Conf.Chat.RetentionCap = 50
	}
	if Conf.Chat.SessionTTLHours <= 0 {
		Conf.Chat.SessionTTLHours = 24
	}
	if Conf.Elasticsearch.IndexName == "" {
		Conf.Elasticsearch.IndexName = "food_catalog"
	}
	if Conf.LLM.RateLimit.RequestsPerSecond <= 0 {
		Conf.LLM.RateLimit.RequestsPerSecond = 2
	}
	if Conf.LLM.RateLimit.Burst <= 0 {
		Conf.LLM.RateLimit.Burst = 4
	}
}
