package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Router     RouterConfig     `mapstructure:"router"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	WhatsApp   WhatsAppConfig   `mapstructure:"whatsapp"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Assistant  AssistantConfig  `mapstructure:"assistant"`
	CRM        CRMConfig        `mapstructure:"crm"`
}

type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	WebhookPath string `mapstructure:"webhook_path"`
}

type RouterConfig struct {
	// Mode selects how sessions are routed: "classify" runs the intent
	// classifier, "assistant" sends everything to the general assistant.
	Mode string `mapstructure:"mode"`
	// Transport selects the inbound channel: "webhook" or "telegram".
	Transport string `mapstructure:"transport"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type ClassifierConfig struct {
	Threshold               float64 `mapstructure:"threshold"`
	MaxUnclassifiedMessages int     `mapstructure:"max_unclassified_messages"`
}

type OpenAIConfig struct {
	APIKey        string  `mapstructure:"api_key"`
	Model         string  `mapstructure:"model"`
	FallbackModel string  `mapstructure:"fallback_model"`
	MaxTokens     int     `mapstructure:"max_tokens"`
	Temperature   float64 `mapstructure:"temperature"`
	MaxRetries    int     `mapstructure:"max_retries"`
}

type WhatsAppConfig struct {
	ServerURL    string `mapstructure:"server_url"`
	APIKey       string `mapstructure:"api_key"`
	InstanceName string `mapstructure:"instance_name"`
	BucketURL    string `mapstructure:"bucket_url"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type AssistantConfig struct {
	// KnowledgeFile is a plain-text company document handed to the general
	// assistant as retrieval context.
	KnowledgeFile string `mapstructure:"knowledge_file"`
}

type CRMConfig struct {
	// DirectoryFile is a JSON file mapping tax ids to CRM records
	// (status, assigned agent, contact data) for the lead workflow.
	DirectoryFile string `mapstructure:"directory_file"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	dbName := strings.TrimPrefix(u.Path, "/")

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  "disable",
	}, nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.webhook_path", "/webhook")
	v.SetDefault("router.mode", "classify")
	v.SetDefault("router.transport", "webhook")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)
	v.SetDefault("classifier.threshold", 0.8)
	v.SetDefault("classifier.max_unclassified_messages", 10)
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.fallback_model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 1024)
	v.SetDefault("openai.temperature", 0.3)
	v.SetDefault("openai.max_retries", 2)

	// Enable environment variable support
	v.AutomaticEnv()

	// Read the config file
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %v", err)
		}
		config.Database = dbConfig
	}

	// Get other environment variables
	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}

	if apiKey := v.GetString("EVOLUTION_API_KEY"); apiKey != "" {
		config.WhatsApp.APIKey = apiKey
	}

	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}

	return &config, nil
}
