package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервера чата.

type Config struct {
	Chat     ChatConfig     `yaml:"chat"`
	Auth     AuthConfig     `yaml:"auth"`
	Storage  StorageConfig  `yaml:"storage"`
	Rest     RestConfig     `yaml:"rest"`
	EventBus EventBusConfig `yaml:"eventbus"`
	Presence PresenceConfig `yaml:"presence"`
}

type ChatConfig struct {
	Port                int `yaml:"port"`
	MaxClients          int `yaml:"max_clients"`
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds"`  // 0 = без таймаута (поведение источника)
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds"` // ограничивает медленных получателей
	DrainTimeoutSeconds int `yaml:"drain_timeout_seconds"` // ожидание воркеров при остановке
}

type AuthConfig struct {
	MaxLoginAttempts int `yaml:"max_login_attempts"`
	LockoutMinutes   int `yaml:"lockout_minutes"`
	PBKDF2Iterations int `yaml:"pbkdf2_iterations"`
}

// StorageConfig выбирает бэкенд хранения учётных записей.
// Backend: memory | file | maria | mongo.
type StorageConfig struct {
	Backend string      `yaml:"backend"`
	File    FileConfig  `yaml:"file"`
	Maria   MariaConfig `yaml:"maria"`
	Mongo   MongoConfig `yaml:"mongo"`
}

type FileConfig struct {
	Path string `yaml:"path"`
}

type MariaConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type RestConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type EventBusConfig struct {
	URL    string `yaml:"url"` // пусто — только in-memory шина
	Stream string `yaml:"stream"`
}

type PresenceConfig struct {
	RedisAddr  string `yaml:"redis_addr"` // пусто — зеркало presence выключено
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// GetChatPort возвращает TCP порт чата с поддержкой fallback значений
func (c *ChatConfig) GetChatPort() int {
	return getPortWithEnvFallback(c.Port, "CHAT_PORT", 5000)
}

// GetRestPort возвращает порт REST API с поддержкой fallback значений
func (r *RestConfig) GetRestPort() int {
	return getPortWithEnvFallback(r.Port, "CHAT_REST_PORT", 8088)
}

// GetMaxClients возвращает размер пула воркеров
func (c *ChatConfig) GetMaxClients() int {
	if c.MaxClients > 0 {
		return c.MaxClients
	}
	return 100
}

// GetMaxLoginAttempts возвращает лимит неудачных попыток входа
func (a *AuthConfig) GetMaxLoginAttempts() int {
	if a.MaxLoginAttempts > 0 {
		return a.MaxLoginAttempts
	}
	return 3
}

// GetLockoutMinutes возвращает длительность блокировки аккаунта
func (a *AuthConfig) GetLockoutMinutes() int {
	if a.LockoutMinutes > 0 {
		return a.LockoutMinutes
	}
	return 15
}

// GetPBKDF2Iterations возвращает число итераций PBKDF2 (не меньше 65536)
func (a *AuthConfig) GetPBKDF2Iterations() int {
	if a.PBKDF2Iterations >= 65536 {
		return a.PBKDF2Iterations
	}
	return 65536
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV CHAT_CONFIG или возвращает nil, nil.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CHAT_CONFIG")
		if path == "" {
			return nil, nil // конфиг не задан — использовать дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
