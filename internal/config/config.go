package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ProfessorAbraham/chereka-customer-support/internal/mw"

	"gopkg.in/yaml.v3"
)

const defaultJWTSecret = "dev-secret-change-me"

type Config struct {
	Port           string   `yaml:"port"`
	Env            string   `yaml:"env"`
	LogLevel       string   `yaml:"log_level"`
	DatabaseDriver string   `yaml:"database_driver"`
	DatabaseDSN    string   `yaml:"database_dsn"`
	JWTSecret      string   `yaml:"jwt_secret"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisChannel  string `yaml:"redis_channel"`

	KafkaBrokers  []string `yaml:"kafka_brokers"`
	KafkaTopic    string   `yaml:"kafka_topic"`
	KafkaUsername string   `yaml:"kafka_username"`
	KafkaPassword string   `yaml:"kafka_password"`

	// Requests per second per client IP and route.
	HTTPRate  float64 `yaml:"http_rate"`
	HTTPBurst int     `yaml:"http_burst"`

	// Inbound websocket events allowed per second per connection.
	WSEventRate  float64 `yaml:"ws_event_rate"`
	WSEventBurst int     `yaml:"ws_event_burst"`
}

func Defaults() Config {
	return Config{
		Port:           "8080",
		Env:            "dev",
		LogLevel:       "info",
		DatabaseDriver: "postgres",
		DatabaseDSN:    "host=localhost user=postgres password=postgres dbname=chereka port=5432 sslmode=disable TimeZone=UTC",
		JWTSecret:      defaultJWTSecret,
		RedisChannel:   "chereka:chat:broadcast",
		KafkaTopic:     "chat.events",
		HTTPRate:       20,
		HTTPBurst:      40,
		WSEventRate:    10,
		WSEventBurst:   20,
	}
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int, min int) int {
	v, err := strconv.Atoi(getenv(key, strconv.Itoa(def)))
	if err != nil || v < min {
		return def
	}
	return v
}

func getenvFloat(key string, def float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func getenvList(key string, def []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load 读取可选的 YAML 配置文件（CONFIG_FILE），再用环境变量覆盖。
func Load() Config {
	cfg, _ := LoadFile(os.Getenv("CONFIG_FILE"))
	return Overlay(cfg)
}

// LoadFile merges the YAML file at path over Defaults. An empty path returns
// the defaults unchanged.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Defaults(), fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Overlay applies environment variable overrides on top of base.
func Overlay(base Config) Config {
	def := Defaults()
	cfg := base
	cfg.Port = getenv("APP_PORT", base.Port)
	cfg.Env = getenv("APP_ENV", base.Env)
	cfg.LogLevel = getenv("LOG_LEVEL", base.LogLevel)
	cfg.DatabaseDriver = getenv("DATABASE_DRIVER", base.DatabaseDriver)
	cfg.DatabaseDSN = getenv("DATABASE_DSN", base.DatabaseDSN)
	cfg.JWTSecret = getenv("JWT_SECRET", base.JWTSecret)
	cfg.AllowedOrigins = getenvList("ALLOWED_ORIGINS", base.AllowedOrigins)
	cfg.RedisAddr = getenv("REDIS_ADDR", base.RedisAddr)
	cfg.RedisPassword = getenv("REDIS_PASSWORD", base.RedisPassword)
	cfg.RedisDB = getenvInt("REDIS_DB", base.RedisDB, 0)
	cfg.RedisChannel = getenv("REDIS_CHANNEL", base.RedisChannel)
	cfg.KafkaBrokers = getenvList("KAFKA_BROKERS", base.KafkaBrokers)
	cfg.KafkaTopic = getenv("KAFKA_TOPIC", base.KafkaTopic)
	cfg.KafkaUsername = getenv("KAFKA_USERNAME", base.KafkaUsername)
	cfg.KafkaPassword = getenv("KAFKA_PASSWORD", base.KafkaPassword)
	cfg.HTTPRate = getenvFloat("HTTP_RATE", base.HTTPRate)
	cfg.HTTPBurst = getenvInt("HTTP_BURST", base.HTTPBurst, 1)
	if cfg.HTTPRate <= 0 {
		cfg.HTTPRate = def.HTTPRate
	}
	if cfg.HTTPBurst < 1 {
		cfg.HTTPBurst = def.HTTPBurst
	}
	cfg.WSEventRate = getenvFloat("WS_EVENT_RATE", base.WSEventRate)
	cfg.WSEventBurst = getenvInt("WS_EVENT_BURST", base.WSEventBurst, 1)
	if cfg.WSEventRate <= 0 {
		cfg.WSEventRate = def.WSEventRate
	}
	if cfg.WSEventBurst < 1 {
		cfg.WSEventBurst = def.WSEventBurst
	}
	return cfg
}

// HTTPLimit is the per IP and route request budget.
func (c Config) HTTPLimit() mw.Policy { return mw.Policy{Rate: c.HTTPRate, Burst: c.HTTPBurst} }

// WSEventLimit is the per connection inbound event budget.
func (c Config) WSEventLimit() mw.Policy {
	return mw.Policy{Rate: c.WSEventRate, Burst: c.WSEventBurst}
}

// Validate 校验启动所需的关键配置；非 dev 环境禁止使用默认 JWT 密钥。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: APP_PORT is empty")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("config: DATABASE_DSN is empty")
	}
	switch cfg.DatabaseDriver {
	case "postgres", "sqlite", "":
	default:
		return fmt.Errorf("config: unknown DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
	if cfg.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is empty")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == defaultJWTSecret {
		return errors.New("config: default JWT_SECRET is only allowed in dev")
	}
	return nil
}
