package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

// 轮询间隔限制
const (
	MinInterval     = 10 * time.Second
	DefaultInterval = 60 * time.Second
)

// TokenPair 车辆 VIN 与 ABRP 令牌的绑定（按配置顺序保存）
type TokenPair struct {
	VIN   string
	Token string
}

type Config struct {
	// Server
	ServerPort string
	Debug      bool
	LogLevel   string

	// Database（可选，为空则不持久化）
	DatabaseURL string

	// ABRP API
	ABRPBaseURL string

	// 遥测同步
	Tokens   []TokenPair
	Interval time.Duration
}

func Load() (*Config, error) {
	// 尝试加载 .env 文件（可选）
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:  getEnv("PORT", "4000"),
		Debug:       getEnvBool("DEBUG", false),
		LogLevel:    getEnv("LOG_LEVEL", ""),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		ABRPBaseURL: getEnv("ABRP_API_URL", "https://api.iternio.com/1/"),
	}

	tokens, err := ParseTokens(os.Getenv("ABRP_TOKENS"))
	if err != nil {
		return nil, err
	}
	cfg.Tokens = tokens

	interval, err := parseInterval(os.Getenv("ABRP_INTERVAL"))
	if err != nil {
		return nil, err
	}
	cfg.Interval = interval

	if cfg.LogLevel != "" {
		if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
	}

	return cfg, nil
}

// ParseTokens 解析 "VIN1:token1,VIN2:token2" 形式的令牌映射，保留配置顺序
func ParseTokens(raw string) ([]TokenPair, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("no ABRP tokens specified (ABRP_TOKENS missing)")
	}

	var pairs []TokenPair
	seen := make(map[string]bool)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		vin, token, ok := strings.Cut(entry, ":")
		vin = strings.TrimSpace(vin)
		token = strings.TrimSpace(token)
		if !ok || vin == "" || token == "" {
			return nil, fmt.Errorf("malformed token entry %q (expected VIN:token)", entry)
		}
		if seen[vin] {
			return nil, fmt.Errorf("duplicate token entry for vehicle %s", vin)
		}
		seen[vin] = true
		pairs = append(pairs, TokenPair{VIN: vin, Token: token})
	}

	if len(pairs) == 0 {
		return nil, fmt.Errorf("no ABRP tokens specified (ABRP_TOKENS missing)")
	}
	return pairs, nil
}

func parseInterval(raw string) (time.Duration, error) {
	if raw == "" {
		return DefaultInterval, nil
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", raw, err)
	}
	interval := time.Duration(seconds) * time.Second
	if interval < MinInterval {
		return 0, fmt.Errorf("interval must be at least %s, got %s", MinInterval, interval)
	}
	return interval, nil
}

// RedactToken 打码令牌用于日志输出，令牌绝不完整出现在日志中
func RedactToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}
