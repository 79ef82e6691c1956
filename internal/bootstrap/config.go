package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	DBUser          string
	DBPassword      string
	DBHost          string
	DBPort          string
	DBName          string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	JWTSecret       string
	ServerPort      string
	LogLevel        string
	RateLimitMax    int
	RateLimitWindow time.Duration
	AppEnv          string // 应用环境 (development/production)
	KeyPrefix       string // Redis Key 前缀

	ConflictWindow       time.Duration // 并发编辑判定窗口
	InstanceID           string        // 多实例部署时区分消息来源
	CORSAllowedOrigin    string
	WorkerConcurrency    int
	ConflictLogRetention int // 审计记录保留天数
}

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:            os.Getenv("DB_USER"),
		DBPassword:        os.Getenv("DB_PASSWORD"),
		DBHost:            os.Getenv("DB_HOST"),
		DBPort:            os.Getenv("DB_PORT"),
		DBName:            os.Getenv("DB_NAME"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		ServerPort:        os.Getenv("SERVER_PORT"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		AppEnv:            os.Getenv("APP_ENV"),
		KeyPrefix:         os.Getenv("REDIS_KEY_PREFIX"),
		InstanceID:        os.Getenv("INSTANCE_ID"),
		CORSAllowedOrigin: os.Getenv("CORS_ALLOWED_ORIGIN"),
	}

	var err error
	if cfg.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RateLimitMax, err = envInt("RATE_LIMIT_MAX", 100); err != nil {
		return nil, err
	}
	windowSeconds, err := envInt("RATE_LIMIT_WINDOW_SECONDS", 1)
	if err != nil {
		return nil, err
	}
	cfg.RateLimitWindow = time.Duration(windowSeconds) * time.Second
	windowMs, err := envInt("CONFLICT_WINDOW_MS", 5000)
	if err != nil {
		return nil, err
	}
	cfg.ConflictWindow = time.Duration(windowMs) * time.Millisecond
	if cfg.WorkerConcurrency, err = envInt("WORKER_CONCURRENCY", 10); err != nil {
		return nil, err
	}
	if cfg.ConflictLogRetention, err = envInt("CONFLICT_LOG_RETENTION_DAYS", 90); err != nil {
		return nil, err
	}

	// --- 设置其他默认值和进行必要检查 ---
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "tv:"
	}
	if cfg.CORSAllowedOrigin == "" {
		cfg.CORSAllowedOrigin = "http://localhost:3000" // 开发默认
	}
	if cfg.InstanceID == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.InstanceID = host
		}
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}
	if cfg.RateLimitMax <= 0 || cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW_SECONDS must be positive")
	}
	if cfg.ConflictWindow < 0 {
		return nil, fmt.Errorf("CONFLICT_WINDOW_MS must not be negative")
	}

	// 验证日志级别
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

func envInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be an integer: %w", key, err)
	}
	return v, nil
}
