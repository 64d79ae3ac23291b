package config

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/viper"
)

// Config хранит все настройки приложения
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Auth      AuthConfig
	Email     EmailConfig
	Scheduler SchedulerConfig
	WebSocket WebSocketConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port         string `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig содержит унифицированные настройки подключения к Redis.
// Поддерживает режимы: single, sentinel, cluster.
type RedisConfig struct {
	Mode            string   `mapstructure:"mode"`
	Addrs           []string `mapstructure:"addrs"`
	Addr            string   `mapstructure:"addr"`
	Password        string   `mapstructure:"password"`
	DB              int      `mapstructure:"db"`
	MasterName      string   `mapstructure:"master_name"`
	MaxRetries      int      `mapstructure:"max_retries"`
	MinRetryBackoff int      `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff int      `mapstructure:"max_retry_backoff"`
}

// JWTConfig содержит настройки JWT
type JWTConfig struct {
	Secret        string `mapstructure:"secret"`
	ExpirationHrs int    `mapstructure:"expirationHrs"`
}

// AuthConfig содержит настройки аутентификации
type AuthConfig struct {
	RefreshTokenLifetimeHrs int `mapstructure:"refreshTokenLifetimeHrs"`
	OtpExpiryMinutes        int `mapstructure:"otpExpiryMinutes"`
	OtpMaxAttempts          int `mapstructure:"otpMaxAttempts"`
}

// EmailConfig содержит настройки канала доставки кодов
type EmailConfig struct {
	ResendAPIKey string `mapstructure:"resend_api_key"`
	From         string `mapstructure:"from"`
}

// SchedulerConfig содержит настройки планировщика событий
type SchedulerConfig struct {
	FillIntervalSec      int `mapstructure:"fill_interval_sec"`       // период fill-цикла
	MaintenanceIntSec    int `mapstructure:"maintenance_int_sec"`     // период lobby-open/rollover/expiry циклов
	FillHorizonMinutes   int `mapstructure:"fill_horizon_minutes"`    // горизонт заполнения событий
	LobbyWindowSec       int `mapstructure:"lobby_window_sec"`        // окно открытия лобби перед startAt
	DefaultQuestionCount int `mapstructure:"default_question_count"`  // число вопросов в авто-событии
	DefaultMinPlayers    int `mapstructure:"default_min_players"`     // минимум игроков в авто-событии
}

// WebSocketConfig содержит настройки realtime-подсистемы
type WebSocketConfig struct {
	HeartbeatIntervalSec int     `mapstructure:"heartbeat_interval_sec"`
	SystemCheckSec       int     `mapstructure:"system_check_sec"`
	IdleTimeoutMin       int     `mapstructure:"idle_timeout_min"`
	HeapThreshold        float64 `mapstructure:"heap_threshold"`
	ClientSendBuffer     int     `mapstructure:"client_send_buffer"`
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// Load загружает конфигурацию из файла и переменных окружения
func Load(configPath string) (*Config, error) {
	vip := viper.New()

	// Значения по умолчанию
	vip.SetDefault("server.port", "8080")
	vip.SetDefault("database.sslmode", "disable")
	vip.SetDefault("jwt.expirationHrs", 24)
	vip.SetDefault("auth.refreshTokenLifetimeHrs", 168) // 7 дней, как maxAge cookie
	vip.SetDefault("auth.otpExpiryMinutes", 15)
	vip.SetDefault("auth.otpMaxAttempts", 5)
	vip.SetDefault("scheduler.fill_interval_sec", 60)
	vip.SetDefault("scheduler.maintenance_int_sec", 30)
	vip.SetDefault("scheduler.fill_horizon_minutes", 120)
	vip.SetDefault("scheduler.lobby_window_sec", 60)
	vip.SetDefault("scheduler.default_question_count", 5)
	vip.SetDefault("scheduler.default_min_players", 2)
	vip.SetDefault("websocket.heartbeat_interval_sec", 25)
	vip.SetDefault("websocket.system_check_sec", 60)
	vip.SetDefault("websocket.idle_timeout_min", 10)
	vip.SetDefault("websocket.heap_threshold", 0.8)
	vip.SetDefault("websocket.client_send_buffer", 128)

	// Привязываем переменные окружения ЯВНО
	vip.BindEnv("server.port", "PORT")
	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")
	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")
	vip.BindEnv("jwt.secret", "JWT_SECRET")
	vip.BindEnv("jwt.expirationHrs", "JWT_EXPIRATIONHRS")
	vip.BindEnv("auth.refreshTokenLifetimeHrs", "AUTH_REFRESHTOKENLIFETIMEHRS")
	vip.BindEnv("email.resend_api_key", "RESEND_API_KEY")
	vip.BindEnv("email.from", "EMAIL_FROM")

	if configPath != "" {
		vip.SetConfigFile(configPath)
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				log.Printf("Файл конфигурации '%s' не найден, используются переменные окружения/умолчания.", configPath)
			} else {
				log.Printf("Предупреждение: не удалось прочитать файл конфигурации '%s': %v", configPath, err)
			}
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if os.Getenv("GIN_MODE") != "release" {
		log.Printf("--- Загруженные значения конфигурации ---")
		log.Printf("Server Port: %s", cfg.Server.Port)
		log.Printf("Database Host: %s", cfg.Database.Host)
		log.Printf("Database Name: %s", cfg.Database.DBName)
		log.Printf("Redis Addr: %s", cfg.Redis.Addr)
		log.Printf("JWT Secret Set: %t", cfg.JWT.Secret != "")
		log.Printf("Scheduler Fill Horizon: %d min", cfg.Scheduler.FillHorizonMinutes)
		log.Printf("-----------------------------------------")
	}

	// Проверка обязательных параметров
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT secret is required in config (check JWT_SECRET env var)")
	}
	if cfg.Database.Host == "" || cfg.Database.DBName == "" || cfg.Database.User == "" {
		return nil, fmt.Errorf("database configuration (host, dbname, user) is incomplete in config (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}

	return &cfg, nil
}
