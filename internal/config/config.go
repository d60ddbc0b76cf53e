package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Queue    QueueConfig
	Email    EmailConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Database DatabaseConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// QueueConfig holds the scheduler tuning knobs. ServiceTimeMinutes is the
// fixed per-reading estimate used for wait-time math; InProgressLimit caps how
// many orders a single operator can have open at once (0 disables the cap).
type QueueConfig struct {
	DailyLimit         int
	ServiceTimeMinutes int
	InProgressLimit    int
	LockTTL            time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	OrderQueued    string
	OrderStarted   string
	OrderCompleted string
	OrderCancelled string
	PaymentSuccess string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromAddress  string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Queue: QueueConfig{
			DailyLimit:         getEnvInt("QUEUE_DAILY_LIMIT", 10),
			ServiceTimeMinutes: getEnvInt("QUEUE_SERVICE_TIME_MINUTES", 30),
			InProgressLimit:    getEnvInt("QUEUE_IN_PROGRESS_LIMIT", 1),
			LockTTL:            time.Duration(getEnvInt("QUEUE_LOCK_TTL_SECONDS", 30)) * time.Second,
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromAddress:  getEnv("SMTP_FROM", "readings@fortune-queue.local"),
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "fortune_user"),
			Password:     getEnv("DB_PASSWORD", "fortune_pass"),
			Database:     getEnv("DB_NAME", "fortune_queue"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			GroupID: getEnv("KAFKA_GROUP_ID", "fortune-queue-group"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				OrderQueued:    getEnv("KAFKA_TOPIC_ORDER_QUEUED", "order-queued"),
				OrderStarted:   getEnv("KAFKA_TOPIC_ORDER_STARTED", "order-started"),
				OrderCompleted: getEnv("KAFKA_TOPIC_ORDER_COMPLETED", "order-completed"),
				OrderCancelled: getEnv("KAFKA_TOPIC_ORDER_CANCELLED", "order-cancelled"),
				PaymentSuccess: getEnv("KAFKA_TOPIC_PAYMENT_SUCCESS", "payment-success"),
			},
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
