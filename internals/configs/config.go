package configs

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	gormLogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

var (
	JWTSecret string

	// Proctoring pipeline knobs (loaded once at boot)
	HeartbeatTimeout  time.Duration // ACTIVE session without heartbeat longer than this is stale
	PresenceTTL       time.Duration // rolling liveness window in the presence store
	SchedulerInterval time.Duration // cadence of exam-status + reaper sweeps

	RedisAddr     string
	RedisPassword string

	KafkaBrokers       string
	KafkaMediaTopic    string
	KafkaBehaviorTopic string
	AnalysisQueueSize  int
)

// =======================
// ENV LOADER
// =======================
func LoadEnv() {
	if os.Getenv("RAILWAY_ENVIRONMENT") == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("⚠️ No .env file found, using system ENV")
		} else {
			log.Println("✅ .env file loaded")
		}
	} else {
		log.Println("🚀 Running in Railway, using system ENV")
	}

	JWTSecret = GetEnv("JWT_SECRET")
	if JWTSecret == "" {
		log.Println("❌ JWT_SECRET is not set!")
	}

	HeartbeatTimeout = GetEnvDuration("SESSION_HEARTBEAT_TIMEOUT", 10*time.Minute)
	PresenceTTL = GetEnvDuration("PRESENCE_TTL", 30*time.Minute)
	SchedulerInterval = GetEnvDuration("SCHEDULER_INTERVAL", time.Minute)

	RedisAddr = GetEnv("REDIS_ADDR", "localhost:6379")
	RedisPassword = GetEnv("REDIS_PASSWORD")

	KafkaBrokers = GetEnv("KAFKA_BROKERS", "localhost:9092")
	KafkaMediaTopic = GetEnv("KAFKA_MEDIA_TOPIC", "proctoring.media")
	KafkaBehaviorTopic = GetEnv("KAFKA_BEHAVIOR_TOPIC", "proctoring.behavior")
	AnalysisQueueSize = GetEnvInt("ANALYSIS_QUEUE_SIZE", 1024)
}

func GetEnv(key string, defaultValue ...string) string {
	value, exists := os.LookupEnv(key)
	if !exists && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return value
}

func GetEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
		log.Printf("⚠️ %s is not a number, using default %d", key, def)
	}
	return def
}

func GetEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
		log.Printf("⚠️ %s is not a duration, using default %s", key, def)
	}
	return def
}

// =======================
// GORM LOGGER CUSTOM
// =======================
type GormLogger struct {
	SlowThreshold time.Duration
	LogLevel      gormLogger.LogLevel
}

func NewGormLogger() gormLogger.Interface {
	return &GormLogger{
		SlowThreshold: 200 * time.Millisecond,
		LogLevel:      gormLogger.Warn,
	}
}

func (l *GormLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	l.LogLevel = level
	return l
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	log.Printf("[INFO] "+msg, data...)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	log.Printf("[WARN] "+msg, data...)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	log.Printf("[ERROR] "+msg, data...)
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()
	file := utils.FileWithLineNum()

	if err != nil {
		log.Printf("[ERROR] %s | %v | %s | %d rows | %s", file, err, elapsed, rows, sql)
	} else if elapsed > l.SlowThreshold {
		log.Printf("[SLOW SQL] %s | %s | %d rows | %s", file, elapsed, rows, sql)
	}
}
