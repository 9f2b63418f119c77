package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ServerHost        string
	ServerPort        string
	JWTSigningKey     string
	DBDriver          string
	SQLitePath        string
	PostgresHost      string
	PostgresPort      string
	PostgresUser      string
	PostgresPassword  string
	PostgresDB        string
	OpenAIKey         string
	OpenAIBaseURL     string
	ChatModel         string
	SessionTTLMinutes int
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("Не найден файл .env")
	}

	return &Config{
		ServerHost:        getEnv("SERVER_HOST", "0.0.0.0"),
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		JWTSigningKey:     getEnv("JWT_SIGNING_KEY", "your-secret-signing-key"),
		DBDriver:          getEnv("DB_DRIVER", "sqlite"),
		SQLitePath:        getEnv("SQLITE_PATH", "travel_planner.db"),
		PostgresHost:      getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:      getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:      getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword:  getEnv("POSTGRES_PASSWORD", "postgres"),
		PostgresDB:        getEnv("POSTGRES_DB", "travelchat"),
		OpenAIKey:         getEnv("OPENAI_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
		ChatModel:         getEnv("CHAT_MODEL", ""),
		SessionTTLMinutes: getEnvInt("SESSION_TTL_MINUTES", 30),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logrus.Warnf("Некорректное значение %s=%q, используется значение по умолчанию %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
