package configs

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisAddr string

	ServerPort      string
	JWTSecret       string
	NumberOfWorkers int

	JudgeURL           string
	JudgeTimeout       time.Duration
	JudgePollInterval  time.Duration
	JudgeRetryInterval time.Duration
}

func LoadConfig() *Config {
	err := godotenv.Load()

	if err != nil {
		log.Fatal("Error loading .env file", err)
	}

	numWorkerInt, err := strconv.Atoi(os.Getenv("NUM_OF_WORKERS"))
	if err != nil || numWorkerInt <= 0 {
		numWorkerInt = 2
	}

	return &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),

		ServerPort:      getEnv("SERVER_PORT", "8080"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		NumberOfWorkers: numWorkerInt,

		JudgeURL:           getEnv("JUDGE_URL", "http://localhost:2358"),
		JudgeTimeout:       getEnvAsSeconds("JUDGE_TIMEOUT_SECONDS", 120),
		JudgePollInterval:  getEnvAsSeconds("JUDGE_POLL_INTERVAL_SECONDS", 1),
		JudgeRetryInterval: getEnvAsSeconds("JUDGE_RETRY_INTERVAL_SECONDS", 3),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsSeconds(key string, fallback int) time.Duration {
	seconds, err := strconv.Atoi(os.Getenv(key))
	if err != nil || seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}
