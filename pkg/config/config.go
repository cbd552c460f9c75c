package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the process level settings read from the environment.
// Per-session settings live in the file named by SessionsFile.
type Config struct {
	LogLevel     string
	SessionsFile string

	StoreType   string
	StorePath   string
	PostgresDSN string

	AcceptorAddress string
	AdminPort       int
	TimerInterval   time.Duration

	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
}

func Load() (*Config, error) {
	logLevel, logLevelExists := os.LookupEnv("LOG_LEVEL")
	if !logLevelExists {
		logLevel = "info"
	}

	sessionsFile, sessionsFileExists := os.LookupEnv("FIX_SESSIONS_FILE")
	if !sessionsFileExists {
		sessionsFile = "sessions.yaml"
	}

	storeType, storeTypeExists := os.LookupEnv("STORE_TYPE")
	if !storeTypeExists {
		storeType = "memory"
	}
	storePath, storePathExists := os.LookupEnv("STORE_PATH")
	if !storePathExists {
		storePath = "fix-store.db"
	}
	postgresDSN := os.Getenv("POSTGRES_DSN")

	acceptorAddress, acceptorAddressExists := os.LookupEnv("FIX_ACCEPTOR_ADDRESS")
	if !acceptorAddressExists {
		acceptorAddress = ":9876"
	}

	adminPort, err := lookupInt("ADMIN_PORT", 8080)
	if err != nil {
		return nil, err
	}
	timerInterval, err := lookupInt("TIMER_INTERVAL_SECONDS", 1)
	if err != nil {
		return nil, err
	}
	reconnectInterval, err := lookupInt("RECONNECT_INTERVAL_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	maxReconnectAttempts, err := lookupInt("MAX_RECONNECTION_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}

	return &Config{
		LogLevel:             logLevel,
		SessionsFile:         sessionsFile,
		StoreType:            storeType,
		StorePath:            storePath,
		PostgresDSN:          postgresDSN,
		AcceptorAddress:      acceptorAddress,
		AdminPort:            adminPort,
		TimerInterval:        time.Duration(timerInterval) * time.Second,
		ReconnectInterval:    time.Duration(reconnectInterval) * time.Second,
		MaxReconnectAttempts: maxReconnectAttempts,
	}, nil
}

func lookupInt(name string, defaultValue int) (int, error) {
	str, exists := os.LookupEnv(name)
	if !exists {
		return defaultValue, nil
	}
	return strconv.Atoi(str)
}
