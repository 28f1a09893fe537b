// Process configuration, loaded from the environment (and .env, if present):
// plain os.Getenv calls gathered into one struct rather than a config-file
// parser.

package main

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	BindAddress string
	RTMPPort    int
	HTTPAddress string

	MaxIPConcurrentConnections uint32
	ConcurrentLimitWhitelist   string

	CallbackURL      string
	JWTSecret        string
	CustomJWTSubject string

	RedisUse      bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisChannel  string
	RedisTLS      bool

	ControlBaseURL string
	ControlSecret  string
	ExternalIP     string
	ExternalPort   string
	ExternalSSL    bool

	ChatUpstreamURL string
	ChatAPIKey      string
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		BindAddress:                os.Getenv("BIND_ADDRESS"),
		RTMPPort:                   envInt("RTMP_PORT", 1935),
		HTTPAddress:                envString("HTTP_ADDRESS", "127.0.0.1:3000"),
		MaxIPConcurrentConnections: uint32(envInt("MAX_IP_CONCURRENT_CONNECTIONS", 4)),
		ConcurrentLimitWhitelist:   os.Getenv("CONCURRENT_LIMIT_WHITELIST"),
		CallbackURL:                os.Getenv("CALLBACK_URL"),
		JWTSecret:                  os.Getenv("JWT_SECRET"),
		CustomJWTSubject:           envString("CUSTOM_JWT_SUBJECT", "rtmp_event"),
		RedisUse:                   os.Getenv("REDIS_USE") == "YES",
		RedisHost:                  envString("REDIS_HOST", "127.0.0.1"),
		RedisPort:                  envString("REDIS_PORT", "6379"),
		RedisPassword:              os.Getenv("REDIS_PASSWORD"),
		RedisChannel:               envString("REDIS_CHANNEL", "rtmp_commands"),
		RedisTLS:                   os.Getenv("REDIS_TLS") == "YES",
		ControlBaseURL:             os.Getenv("CONTROL_BASE_URL"),
		ControlSecret:              os.Getenv("CONTROL_SECRET"),
		ExternalIP:                 os.Getenv("EXTERNAL_IP"),
		ExternalPort:               os.Getenv("EXTERNAL_PORT"),
		ExternalSSL:                os.Getenv("EXTERNAL_SSL") == "YES",
		ChatUpstreamURL:            os.Getenv("CHAT_UPSTREAM_URL"),
		ChatAPIKey:                 os.Getenv("GEMINI_API_KEY"),
	}

	return cfg
}

func envString(name string, def string) string {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	return v
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
