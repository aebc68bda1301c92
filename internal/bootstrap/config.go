package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddr string
	LogLevel   string

	JWTKey         []byte
	JWTTTL         time.Duration
	CookieSecure   bool
	CookieDomain   string
	AllowedSchemes []string
	AllowedOrigins []string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	QdrantHost   string
	QdrantPort   int
	QdrantAPIKey string

	RTCICEServers     string
	MeteredApp        string
	MeteredAPIKey     string
	TURNSharedSecret  string
	TURNURLs          []string
	TURNPrefix        string
	TURNCredentialTTL time.Duration

	SignalRequireAppointment bool
	SignalRingTimeout        time.Duration
	SignalMessagesPerSecond  float64
	SignalMessageBurst       int

	HTTPRequestsPerSecond float64
	HTTPBurst             int

	SendGridAPIKey string
	MailFromName   string
	MailFromEmail  string
	AdminEmail     string
}

// LoadConfig reads the environment, after loading .env when present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		JWTKey:         []byte(getEnv("JWT_SECRET", "change-me-in-production")),
		JWTTTL:         getEnvDuration("JWT_TTL", 7*24*time.Hour),
		CookieSecure:   getEnvBool("COOKIE_SECURE", false),
		CookieDomain:   getEnv("COOKIE_DOMAIN", ""),
		AllowedSchemes: getEnvList("OAUTH_REDIRECT_SCHEMES"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),

		DatabaseDSN: getEnv("DATABASE_DSN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		QdrantHost:   getEnv("QDRANT_HOST", ""),
		QdrantPort:   getEnvInt("QDRANT_PORT", 6334),
		QdrantAPIKey: getEnv("QDRANT_API_KEY", ""),

		RTCICEServers:     getEnv("RTC_ICE_SERVERS", ""),
		MeteredApp:        getEnv("METERED_APP", ""),
		MeteredAPIKey:     getEnv("METERED_API_KEY", ""),
		TURNSharedSecret:  getEnv("TURN_SHARED_SECRET", ""),
		TURNURLs:          getEnvList("TURN_URLS"),
		TURNPrefix:        getEnv("TURN_USERNAME_PREFIX", "consult"),
		TURNCredentialTTL: getEnvDuration("TURN_CREDENTIAL_TTL", 24*time.Hour),

		SignalRequireAppointment: getEnvBool("SIGNAL_REQUIRE_APPOINTMENT", false),
		SignalRingTimeout:        getEnvDuration("SIGNAL_RING_TIMEOUT", 45*time.Second),
		SignalMessagesPerSecond:  getEnvFloat("SIGNAL_MESSAGES_PER_SECOND", 20),
		SignalMessageBurst:       getEnvInt("SIGNAL_MESSAGE_BURST", 40),

		HTTPRequestsPerSecond: getEnvFloat("HTTP_REQUESTS_PER_SECOND", 10),
		HTTPBurst:             getEnvInt("HTTP_BURST", 20),

		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		MailFromName:   getEnv("MAIL_FROM_NAME", "Consult"),
		MailFromEmail:  getEnv("MAIL_FROM_EMAIL", "no-reply@consult.local"),
		AdminEmail:     getEnv("ADMIN_EMAIL", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
