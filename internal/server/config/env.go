package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/flagx"
	"github.com/joho/godotenv"
)

// parseEnv overlays environment variables onto config. A dotenv file is read
// first: the one named by -env, else ./.env when present. godotenv never
// overrides variables that are already set in the process environment.
//
// Variable names follow the deployment conventions of the service:
//
//	PORT, BASE_URL, CORS_ORIGIN, JWT_SECRET, STORE, DATABASE_DSN,
//	MONGO_URI, MONGO_DATABASE, MONGO_COLLECTION, MAIL_TRANSPORT,
//	MAILTRAP_HOST, MAILTRAP_PORT, MAILTRAP_USERNAME, MAILTRAP_PASSWORD,
//	MAILTRAP_SENDEREMAIL, KAFKA_BROKERS, KAFKA_TOPIC,
//	REVEAL_UNKNOWN_EMAIL, COOKIE_SECURE, SESSION_TTL, RESET_TOKEN_TTL,
//	LOG_BACKEND, LOG_FORMAT, LOG_LEVEL
//
// PORT may be given as "3001" or ":3001". Malformed numbers, booleans and
// durations panic, like a malformed JSON file.
func parseEnv(config *Config) {
	loadDotEnv(flagx.EnvFileFlags())

	if v, ok := os.LookupEnv("PORT"); ok && v != "" {
		if !strings.Contains(v, ":") {
			v = ":" + v
		}
		config.EndpointAddrHTTP = v
	}

	envString(&config.BaseURL, "BASE_URL")
	envString(&config.AllowedOrigin, "CORS_ORIGIN")
	envString(&config.SecretKey, "JWT_SECRET")
	envString(&config.Store, "STORE")
	envString(&config.DatabaseDSN, "DATABASE_DSN")
	envString(&config.MongoURI, "MONGO_URI")
	envString(&config.MongoDatabase, "MONGO_DATABASE")
	envString(&config.MongoCollection, "MONGO_COLLECTION")
	envString(&config.MailTransport, "MAIL_TRANSPORT")
	envString(&config.SMTPHost, "MAILTRAP_HOST")
	envInt(&config.SMTPPort, "MAILTRAP_PORT")
	envString(&config.SMTPUsername, "MAILTRAP_USERNAME")
	envString(&config.SMTPPassword, "MAILTRAP_PASSWORD")
	envString(&config.SMTPSender, "MAILTRAP_SENDEREMAIL")
	envString(&config.KafkaTopic, "KAFKA_TOPIC")
	envBool(&config.RevealUnknownEmail, "REVEAL_UNKNOWN_EMAIL")
	envBool(&config.CookieSecure, "COOKIE_SECURE")
	envDuration(&config.AccessTokenValidityDuration, "SESSION_TTL")
	envDuration(&config.ResetTokenValidityDuration, "RESET_TOKEN_TTL")
	envString(&config.LogBackend, "LOG_BACKEND")
	envString(&config.LogFormat, "LOG_FORMAT")
	envString(&config.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		config.KafkaBrokers = splitList(v)
	}
}

func loadDotEnv(path string) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			panic(err)
		}
		return
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			panic(err)
		}
	}
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		panic(err)
	}
	*dst = n
}

func envBool(dst *bool, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		panic(err)
	}
	*dst = b
}

func envDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(err)
	}
	*dst = d
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
