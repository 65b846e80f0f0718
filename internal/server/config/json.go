package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophauth/internal/flagx"
	"github.com/dmitrijs2005/gophauth/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "10m" and integer nanoseconds are accepted. Fields
// left out of the file keep their previous values.
type JsonConfig struct {
	EndpointAddrHTTP            string         `json:"endpoint_addr_http"`
	BaseURL                     string         `json:"base_url"`
	AllowedOrigin               string         `json:"allowed_origin"`
	Store                       string         `json:"store"`
	DatabaseDSN                 string         `json:"database_dsn"`
	MongoURI                    string         `json:"mongo_uri"`
	MongoDatabase               string         `json:"mongo_database"`
	MongoCollection             string         `json:"mongo_collection"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	ResetTokenValidityDuration  timex.Duration `json:"reset_token_validity_duration"`
	CookieSecure                *bool          `json:"cookie_secure"`
	RevealUnknownEmail          *bool          `json:"reveal_unknown_email"`
	MailTransport               string         `json:"mail_transport"`
	SMTPHost                    string         `json:"smtp_host"`
	SMTPPort                    int            `json:"smtp_port"`
	SMTPUsername                string         `json:"smtp_username"`
	SMTPPassword                string         `json:"smtp_password"`
	SMTPSender                  string         `json:"smtp_sender"`
	KafkaBrokers                []string       `json:"kafka_brokers"`
	KafkaTopic                  string         `json:"kafka_topic"`
	MailWorkers                 int            `json:"mail_workers"`
	MailQueueSize               int            `json:"mail_queue_size"`
	MailMaxRetries              *int           `json:"mail_max_retries"`
	LogBackend                  string         `json:"log_backend"`
	LogFormat                   string         `json:"log_format"`
	LogLevel                    string         `json:"log_level"`
}

// parseJson loads the file named by -c/-config, if any, and overlays its
// non-empty values onto config. Unreadable or malformed files panic: a broken
// config file must stop startup.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.BaseURL, c.BaseURL)
	setString(&config.AllowedOrigin, c.AllowedOrigin)
	setString(&config.Store, c.Store)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.MongoURI, c.MongoURI)
	setString(&config.MongoDatabase, c.MongoDatabase)
	setString(&config.MongoCollection, c.MongoCollection)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.MailTransport, c.MailTransport)
	setString(&config.SMTPHost, c.SMTPHost)
	setString(&config.SMTPUsername, c.SMTPUsername)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.SMTPSender, c.SMTPSender)
	setString(&config.KafkaTopic, c.KafkaTopic)
	setString(&config.LogBackend, c.LogBackend)
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.LogLevel, c.LogLevel)

	if c.AccessTokenValidityDuration.Duration > 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.ResetTokenValidityDuration.Duration > 0 {
		config.ResetTokenValidityDuration = c.ResetTokenValidityDuration.Duration
	}
	if c.CookieSecure != nil {
		config.CookieSecure = *c.CookieSecure
	}
	if c.RevealUnknownEmail != nil {
		config.RevealUnknownEmail = *c.RevealUnknownEmail
	}
	if c.SMTPPort > 0 {
		config.SMTPPort = c.SMTPPort
	}
	if len(c.KafkaBrokers) > 0 {
		config.KafkaBrokers = c.KafkaBrokers
	}
	if c.MailWorkers > 0 {
		config.MailWorkers = c.MailWorkers
	}
	if c.MailQueueSize > 0 {
		config.MailQueueSize = c.MailQueueSize
	}
	if c.MailMaxRetries != nil {
		config.MailMaxRetries = *c.MailMaxRetries
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
