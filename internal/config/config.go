package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config captures all runtime configuration for the adaptor.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
	ILP      ILPConfig
	Peers    PeerConfig
	Quotes   QuoteConfig
	Timeouts TimeoutConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
	// FspID identifies the adaptor on the hub (fspiop-source header).
	FspID string
}

// DatabaseConfig holds the postgres connection settings.
type DatabaseConfig struct {
	URL string
}

// KafkaConfig defines the broker list and the lifecycle event topic.
type KafkaConfig struct {
	Brokers     []string
	EventsTopic string
}

// ILPConfig carries the shared secret used to derive fulfilments.
type ILPConfig struct {
	Secret string
}

// PeerConfig points at the external services the adaptor talks to.
type PeerConfig struct {
	AccountLookupURL string
	HubURL           string
	LpsCallbackURL   string
}

// QuoteConfig tunes quote issuing.
type QuoteConfig struct {
	ExpirySeconds int
	// AdaptorFee is the flat fee the adaptor adds to every quote, in the
	// transaction currency.
	AdaptorFee string
}

// TimeoutConfig contains timeout thresholds for the HTTP server and the
// outbound clients.
type TimeoutConfig struct {
	ReadTimeoutSeconds     int
	WriteTimeoutSeconds    int
	ShutdownTimeoutSeconds int
	ClientTimeoutSeconds   int
}

// Load reads environment variables, applies defaults, validates required
// values and returns a populated Config instance.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.Port = ldr.getInt("APP_PORT", 3000, false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)
	cfg.App.FspID = ldr.getString("ADAPTOR_FSP_ID", "", true)

	cfg.Database.URL = ldr.getString("DATABASE_URL", "", true)

	cfg.Kafka.Brokers = ldr.getStringSlice("KAFKA_BROKERS", false)
	cfg.Kafka.EventsTopic = ldr.getString("KAFKA_EVENTS_TOPIC", "adaptor.events", false)

	cfg.ILP.Secret = ldr.getString("ILP_SECRET", "", true)

	cfg.Peers.AccountLookupURL = ldr.getString("ACCOUNT_LOOKUP_URL", "", true)
	cfg.Peers.HubURL = ldr.getString("HUB_URL", "", true)
	cfg.Peers.LpsCallbackURL = ldr.getString("LPS_CALLBACK_URL", "", true)

	cfg.Quotes.ExpirySeconds = ldr.getInt("QUOTE_EXPIRY_SECONDS", 10, false)
	cfg.Quotes.AdaptorFee = ldr.getString("ADAPTOR_FEE", "0", false)

	cfg.Timeouts.ReadTimeoutSeconds = ldr.getInt("HTTP_READ_TIMEOUT_SECONDS", 15, false)
	cfg.Timeouts.WriteTimeoutSeconds = ldr.getInt("HTTP_WRITE_TIMEOUT_SECONDS", 15, false)
	cfg.Timeouts.ShutdownTimeoutSeconds = ldr.getInt("HTTP_SHUTDOWN_TIMEOUT_SECONDS", 10, false)
	cfg.Timeouts.ClientTimeoutSeconds = ldr.getInt("HTTP_CLIENT_TIMEOUT_SECONDS", 30, false)

	if cfg.Quotes.ExpirySeconds <= 0 {
		ldr.addError("QUOTE_EXPIRY_SECONDS must be positive")
	}

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		return val
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		i, err := strconv.Atoi(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid integer", key))
			return def
		}
		return i
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getStringSlice(key string, required bool) []string {
	raw := l.getString(key, "", required)
	if raw == "" {
		if required {
			return nil
		}
		return []string{}
	}
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if required && len(out) == 0 {
		l.addError(fmt.Sprintf("%s must contain at least one entry", key))
	}
	return out
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
