package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env         string // application environment (e.g. "dev", "prod")
	Port        string // HTTP port to listen on
	StoreDriver string // "mysql" or "memory"
	DBUser      string
	DBPass      string // optional
	DBHost      string
	DBPort      string
	DBName      string
	JWTSecret   string // secret used to sign staff tokens
	TokenTTLMin int    // lifetime of minted staff tokens in minutes
	LogLevel    string
	LogFormat   string // "json" or "console"
	Timezone    string // IANA name used for pricing windows

	Checkin CheckinConfig
}

// CheckinConfig carries the business tunables of the lane workflow.
type CheckinConfig struct {
	RentalBlockHours int             // length of one occupancy block
	MaxStayHours     int             // cumulative cap across renewals
	CheckoutClaimTTL time.Duration   // how long a staff claim on a checkout request holds
	RoomTurnover     time.Duration   // cleaning time added to waitlist ETAs
	TaxRate          decimal.Decimal // applied to quote subtotals
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Database variables are
// only required for the mysql driver.
func Load() Config {
	cfg := Config{
		Env:         must("APP_ENV"),
		Port:        must("APP_PORT"),
		StoreDriver: envStr("STORE_DRIVER", DriverMySQL),
		JWTSecret:   must("JWT_SECRET"),
		TokenTTLMin: envInt("ACCESS_TOKEN_TTL_MIN", 720),
		LogLevel:    envStr("LOG_LEVEL", "info"),
		LogFormat:   envStr("LOG_FORMAT", "json"),
		Timezone:    envStr("APP_TIMEZONE", "UTC"),
		Checkin:     LoadCheckinConfig(),
	}
	switch cfg.StoreDriver {
	case DriverMySQL:
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = strconv.Itoa(mustInt("DB_PORT"))
		cfg.DBName = must("DB_NAME")
	case DriverMemory:
	default:
		log.Fatalf("invalid STORE_DRIVER: %q", cfg.StoreDriver)
	}
	return cfg
}

// LoadCheckinConfig reads the workflow tunables, falling back to defaults.
func LoadCheckinConfig() CheckinConfig {
	rate, err := decimal.NewFromString(envStr("TAX_RATE", "0.0825"))
	if err != nil {
		log.Fatalf("invalid TAX_RATE: %v", err)
	}
	c := CheckinConfig{
		RentalBlockHours: envInt("RENTAL_BLOCK_HOURS", 6),
		MaxStayHours:     envInt("MAX_STAY_HOURS", 24),
		CheckoutClaimTTL: envDur("CHECKOUT_CLAIM_TTL", 2*time.Minute),
		RoomTurnover:     envDur("ROOM_TURNOVER", 15*time.Minute),
		TaxRate:          rate,
	}
	if c.RentalBlockHours < 1 {
		c.RentalBlockHours = 6
	}
	if c.MaxStayHours < c.RentalBlockHours {
		c.MaxStayHours = c.RentalBlockHours
	}
	return c
}

// Location resolves Timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
