package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	yaml "gopkg.in/yaml.v3"

	"github.com/park285/cheese-arena/internal/money"
	"github.com/park285/cheese-arena/internal/obslog"
)

// Mode is one time control with its entry fee.
type Mode struct {
	Name        string
	InitialTime time.Duration
	EntryFee    money.Amount
}

type AppConfig struct {
	ListenAddr string
	UserHeader string
	// Origins accepted by the websocket handshake; empty means same-origin only.
	AllowedOrigins []string

	RedisURL       string
	DatabaseURL    string
	MigrateOnStart bool

	IdentityBaseURL string
	IdentityTimeout time.Duration

	// Finished and live snapshots are published under NatsSubjectPrefix when NatsURL is set.
	NatsURL           string
	NatsSubjectPrefix string

	PlatformFeeRate    decimal.Decimal
	MatchmakingTimeout time.Duration
	ReconnectGrace     time.Duration
	ClockTick          time.Duration
	Modes              []Mode

	MessagesDir    string
	MessagesLocale string
	Log            obslog.Options
}

// DefaultModes is the mode table used when ARENA_MODES_FILE is not set.
func DefaultModes() []Mode {
	return []Mode{
		{Name: "bullet-1", InitialTime: 60 * time.Second, EntryFee: money.MustParse("10")},
		{Name: "blitz-3", InitialTime: 180 * time.Second, EntryFee: money.MustParse("5")},
		{Name: "blitz-5", InitialTime: 300 * time.Second, EntryFee: money.MustParse("3")},
	}
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:         ":3001",
		UserHeader:         "X-User-Id",
		IdentityTimeout:    3 * time.Second,
		PlatformFeeRate:    decimal.RequireFromString("0.1"),
		MatchmakingTimeout: 15 * time.Second,
		ReconnectGrace:     30 * time.Second,
		ClockTick:          time.Second,
		Modes:              DefaultModes(),
		Log: obslog.Options{
			Level:   "info",
			Format:  "legacy",
			Console: true,
		},
	}

	if v := env("ARENA_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := env("ARENA_USER_HEADER"); v != "" {
		cfg.UserHeader = v
	}
	cfg.AllowedOrigins = splitList(env("ARENA_ALLOWED_ORIGINS"))

	cfg.RedisURL = env("REDIS_URL")
	cfg.DatabaseURL = env("DATABASE_URL")
	if v := env("DATABASE_MIGRATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("DATABASE_MIGRATE: %w", err)
		}
		cfg.MigrateOnStart = b
	}

	cfg.IdentityBaseURL = env("IDENTITY_BASE_URL")
	cfg.NatsURL = env("NATS_URL")
	cfg.NatsSubjectPrefix = env("NATS_SUBJECT_PREFIX")
	if err := durationVar("IDENTITY_TIMEOUT", &cfg.IdentityTimeout); err != nil {
		return nil, err
	}

	if v := env("PLATFORM_FEE_RATE"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("PLATFORM_FEE_RATE: %w", err)
		}
		cfg.PlatformFeeRate = d
	}
	if err := durationVar("MATCHMAKING_TIMEOUT", &cfg.MatchmakingTimeout); err != nil {
		return nil, err
	}
	if err := durationVar("RECONNECT_GRACE", &cfg.ReconnectGrace); err != nil {
		return nil, err
	}
	if err := durationVar("CLOCK_TICK", &cfg.ClockTick); err != nil {
		return nil, err
	}
	if path := env("ARENA_MODES_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read modes file: %w", err)
		}
		modes, err := ParseModes(raw)
		if err != nil {
			return nil, fmt.Errorf("parse modes file: %w", err)
		}
		cfg.Modes = modes
	}

	cfg.MessagesDir = env("MESSAGES_DIR")
	cfg.MessagesLocale = env("MESSAGES_LOCALE")

	if v := env("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := env("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := env("LOG_TO_CONSOLE"); v != "" {
		cfg.Log.Console = strings.EqualFold(v, "true")
	}
	if strings.EqualFold(env("LOG_TO_FILE"), "true") {
		cfg.Log.File = "logs/arena.log"
		if v := env("LOG_FILE"); v != "" {
			cfg.Log.File = v
		}
	}
	cfg.Log.Caller = strings.EqualFold(env("LOG_CALLER"), "true")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *AppConfig) Validate() error {
	if c.PlatformFeeRate.IsNegative() || c.PlatformFeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return errors.New("PLATFORM_FEE_RATE must be within [0, 1)")
	}
	if c.MatchmakingTimeout <= 0 || c.ReconnectGrace <= 0 || c.ClockTick <= 0 {
		return errors.New("MATCHMAKING_TIMEOUT, RECONNECT_GRACE and CLOCK_TICK must be positive")
	}
	if len(c.Modes) == 0 {
		return errors.New("at least one mode is required")
	}
	seen := make(map[string]bool, len(c.Modes))
	for _, m := range c.Modes {
		if m.Name == "" {
			return errors.New("mode name is required")
		}
		if seen[m.Name] {
			return fmt.Errorf("duplicate mode %q", m.Name)
		}
		seen[m.Name] = true
		if m.InitialTime <= 0 || m.EntryFee <= 0 {
			return fmt.Errorf("mode %q needs a positive time and entry fee", m.Name)
		}
	}
	return nil
}

type modesFile struct {
	Modes []struct {
		Name     string `yaml:"name"`
		Time     string `yaml:"time"`
		EntryFee string `yaml:"entry_fee"`
	} `yaml:"modes"`
}

// ParseModes reads a YAML mode table:
//
//	modes:
//	  - name: blitz-3
//	    time: 3m
//	    entry_fee: "5.00"
func ParseModes(raw []byte) ([]Mode, error) {
	var f modesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	out := make([]Mode, 0, len(f.Modes))
	for _, m := range f.Modes {
		d, err := time.ParseDuration(strings.TrimSpace(m.Time))
		if err != nil {
			return nil, fmt.Errorf("mode %q time: %w", m.Name, err)
		}
		fee, err := money.Parse(m.EntryFee)
		if err != nil {
			return nil, fmt.Errorf("mode %q entry_fee: %w", m.Name, err)
		}
		out = append(out, Mode{Name: strings.TrimSpace(m.Name), InitialTime: d, EntryFee: fee})
	}
	return out, nil
}

func env(k string) string { return strings.TrimSpace(os.Getenv(k)) }

func durationVar(k string, dst *time.Duration) error {
	v := env(k)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// bare integers are seconds
		n, nerr := strconv.Atoi(v)
		if nerr != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		d = time.Duration(n) * time.Second
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
