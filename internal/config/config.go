// Package config loads the service configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/jcmexdev/multihop-creator/internal/core/entity"
	"github.com/jcmexdev/multihop-creator/internal/core/faults"
)

const (
	DecomposerLLM    = "llm"
	DecomposerStatic = "static"
)

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type LedgerConfig struct {
	RPCURL            string
	ChainID           int64
	PrivateKey        string
	JobsModuleAddress string
	ConfirmTimeout    time.Duration
	PollInterval      time.Duration
	BlockLookback     uint64
	OutputBaseURL     string
}

type Config struct {
	Port       int
	LogLevel   string
	Decomposer string
	OpenAI     OpenAIConfig
	Ledger     LedgerConfig

	Providers      []string
	StepBudget     *big.Int
	AcceptWindow   time.Duration
	CompleteWindow time.Duration

	GraceDelay        time.Duration
	OutputReadTimeout time.Duration

	RedisAddr      string
	IdempotencyTTL time.Duration
	TrackLogPath   string

	OTelEndpoint   string
	ServiceName    string
	MetricsEnabled bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 3000)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DECOMPOSER", DecomposerLLM)
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("RPC_URL", "http://127.0.0.1:8547")
	v.SetDefault("CHAIN_ID", 412346)
	v.SetDefault("JOBS_MODULE_ADDRESS", "0x0000000000000000000000000000000000000555")
	v.SetDefault("STEP_BUDGET_WEI", "100000000000000000")
	v.SetDefault("ACCEPT_WINDOW", time.Hour)
	v.SetDefault("COMPLETE_WINDOW", 24*time.Hour)
	v.SetDefault("CONFIRM_TIMEOUT", 60*time.Second)
	v.SetDefault("POLL_INTERVAL", 2*time.Second)
	v.SetDefault("BLOCK_LOOKBACK", 64)
	v.SetDefault("GRACE_DELAY", 5*time.Second)
	v.SetDefault("OUTPUT_READ_TIMEOUT", 10*time.Second)
	v.SetDefault("OUTPUT_BASE_URL", "https://drive.google.com/file")
	v.SetDefault("IDEMPOTENCY_TTL", 24*time.Hour)
	v.SetDefault("OTEL_SERVICE_NAME", "creator-agent")
	v.SetDefault("METRICS_ENABLED", true)
}

// Load reads envFile when it exists, then the process environment, which
// wins. envFile may be empty.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, faults.Configf("read %s: %v", envFile, err)
			}
		}
	}
	v.AutomaticEnv()

	budget, ok := new(big.Int).SetString(strings.TrimSpace(v.GetString("STEP_BUDGET_WEI")), 10)
	if !ok {
		return nil, faults.Configf("STEP_BUDGET_WEI %q is not an integer", v.GetString("STEP_BUDGET_WEI"))
	}

	cfg := &Config{
		Port:       v.GetInt("PORT"),
		LogLevel:   v.GetString("LOG_LEVEL"),
		Decomposer: strings.ToLower(v.GetString("DECOMPOSER")),
		OpenAI: OpenAIConfig{
			APIKey:  v.GetString("OPENAI_API_KEY"),
			Model:   v.GetString("OPENAI_MODEL"),
			BaseURL: v.GetString("OPENAI_BASE_URL"),
		},
		Ledger: LedgerConfig{
			RPCURL:            v.GetString("RPC_URL"),
			ChainID:           v.GetInt64("CHAIN_ID"),
			PrivateKey:        v.GetString("PRIVATE_KEY"),
			JobsModuleAddress: v.GetString("JOBS_MODULE_ADDRESS"),
			ConfirmTimeout:    v.GetDuration("CONFIRM_TIMEOUT"),
			PollInterval:      v.GetDuration("POLL_INTERVAL"),
			BlockLookback:     v.GetUint64("BLOCK_LOOKBACK"),
			OutputBaseURL:     v.GetString("OUTPUT_BASE_URL"),
		},
		Providers:         providers(v),
		StepBudget:        budget,
		AcceptWindow:      v.GetDuration("ACCEPT_WINDOW"),
		CompleteWindow:    v.GetDuration("COMPLETE_WINDOW"),
		GraceDelay:        v.GetDuration("GRACE_DELAY"),
		OutputReadTimeout: v.GetDuration("OUTPUT_READ_TIMEOUT"),
		RedisAddr:         v.GetString("REDIS_ADDR"),
		IdempotencyTTL:    v.GetDuration("IDEMPOTENCY_TTL"),
		TrackLogPath:      v.GetString("TRACKLOG_PATH"),
		OTelEndpoint:      v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:       v.GetString("OTEL_SERVICE_NAME"),
		MetricsEnabled:    v.GetBool("METRICS_ENABLED"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// providers prefers the PROVIDERS list over PROVIDER_1..PROVIDER_3.
func providers(v *viper.Viper) []string {
	var out []string
	if list := v.GetString("PROVIDERS"); list != "" {
		for _, p := range strings.Split(list, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	for i := 1; i <= entity.StepCount; i++ {
		if p := strings.TrimSpace(v.GetString(fmt.Sprintf("PROVIDER_%d", i))); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, faults.Configf(format, args...))
	}

	if c.Port <= 0 || c.Port > 65535 {
		add("PORT %d out of range", c.Port)
	}
	switch c.Decomposer {
	case DecomposerLLM:
		if c.OpenAI.APIKey == "" {
			add("OPENAI_API_KEY not set")
		}
	case DecomposerStatic:
	default:
		add("DECOMPOSER must be %q or %q, got %q", DecomposerLLM, DecomposerStatic, c.Decomposer)
	}
	if c.Ledger.PrivateKey == "" {
		add("PRIVATE_KEY not set")
	}
	if !common.IsHexAddress(c.Ledger.JobsModuleAddress) {
		add("JOBS_MODULE_ADDRESS %q is not an address", c.Ledger.JobsModuleAddress)
	}
	if len(c.Providers) < entity.StepCount {
		add("need at least %d providers, got %d", entity.StepCount, len(c.Providers))
	}
	for _, p := range c.Providers {
		if !common.IsHexAddress(p) {
			add("provider %q is not an address", p)
		}
	}
	if c.StepBudget == nil || c.StepBudget.Sign() <= 0 {
		add("STEP_BUDGET_WEI must be positive")
	}
	durations := map[string]time.Duration{
		"ACCEPT_WINDOW":       c.AcceptWindow,
		"COMPLETE_WINDOW":     c.CompleteWindow,
		"CONFIRM_TIMEOUT":     c.Ledger.ConfirmTimeout,
		"POLL_INTERVAL":       c.Ledger.PollInterval,
		"GRACE_DELAY":         c.GraceDelay,
		"OUTPUT_READ_TIMEOUT": c.OutputReadTimeout,
	}
	for key, d := range durations {
		if d <= 0 {
			add("%s must be positive", key)
		}
	}
	if c.RedisAddr != "" && c.IdempotencyTTL <= 0 {
		add("IDEMPOTENCY_TTL must be positive")
	}

	return errors.Join(errs...)
}

// Mask hides all but the first characters of a secret for startup logs.
func Mask(secret string) string {
	const keep = 6
	if len(secret) <= keep {
		return strings.Repeat("*", len(secret))
	}
	return secret[:keep] + "..."
}
