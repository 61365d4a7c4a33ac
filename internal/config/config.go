package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/0Papitchu/GBPBot-sub003/internal/domain/model"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Network  string
	DB       DBConfig
	Redis    RedisConfig
	Solana   SolanaConfig
	EVM      map[model.Chain]RPCConfig
	Executor ExecutorConfig
	Fee      FeeConfig
	Alert    AlertConfig
	Tracing  TracingConfig
	Runtime  RuntimeConfig
	Server   ServerConfig
	Log      LogConfig
}

// DBConfig is optional. An empty URL disables the history archive and the
// runtime config watcher.
type DBConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig is optional. An empty URL disables the status stream.
type RedisConfig struct {
	URL          string
	StatusStream string
	MaxLen       int64
}

type RPCConfig struct {
	URL   string
	RPS   float64
	Burst int
}

type SolanaConfig struct {
	RPCConfig
	SkipPreflight       bool
	PreflightCommitment string
}

type ExecutorConfig struct {
	Timeout                 time.Duration
	MaxRetries              int
	RetryDelay              time.Duration
	PollInterval            time.Duration
	WaitPollInterval        time.Duration
	PollConcurrency         int
	MaxHistorySize          int
	BreakerFailureThreshold int
	BreakerOpenTimeout      time.Duration

	RequiredConfirmations map[model.Chain]int
	ChainTimeouts         map[model.Chain]time.Duration
	FeeMultipliers        map[model.Priority]decimal.Decimal
}

type FeeConfig struct {
	// SourceChain is the EVM chain whose blocks feed the estimator. Empty
	// picks the first configured EVM chain.
	SourceChain           model.Chain
	UpdateInterval        time.Duration
	HistorySize           int
	MaxBaseFee            decimal.Decimal
	MaxPriorityFee        decimal.Decimal
	MinPriorityFee        decimal.Decimal
	BaseFeeMultiplier     decimal.Decimal
	PriorityFeeMultiplier decimal.Decimal
	MaxTotalFee           decimal.Decimal
	RetryBackoff          time.Duration
}

type AlertConfig struct {
	SlackWebhookURL string
	WebhookURL      string
	Cooldown        time.Duration
}

type TracingConfig struct {
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

type RuntimeConfig struct {
	PollInterval time.Duration
}

type ServerConfig struct {
	HealthPort int
	// AdminPort serves the operator API. Zero disables it.
	AdminPort int
}

type LogConfig struct {
	Level string
}

// Load reads an optional .env file, the environment and then the optional
// YAML overlay named by EXECUTOR_CONFIG_FILE.
func Load() (*Config, error) {
	envFile := getEnv("EXECUTOR_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	var errs []error
	dec := func(key, fallback string) decimal.Decimal {
		d, err := getEnvDecimal(key, fallback)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	cfg := &Config{
		Network: getEnv("NETWORK", "mainnet"),
		DB: DBConfig{
			URL:             getEnv("DB_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", ""),
			StatusStream: getEnv("REDIS_STATUS_STREAM", "executor:tx_status"),
			MaxLen:       int64(getEnvInt("REDIS_STATUS_STREAM_MAXLEN", 100000)),
		},
		Solana: SolanaConfig{
			RPCConfig:           rpcConfig("SOLANA"),
			SkipPreflight:       getEnvBool("SOLANA_SKIP_PREFLIGHT", false),
			PreflightCommitment: getEnv("SOLANA_PREFLIGHT_COMMITMENT", "confirmed"),
		},
		EVM: make(map[model.Chain]RPCConfig),
		Executor: ExecutorConfig{
			Timeout:                 getEnvDuration("EXECUTOR_TIMEOUT", 60*time.Second),
			MaxRetries:              getEnvInt("EXECUTOR_MAX_RETRIES", 3),
			RetryDelay:              getEnvDuration("EXECUTOR_RETRY_DELAY", time.Second),
			PollInterval:            getEnvDuration("EXECUTOR_POLL_INTERVAL", 5*time.Second),
			WaitPollInterval:        getEnvDuration("EXECUTOR_WAIT_POLL_INTERVAL", time.Second),
			PollConcurrency:         getEnvInt("EXECUTOR_POLL_CONCURRENCY", 8),
			MaxHistorySize:          getEnvInt("EXECUTOR_MAX_HISTORY_SIZE", 10000),
			BreakerFailureThreshold: getEnvInt("EXECUTOR_BREAKER_FAILURE_THRESHOLD", 5),
			BreakerOpenTimeout:      getEnvDuration("EXECUTOR_BREAKER_OPEN_TIMEOUT", 30*time.Second),
			RequiredConfirmations:   make(map[model.Chain]int),
			ChainTimeouts:           make(map[model.Chain]time.Duration),
			FeeMultipliers:          make(map[model.Priority]decimal.Decimal),
		},
		Fee: FeeConfig{
			SourceChain:           model.Chain(strings.ToLower(getEnv("FEE_SOURCE_CHAIN", ""))),
			UpdateInterval:        getEnvDuration("FEE_UPDATE_INTERVAL", 15*time.Second),
			HistorySize:           getEnvInt("FEE_HISTORY_SIZE", 20),
			MaxBaseFee:            dec("FEE_MAX_BASE_FEE", "500"),
			MaxPriorityFee:        dec("FEE_MAX_PRIORITY_FEE", "10"),
			MinPriorityFee:        dec("FEE_MIN_PRIORITY_FEE", "0.1"),
			BaseFeeMultiplier:     dec("FEE_BASE_MULTIPLIER", "1.125"),
			PriorityFeeMultiplier: dec("FEE_PRIORITY_MULTIPLIER", "1.5"),
			MaxTotalFee:           dec("FEE_MAX_TOTAL_FEE", "600"),
			RetryBackoff:          getEnvDuration("FEE_RETRY_BACKOFF", 5*time.Second),
		},
		Alert: AlertConfig{
			SlackWebhookURL: getEnv("ALERT_SLACK_WEBHOOK_URL", ""),
			WebhookURL:      getEnv("ALERT_WEBHOOK_URL", ""),
			Cooldown:        getEnvDuration("ALERT_COOLDOWN", 5*time.Minute),
		},
		Tracing: TracingConfig{
			Endpoint:    getEnv("TRACING_ENDPOINT", ""),
			Insecure:    getEnvBool("TRACING_INSECURE", true),
			SampleRatio: getEnvFloat("TRACING_SAMPLE_RATIO", 1),
		},
		Runtime: RuntimeConfig{
			PollInterval: getEnvDuration("RUNTIME_CONFIG_POLL_INTERVAL", 30*time.Second),
		},
		Server: ServerConfig{
			HealthPort: getEnvInt("HEALTH_PORT", 8080),
			AdminPort:  getEnvInt("ADMIN_PORT", 0),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	for _, c := range model.EVMChains() {
		if rpc := rpcConfig(strings.ToUpper(c.String())); rpc.URL != "" {
			cfg.EVM[c] = rpc
		}
	}
	for _, p := range model.Priorities() {
		key := "EXECUTOR_FEE_MULTIPLIER_" + strings.ToUpper(p.String())
		if os.Getenv(key) != "" {
			cfg.Executor.FeeMultipliers[p] = dec(key, "1")
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if path := getEnv("EXECUTOR_CONFIG_FILE", ""); path != "" {
		if err := cfg.applyOverlayFile(path); err != nil {
			return nil, err
		}
	}

	if cfg.Fee.SourceChain == "" {
		for _, c := range model.EVMChains() {
			if _, ok := cfg.EVM[c]; ok {
				cfg.Fee.SourceChain = c
				break
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func rpcConfig(prefix string) RPCConfig {
	return RPCConfig{
		URL:   getEnv(prefix+"_RPC_URL", ""),
		RPS:   getEnvFloat(prefix+"_RPC_RPS", 0),
		Burst: getEnvInt(prefix+"_RPC_BURST", 1),
	}
}

// overlay holds the map-shaped options that do not fit in env vars.
type overlay struct {
	RequiredConfirmations map[string]int    `yaml:"required_confirmations"`
	Timeouts              map[string]string `yaml:"timeouts"`
	FeeMultipliers        map[string]string `yaml:"fee_multipliers"`
}

func (c *Config) applyOverlayFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	return c.applyOverlay(raw)
}

func (c *Config) applyOverlay(raw []byte) error {
	var o overlay
	if err := yaml.Unmarshal(raw, &o); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	for name, n := range o.RequiredConfirmations {
		chain, err := model.ParseChain(name)
		if err != nil {
			return fmt.Errorf("required_confirmations: %w", err)
		}
		c.Executor.RequiredConfirmations[chain] = n
	}
	for name, raw := range o.Timeouts {
		chain, err := model.ParseChain(name)
		if err != nil {
			return fmt.Errorf("timeouts: %w", err)
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("timeouts.%s: %w", name, err)
		}
		c.Executor.ChainTimeouts[chain] = d
	}
	for name, raw := range o.FeeMultipliers {
		p, err := model.ParsePriority(name)
		if err != nil {
			return fmt.Errorf("fee_multipliers: %w", err)
		}
		m, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("fee_multipliers.%s: %w", name, err)
		}
		c.Executor.FeeMultipliers[p] = m
	}
	return nil
}

func (c *Config) validate() error {
	if c.Solana.URL == "" && len(c.EVM) == 0 {
		return fmt.Errorf("at least one of SOLANA_RPC_URL or <CHAIN>_RPC_URL is required")
	}
	if c.Fee.SourceChain != "" {
		if _, ok := c.EVM[c.Fee.SourceChain]; !ok {
			return fmt.Errorf("FEE_SOURCE_CHAIN %q has no configured RPC URL", c.Fee.SourceChain)
		}
	}

	positive := []struct {
		name string
		ok   bool
	}{
		{"EXECUTOR_TIMEOUT", c.Executor.Timeout > 0},
		{"EXECUTOR_POLL_INTERVAL", c.Executor.PollInterval > 0},
		{"EXECUTOR_WAIT_POLL_INTERVAL", c.Executor.WaitPollInterval > 0},
		{"EXECUTOR_POLL_CONCURRENCY", c.Executor.PollConcurrency > 0},
		{"EXECUTOR_MAX_HISTORY_SIZE", c.Executor.MaxHistorySize > 0},
		{"EXECUTOR_MAX_RETRIES", c.Executor.MaxRetries >= 0},
		{"FEE_UPDATE_INTERVAL", c.Fee.UpdateInterval > 0},
		{"FEE_HISTORY_SIZE", c.Fee.HistorySize > 0},
		{"FEE_RETRY_BACKOFF", c.Fee.RetryBackoff > 0},
		{"FEE_MAX_TOTAL_FEE", c.Fee.MaxTotalFee.IsPositive()},
	}
	for _, p := range positive {
		if !p.ok {
			return fmt.Errorf("%s must be positive", p.name)
		}
	}

	if c.Fee.MinPriorityFee.GreaterThan(c.Fee.MaxPriorityFee) {
		return fmt.Errorf("FEE_MIN_PRIORITY_FEE (%s) exceeds FEE_MAX_PRIORITY_FEE (%s)", c.Fee.MinPriorityFee, c.Fee.MaxPriorityFee)
	}
	one := decimal.NewFromInt(1)
	if c.Fee.BaseFeeMultiplier.LessThan(one) || c.Fee.PriorityFeeMultiplier.LessThan(one) {
		return fmt.Errorf("fee multipliers must be at least 1.0")
	}
	for p, m := range c.Executor.FeeMultipliers {
		if m.LessThan(one) {
			return fmt.Errorf("fee multiplier for %s must be at least 1.0, got %s", p, m)
		}
	}
	for chain, n := range c.Executor.RequiredConfirmations {
		if n <= 0 {
			return fmt.Errorf("required confirmations for %s must be positive", chain)
		}
	}
	for chain, d := range c.Executor.ChainTimeouts {
		if d <= 0 {
			return fmt.Errorf("timeout for %s must be positive", chain)
		}
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATIO must be within [0, 1]")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("1500ms") or whole seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvDecimal(key, fallback string) (decimal.Decimal, error) {
	v := getEnv(key, fallback)
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid decimal %q", key, v)
	}
	return d, nil
}
