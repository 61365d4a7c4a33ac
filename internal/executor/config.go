package executor

import (
	"time"

	"github.com/0Papitchu/GBPBot-sub003/internal/domain/model"
	"github.com/shopspring/decimal"
)

const (
	DefaultTimeout               = 60 * time.Second
	DefaultPollInterval          = 5 * time.Second
	DefaultWaitPollInterval      = 1 * time.Second
	DefaultRequiredConfirmations = 1
	DefaultPollConcurrency       = 8
)

// Config tunes submission, waiting and confirmation polling.
type Config struct {
	Network string

	// Timeout bounds both the caller's confirmation wait and, unless
	// ChainTimeouts overrides it, how long the poller keeps an entry pending.
	Timeout               time.Duration
	ChainTimeouts         map[model.Chain]time.Duration
	RequiredConfirmations map[model.Chain]int
	FeeMultipliers        map[model.Priority]decimal.Decimal

	MaxRetries int
	RetryDelay time.Duration

	PollInterval     time.Duration
	WaitPollInterval time.Duration
	PollConcurrency  int

	BreakerFailureThreshold int
	BreakerOpenTimeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:          DefaultTimeout,
		MaxRetries:       3,
		RetryDelay:       time.Second,
		PollInterval:     DefaultPollInterval,
		WaitPollInterval: DefaultWaitPollInterval,
		PollConcurrency:  DefaultPollConcurrency,
	}
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.WaitPollInterval <= 0 {
		c.WaitPollInterval = DefaultWaitPollInterval
	}
	if c.PollConcurrency <= 0 {
		c.PollConcurrency = DefaultPollConcurrency
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

func (c Config) timeoutFor(chain model.Chain) time.Duration {
	if d, ok := c.ChainTimeouts[chain]; ok && d > 0 {
		return d
	}
	return c.Timeout
}

func (c Config) requiredConfirmations(chain model.Chain) int {
	if n, ok := c.RequiredConfirmations[chain]; ok && n > 0 {
		return n
	}
	return DefaultRequiredConfirmations
}

func (c Config) feeMultiplier(p model.Priority) decimal.Decimal {
	if m, ok := c.FeeMultipliers[p]; ok {
		return m
	}
	return decimal.NewFromInt(1)
}
