package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"fusionswap/internal/retry"
	"fusionswap/internal/timelock"
)

// ChainConfig describes one leg's chain endpoint. Private keys come from
// the environment only; they never live in the config file.
type ChainConfig struct {
	ChainID        uint64 `json:"chainId"`
	RPCURL         string `json:"rpcUrl"`
	FactoryAddress string `json:"factoryAddress"`
	PrivateKey     string `json:"-"`
}

// ChainsConfig is the on-disk chains.json: both legs plus the shared
// timelock and retry settings.
type ChainsConfig struct {
	Source      ChainConfig `json:"source"`
	Destination ChainConfig `json:"destination"`

	Timelocks struct {
		SrcWithdrawalSecs         uint64 `json:"srcWithdrawalSeconds"`
		SrcPublicWithdrawalSecs   uint64 `json:"srcPublicWithdrawalSeconds"`
		SrcCancellationSecs       uint64 `json:"srcCancellationSeconds"`
		SrcPublicCancellationSecs uint64 `json:"srcPublicCancellationSeconds"`
		DstWithdrawalSecs         uint64 `json:"dstWithdrawalSeconds"`
		DstPublicWithdrawalSecs   uint64 `json:"dstPublicWithdrawalSeconds"`
		DstCancellationSecs       uint64 `json:"dstCancellationSeconds"`
	} `json:"timelocks"`

	Retry struct {
		MaxAttempts       int     `json:"maxAttempts"`
		InitialBackoffMs  int     `json:"initialBackoffMs"`
		MaxBackoffMs      int     `json:"maxBackoffMs"`
		BackoffMultiplier float64 `json:"backoffMultiplier"`
	} `json:"retry"`
}

type ServiceConfig struct {
	HTTPPort         int
	OperatorSecret   string
	HMACClockSkew    time.Duration
	DatabaseDSN      string
	FinalityDelay    time.Duration
	SafetyDepositWei string
	RejectFloorFills bool
	LogLevel         string
}

// AppConfig ties together chains.json and environment-derived values.
type AppConfig struct {
	Chains  ChainsConfig
	Service ServiceConfig
}

const defaultChainsPath = "chains.json"

// Load aggregates configuration from disk and environment.
func Load() (*AppConfig, error) {
	chainsPath := envOr("CHAINS_PATH", defaultChainsPath)

	chains, err := loadChains(chainsPath)
	if err != nil {
		return nil, fmt.Errorf("load chains: %w", err)
	}

	chains.Source.RPCURL = envOr("SRC_RPC_URL", chains.Source.RPCURL)
	chains.Destination.RPCURL = envOr("DST_RPC_URL", chains.Destination.RPCURL)
	chains.Source.PrivateKey = envOr("SRC_PRIVATE_KEY", "")
	chains.Destination.PrivateKey = envOr("DST_PRIVATE_KEY", "")

	serviceCfg := ServiceConfig{
		HTTPPort:         envOrInt("API_HTTP_PORT", 3000),
		OperatorSecret:   envOr("OPERATOR_API_SECRET", ""),
		HMACClockSkew:    time.Duration(envOrInt("HMAC_CLOCK_SKEW_SECONDS", 60)) * time.Second,
		DatabaseDSN:      envOr("DATABASE_DSN", ""),
		FinalityDelay:    time.Duration(envOrInt("FINALITY_DELAY_SECONDS", 12)) * time.Second,
		SafetyDepositWei: envOr("SAFETY_DEPOSIT_WEI", "0"),
		RejectFloorFills: envOr("REJECT_FLOOR_FILLS", "") == "true",
		LogLevel:         envOr("LOG_LEVEL", "info"),
	}

	return &AppConfig{
		Chains:  *chains,
		Service: serviceCfg,
	}, nil
}

// Timelocks converts the configured offsets into the coordinator's form.
// DeployedAt stays zero; each leg anchors it at deployment.
func (c *ChainsConfig) ToTimelocks() timelock.Timelocks {
	return timelock.Timelocks{
		SrcWithdrawal:         c.Timelocks.SrcWithdrawalSecs,
		SrcPublicWithdrawal:   c.Timelocks.SrcPublicWithdrawalSecs,
		SrcCancellation:       c.Timelocks.SrcCancellationSecs,
		SrcPublicCancellation: c.Timelocks.SrcPublicCancellationSecs,
		DstWithdrawal:         c.Timelocks.DstWithdrawalSecs,
		DstPublicWithdrawal:   c.Timelocks.DstPublicWithdrawalSecs,
		DstCancellation:       c.Timelocks.DstCancellationSecs,
	}
}

// ToPolicy converts the configured retry block; zero values fall back to
// the coordinator defaults.
func (c *ChainsConfig) ToPolicy() retry.Policy {
	if c.Retry.MaxAttempts <= 0 {
		return retry.DefaultPolicy()
	}
	return retry.Policy{
		MaxAttempts:    c.Retry.MaxAttempts,
		InitialBackoff: time.Duration(c.Retry.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:     time.Duration(c.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:     c.Retry.BackoffMultiplier,
	}
}

func loadChains(path string) (*ChainsConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg ChainsConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}
