package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config carries the node-level settings plus the bootstrap protocol
// parameters applied on first start. Amounts are decimal strings so values
// beyond int64 range survive the TOML round trip.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Env           string `toml:"Env"`
	LogFile       string `toml:"LogFile"`

	RPCAuthToken   string  `toml:"RPCAuthToken"`
	RateLimitRPS   float64 `toml:"RateLimitRPS"`
	RateLimitBurst int     `toml:"RateLimitBurst"`

	Owner          string `toml:"Owner"`
	TrustedRelayer string `toml:"TrustedRelayer"`
	Vault          string `toml:"Vault"`

	MaxOrderSize       string `toml:"MaxOrderSize"`
	RequiredCollateral string `toml:"RequiredCollateral"`
	OrderTTLMillis     uint64 `toml:"OrderTTLMillis"`
	RelayerFee         uint64 `toml:"RelayerFee"`
	FeePoint           string `toml:"FeePoint"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyFallbacks(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFallbacks(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8545"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./untron-data"
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:      ":8545",
		DataDir:            "./untron-data",
		Env:                "local",
		RateLimitRPS:       50,
		RateLimitBurst:     100,
		MaxOrderSize:       "1000000000000",
		RequiredCollateral: "0",
		OrderTTLMillis:     300_000,
		RelayerFee:         100_000,
		FeePoint:           "0",
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// Validate checks the protocol parameters for internal consistency.
func (cfg *Config) Validate() error {
	if cfg.RelayerFee > 1_000_000 {
		return fmt.Errorf("config: RelayerFee exceeds the rate denominator")
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"MaxOrderSize", cfg.MaxOrderSize},
		{"RequiredCollateral", cfg.RequiredCollateral},
		{"FeePoint", cfg.FeePoint},
	} {
		if strings.TrimSpace(field.value) == "" {
			continue
		}
		amount, err := parseAmount(field.value)
		if err != nil {
			return fmt.Errorf("config: %s: %w", field.name, err)
		}
		if amount.Sign() < 0 {
			return fmt.Errorf("config: %s must not be negative", field.name)
		}
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"Owner", cfg.Owner},
		{"TrustedRelayer", cfg.TrustedRelayer},
		{"Vault", cfg.Vault},
	} {
		if strings.TrimSpace(field.value) == "" {
			continue
		}
		if _, err := parseAddress(field.value); err != nil {
			return fmt.Errorf("config: %s: %w", field.name, err)
		}
	}
	return nil
}

// OwnerAddress decodes the configured owner, reporting whether one is set.
func (cfg *Config) OwnerAddress() ([20]byte, bool, error) {
	return optionalAddress(cfg.Owner)
}

// TrustedRelayerAddress decodes the configured bootstrap relayer.
func (cfg *Config) TrustedRelayerAddress() ([20]byte, bool, error) {
	return optionalAddress(cfg.TrustedRelayer)
}

// VaultAddress decodes the collateral vault account.
func (cfg *Config) VaultAddress() ([20]byte, bool, error) {
	return optionalAddress(cfg.Vault)
}

// MaxOrderSizeAmount parses the configured order size ceiling.
func (cfg *Config) MaxOrderSizeAmount() (*big.Int, error) {
	return parseAmount(cfg.MaxOrderSize)
}

// RequiredCollateralAmount parses the configured per-order collateral.
func (cfg *Config) RequiredCollateralAmount() (*big.Int, error) {
	return parseAmount(cfg.RequiredCollateral)
}

// FeePointAmount parses the configured flat fulfiller fee.
func (cfg *Config) FeePointAmount() (*big.Int, error) {
	return parseAmount(cfg.FeePoint)
}

func optionalAddress(value string) ([20]byte, bool, error) {
	if strings.TrimSpace(value) == "" {
		return [20]byte{}, false, nil
	}
	addr, err := parseAddress(value)
	if err != nil {
		return [20]byte{}, false, err
	}
	return addr, true, nil
}

func parseAddress(value string) ([20]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid hex address: %w", err)
	}
	if len(raw) != 20 {
		return [20]byte{}, fmt.Errorf("address must be 20 bytes, got %d", len(raw))
	}
	var addr [20]byte
	copy(addr[:], raw)
	return addr, nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount %q", value)
	}
	return amount, nil
}
