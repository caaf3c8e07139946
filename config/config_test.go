package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadParsesSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `ListenAddress = "0.0.0.0:9000"
DataDir = "./data"
Env = "staging"
LogFile = "./untron.log"
RPCAuthToken = "topsecret"
RateLimitRPS = 25.5
RateLimitBurst = 60
Owner = "0x0101010101010101010101010101010101010101"
TrustedRelayer = "0505050505050505050505050505050505050505"
Vault = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"
MaxOrderSize = "1000000000000000000000"
RequiredCollateral = "100"
OrderTTLMillis = 600000
RelayerFee = 50000
FeePoint = "2"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.ListenAddress != "0.0.0.0:9000" || cfg.DataDir != "./data" {
		t.Fatalf("unexpected node settings: %+v", cfg)
	}
	if cfg.Env != "staging" || cfg.LogFile != "./untron.log" {
		t.Fatalf("unexpected logging settings: %+v", cfg)
	}
	if cfg.RPCAuthToken != "topsecret" {
		t.Fatalf("unexpected auth token: %s", cfg.RPCAuthToken)
	}
	if cfg.RateLimitRPS != 25.5 || cfg.RateLimitBurst != 60 {
		t.Fatalf("unexpected rate limits: %f/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	owner, ok, err := cfg.OwnerAddress()
	if err != nil || !ok {
		t.Fatalf("owner address: ok=%v err=%v", ok, err)
	}
	if owner[0] != 0x01 || owner[19] != 0x01 {
		t.Fatalf("unexpected owner bytes: %x", owner)
	}
	relayer, ok, err := cfg.TrustedRelayerAddress()
	if err != nil || !ok || relayer[0] != 0x05 {
		t.Fatalf("relayer address without 0x prefix: ok=%v err=%v bytes=%x", ok, err, relayer)
	}
	vault, ok, err := cfg.VaultAddress()
	if err != nil || !ok || vault[0] != 0xEE {
		t.Fatalf("vault address: ok=%v err=%v bytes=%x", ok, err, vault)
	}

	maxSize, err := cfg.MaxOrderSizeAmount()
	if err != nil {
		t.Fatalf("max order size: %v", err)
	}
	want, _ := new(big.Int).SetString("1000000000000000000000", 10)
	if maxSize.Cmp(want) != 0 {
		t.Fatalf("max order size must survive values beyond int64: %s", maxSize)
	}
	if cfg.OrderTTLMillis != 600_000 || cfg.RelayerFee != 50_000 {
		t.Fatalf("unexpected protocol params: ttl=%d fee=%d", cfg.OrderTTLMillis, cfg.RelayerFee)
	}
	fee, err := cfg.FeePointAmount()
	if err != nil || fee.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("fee point: %v %s", err, fee)
	}
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config file to exist: %v", err)
	}
	if cfg.ListenAddress != ":8545" || cfg.DataDir != "./untron-data" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.RelayerFee != 100_000 || cfg.OrderTTLMillis != 300_000 {
		t.Fatalf("unexpected default protocol params: %+v", cfg)
	}
	if _, ok, err := cfg.OwnerAddress(); err != nil || ok {
		t.Fatalf("default config must not set an owner: ok=%v err=%v", ok, err)
	}

	// A second load round-trips the persisted defaults.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	if again.MaxOrderSize != cfg.MaxOrderSize {
		t.Fatalf("defaults did not round trip: %s != %s", again.MaxOrderSize, cfg.MaxOrderSize)
	}
}

func TestLoadAppliesFallbacks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("Env = \"local\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":8545" || cfg.DataDir != "./untron-data" {
		t.Fatalf("fallbacks not applied: %+v", cfg)
	}
	if cfg.RateLimitRPS != 50 || cfg.RateLimitBurst != 100 {
		t.Fatalf("rate limit fallbacks not applied: %+v", cfg)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"relayer fee above denominator", Config{RelayerFee: 1_000_001}},
		{"negative collateral", Config{RequiredCollateral: "-1"}},
		{"non-decimal amount", Config{MaxOrderSize: "abc"}},
		{"short owner address", Config{Owner: "0x0101"}},
		{"non-hex relayer", Config{TrustedRelayer: "0xzz01010101010101010101010101010101010101"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
