package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"binquoter/pkg/types"
)

func testPortfolioConfig() types.PortfolioConfig {
	return types.PortfolioConfig{
		TokenXDust:          big.NewInt(1000),
		TokenYDust:          big.NewInt(1000),
		TokenXReserve:       0.02,
		TokenYReserve:       0.02,
		TakerProfitBps:      30,
		MakerLossBps:        30,
		TxLimit5Min:         20,
		MaxSkew:             0.8,
		TakerScalingFactor:  0.9,
		MinGas:              big.NewInt(1_000_000_000_000_000),
		PxSkewFactor:        1.0,
		PortfolioSkewFactor: 1.0,
		PxScalingFactor:     1.0,
		RebalanceInterval:   60,
		TakeGasPriceScaling: 2,
		GasConstant:         500000,
	}
}

func testConfig() Config {
	return Config{
		CexParam: types.CexFeedConfig{
			Kind:    types.FeedBookTop,
			Symbol1: "ETHUSDT",
		},
		WSRPC:           "ws://localhost:8546",
		ArchiverRPC:     "http://localhost:8545",
		Heartbeat:       "http://localhost:9000/heartbeat",
		ExecutorAddress: "0x0000000000000000000000000000000000000001",
		WETH:            "0x0000000000000000000000000000000000000002",
		OwnerKey:        "deadbeef",
		Logging:         LoggingConfig{Level: "info"},
		PortfolioConfig: testPortfolioConfig(),
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidateRejectsBadMaxSkew(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.PortfolioConfig.MaxSkew = 0.3
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for max_skew <= 0.5")
	}
}

func TestValidateRejectsUnknownFeedKind(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.CexParam.Kind = "not_a_real_feed"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for unknown cex_param.kind")
	}
}

func TestLoadRoundTrips(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"cex_param": {"kind": "book_top", "symbol1": "ETHUSDT"},
		"wsrpc": "ws://localhost:8546",
		"archiverpc": "http://localhost:8545",
		"heartbeat": "http://localhost:9000/heartbeat",
		"executor_address": "0x01",
		"weth": "0x02",
		"owner_key": "deadbeef",
		"logging": {"level": "info"},
		"portfolio_config": {
			"token_x_dust": 1000,
			"token_y_dust": 1000,
			"token_x_reserve": 0.02,
			"token_y_reserve": 0.02,
			"taker_profit_bps": 30,
			"maker_loss_bps": 30,
			"tx_limit_5min": 20,
			"max_skew": 0.8,
			"taker_scaling_factor": 0.9,
			"min_gas": 1000000000000000,
			"px_skew_factor": 1.0,
			"portfolio_skew_factor": 1.0,
			"px_scaling_factor": 1.0,
			"rebalance_interval": 60,
			"take_gas_price_scaling": 2,
			"gas_constant": 500000
		}
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config failed validation: %v", err)
	}
	if cfg.CexParam.Symbol1 != "ETHUSDT" {
		t.Fatalf("symbol1 = %q, want ETHUSDT", cfg.CexParam.Symbol1)
	}
}
