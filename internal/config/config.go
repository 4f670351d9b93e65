// Package config defines the quoter's configuration. Config is loaded from
// a JSON file (default: config.json) and re-read every 5 seconds by the
// reconciler loop to pick up portfolio_config changes without a restart.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"binquoter/pkg/types"
)

// LoggingConfig controls the structured logger. Output is always JSON to
// match the rest of the ambient stack; Level is the only tunable.
type LoggingConfig struct {
	Level string `json:"level"`
}

// Config is the top-level configuration, mapping directly to config.json.
type Config struct {
	CexParam types.CexFeedConfig `json:"cex_param"`

	WSRPC       string `json:"wsrpc"`
	ArchiverRPC string `json:"archiverpc"`
	Heartbeat   string `json:"heartbeat"`

	ExecutorAddress string `json:"executor_address"`
	WETH            string `json:"weth"`
	OwnerKey        string `json:"owner_key"`

	Logging LoggingConfig `json:"logging"`

	PortfolioConfig types.PortfolioConfig `json:"portfolio_config"`
}

// Load reads and parses config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks required fields and the portfolio_config invariants the
// decision engine assumes on every call.
func (c *Config) Validate() error {
	if c.WSRPC == "" {
		return fmt.Errorf("wsrpc is required")
	}
	if c.ArchiverRPC == "" {
		return fmt.Errorf("archiverpc is required")
	}
	if c.ExecutorAddress == "" {
		return fmt.Errorf("executor_address is required")
	}
	if c.WETH == "" {
		return fmt.Errorf("weth is required")
	}
	if c.OwnerKey == "" {
		return fmt.Errorf("owner_key is required")
	}
	switch c.CexParam.Kind {
	case types.FeedBookTop, types.FeedTradeVWAP, types.FeedBookImpl, types.FeedTradeVWAPImpl, types.FeedKucoinBook:
	default:
		return fmt.Errorf("cex_param.kind %q is not a recognized feed variant", c.CexParam.Kind)
	}
	if c.CexParam.Symbol1 == "" {
		return fmt.Errorf("cex_param.symbol1 is required")
	}

	return validatePortfolioConfig(c.PortfolioConfig)
}

// validatePortfolioConfig enforces the same numeric invariants the decision
// engine's constructor asserts before it ever runs on_state.
func validatePortfolioConfig(pc types.PortfolioConfig) error {
	if pc.TokenXReserve >= 1.0 {
		return fmt.Errorf("portfolio_config.token_x_reserve must be < 1.0")
	}
	if pc.TokenYReserve >= 1.0 {
		return fmt.Errorf("portfolio_config.token_y_reserve must be < 1.0")
	}
	if pc.MaxSkew <= 0.5 {
		return fmt.Errorf("portfolio_config.max_skew must be > 0.5")
	}
	if pc.TakerScalingFactor <= 0.5 {
		return fmt.Errorf("portfolio_config.taker_scaling_factor must be > 0.5")
	}
	if pc.TakerProfitBps >= 10000 {
		return fmt.Errorf("portfolio_config.taker_profit_bps must be < 10000")
	}
	if pc.MakerLossBps >= 10000 {
		return fmt.Errorf("portfolio_config.maker_loss_bps must be < 10000")
	}
	if pc.TxLimit5Min <= 0 {
		return fmt.Errorf("portfolio_config.tx_limit_5min must be > 0")
	}
	return nil
}
