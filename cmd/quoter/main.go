// Command quoter is an automated on-chain market maker for a single DEX
// bin-ladder pair, reconciling a CEX reference price against the pair's
// live bin ladder.
//
// Architecture:
//
//	main.go                 — entry point: loads config, wires every component, waits for SIGINT/SIGTERM
//	internal/cexfeed        — CEX Feed Aggregator: five venue/mode variants behind one CexData channel
//	internal/dexsource      — DEX State Source: polls the pair contract, publishes bin-ladder snapshots
//	internal/portfolio      — Portfolio Decision Engine: pure on_state(cex, amm) -> Option<Execute>
//	internal/executor       — Execution Sequencer: rate-limits, prices gas, submits, polls receipts
//	internal/reconciler     — Main Reconciler Loop: biased select over {dex, cex, 5s config reload}
//	internal/chain          — signing, RPC, and hand-packed ABI calls against the mm/weth contracts
//	internal/heartbeat      — fire-and-forget liveness GET, fully decoupled from the quoting loop
//	internal/obs            — structured JSON logging, rotated daily
//
// Lifecycle: load config -> dial chain -> warm-start balances/positions ->
// two CheckGas warm-up calls -> run until SIGINT/SIGTERM -> cancel context.
package main

import (
	"context"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"binquoter/internal/cexfeed"
	"binquoter/internal/chain"
	"binquoter/internal/config"
	"binquoter/internal/dexsource"
	"binquoter/internal/executor"
	"binquoter/internal/heartbeat"
	"binquoter/internal/obs"
	"binquoter/internal/portfolio"
	"binquoter/internal/reconciler"
	"binquoter/pkg/types"
)

const dexPollInterval = 3 * time.Second

func main() {
	cfgPath := "config.json"
	if p := os.Getenv("QUOTER_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := obs.New(obs.Config{Level: cfg.Logging.Level})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := chain.Dial(ctx, cfg.WSRPC, cfg.ArchiverRPC, cfg.OwnerKey, logger)
	if err != nil {
		logger.Error("failed to dial chain", "error", err)
		os.Exit(1)
	}

	mmAddr := common.HexToAddress(cfg.ExecutorAddress)
	wethAddr := common.HexToAddress(cfg.WETH)
	mm := chain.NewMM(client, mmAddr)
	weth := chain.NewWETH(client, wethAddr)

	dex := dexsource.New(client, mm, dexPollInterval, logger)
	cex := cexfeed.New(cfg.CexParam, logger)

	feedCtx, feedCancel := context.WithCancel(ctx)
	defer feedCancel()
	go dex.Run(feedCtx)
	go cex.Run(feedCtx)

	logger.Info("waiting for first dex and cex snapshots")
	var initialAmm *types.BinLadder
	var initialCex types.CexData
	select {
	case initialAmm = <-dex.Snapshots():
	case <-ctx.Done():
		return
	}
	select {
	case initialCex = <-cex.Out():
	case <-ctx.Done():
		return
	}

	owner := client.Signer.Address()
	xBal, yBal, err := mm.FreeBalances(ctx, owner)
	if err != nil {
		logger.Error("failed to warm-start balances", "error", err)
		os.Exit(1)
	}
	logger.Info("executor balances", "x_balance", xBal, "y_balance", yBal)

	pf := portfolio.New(cfg.PortfolioConfig, logger)
	pf.SetBalances(xBal, yBal)
	pf.SetPositions(warmStartPositions(ctx, mm, owner, initialAmm.ActiveID, logger))

	ex := executor.New(client, mm, weth, cfg.PortfolioConfig, logger)

	// Two warm-up CheckGas calls before entering the main loop, mirroring
	// the reference's double call at startup — the second is a no-op once
	// the first has topped up gas.
	for i := 0; i < 2; i++ {
		if err := ex.Execute(ctx, types.NewCheckGas(), initialAmm.ActiveID); err != nil {
			logger.Warn("startup check_gas failed", "attempt", i+1, "error", err)
		}
	}

	go heartbeat.Run(ctx, cfg.Heartbeat, logger)

	rec := reconciler.New(cfgPath, cfg, client, mm, dex, cex, pf, ex, initialAmm, initialCex, logger)

	loopErrCh := make(chan error, 1)
	go func() { loopErrCh <- rec.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-loopErrCh:
		if err != nil && err != context.Canceled {
			logger.Error("reconciler loop exited", "error", err)
		}
	}

	cancel()
	logger.Info("shutdown complete")
}

// warmStartPositions reads owned liquidity across a ±10-bin window around
// activeID, matching the reference's startup get_liq_tokens call.
func warmStartPositions(ctx context.Context, mm *chain.MM, owner common.Address, activeID uint32, logger *slog.Logger) map[uint32]types.Bin {
	const window = 10
	positions := make(map[uint32]types.Bin)
	for delta := -window; delta <= window; delta++ {
		id := uint32(int64(activeID) + int64(delta))
		tokens, err := mm.LiquidityBalance(ctx, owner, id)
		if err != nil {
			logger.Warn("warm-start position read failed", "id", id, "error", err)
			continue
		}
		if tokens.Sign() == 0 {
			continue
		}
		supply, err := mm.TotalSupply(ctx, id)
		if err != nil || supply.Sign() == 0 {
			continue
		}
		resX, resY, err := mm.BinReserves(ctx, id)
		if err != nil {
			continue
		}
		positions[id] = types.Bin{
			ID:     id,
			X:      mulDivBig(resX, tokens, supply),
			Y:      mulDivBig(resY, tokens, supply),
			Tokens: tokens,
		}
	}
	return positions
}

// mulDivBig computes floor(x*tokens/supply), the pro-rata reserve share a
// liquidity-token balance is entitled to.
func mulDivBig(x, tokens, supply *big.Int) *big.Int {
	out := new(big.Int).Mul(x, tokens)
	return out.Div(out, supply)
}
