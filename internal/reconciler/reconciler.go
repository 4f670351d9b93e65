// Package reconciler is the Main Reconciler Loop: a single-threaded,
// cooperative loop that reacts to whichever of {DEX snapshot, CEX quote,
// 5-second config-reload tick} fires first, calls the Portfolio Decision
// Engine, and hands any resulting intent to the Execution Sequencer.
package reconciler

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"golang.org/x/sync/errgroup"

	"binquoter/internal/chain"
	"binquoter/internal/config"
	"binquoter/internal/executor"
	"binquoter/internal/portfolio"
	"binquoter/pkg/types"
)

const configReloadInterval = 5 * time.Second

// DexSource is the external DEX State Source: a change-triggered channel of
// bin-ladder snapshots. The Main Reconciler Loop only ever reads from it.
type DexSource interface {
	Snapshots() <-chan *types.BinLadder
}

// CexSource is the CEX Feed Aggregator's consumer-facing surface.
type CexSource interface {
	Out() <-chan types.CexData
}

// Reconciler owns the loop's mutable view of the world: the latest DEX and
// CEX snapshots, the last block an action was confirmed at, and the config
// path to re-read on every tick.
type Reconciler struct {
	configPath string
	cfg        *config.Config

	client *chain.Client
	mm     *chain.MM

	dex DexSource
	cex CexSource

	portfolio *portfolio.Portfolio
	executor  *executor.Executor

	blockExecuted uint64
	amm           *types.BinLadder
	cexData       types.CexData

	logger *slog.Logger
}

// New builds a Reconciler. amm and cex must already hold the warm-start
// snapshot each source produced before the first call to Run.
func New(
	configPath string,
	cfg *config.Config,
	client *chain.Client,
	mm *chain.MM,
	dex DexSource,
	cex CexSource,
	p *portfolio.Portfolio,
	ex *executor.Executor,
	initialAmm *types.BinLadder,
	initialCex types.CexData,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		configPath: configPath,
		cfg:        cfg,
		client:     client,
		mm:         mm,
		dex:        dex,
		cex:        cex,
		portfolio:  p,
		executor:   ex,
		amm:        initialAmm,
		cexData:    initialCex,
		logger:     logger.With("component", "reconciler"),
	}
}

// Run drives the loop until ctx is cancelled. The DEX and CEX feeds are
// expected to already be running; if either feed's channel is closed, Run
// returns an error instead of recreating the feed.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(configReloadInterval)
	defer ticker.Stop()

	dexCh := r.dex.Snapshots()
	cexCh := r.cex.Out()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Biased select: a fresh DEX snapshot always wins over a fresh CEX
		// quote when both are ready, matching the reference's `select!
		// biased`. A plain `select` has no priority of its own, so the DEX
		// case is polled non-blocking first.
		select {
		case snap, ok := <-dexCh:
			if !ok {
				return errClosed("dex source")
			}
			r.onDex(snap, cexCh)
		default:
			select {
			case snap, ok := <-dexCh:
				if !ok {
					return errClosed("dex source")
				}
				r.onDex(snap, cexCh)
			case quote, ok := <-cexCh:
				if !ok {
					return errClosed("cex feed")
				}
				r.cexData = quote
				r.logger.Debug("cex quote", "bid", quote.BidPx, "ask", quote.AskPx)
			case <-ticker.C:
				r.reloadConfig()
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		r.step(ctx)
	}
}

func (r *Reconciler) onDex(snap *types.BinLadder, cexCh <-chan types.CexData) {
	r.amm = snap
	r.logger.Debug("dex snapshot", "active_id", snap.ActiveID, "last_block", snap.LastBlock)

	// Also pick up a fresh CEX quote if one is already waiting, without
	// blocking the loop on it.
	select {
	case quote, ok := <-cexCh:
		if ok {
			r.cexData = quote
		}
	default:
	}
}

func (r *Reconciler) reloadConfig() {
	newCfg, err := config.Load(r.configPath)
	if err != nil {
		r.logger.Error("failed to reload config", "error", err)
		return
	}
	if newCfg.PortfolioConfig.Equal(r.cfg.PortfolioConfig) {
		return
	}

	r.logger.Info("portfolio_config changed, hot-swapping")
	r.cfg.PortfolioConfig = newCfg.PortfolioConfig
	r.portfolio.UpdateConfig(newCfg.PortfolioConfig)
	r.executor.UpdateConfig(newCfg.PortfolioConfig)
}

// step evaluates the decision engine against the current (cex, amm) tuple
// and, if it produced an intent, executes it and refreshes chain state.
func (r *Reconciler) step(ctx context.Context) {
	if r.amm == nil {
		return
	}
	if r.blockExecuted > r.amm.LastBlock {
		r.logger.Warn("dex block not updated", "block_executed", r.blockExecuted, "dex_block", r.amm.LastBlock)
		return
	}

	intent, activeID := r.portfolio.OnState(r.cexData.BidPx, r.cexData.AskPx, r.amm)
	if intent == nil {
		return
	}

	if err := r.executor.Execute(ctx, *intent, activeID); err != nil {
		r.logger.Error("execute failed", "kind", intent.Kind, "error", err)
		return
	}

	if block, err := r.client.BlockNumber(ctx); err == nil {
		r.blockExecuted = block
	}

	r.refreshState(ctx, activeID)
}

// refreshState re-reads balances and re-queries owned positions across a
// ±dexsource.Window window around activeID, matching the reference's
// restricted post-execution position refresh.
func (r *Reconciler) refreshState(ctx context.Context, activeID uint32) {
	owner := r.client.Signer.Address()

	xBal, yBal, err := r.mm.FreeBalances(ctx, owner)
	if err != nil {
		r.logger.Error("failed to refresh balances", "error", err)
		return
	}
	r.portfolio.SetBalances(xBal, yBal)

	const window = 10
	positions := make(map[uint32]types.Bin)
	for delta := -window; delta <= window; delta++ {
		id := uint32(int64(activeID) + int64(delta))
		tokens, err := r.mm.LiquidityBalance(ctx, owner, id)
		if err != nil {
			r.logger.Error("failed to refresh position", "id", id, "error", err)
			continue
		}
		if tokens.Sign() == 0 {
			continue
		}
		supply, err := r.mm.TotalSupply(ctx, id)
		if err != nil || supply.Sign() == 0 {
			continue
		}
		resX, resY, err := r.mm.BinReserves(ctx, id)
		if err != nil {
			continue
		}
		positions[id] = types.Bin{
			ID:     id,
			X:      mulDiv(resX, tokens, supply),
			Y:      mulDiv(resY, tokens, supply),
			Tokens: tokens,
		}
	}
	r.portfolio.SetPositions(positions)
}

// mulDiv computes floor(x*tokens/supply), the pro-rata reserve share a
// liquidity-token balance is entitled to.
func mulDiv(x, tokens, supply *big.Int) *big.Int {
	out := new(big.Int).Mul(x, tokens)
	return out.Div(out, supply)
}

type errClosed string

func (e errClosed) Error() string { return string(e) + " channel closed unexpectedly" }

// RunFeeds starts the DEX and CEX feed runners under one errgroup with a
// derived context. The runners return no error, so that context is
// cancelled only when ctx is. cmd/quoter does not call it; it starts the
// feeds as plain goroutines.
func RunFeeds(ctx context.Context, dexRun func(context.Context), cexRun func(context.Context)) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dexRun(gctx)
		return nil
	})
	g.Go(func() error {
		cexRun(gctx)
		return nil
	})
	return g, gctx
}
