// Package executor is the Execution Sequencer: it turns an Execute intent
// from the decision engine into a signed on-chain transaction, rate-limits
// submission, prices gas per variant, and polls for the receipt.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"

	"binquoter/internal/chain"
	qtypes "binquoter/pkg/types"
)

const (
	maxConsecutiveFailures = 20
	receiptPollInterval    = 50 * time.Millisecond
	receiptPollTimeout     = 60 * time.Second
)

// ErrRateLimited is returned when tx_limit_5min would be exceeded.
var ErrRateLimited = errors.New("executor: rate limit exceeded")

// Executor submits Execute intents against the mm and weth contracts.
type Executor struct {
	client *chain.Client
	mm     *chain.MM
	weth   *chain.WETH

	ownerAddr common.Address

	rateLimiter *RateLimiter
	gasPolicy   GasPolicy
	minGas      *big.Int
	xDust       *big.Int
	yDust       *big.Int

	consecutiveFailures int
	binsTouched         map[uint32]bool

	logger *slog.Logger
}

// New builds an Executor from the chain client, the bound contracts, and
// the portfolio config's rate/gas/min-gas parameters.
func New(client *chain.Client, mm *chain.MM, weth *chain.WETH, pc qtypes.PortfolioConfig, logger *slog.Logger) *Executor {
	return &Executor{
		client:      client,
		mm:          mm,
		weth:        weth,
		ownerAddr:   client.Signer.Address(),
		rateLimiter: NewRateLimiter(pc.TxLimit5Min),
		gasPolicy:   GasPolicy{TakeGasPriceScaling: pc.TakeGasPriceScaling, GasConstant: pc.GasConstant},
		minGas:      pc.MinGas,
		xDust:       pc.TokenXDust,
		yDust:       pc.TokenYDust,
		binsTouched: make(map[uint32]bool),
		logger:      logger.With("component", "executor"),
	}
}

// UpdateConfig applies a reloaded portfolio_config's rate/gas parameters.
func (e *Executor) UpdateConfig(pc qtypes.PortfolioConfig) {
	e.rateLimiter.SetLimit(pc.TxLimit5Min)
	e.gasPolicy = GasPolicy{TakeGasPriceScaling: pc.TakeGasPriceScaling, GasConstant: pc.GasConstant}
	e.minGas = pc.MinGas
	e.xDust = pc.TokenXDust
	e.yDust = pc.TokenYDust
}

// ConsecutiveFailures reports the current run of mined-but-failed receipts.
func (e *Executor) ConsecutiveFailures() int { return e.consecutiveFailures }

// nextFailureCount and shouldTerminate are pulled out as pure functions so
// the fatal-termination threshold logic is testable without a live chain.
func nextFailureCount(current int) int { return current + 1 }

func shouldTerminate(count int) bool { return count >= maxConsecutiveFailures }

func splitDeposits(activeID uint32, orders []qtypes.MakeOrder) ([]uint32, []*big.Int, []*big.Int) {
	ids := make([]uint32, len(orders))
	xs := make([]*big.Int, len(orders))
	ys := make([]*big.Int, len(orders))
	for i, o := range orders {
		ids[i] = o.Tick.Resolve(activeID)
		xs[i] = o.X
		ys[i] = o.Y
	}
	return ids, xs, ys
}

func splitWithdrawals(activeID uint32, orders []qtypes.CancelOrder) ([]uint32, []*big.Int) {
	ids := make([]uint32, len(orders))
	amounts := make([]*big.Int, len(orders))
	for i, o := range orders {
		ids[i] = o.Tick.Resolve(activeID)
		amounts[i] = o.Amount
	}
	return ids, amounts
}

// Execute submits todo against the mm contract (resolving any TickDelta
// references against activeID), rate-limiting and gas-pricing per variant,
// then blocks until a receipt is mined or receiptPollTimeout elapses.
func (e *Executor) Execute(ctx context.Context, todo qtypes.Execute, activeID uint32) error {
	switch todo.Kind {
	case qtypes.ExecuteMake, qtypes.ExecuteMove:
		if !e.rateLimiter.Allow(time.Now()) {
			return ErrRateLimited
		}
	case qtypes.ExecuteTake, qtypes.ExecuteCancelNTake, qtypes.ExecuteCancel:
		// Best-effort trim only: these always proceed, but still count
		// toward the window so a burst of them throttles later Make/Move.
		e.rateLimiter.TryTrim(time.Now())
	case qtypes.ExecuteClaim, qtypes.ExecuteCheckGas:
		// Bypass the limiter entirely.
	}

	basePrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("suggest gas price: %w", err)
	}
	gasPrice := e.gasPolicy.GasPrice(basePrice, todo.Kind)
	gasLimit := e.gasPolicy.GasLimit(todo.Kind)

	var hash common.Hash
	switch todo.Kind {
	case qtypes.ExecuteMake:
		ids, xs, ys := splitDeposits(activeID, todo.Deposits)
		e.markTouched(ids)
		hash, err = e.mm.Make(ctx, gasLimit, gasPrice, ids, xs, ys)
	case qtypes.ExecuteMove:
		removeIDs, removeAmts := splitWithdrawals(activeID, todo.Withdrawals)
		addIDs, addXs, addYs := splitDeposits(activeID, todo.Deposits)
		e.markTouched(addIDs)
		hash, err = e.mm.Move(ctx, gasLimit, gasPrice, removeIDs, removeAmts, addIDs, addXs, addYs)
	case qtypes.ExecuteCancel:
		ids, amts := splitWithdrawals(activeID, todo.Withdrawals)
		hash, err = e.mm.Cancel(ctx, gasLimit, gasPrice, ids, amts)
	case qtypes.ExecuteTake:
		hash, err = e.mm.Take(ctx, gasLimit, gasPrice, todo.AmtIn, todo.SwapForY)
	case qtypes.ExecuteCancelNTake:
		ids, amts := splitWithdrawals(activeID, todo.CancelNTakeWithdrawals)
		hash, err = e.mm.CancelNTake(ctx, gasLimit, gasPrice, ids, amts, todo.AmtIn, todo.SwapForY)
	case qtypes.ExecuteClaim:
		return e.executeClaim(ctx, gasLimit, gasPrice)
	case qtypes.ExecuteCheckGas:
		return e.checkGas(ctx, gasLimit, gasPrice)
	default:
		panic(fmt.Sprintf("executor: unhandled execute kind %q", todo.Kind))
	}
	if err != nil {
		return fmt.Errorf("submit %s: %w", todo.Kind, err)
	}

	return e.awaitReceipt(ctx, hash)
}

// markTouched records ids as having had liquidity deposited into them, so a
// later Claim knows which bins might hold fees worth collecting.
func (e *Executor) markTouched(ids []uint32) {
	for _, id := range ids {
		e.binsTouched[id] = true
	}
}

// executeClaim resolves bins_touched into the set of bins this portfolio
// still holds liquidity tokens in (queried in batches of 50), reads the
// pair's pending fees for that set, and skips submission entirely when
// both totals are below dust rather than spending gas to collect nothing.
func (e *Executor) executeClaim(ctx context.Context, gasLimit uint64, gasPrice *big.Int) error {
	touched := make([]uint32, 0, len(e.binsTouched))
	for id := range e.binsTouched {
		touched = append(touched, id)
	}
	sort.Slice(touched, func(i, j int) bool { return touched[i] < touched[j] })

	toClaim := make([]uint32, 0, len(touched))
	const batchSize = 50
	for i := 0; i < len(touched); i += batchSize {
		end := i + batchSize
		if end > len(touched) {
			end = len(touched)
		}
		batch := touched[i:end]
		balances, err := e.mm.BinBalances(ctx, e.ownerAddr, batch)
		if err != nil {
			return fmt.Errorf("claim: bin balances: %w", err)
		}
		for j, bal := range balances {
			if bal.Sign() != 0 {
				toClaim = append(toClaim, batch[j])
			}
		}
	}

	if len(toClaim) == 0 {
		return nil
	}

	totalX, totalY, err := e.mm.PendingFees(ctx, e.ownerAddr, toClaim)
	if err != nil {
		return fmt.Errorf("claim: pending fees: %w", err)
	}
	if (e.xDust == nil || totalX.Cmp(e.xDust) < 0) && (e.yDust == nil || totalY.Cmp(e.yDust) < 0) {
		return nil
	}

	e.binsTouched = make(map[uint32]bool)

	hash, err := e.mm.Claim(ctx, gasLimit, gasPrice, toClaim)
	if err != nil {
		return fmt.Errorf("submit claim: %w", err)
	}
	return e.awaitReceipt(ctx, hash)
}

// checkGas tops up native gas by 2*minGas from the wrapped-native balance
// once it falls below minGas: withdraw() is tried first, transferFrom() from
// the owner's own wallet is the fallback if submitting the withdraw fails.
func (e *Executor) checkGas(ctx context.Context, gasLimit uint64, gasPrice *big.Int) error {
	balance, err := e.client.BalanceAt(ctx)
	if err != nil {
		return fmt.Errorf("check gas: balance: %w", err)
	}
	if e.minGas == nil || balance.Cmp(e.minGas) >= 0 {
		return nil
	}

	topUp := new(big.Int).Mul(e.minGas, big.NewInt(2))

	hash, err := e.weth.Withdraw(ctx, gasLimit, gasPrice, topUp)
	if err != nil {
		e.logger.Warn("weth withdraw failed, falling back to transferFrom", "error", err)
		hash, err = e.weth.TransferFrom(ctx, gasLimit, gasPrice, e.ownerAddr, e.ownerAddr, topUp)
		if err != nil {
			return fmt.Errorf("check gas: transferFrom fallback: %w", err)
		}
	}
	return e.awaitReceipt(ctx, hash)
}

// awaitReceipt polls for tx's receipt, treating status==1 as the only
// outcome that resets the consecutive-failure counter. Any other mined
// status increments it; crossing maxConsecutiveFailures terminates the
// process rather than continuing to submit transactions against what is
// likely a broken contract or wallet state.
func (e *Executor) awaitReceipt(ctx context.Context, hash common.Hash) error {
	deadline := time.Now().Add(receiptPollTimeout)
	for {
		receipt, err := e.client.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				e.consecutiveFailures = 0
				return nil
			}
			e.consecutiveFailures = nextFailureCount(e.consecutiveFailures)
			e.logger.Error("transaction mined but failed", "hash", hash, "consecutive_failures", e.consecutiveFailures)
			if shouldTerminate(e.consecutiveFailures) {
				e.logger.Error("consecutive execution failures exceeded threshold, terminating", "count", e.consecutiveFailures)
				fatalExit()
			}
			return fmt.Errorf("executor: tx %s mined with status %d", hash, receipt.Status)
		}
		if !errors.Is(err, ethereum.NotFound) {
			e.logger.Warn("receipt poll error, retrying", "hash", hash, "error", err)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("executor: timed out waiting for receipt of %s", hash)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(receiptPollInterval):
		}
	}
}
