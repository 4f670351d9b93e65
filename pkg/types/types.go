// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the quoter — the DEX bin-ladder
// snapshot, the portfolio config, the CEX reference quote, and the tagged
// union types (Execute, Tick, CexFeedConfig) that cross the boundary between
// the pure decision engine and the side-effecting executor. It has no
// dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"math/big"
)

// ————————————————————————————————————————————————————————————————————————
// Tick — a bin reference, either an absolute id or an offset from active_id
// ————————————————————————————————————————————————————————————————————————

// TickKind discriminates the two Tick variants.
type TickKind int

const (
	TickExact TickKind = iota // absolute bin id
	TickDelta                 // signed offset from the current active bin
)

// Tick identifies a bin either by absolute id or by offset from active_id.
// Only one of Exact/Delta is meaningful, selected by Kind — mirrors the
// two-variant enum in the reference implementation.
type Tick struct {
	Kind  TickKind
	Exact uint32
	Delta int32
}

// NewExactTick builds a Tick referring to an absolute bin id.
func NewExactTick(id uint32) Tick { return Tick{Kind: TickExact, Exact: id} }

// NewDeltaTick builds a Tick referring to activeID+delta.
func NewDeltaTick(delta int32) Tick { return Tick{Kind: TickDelta, Delta: delta} }

// Resolve returns the absolute bin id given the current active bin id.
func (t Tick) Resolve(activeID uint32) uint32 {
	if t.Kind == TickExact {
		return t.Exact
	}
	return uint32(int64(activeID) + int64(t.Delta))
}

// ————————————————————————————————————————————————————————————————————————
// Execute — the tagged union of intents the decision engine hands to the
// executor. One Kind is active at a time; only the fields that variant
// uses are populated, matching the reference implementation's enum.
// ————————————————————————————————————————————————————————————————————————

// ExecuteKind discriminates the Execute variants.
type ExecuteKind string

const (
	ExecuteMake        ExecuteKind = "make"          // place fresh liquidity
	ExecuteMove        ExecuteKind = "move"           // withdraw some bins, place others
	ExecuteCancel      ExecuteKind = "cancel"          // withdraw liquidity, no replacement
	ExecuteTake        ExecuteKind = "take"            // taker swap against the pair
	ExecuteCancelNTake ExecuteKind = "cancel_n_take"    // withdraw then taker swap
	ExecuteClaim       ExecuteKind = "claim"            // collect accrued fees
	ExecuteCheckGas    ExecuteKind = "check_gas"        // top up native gas from wrapped balance
)

// MakeOrder is one (bin, x amount, y amount) triple to deposit.
type MakeOrder struct {
	Tick Tick
	X    *big.Int
	Y    *big.Int
}

// CancelOrder is one (bin, liquidity-token amount) to withdraw.
type CancelOrder struct {
	Tick   Tick
	Amount *big.Int
}

// Execute is the tagged union of actions the Portfolio Decision Engine can
// request of the Execution Sequencer.
type Execute struct {
	Kind ExecuteKind

	// Make: deposit orders. Move.To: deposit side of a move.
	Deposits []MakeOrder

	// Cancel: withdrawals. Move.From: withdraw side of a move.
	Withdrawals []CancelOrder

	// Take / CancelNTake.
	AmtIn    *big.Int
	AmtOut   *big.Int
	SwapForY bool

	// CancelNTake: withdrawals to perform before the swap.
	CancelNTakeWithdrawals []CancelOrder
}

// NewMake builds a Make intent.
func NewMake(orders []MakeOrder) Execute {
	return Execute{Kind: ExecuteMake, Deposits: orders}
}

// NewMove builds a Move intent.
func NewMove(from []CancelOrder, to []MakeOrder) Execute {
	return Execute{Kind: ExecuteMove, Withdrawals: from, Deposits: to}
}

// NewCancel builds a Cancel intent.
func NewCancel(orders []CancelOrder) Execute {
	return Execute{Kind: ExecuteCancel, Withdrawals: orders}
}

// NewTake builds a Take intent.
func NewTake(amtIn, amtOut *big.Int, swapForY bool) Execute {
	return Execute{Kind: ExecuteTake, AmtIn: amtIn, AmtOut: amtOut, SwapForY: swapForY}
}

// NewCancelNTake builds a CancelNTake intent.
func NewCancelNTake(amtIn, amtOut *big.Int, swapForY bool, orders []CancelOrder) Execute {
	return Execute{
		Kind:                   ExecuteCancelNTake,
		AmtIn:                  amtIn,
		AmtOut:                 amtOut,
		SwapForY:               swapForY,
		CancelNTakeWithdrawals: orders,
	}
}

// NewClaim builds a Claim intent.
func NewClaim() Execute { return Execute{Kind: ExecuteClaim} }

// NewCheckGas builds a CheckGas intent.
func NewCheckGas() Execute { return Execute{Kind: ExecuteCheckGas} }

// ————————————————————————————————————————————————————————————————————————
// Bin and portfolio configuration
// ————————————————————————————————————————————————————————————————————————

// Bin is an owned slice of one DEX bin: the token amounts this portfolio's
// liquidity-token share is currently entitled to, plus the raw token count.
type Bin struct {
	ID     uint32
	X      *big.Int
	Y      *big.Int
	Tokens *big.Int
}

// PortfolioConfig tunes the decision engine. Field names and semantics
// mirror config.json's portfolio_config object one-for-one.
type PortfolioConfig struct {
	TokenXDelta *big.Int `json:"token_x_delta,omitempty"`
	TokenYDelta *big.Int `json:"token_y_delta,omitempty"`

	TokenXDust *big.Int `json:"token_x_dust"`
	TokenYDust *big.Int `json:"token_y_dust"`

	TokenXReserve float64 `json:"token_x_reserve"`
	TokenYReserve float64 `json:"token_y_reserve"`

	TakerProfitBps uint64 `json:"taker_profit_bps"`
	MakerLossBps   uint64 `json:"maker_loss_bps"`

	TxLimit5Min int `json:"tx_limit_5min"`

	MaxSkew            float64 `json:"max_skew"`
	TakerScalingFactor float64 `json:"taker_scaling_factor"`

	ReduceOnly bool `json:"reduce_only"`
	Pause      bool `json:"pause"`

	MinGas *big.Int `json:"min_gas"`

	PxSkewFactor        float64 `json:"px_skew_factor"`
	PortfolioSkewFactor float64 `json:"portfolio_skew_factor"`
	PxScalingFactor     float64 `json:"px_scaling_factor"`

	RebalanceInterval uint64 `json:"rebalance_interval"` // minutes

	TakeGasPriceScaling uint64 `json:"take_gas_price_scaling"`
	GasConstant         uint64 `json:"gas_constant"`
}

// Equal reports whether two configs are field-for-field identical. Used by
// the reconciler to detect config.json changes on the 5-second reload tick.
func (c PortfolioConfig) Equal(o PortfolioConfig) bool {
	eq := func(a, b *big.Int) bool {
		if a == nil || b == nil {
			return a == b
		}
		return a.Cmp(b) == 0
	}
	return eq(c.TokenXDelta, o.TokenXDelta) &&
		eq(c.TokenYDelta, o.TokenYDelta) &&
		eq(c.TokenXDust, o.TokenXDust) &&
		eq(c.TokenYDust, o.TokenYDust) &&
		c.TokenXReserve == o.TokenXReserve &&
		c.TokenYReserve == o.TokenYReserve &&
		c.TakerProfitBps == o.TakerProfitBps &&
		c.MakerLossBps == o.MakerLossBps &&
		c.TxLimit5Min == o.TxLimit5Min &&
		c.MaxSkew == o.MaxSkew &&
		c.TakerScalingFactor == o.TakerScalingFactor &&
		c.ReduceOnly == o.ReduceOnly &&
		c.Pause == o.Pause &&
		eq(c.MinGas, o.MinGas) &&
		c.PxSkewFactor == o.PxSkewFactor &&
		c.PortfolioSkewFactor == o.PortfolioSkewFactor &&
		c.PxScalingFactor == o.PxScalingFactor &&
		c.RebalanceInterval == o.RebalanceInterval &&
		c.TakeGasPriceScaling == o.TakeGasPriceScaling &&
		c.GasConstant == o.GasConstant
}

// ————————————————————————————————————————————————————————————————————————
// DEX bin-ladder snapshot — the external DEX State Source interface
// ————————————————————————————————————————————————————————————————————————

// BinReserves is the raw pool-wide reserve state of one bin (not this
// portfolio's share — that is types.Bin).
type BinReserves struct {
	X *big.Int
	Y *big.Int
}

// BinLadder is an immutable, point-in-time snapshot of the DEX pair's bin
// ladder. Produced by the DEX State Source (internal/dexsource) and delivered
// over a coalesced channel; the decision engine never mutates it.
type BinLadder struct {
	TokenXDecimals uint8
	TokenYDecimals uint8
	BinStep        uint16
	ActiveID       uint32
	LastBlock      uint64

	// Bins holds pool-wide reserves for every bin with nonzero liquidity.
	Bins map[uint32]BinReserves

	// Supply holds total outstanding liquidity tokens per bin id.
	Supply map[uint32]*big.Int
}

// ————————————————————————————————————————————————————————————————————————
// CEX reference quote
// ————————————————————————————————————————————————————————————————————————

// CexData is the latest reference quote from the configured CEX feed.
// For VWAP-derived modes, BidPx == AskPx == vwap and the size fields are
// left at their zero value (the original feed leaves them NaN; a zero
// value signals "size not meaningful" equally well without importing
// NaN-comparison pitfalls into the decision engine).
type CexData struct {
	BidPx float64
	BidSz float64
	AskPx float64
	AskSz float64
}

// CexFeedKind discriminates the five supported CEX feed variants.
type CexFeedKind string

const (
	FeedBookTop       CexFeedKind = "book_top"
	FeedTradeVWAP     CexFeedKind = "trade_vwap"
	FeedBookImpl      CexFeedKind = "book_impl"
	FeedTradeVWAPImpl CexFeedKind = "trade_vwap_impl"
	FeedKucoinBook    CexFeedKind = "kucoin_book"
)

// CexFeedConfig selects and parameterizes one of the five feed variants.
// Only the fields relevant to Kind are populated; mirrors the cex_param
// tagged union in config.json.
type CexFeedConfig struct {
	Kind             CexFeedKind `json:"kind"`
	Symbol1          string      `json:"symbol1"`
	Symbol2          string      `json:"symbol2,omitempty"`
	VolumeThreshold1 float64     `json:"volume_threshold1,omitempty"`
	VolumeThreshold2 float64     `json:"volume_threshold2,omitempty"`
}

// ————————————————————————————————————————————————————————————————————————
// Logging helper
// ————————————————————————————————————————————————————————————————————————

// DisplayBin is a human-readable projection of a Bin for log output: raw
// integer amounts converted to floats via each token's decimals. No code in
// this module constructs one; log lines carry the raw amounts.
type DisplayBin struct {
	ID     uint32  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Tokens *big.Int `json:"tokens"`
}
