package portfolio

import (
	"log/slog"
	"math/big"
	"testing"
	"time"

	"binquoter/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func baseConfig() types.PortfolioConfig {
	return types.PortfolioConfig{
		TokenXDust:          big.NewInt(10),
		TokenYDust:          big.NewInt(10),
		TokenXReserve:       0.1,
		TokenYReserve:       0.1,
		TakerProfitBps:      10,
		MakerLossBps:        5,
		TxLimit5Min:         10,
		MaxSkew:             0.6,
		TakerScalingFactor:  1,
		PxSkewFactor:        1,
		PortfolioSkewFactor: 1,
		PxScalingFactor:     1,
		RebalanceInterval:   60,
		TakeGasPriceScaling: 2,
		GasConstant:         500000,
	}
}

func TestGetRatioSaturatesOnXSide(t *testing.T) {
	t.Parallel()

	// cur ratio 1:2, maxX is the binding constraint.
	x, y := getRatio(big.NewInt(100), big.NewInt(1000), big.NewInt(1), big.NewInt(2))
	if x.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("x = %v, want 100", x)
	}
	if y.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("y = %v, want 200", y)
	}
}

func TestGetRatioSaturatesOnYSide(t *testing.T) {
	t.Parallel()

	// cur ratio 1:2, maxY is the binding constraint.
	x, y := getRatio(big.NewInt(1000), big.NewInt(100), big.NewInt(1), big.NewInt(2))
	if y.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("y = %v, want 100", y)
	}
	if x.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("x = %v, want 50", x)
	}
}

func TestGetRatioExactFit(t *testing.T) {
	t.Parallel()

	x, y := getRatio(big.NewInt(50), big.NewInt(100), big.NewInt(1), big.NewInt(2))
	if x.Cmp(big.NewInt(50)) != 0 || y.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("x,y = %v,%v want 50,100", x, y)
	}
}

func TestGetRatioCurXZeroReturnsAllY(t *testing.T) {
	t.Parallel()

	x, y := getRatio(big.NewInt(50), big.NewInt(100), big.NewInt(0), big.NewInt(7))
	if x.Sign() != 0 {
		t.Fatalf("x = %v, want 0", x)
	}
	if y.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("y = %v, want 100", y)
	}
}

func TestGetRatioCurYZeroReturnsAllX(t *testing.T) {
	t.Parallel()

	x, y := getRatio(big.NewInt(50), big.NewInt(100), big.NewInt(7), big.NewInt(0))
	if y.Sign() != 0 {
		t.Fatalf("y = %v, want 0", y)
	}
	if x.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("x = %v, want 50", x)
	}
}

func TestBurnTokensXSideZero(t *testing.T) {
	t.Parallel()

	cur := types.Bin{X: big.NewInt(0), Y: big.NewInt(100), Tokens: big.NewInt(1000)}
	w := wanted{X: big.NewInt(0), Y: big.NewInt(60)}
	burn := burnTokens(cur, w)
	if burn.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("burn = %v, want 400", burn)
	}
}

func TestBurnTokensYSideZero(t *testing.T) {
	t.Parallel()

	cur := types.Bin{X: big.NewInt(100), Y: big.NewInt(0), Tokens: big.NewInt(1000)}
	w := wanted{X: big.NewInt(75), Y: big.NewInt(0)}
	burn := burnTokens(cur, w)
	if burn.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("burn = %v, want 250", burn)
	}
}

func TestBurnTokensBothSidesTakesLargerShrink(t *testing.T) {
	t.Parallel()

	// x shrinks by half (burn 500), y shrinks by a quarter (burn 250):
	// the larger of the two implied burns wins so neither side is left short.
	cur := types.Bin{X: big.NewInt(100), Y: big.NewInt(100), Tokens: big.NewInt(1000)}
	w := wanted{X: big.NewInt(50), Y: big.NewInt(75)}
	burn := burnTokens(cur, w)
	if burn.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("burn = %v, want 500", burn)
	}
}

func TestOnStatePauseReturnsNil(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Pause = true
	p := New(cfg, discardLogger())

	intent, activeID := p.OnState(100, 101, &types.BinLadder{ActiveID: 42})
	if intent != nil {
		t.Fatalf("expected nil intent while paused, got %+v", intent)
	}
	if activeID != 0 {
		t.Fatalf("expected zero-value activeID while paused, got %d", activeID)
	}
}

func TestOnStateReduceOnlyClearsWantedPositions(t *testing.T) {
	t.Parallel()

	const activeBin uint32 = 1 << 23

	cfg := baseConfig()
	cfg.ReduceOnly = true
	p := New(cfg, discardLogger())
	p.SetBalances(big.NewInt(0), big.NewInt(0))
	p.SetPositions(map[uint32]types.Bin{
		activeBin: {ID: activeBin, X: big.NewInt(500), Y: big.NewInt(0), Tokens: big.NewInt(500)},
	})
	p.LastFeeClaim = time.Now()
	p.LastGasCheck = time.Now()

	dex := &types.BinLadder{
		TokenXDecimals: 18,
		TokenYDecimals: 18,
		BinStep:        10,
		ActiveID:       activeBin,
		Bins: map[uint32]types.BinReserves{
			activeBin: {X: big.NewInt(1000), Y: big.NewInt(1000)},
		},
	}

	intent, activeID := p.OnState(1, 1, dex)
	if activeID != activeBin {
		t.Fatalf("activeID = %d, want %d", activeID, activeBin)
	}
	if intent == nil || intent.Kind != types.ExecuteCancel {
		t.Fatalf("expected a Cancel intent to withdraw the held position under reduce_only, got %+v", intent)
	}
	if len(intent.Withdrawals) != 1 || intent.Withdrawals[0].Amount.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected withdrawals: %+v", intent.Withdrawals)
	}
}

func TestOnStateNoChangeFallsBackToClaimWhenDue(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	p := New(cfg, discardLogger())
	p.SetBalances(big.NewInt(0), big.NewInt(0))
	p.LastFeeClaim = time.Now().Add(-2 * time.Hour)
	p.LastGasCheck = time.Now()

	// The quote sits inside the maker band, but the ladder has no bins,
	// balances are zero and the rebalance timer is fresh, so every step
	// before the diff is a no-op.
	dex := &types.BinLadder{
		TokenXDecimals: 18,
		TokenYDecimals: 18,
		BinStep:        10,
		ActiveID:       1 << 23,
		Bins:           map[uint32]types.BinReserves{},
	}

	intent, _ := p.OnState(1, 1, dex)
	if intent == nil || intent.Kind != types.ExecuteClaim {
		t.Fatalf("expected a Claim intent once the fee-claim interval elapsed, got %+v", intent)
	}
}

func TestOnStateNoChangeReturnsNilBeforeAnyTimerIsDue(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	p := New(cfg, discardLogger())
	p.SetBalances(big.NewInt(0), big.NewInt(0))
	now := time.Now()
	p.LastFeeClaim = now
	p.LastGasCheck = now
	p.LastRebalance = now

	dex := &types.BinLadder{
		TokenXDecimals: 18,
		TokenYDecimals: 18,
		BinStep:        10,
		ActiveID:       1 << 23,
		Bins:           map[uint32]types.BinReserves{},
	}

	intent, _ := p.OnState(1, 1, dex)
	if intent != nil {
		t.Fatalf("expected no intent when nothing changed and no timer is due, got %+v", intent)
	}
}
