package executor

import (
	"math/big"
	"testing"
	"time"

	"binquoter/pkg/types"
)

func TestSplitDepositsResolvesTicks(t *testing.T) {
	t.Parallel()

	orders := []types.MakeOrder{
		{Tick: types.NewExactTick(100), X: big.NewInt(1), Y: big.NewInt(2)},
		{Tick: types.NewDeltaTick(-1), X: big.NewInt(3), Y: big.NewInt(4)},
	}
	ids, xs, ys := splitDeposits(200, orders)

	if ids[0] != 100 || ids[1] != 199 {
		t.Fatalf("ids = %v, want [100 199]", ids)
	}
	if xs[0].Cmp(big.NewInt(1)) != 0 || ys[1].Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("amounts not preserved: xs=%v ys=%v", xs, ys)
	}
}

func TestSplitWithdrawalsResolvesTicks(t *testing.T) {
	t.Parallel()

	orders := []types.CancelOrder{
		{Tick: types.NewDeltaTick(2), Amount: big.NewInt(5)},
	}
	ids, amounts := splitWithdrawals(100, orders)

	if ids[0] != 102 {
		t.Fatalf("id = %d, want 102", ids[0])
	}
	if amounts[0].Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("amount = %v, want 5", amounts[0])
	}
}

func TestGasPolicyScalesOnlyTakerVariants(t *testing.T) {
	t.Parallel()

	policy := GasPolicy{TakeGasPriceScaling: 3, GasConstant: 500000}
	base := big.NewInt(100)

	if got := policy.GasPrice(base, types.ExecuteTake); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("take gas price = %v, want 300", got)
	}
	if got := policy.GasPrice(base, types.ExecuteCancelNTake); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("cancel_n_take gas price = %v, want 300", got)
	}
	if got := policy.GasPrice(base, types.ExecuteMake); got.Cmp(base) != 0 {
		t.Fatalf("make gas price = %v, want unscaled %v", got, base)
	}
	if got := policy.GasLimit(types.ExecuteMake); got != 500000 {
		t.Fatalf("gas limit = %d, want 500000", got)
	}
}

func TestConsecutiveFailuresTerminatesAtThreshold(t *testing.T) {
	t.Parallel()

	count := 0
	for i := 0; i < maxConsecutiveFailures-1; i++ {
		count = nextFailureCount(count)
		if shouldTerminate(count) {
			t.Fatalf("terminated early at count %d", count)
		}
	}
	count = nextFailureCount(count)
	if !shouldTerminate(count) {
		t.Fatalf("expected termination at count %d (threshold %d)", count, maxConsecutiveFailures)
	}
}

func TestRateLimiterZeroLimitNeverAllows(t *testing.T) {
	t.Parallel()

	// CheckGas bypasses the rate limiter entirely in Execute's dispatch;
	// this only documents the limiter's own behavior at limit zero.
	rl := NewRateLimiter(0)
	if rl.Allow(time.Now()) {
		t.Fatalf("a zero-limit limiter should never allow a call")
	}
}
