package types

import (
	"math/big"
	"testing"
)

func TestTickResolve(t *testing.T) {
	t.Parallel()

	exact := NewExactTick(8388615)
	if got := exact.Resolve(8388608); got != 8388615 {
		t.Fatalf("exact tick resolve = %d, want 8388615", got)
	}

	delta := NewDeltaTick(-3)
	if got := delta.Resolve(8388608); got != 8388605 {
		t.Fatalf("delta tick resolve = %d, want 8388605", got)
	}
}

func TestPortfolioConfigEqual(t *testing.T) {
	t.Parallel()

	base := PortfolioConfig{
		TokenXDust:     big.NewInt(100),
		TokenYDust:     big.NewInt(200),
		MaxSkew:        0.6,
		TxLimit5Min:    10,
		MinGas:         big.NewInt(1_000_000),
		TakerProfitBps: 10,
	}
	same := base
	same.TokenXDust = big.NewInt(100)
	same.TokenYDust = big.NewInt(200)
	same.MinGas = big.NewInt(1_000_000)

	if !base.Equal(same) {
		t.Fatalf("expected equal configs to compare equal")
	}

	changed := same
	changed.MaxSkew = 0.7
	if base.Equal(changed) {
		t.Fatalf("expected differing MaxSkew to compare unequal")
	}

	changed2 := same
	changed2.TokenXDust = big.NewInt(101)
	if base.Equal(changed2) {
		t.Fatalf("expected differing TokenXDust to compare unequal")
	}
}

func TestExecuteConstructors(t *testing.T) {
	t.Parallel()

	make := NewMake([]MakeOrder{{Tick: NewExactTick(1), X: big.NewInt(1), Y: big.NewInt(2)}})
	if make.Kind != ExecuteMake || len(make.Deposits) != 1 {
		t.Fatalf("NewMake produced unexpected Execute: %+v", make)
	}

	take := NewTake(big.NewInt(10), big.NewInt(9), true)
	if take.Kind != ExecuteTake || !take.SwapForY {
		t.Fatalf("NewTake produced unexpected Execute: %+v", take)
	}

	if NewCheckGas().Kind != ExecuteCheckGas {
		t.Fatalf("NewCheckGas produced wrong kind")
	}
}
