package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestToBigSlice(t *testing.T) {
	t.Parallel()

	got := toBigSlice([]uint32{1, 2, 3})
	want := []int64{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Cmp(big.NewInt(w)) != 0 {
			t.Fatalf("got[%d] = %v, want %v", i, got[i], w)
		}
	}
}

func TestMMABIPackMake(t *testing.T) {
	t.Parallel()

	data, err := mmABI.Pack("make", toBigSlice([]uint32{1}), []*big.Int{big.NewInt(10)}, []*big.Int{big.NewInt(20)})
	if err != nil {
		t.Fatalf("pack make: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty calldata")
	}
}

func TestMMABIPackTake(t *testing.T) {
	t.Parallel()

	data, err := mmABI.Pack("take", big.NewInt(100), true)
	if err != nil {
		t.Fatalf("pack take: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty calldata")
	}
}

func TestMMABIPackGetBinBalances(t *testing.T) {
	t.Parallel()

	data, err := mmABI.Pack("getBinBalances", common.Address{}, toBigSlice([]uint32{1, 2, 3}))
	if err != nil {
		t.Fatalf("pack getBinBalances: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty calldata")
	}
}

func TestMMABIPackPendingFees(t *testing.T) {
	t.Parallel()

	data, err := mmABI.Pack("pendingFees", common.Address{}, toBigSlice([]uint32{1}))
	if err != nil {
		t.Fatalf("pack pendingFees: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty calldata")
	}
}

func TestWETHABIPackWithdraw(t *testing.T) {
	t.Parallel()

	data, err := wethABI.Pack("withdraw", big.NewInt(1000))
	if err != nil {
		t.Fatalf("pack withdraw: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty calldata")
	}
}
