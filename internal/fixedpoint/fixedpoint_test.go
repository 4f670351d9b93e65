package fixedpoint

import (
	"math"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
)

func TestPriceFromIDNeutralIsOne(t *testing.T) {
	t.Parallel()

	price := PriceFromID(NeutralID, 25)
	got := PriceToFloat(price)
	if math.Abs(got-1.0) > 1e-12 {
		t.Fatalf("price at neutral id = %v, want 1.0", got)
	}
}

func TestPriceFromIDMonotonic(t *testing.T) {
	t.Parallel()

	const binStep = 25
	prev := PriceToFloat(PriceFromID(NeutralID-5, binStep))
	for delta := int32(-4); delta <= 5; delta++ {
		id := uint32(int64(NeutralID) + int64(delta))
		cur := PriceToFloat(PriceFromID(id, binStep))
		if cur <= prev {
			t.Fatalf("price not monotonically increasing at delta %d: prev=%v cur=%v", delta, prev, cur)
		}
		prev = cur
	}
}

func TestPriceFromIDReciprocalSymmetry(t *testing.T) {
	t.Parallel()

	const binStep = 100
	above := PriceToFloat(PriceFromID(NeutralID+10, binStep))
	below := PriceToFloat(PriceFromID(NeutralID-10, binStep))

	product := above * below
	if math.Abs(product-1.0) > 1e-6 {
		t.Fatalf("price(id+10)*price(id-10) = %v, want ~1.0", product)
	}
}

func TestXInTermsOfYRoundTrip(t *testing.T) {
	t.Parallel()

	price := PriceFromID(NeutralID+50, 10)
	x := big.NewInt(1_000_000_000)

	y := XInTermsOfY(price, x)
	back := YInTermsOfX(price, y)

	diff := new(big.Int).Sub(x, back)
	diff.Abs(diff)
	// Two fixed-point divisions lose at most a handful of units to truncation.
	if diff.Cmp(big.NewInt(10)) > 0 {
		t.Fatalf("round trip drift too large: x=%v back=%v diff=%v", x, back, diff)
	}
}

func TestYInTermsOfXZeroPricePanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on zero price")
		}
	}()
	YInTermsOfX(new(uint256.Int), big.NewInt(1))
}

