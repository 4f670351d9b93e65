// Package fixedpoint implements the Q128.128 fixed-point arithmetic the
// bin-ladder price model is built on: 256-bit integers with 128 fractional
// bits, so that bin-step compounding and price-to-amount conversions never
// lose precision to float64 rounding.
package fixedpoint

import (
	"math"
	"math/big"

	"github.com/holiman/uint256"
)

// FractionalBits is the number of fractional bits in a Q128.128 value.
const FractionalBits = 8 * 16 // 128

// NeutralID is the bin id priced at exactly 1.0 (2^23), the midpoint of the
// 24-bit bin id space.
const NeutralID uint32 = 1 << 23

// one is the Q128.128 representation of 1.0.
var one = new(uint256.Int).Lsh(uint256.NewInt(1), FractionalBits)

// mulDiv computes floor(x*y/d) using a 512-bit intermediate product so
// neither the multiply nor the implicit shift overflows 256 bits.
func mulDiv(x, y, d *uint256.Int) *uint256.Int {
	res, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		panic("fixedpoint: mulDiv overflow")
	}
	return res
}

// PriceFromID returns the Q128.128 price of bin id relative to NeutralID,
// given the pair's bin step in basis points. Each bin away from NeutralID
// compounds the price by a factor of (10000+binStep)/10000; bins below
// NeutralID take the reciprocal.
func PriceFromID(id uint32, binStep uint16) *uint256.Int {
	base := new(uint256.Int).Mul(uint256.NewInt(uint64(10000+binStep)), one)
	base.Div(base, uint256.NewInt(10000))

	var exponent uint32
	invert := false
	if id >= NeutralID {
		exponent = id - NeutralID
	} else {
		exponent = NeutralID - id
		invert = true
	}

	price := powQ128(base, exponent)
	if !invert {
		return price
	}
	return mulDiv(one, one, price)
}

// powQ128 raises a Q128.128 base to an integer exponent via square-and-multiply.
func powQ128(base *uint256.Int, exponent uint32) *uint256.Int {
	result := new(uint256.Int).Set(one)
	b := new(uint256.Int).Set(base)
	for exponent > 0 {
		if exponent&1 == 1 {
			result = mulDiv(result, b, one)
		}
		if exponent > 1 {
			b = mulDiv(b, b, one)
		}
		exponent >>= 1
	}
	return result
}

// XInTermsOfY converts an amount of token X into token Y at price
// (Q128.128): y = (price * x) >> 128.
func XInTermsOfY(price *uint256.Int, x *big.Int) *big.Int {
	xu, overflow := uint256.FromBig(x)
	if overflow {
		panic("fixedpoint: x does not fit in 256 bits")
	}
	return mulDiv(price, xu, one).ToBig()
}

// YInTermsOfX converts an amount of token Y into token X at price
// (Q128.128): x = (y << 128) / price.
func YInTermsOfX(price *uint256.Int, y *big.Int) *big.Int {
	yu, overflow := uint256.FromBig(y)
	if overflow {
		panic("fixedpoint: y does not fit in 256 bits")
	}
	if price.IsZero() {
		panic("fixedpoint: division by zero price")
	}
	return mulDiv(yu, one, price).ToBig()
}

// ToFloat converts a raw on-chain integer amount to a human-readable float
// given the token's decimals, for logging only — never used in decision math.
func ToFloat(amount *big.Int, decimals uint8) float64 {
	if amount == nil {
		return 0
	}
	f := new(big.Float).SetInt(amount)
	scale := new(big.Float).SetFloat64(math.Pow10(int(decimals)))
	f.Quo(f, scale)
	out, _ := f.Float64()
	return out
}

// PriceToFloat converts a Q128.128 price to float64 for logging/comparison
// against CEX float prices. Precision loss here is acceptable: it is used
// only to compute mid-price skew ratios, never to move on-chain amounts.
func PriceToFloat(price *uint256.Int) float64 {
	f := new(big.Float).SetInt(price.ToBig())
	scale := new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), FractionalBits))
	f.Quo(f, scale)
	out, _ := f.Float64()
	return out
}
