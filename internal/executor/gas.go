package executor

import (
	"math/big"

	"binquoter/pkg/types"
)

// GasPolicy derives the gas price and limit for a given Execute variant.
// Taker transactions (Take, CancelNTake) scale the node's suggested gas
// price up so they land ahead of makers during volatility; every other
// variant uses a flat gas limit and the node's suggested price unscaled.
type GasPolicy struct {
	TakeGasPriceScaling uint64
	GasConstant         uint64
}

// GasPrice scales base (the node's suggested gas price) for taker variants.
func (g GasPolicy) GasPrice(base *big.Int, kind types.ExecuteKind) *big.Int {
	if kind != types.ExecuteTake && kind != types.ExecuteCancelNTake {
		return base
	}
	if g.TakeGasPriceScaling == 0 {
		return base
	}
	return new(big.Int).Mul(base, new(big.Int).SetUint64(g.TakeGasPriceScaling))
}

// GasLimit returns the flat gas limit configured for every variant.
func (g GasPolicy) GasLimit(types.ExecuteKind) uint64 {
	return g.GasConstant
}
