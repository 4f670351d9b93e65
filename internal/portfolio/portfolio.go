// Package portfolio implements the Portfolio Decision Engine: the pure
// state function that reconciles a CEX reference quote against the DEX
// bin-ladder snapshot and emits at most one Execute intent per call.
package portfolio

import (
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/holiman/uint256"

	"binquoter/internal/fixedpoint"
	"binquoter/pkg/types"
)

const (
	feeClaimInterval = time.Hour
	gasCheckInterval = 10 * time.Minute
)

// wanted is the desired (x, y) atomic amount for one bin, accumulated
// across the decision steps before being diffed against current positions.
type wanted struct {
	X *big.Int
	Y *big.Int
}

// Portfolio is the decision engine's mutable state: balances, owned
// positions, config, and the three timers. It has no suspension points —
// every method here runs to completion synchronously.
type Portfolio struct {
	XBalance *big.Int
	YBalance *big.Int
	XFree    *big.Int
	YFree    *big.Int

	Positions map[uint32]types.Bin

	Config types.PortfolioConfig

	LastFeeClaim  time.Time
	LastGasCheck  time.Time
	LastRebalance time.Time

	logger *slog.Logger
}

// New constructs a Portfolio with zero balances and no positions; the
// caller (cmd/quoter) populates both from a warm-start chain read before
// the first call to OnState.
func New(cfg types.PortfolioConfig, logger *slog.Logger) *Portfolio {
	now := time.Now()
	return &Portfolio{
		XBalance:      big.NewInt(0),
		YBalance:      big.NewInt(0),
		XFree:         big.NewInt(0),
		YFree:         big.NewInt(0),
		Positions:     make(map[uint32]types.Bin),
		Config:        cfg,
		LastFeeClaim:  now,
		LastGasCheck:  now,
		LastRebalance: now,
		logger:        logger.With("component", "portfolio"),
	}
}

// UpdateConfig hot-swaps portfolio_config after a reload. Timers are left
// untouched so an in-progress rebalance/claim/gas-check cadence survives.
func (p *Portfolio) UpdateConfig(cfg types.PortfolioConfig) {
	p.Config = cfg
}

// SetBalances overwrites free/total balances after a post-execution refresh.
func (p *Portfolio) SetBalances(xBalance, yBalance *big.Int) {
	p.XBalance = xBalance
	p.YBalance = yBalance
	p.XFree = new(big.Int).Set(xBalance)
	p.YFree = new(big.Int).Set(yBalance)
}

// SetPositions overwrites the owned-position map after a post-execution
// refresh (typically restricted to the ±10-bin window around active_id).
func (p *Portfolio) SetPositions(positions map[uint32]types.Bin) {
	p.Positions = positions
}

func bigFloat(x *big.Int) float64 {
	f := new(big.Float).SetInt(x)
	out, _ := f.Float64()
	return out
}

func floatToBig(f float64) *big.Int {
	if f < 0 {
		f = 0
	}
	bf := new(big.Float).SetFloat64(f)
	out, _ := bf.Int(nil)
	return out
}

func mulBigByFloat(a *big.Int, f float64) *big.Int {
	return floatToBig(bigFloat(a) * f)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return a
	}
	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// derived holds every quantity the decision engine needs, computed once per
// OnState call.
type derived struct {
	activeID uint32
	price128 *uint256.Int

	maxBid, minAsk           float64
	bidThreshold, askThresh  float64
	curBid, curAsk, curMid   float64
	cexMid                   float64
	pxSkew                   float64
	xAmt, yAmt               *big.Int
	impliedXValue            *big.Int
	xSkew                    float64
	directionalSkew          float64
	totalValue               *big.Int
	xDeployableInY           *big.Int
	yDeployable              *big.Int
	xDeployable              *big.Int
}

func priceFloatAt(id uint32, binStep uint16, xDecimals, yDecimals uint8) float64 {
	p := fixedpoint.PriceFromID(id, binStep)
	return fixedpoint.PriceToFloat(p) * math.Pow10(int(xDecimals)-int(yDecimals))
}

func (p *Portfolio) computeDerived(cexBid, cexAsk float64, dex *types.BinLadder) derived {
	cfg := p.Config
	activeID := dex.ActiveID

	maxBid := cexBid * (1 + float64(cfg.MakerLossBps)/10000)
	minAsk := cexAsk * (1 - float64(cfg.MakerLossBps)/10000)
	bidThreshold := cexBid * (1 - float64(cfg.TakerProfitBps)/10000)
	askThreshold := cexAsk * (1 + float64(cfg.TakerProfitBps)/10000)

	price128 := fixedpoint.PriceFromID(activeID, dex.BinStep)
	curMid := fixedpoint.PriceToFloat(price128) * math.Pow10(int(dex.TokenXDecimals)-int(dex.TokenYDecimals))

	// The bin ladder has no continuous order book; its natural "top of
	// book" is the price one bin away from active on either side.
	curBid := priceFloatAt(activeID-1, dex.BinStep, dex.TokenXDecimals, dex.TokenYDecimals)
	curAsk := priceFloatAt(activeID+1, dex.BinStep, dex.TokenXDecimals, dex.TokenYDecimals)

	cexMid := (cexBid + cexAsk) / 2
	pxSkew := clamp(cfg.PxScalingFactor*(curMid/cexMid-1)+0.5, 0, 1)

	xDeployed := big.NewInt(0)
	yDeployed := big.NewInt(0)
	for _, bin := range p.Positions {
		xDeployed.Add(xDeployed, bin.X)
		yDeployed.Add(yDeployed, bin.Y)
	}
	xAmt := new(big.Int).Add(xDeployed, p.XFree)
	yAmt := new(big.Int).Add(yDeployed, p.YFree)

	impliedXValue := fixedpoint.XInTermsOfY(price128, xAmt)
	totalValue := new(big.Int).Add(impliedXValue, yAmt)

	xSkew := 0.0
	if totalValue.Sign() > 0 {
		xSkew = bigFloat(impliedXValue) / bigFloat(totalValue)
	}

	denom := cfg.PxSkewFactor + cfg.PortfolioSkewFactor
	directionalSkew := 0.5
	if denom != 0 {
		directionalSkew = (cfg.PxSkewFactor*pxSkew + cfg.PortfolioSkewFactor*xSkew) / denom
	}

	xDeployableInY := mulBigByFloat(minBig(impliedXValue, mulBigByFloat(totalValue, directionalSkew)), 1-cfg.TokenXReserve)
	yDeployable := mulBigByFloat(minBig(yAmt, mulBigByFloat(totalValue, 1-directionalSkew)), 1-cfg.TokenYReserve)
	xDeployable := fixedpoint.YInTermsOfX(price128, xDeployableInY)

	return derived{
		activeID:        activeID,
		price128:        price128,
		maxBid:          maxBid,
		minAsk:          minAsk,
		bidThreshold:    bidThreshold,
		askThresh:       askThreshold,
		curBid:          curBid,
		curAsk:          curAsk,
		curMid:          curMid,
		cexMid:          cexMid,
		pxSkew:          pxSkew,
		xAmt:            xAmt,
		yAmt:            yAmt,
		impliedXValue:   impliedXValue,
		xSkew:           xSkew,
		directionalSkew: directionalSkew,
		totalValue:      totalValue,
		xDeployableInY:  xDeployableInY,
		yDeployable:     yDeployable,
		xDeployable:     xDeployable,
	}
}

// getRatio returns the largest (x, y) ≤ (maxX, maxY) whose ratio equals
// (curX, curY)'s. Any outcome outside the two saturating cases or the
// exact-fit case is a programmer error.
func getRatio(maxX, maxY, curX, curY *big.Int) (*big.Int, *big.Int) {
	if curX.Sign() == 0 {
		return big.NewInt(0), new(big.Int).Set(maxY)
	}
	if curY.Sign() == 0 {
		return new(big.Int).Set(maxX), big.NewInt(0)
	}

	calcY := new(big.Int).Mul(maxX, curY)
	calcY.Div(calcY, curX)
	calcX := new(big.Int).Mul(maxY, curX)
	calcX.Div(calcX, curY)

	switch {
	case calcX.Cmp(maxX) > 0:
		return new(big.Int).Set(maxX), calcY
	case calcY.Cmp(maxY) > 0:
		return calcX, new(big.Int).Set(maxY)
	case calcX.Cmp(maxX) <= 0 && calcY.Cmp(maxY) <= 0:
		return calcX, calcY
	default:
		panic("portfolio: unreachable branch in get_ratio")
	}
}

func absCmp(a, b *big.Int) int {
	return new(big.Int).Abs(a).Cmp(b)
}

func belowDust(x, y *big.Int, dustX, dustY *big.Int) bool {
	return absCmp(x, dustX) < 0 && absCmp(y, dustY) < 0
}

// OnState is the decision engine's single public operation: given the
// latest CEX quote and DEX snapshot, it returns at most one Execute intent
// and the active bin id at evaluation time.
func (p *Portfolio) OnState(cexBid, cexAsk float64, dex *types.BinLadder) (*types.Execute, uint32) {
	cfg := p.Config

	if cfg.Pause {
		return nil, 0
	}

	d := p.computeDerived(cexBid, cexAsk, dex)
	activeID := d.activeID
	wantedPositions := make(map[uint32]wanted)
	xRemaining := new(big.Int).Set(d.xDeployable)
	yRemaining := new(big.Int).Set(d.yDeployableOrZero())

	// Step 2: in-band quoting.
	if d.curBid < d.maxBid && d.curAsk > d.minAsk {
		_, owned := p.Positions[activeID]
		buffered := d.curBid < 0.9999*d.maxBid && d.curAsk > 1.0001*d.minAsk
		if owned || buffered {
			if bin, ok := dex.Bins[activeID]; ok {
				x, y := getRatio(xRemaining, yRemaining, bin.X, bin.Y)
				wantedPositions[activeID] = wanted{X: x, Y: y}
				xRemaining.Sub(xRemaining, x)
				yRemaining.Sub(yRemaining, y)
			}
		}
	} else if d.curAsk < d.bidThreshold && d.xSkew < cfg.MaxSkew {
		// Step 3: DEX underpriced — buy x.
		scaling := cfg.TakerScalingFactor*(d.bidThreshold/d.curAsk-1) + 0.95
		maxSkewTarget := cfg.MaxSkew * scaling
		targetFrac := math.Max(d.xSkew, maxSkewTarget)
		if targetFrac > 1 {
			targetFrac = 1
		}
		target := mulBigByFloat(d.totalValue, targetFrac)
		xOutY := new(big.Int).Sub(target, d.impliedXValue)
		if xOutY.Sign() > 0 {
			price128 := fixedpoint.PriceFromID(activeID, dex.BinStep)
			xOut := fixedpoint.YInTermsOfX(price128, xOutY)
			cap := activeBinCap(dex, p.Positions, activeID, false)
			xOut = minBig(xOut, cap)
			if intent := p.makeTake(price128, xOut, false, cfg); intent != nil {
				return intent, activeID
			}
		}
	} else if d.curBid > d.askThresh && d.xSkew > 1-cfg.MaxSkew {
		// Step 4: DEX overpriced — sell x (symmetric to step 3).
		scaling := cfg.TakerScalingFactor*(d.curBid/d.askThresh-1) + 0.95
		maxSkewTarget := cfg.MaxSkew * scaling
		targetFrac := math.Max(1-d.xSkew, maxSkewTarget)
		if targetFrac > 1 {
			targetFrac = 1
		}
		target := mulBigByFloat(d.totalValue, targetFrac)
		yOut := new(big.Int).Sub(target, d.yAmt)
		if yOut.Sign() > 0 {
			price128 := fixedpoint.PriceFromID(activeID, dex.BinStep)
			cap := activeBinCap(dex, p.Positions, activeID, true)
			yOut = minBig(yOut, cap)
			if intent := p.makeTake(price128, yOut, true, cfg); intent != nil {
				return intent, activeID
			}
		}
	}

	// Step 5: periodic inventory rebalance.
	if time.Since(p.LastRebalance) >= time.Duration(cfg.RebalanceInterval)*time.Minute {
		p.LastRebalance = time.Now()
		price128 := fixedpoint.PriceFromID(activeID, dex.BinStep)
		if d.directionalSkew > cfg.MaxSkew {
			scale := d.directionalSkew / cfg.MaxSkew
			frac := math.Min(0.5, (1-cfg.MaxSkew)*scale)
			target := mulBigByFloat(d.totalValue, frac)
			yOut := new(big.Int).Sub(target, d.yAmt)
			if yOut.Sign() > 0 {
				if intent := p.makeTake(price128, yOut, true, cfg); intent != nil {
					return intent, activeID
				}
			}
		} else if d.directionalSkew < 1-cfg.MaxSkew {
			scale := (1 - d.directionalSkew) / cfg.MaxSkew
			frac := math.Min(0.5, (1-cfg.MaxSkew)*scale)
			target := mulBigByFloat(d.totalValue, frac)
			xOutY := new(big.Int).Sub(target, d.impliedXValue)
			if xOutY.Sign() > 0 {
				xOut := fixedpoint.YInTermsOfX(price128, xOutY)
				if intent := p.makeTake(price128, xOut, false, cfg); intent != nil {
					return intent, activeID
				}
			}
		}
	}

	// Step 6: active-bin one-sidedness.
	if w, ok := wantedPositions[activeID]; ok {
		xDust := absCmp(w.X, cfg.TokenXDust) < 0
		yDust := absCmp(w.Y, cfg.TokenYDust) < 0
		if xDust != yDust { // exactly one side is dust, the other isn't
			for _, delta := range []int32{1, 2} {
				var candidate uint32
				if xDust {
					candidate = activeID + uint32(delta) // x-only: place above active
				} else {
					candidate = activeID - uint32(delta) // y-only: place below active
				}
				price := priceFloatAt(candidate, dex.BinStep, dex.TokenXDecimals, dex.TokenYDecimals)
				if price > d.maxBid && price < d.minAsk {
					if xDust {
						wantedPositions[candidate] = wanted{X: new(big.Int).Set(xRemaining), Y: big.NewInt(0)}
					} else {
						wantedPositions[candidate] = wanted{X: big.NewInt(0), Y: new(big.Int).Set(yRemaining)}
					}
					break
				}
			}
		}
	}

	// Step 7: reduce-only override.
	if cfg.ReduceOnly {
		wantedPositions = map[uint32]wanted{}
	}

	// Step 8: diff to intent.
	return p.getDiff(wantedPositions), activeID
}

// yDeployableOrZero guards against a nil yDeployable (shouldn't happen, but
// keeps Sub/Set calls above from panicking on a zero-value derived{}).
func (d derived) yDeployableOrZero() *big.Int {
	if d.yDeployable == nil {
		return big.NewInt(0)
	}
	return d.yDeployable
}

// activeBinCap clips a taker leg's size by the opposite-side headroom in
// the active bin: the bin's pool-wide reserve on the outgoing side, minus
// whatever of it this portfolio already owns there.
func activeBinCap(dex *types.BinLadder, positions map[uint32]types.Bin, activeID uint32, swapForY bool) *big.Int {
	bin, ok := dex.Bins[activeID]
	if !ok {
		return big.NewInt(0)
	}
	owned, hasOwned := positions[activeID]

	if swapForY {
		cap := new(big.Int).Set(bin.Y)
		if hasOwned {
			cap.Sub(cap, owned.Y)
		}
		if cap.Sign() < 0 {
			return big.NewInt(0)
		}
		return cap
	}
	cap := new(big.Int).Set(bin.X)
	if hasOwned {
		cap.Sub(cap, owned.X)
	}
	if cap.Sign() < 0 {
		return big.NewInt(0)
	}
	return cap
}

// makeTake builds a Take or CancelNTake intent for swapForY direction,
// discounting the requested output for slippage/floor protection and
// dropping the intent entirely if what's left doesn't clear dust.
func (p *Portfolio) makeTake(price128 *uint256.Int, amtOut *big.Int, swapForY bool, cfg types.PortfolioConfig) *types.Execute {
	if amtOut == nil || amtOut.Sign() <= 0 {
		return nil
	}

	var amtIn *big.Int
	if swapForY {
		amtIn = fixedpoint.YInTermsOfX(price128, amtOut)
	} else {
		amtIn = fixedpoint.XInTermsOfY(price128, amtOut)
	}

	discountBps := new(big.Int).SetUint64(10000 - 2*cfg.TakerProfitBps)
	amtOutAccepted := new(big.Int).Mul(amtOut, discountBps)
	amtOutAccepted.Div(amtOutAccepted, big.NewInt(10000))

	dust := cfg.TokenXDust
	if swapForY {
		dust = cfg.TokenYDust
	}
	if absCmp(amtOutAccepted, dust) < 0 {
		return nil
	}

	if len(p.Positions) > 0 {
		orders := make([]types.CancelOrder, 0, len(p.Positions))
		for id, bin := range p.Positions {
			orders = append(orders, types.CancelOrder{Tick: types.NewExactTick(id), Amount: bin.Tokens})
		}
		intent := types.NewCancelNTake(amtIn, amtOutAccepted, swapForY, orders)
		return &intent
	}

	intent := types.NewTake(amtIn, amtOutAccepted, swapForY)
	return &intent
}

// getDiff reconciles wantedPositions against the currently owned positions,
// returning the single resulting intent.
func (p *Portfolio) getDiff(wantedPositions map[uint32]wanted) *types.Execute {
	cfg := p.Config

	ids := make(map[uint32]struct{}, len(wantedPositions)+len(p.Positions))
	for id := range wantedPositions {
		ids[id] = struct{}{}
	}
	for id := range p.Positions {
		ids[id] = struct{}{}
	}

	var toAdd []types.MakeOrder
	var toCancel []types.CancelOrder

	for id := range ids {
		w, hasWanted := wantedPositions[id]
		cur, hasCur := p.Positions[id]

		switch {
		case hasWanted && hasCur:
			if w.X.Sign() == 0 && w.Y.Sign() == 0 {
				if !belowDust(cur.X, cur.Y, cfg.TokenXDust, cfg.TokenYDust) {
					toCancel = append(toCancel, types.CancelOrder{Tick: types.NewExactTick(id), Amount: cur.Tokens})
				}
				continue
			}
			if w.X.Cmp(cur.X) >= 0 && w.Y.Cmp(cur.Y) >= 0 {
				dx := new(big.Int).Sub(w.X, cur.X)
				dy := new(big.Int).Sub(w.Y, cur.Y)
				if absCmp(dx, cfg.TokenXDust) >= 0 || absCmp(dy, cfg.TokenYDust) >= 0 {
					toAdd = append(toAdd, types.MakeOrder{Tick: types.NewExactTick(id), X: dx, Y: dy})
				}
			} else if w.X.Cmp(cur.X) <= 0 && w.Y.Cmp(cur.Y) <= 0 {
				shortX := new(big.Int).Sub(cur.X, w.X)
				shortY := new(big.Int).Sub(cur.Y, w.Y)
				if absCmp(shortX, cfg.TokenXDust) >= 0 || absCmp(shortY, cfg.TokenYDust) >= 0 {
					burn := burnTokens(cur, w)
					toCancel = append(toCancel, types.CancelOrder{Tick: types.NewExactTick(id), Amount: burn})
				}
			}
		case hasWanted && !hasCur:
			if absCmp(w.X, cfg.TokenXDust) >= 0 || absCmp(w.Y, cfg.TokenYDust) >= 0 {
				toAdd = append(toAdd, types.MakeOrder{Tick: types.NewExactTick(id), X: w.X, Y: w.Y})
			}
		case !hasWanted && hasCur:
			toCancel = append(toCancel, types.CancelOrder{Tick: types.NewExactTick(id), Amount: cur.Tokens})
		}
	}

	toAdd = filterDustAdds(toAdd, cfg)
	if len(toAdd) == 0 {
		allDust := true
		for _, c := range toCancel {
			if c.Amount.Sign() != 0 {
				allDust = false
				break
			}
		}
		if allDust {
			toCancel = nil
		}
	}

	switch {
	case len(toAdd) > 0 && len(toCancel) > 0:
		intent := types.NewMove(toCancel, toAdd)
		return &intent
	case len(toAdd) > 0:
		intent := types.NewMake(toAdd)
		return &intent
	case len(toCancel) > 0:
		intent := types.NewCancel(toCancel)
		return &intent
	default:
		now := time.Now()
		if now.Sub(p.LastFeeClaim) >= feeClaimInterval {
			p.LastFeeClaim = now
			intent := types.NewClaim()
			return &intent
		}
		if now.Sub(p.LastGasCheck) >= gasCheckInterval {
			p.LastGasCheck = now
			intent := types.NewCheckGas()
			return &intent
		}
		return nil
	}
}

func filterDustAdds(orders []types.MakeOrder, cfg types.PortfolioConfig) []types.MakeOrder {
	out := orders[:0]
	for _, o := range orders {
		if absCmp(o.X, cfg.TokenXDust) >= 0 || absCmp(o.Y, cfg.TokenYDust) >= 0 {
			out = append(out, o)
		}
	}
	return out
}

// burnTokens computes the liquidity-token amount to burn to reduce an
// owned bin from cur down to w, matching whichever side shrank by more.
func burnTokens(cur types.Bin, w wanted) *big.Int {
	switch {
	case cur.X.Sign() == 0:
		num := new(big.Int).Sub(cur.Y, w.Y)
		num.Mul(cur.Tokens, num)
		return num.Div(num, cur.Y)
	case cur.Y.Sign() == 0:
		num := new(big.Int).Sub(cur.X, w.X)
		num.Mul(cur.Tokens, num)
		return num.Div(num, cur.X)
	default:
		numX := new(big.Int).Sub(cur.X, w.X)
		numX.Mul(cur.Tokens, numX)
		numX.Div(numX, cur.X)
		numY := new(big.Int).Sub(cur.Y, w.Y)
		numY.Mul(cur.Tokens, numY)
		numY.Div(numY, cur.Y)
		if numX.Cmp(numY) > 0 {
			return numX
		}
		return numY
	}
}
