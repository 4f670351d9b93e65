package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// The three on-chain contracts this quoter talks to are treated as an
// opaque "submit call, await receipt" surface: custom minimal ABI
// fragments for exactly the calls the executor needs, hand-packed via
// accounts/abi since there is no generated binding to import.

const mmABIJSON = `[
  {"type":"function","name":"make","inputs":[
    {"name":"ids","type":"uint256[]"},
    {"name":"amountsX","type":"uint256[]"},
    {"name":"amountsY","type":"uint256[]"}]},
  {"type":"function","name":"move","inputs":[
    {"name":"removeIds","type":"uint256[]"},
    {"name":"removeAmounts","type":"uint256[]"},
    {"name":"addIds","type":"uint256[]"},
    {"name":"addAmountsX","type":"uint256[]"},
    {"name":"addAmountsY","type":"uint256[]"}]},
  {"type":"function","name":"cancel","inputs":[
    {"name":"ids","type":"uint256[]"},
    {"name":"amounts","type":"uint256[]"}]},
  {"type":"function","name":"take","inputs":[
    {"name":"amountIn","type":"uint256"},
    {"name":"swapForY","type":"bool"}]},
  {"type":"function","name":"cancelNTake","inputs":[
    {"name":"cancelIds","type":"uint256[]"},
    {"name":"cancelAmounts","type":"uint256[]"},
    {"name":"amountIn","type":"uint256"},
    {"name":"swapForY","type":"bool"}]},
  {"type":"function","name":"claim","inputs":[
    {"name":"ids","type":"uint256[]"}]},
  {"type":"function","name":"getActiveId","stateMutability":"view","inputs":[],
    "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getBinStep","stateMutability":"view","inputs":[],
    "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getDecimals","stateMutability":"view","inputs":[],
    "outputs":[{"name":"decimalsX","type":"uint8"},{"name":"decimalsY","type":"uint8"}]},
  {"type":"function","name":"getBin","stateMutability":"view","inputs":[
    {"name":"id","type":"uint256"}],
    "outputs":[{"name":"reserveX","type":"uint256"},{"name":"reserveY","type":"uint256"}]},
  {"type":"function","name":"totalSupply","stateMutability":"view","inputs":[
    {"name":"id","type":"uint256"}],
    "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[
    {"name":"account","type":"address"},
    {"name":"id","type":"uint256"}],
    "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getFreeBalances","stateMutability":"view","inputs":[
    {"name":"account","type":"address"}],
    "outputs":[{"name":"x","type":"uint256"},{"name":"y","type":"uint256"}]},
  {"type":"function","name":"getBinBalances","stateMutability":"view","inputs":[
    {"name":"account","type":"address"},
    {"name":"ids","type":"uint256[]"}],
    "outputs":[{"name":"balances","type":"uint256[]"}]},
  {"type":"function","name":"pendingFees","stateMutability":"view","inputs":[
    {"name":"account","type":"address"},
    {"name":"ids","type":"uint256[]"}],
    "outputs":[{"name":"totalX","type":"uint256"},{"name":"totalY","type":"uint256"}]}
]`

const wethABIJSON = `[
  {"type":"function","name":"withdraw","inputs":[{"name":"amount","type":"uint256"}]},
  {"type":"function","name":"transferFrom","inputs":[
    {"name":"from","type":"address"},
    {"name":"to","type":"address"},
    {"name":"amount","type":"uint256"}]}
]`

var mmABI = mustParseABI(mmABIJSON)
var wethABI = mustParseABI(wethABIJSON)

func mustParseABI(js string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(js))
	if err != nil {
		panic(fmt.Sprintf("chain: invalid embedded ABI: %v", err))
	}
	return parsed
}

func toBigSlice(ids []uint32) []*big.Int {
	out := make([]*big.Int, len(ids))
	for i, id := range ids {
		out[i] = new(big.Int).SetUint64(uint64(id))
	}
	return out
}

// MM wraps the market-maker custody contract the executor calls for every
// Make/Move/Cancel/Take/CancelNTake/Claim action.
type MM struct {
	client  *Client
	address common.Address
}

// NewMM returns an MM bound to the given contract address.
func NewMM(client *Client, address common.Address) *MM {
	return &MM{client: client, address: address}
}

func (m *MM) call(ctx context.Context, value *big.Int, gasLimit uint64, gasPrice *big.Int, calldata []byte) (common.Hash, error) {
	nonce, err := m.client.PendingNonceAt(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}
	tx := types.NewTransaction(nonce, m.address, value, gasLimit, gasPrice, calldata)
	return m.client.SendTransaction(ctx, tx)
}

// Make deposits liquidity at ids, in amountsX of token X and amountsY of
// token Y per bin.
func (m *MM) Make(ctx context.Context, gasLimit uint64, gasPrice *big.Int, ids []uint32, amountsX, amountsY []*big.Int) (common.Hash, error) {
	data, err := mmABI.Pack("make", toBigSlice(ids), amountsX, amountsY)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack make: %w", err)
	}
	return m.call(ctx, big.NewInt(0), gasLimit, gasPrice, data)
}

// Move atomically withdraws removeIds/removeAmounts and redeposits at
// addIds/addAmountsX/addAmountsY.
func (m *MM) Move(ctx context.Context, gasLimit uint64, gasPrice *big.Int, removeIds []uint32, removeAmounts []*big.Int, addIds []uint32, addAmountsX, addAmountsY []*big.Int) (common.Hash, error) {
	data, err := mmABI.Pack("move", toBigSlice(removeIds), removeAmounts, toBigSlice(addIds), addAmountsX, addAmountsY)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack move: %w", err)
	}
	return m.call(ctx, big.NewInt(0), gasLimit, gasPrice, data)
}

// Cancel withdraws liquidity tokens at ids in amounts.
func (m *MM) Cancel(ctx context.Context, gasLimit uint64, gasPrice *big.Int, ids []uint32, amounts []*big.Int) (common.Hash, error) {
	data, err := mmABI.Pack("cancel", toBigSlice(ids), amounts)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack cancel: %w", err)
	}
	return m.call(ctx, big.NewInt(0), gasLimit, gasPrice, data)
}

// Take swaps amountIn of one token for the other; swapForY selects the
// direction (true: swap X in for Y out).
func (m *MM) Take(ctx context.Context, gasLimit uint64, gasPrice *big.Int, amountIn *big.Int, swapForY bool) (common.Hash, error) {
	data, err := mmABI.Pack("take", amountIn, swapForY)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack take: %w", err)
	}
	return m.call(ctx, big.NewInt(0), gasLimit, gasPrice, data)
}

// CancelNTake cancels the given liquidity and swaps amountIn in the same
// transaction.
func (m *MM) CancelNTake(ctx context.Context, gasLimit uint64, gasPrice *big.Int, cancelIds []uint32, cancelAmounts []*big.Int, amountIn *big.Int, swapForY bool) (common.Hash, error) {
	data, err := mmABI.Pack("cancelNTake", toBigSlice(cancelIds), cancelAmounts, amountIn, swapForY)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack cancelNTake: %w", err)
	}
	return m.call(ctx, big.NewInt(0), gasLimit, gasPrice, data)
}

// Claim collects accumulated fees for the given bin ids.
func (m *MM) Claim(ctx context.Context, gasLimit uint64, gasPrice *big.Int, ids []uint32) (common.Hash, error) {
	data, err := mmABI.Pack("claim", toBigSlice(ids))
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack claim: %w", err)
	}
	return m.call(ctx, big.NewInt(0), gasLimit, gasPrice, data)
}

func (m *MM) viewCall(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := mmABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := m.client.EthCall(ctx, m.address, data)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return mmABI.Unpack(method, raw)
}

// ActiveID reads the pair's current active bin id.
func (m *MM) ActiveID(ctx context.Context) (uint32, error) {
	out, err := m.viewCall(ctx, "getActiveId")
	if err != nil {
		return 0, err
	}
	return uint32(out[0].(*big.Int).Uint64()), nil
}

// BinStep reads the pair's fee/step parameter in basis points.
func (m *MM) BinStep(ctx context.Context) (uint16, error) {
	out, err := m.viewCall(ctx, "getBinStep")
	if err != nil {
		return 0, err
	}
	return uint16(out[0].(*big.Int).Uint64()), nil
}

// Decimals reads the two tokens' ERC20 decimals.
func (m *MM) Decimals(ctx context.Context) (uint8, uint8, error) {
	out, err := m.viewCall(ctx, "getDecimals")
	if err != nil {
		return 0, 0, err
	}
	return out[0].(uint8), out[1].(uint8), nil
}

// BinReserves reads one bin's pool-wide (x, y) reserves.
func (m *MM) BinReserves(ctx context.Context, id uint32) (*big.Int, *big.Int, error) {
	out, err := m.viewCall(ctx, "getBin", new(big.Int).SetUint64(uint64(id)))
	if err != nil {
		return nil, nil, err
	}
	return out[0].(*big.Int), out[1].(*big.Int), nil
}

// TotalSupply reads one bin's total outstanding liquidity-token supply.
func (m *MM) TotalSupply(ctx context.Context, id uint32) (*big.Int, error) {
	out, err := m.viewCall(ctx, "totalSupply", new(big.Int).SetUint64(uint64(id)))
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// LiquidityBalance reads account's liquidity-token balance in bin id.
func (m *MM) LiquidityBalance(ctx context.Context, account common.Address, id uint32) (*big.Int, error) {
	out, err := m.viewCall(ctx, "balanceOf", account, new(big.Int).SetUint64(uint64(id)))
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// FreeBalances reads account's undeployed x/y balances held by the mm
// contract (the atomic-unit amounts the decision engine calls x_free/y_free).
func (m *MM) FreeBalances(ctx context.Context, account common.Address) (*big.Int, *big.Int, error) {
	out, err := m.viewCall(ctx, "getFreeBalances", account)
	if err != nil {
		return nil, nil, err
	}
	return out[0].(*big.Int), out[1].(*big.Int), nil
}

// BinBalances reads account's liquidity-token balance across ids in one
// call. Callers must chunk ids into groups of at most 50 themselves.
func (m *MM) BinBalances(ctx context.Context, account common.Address, ids []uint32) ([]*big.Int, error) {
	out, err := m.viewCall(ctx, "getBinBalances", account, toBigSlice(ids))
	if err != nil {
		return nil, err
	}
	return out[0].([]*big.Int), nil
}

// PendingFees reads the pair's accrued-but-uncollected fee totals for
// account across ids.
func (m *MM) PendingFees(ctx context.Context, account common.Address, ids []uint32) (*big.Int, *big.Int, error) {
	out, err := m.viewCall(ctx, "pendingFees", account, toBigSlice(ids))
	if err != nil {
		return nil, nil, err
	}
	return out[0].(*big.Int), out[1].(*big.Int), nil
}

// WETH wraps the wrapped-native contract used only for CheckGas top-ups.
type WETH struct {
	client  *Client
	address common.Address
}

// NewWETH returns a WETH bound to the given contract address.
func NewWETH(client *Client, address common.Address) *WETH {
	return &WETH{client: client, address: address}
}

// Withdraw unwraps amount of WETH into native gas token, the preferred
// CheckGas top-up path.
func (w *WETH) Withdraw(ctx context.Context, gasLimit uint64, gasPrice *big.Int, amount *big.Int) (common.Hash, error) {
	data, err := wethABI.Pack("withdraw", amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack withdraw: %w", err)
	}
	nonce, err := w.client.PendingNonceAt(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}
	tx := types.NewTransaction(nonce, w.address, big.NewInt(0), gasLimit, gasPrice, data)
	return w.client.SendTransaction(ctx, tx)
}

// TransferFrom pulls amount of WETH from from to to, the CheckGas fallback
// path when submitting Withdraw fails.
func (w *WETH) TransferFrom(ctx context.Context, gasLimit uint64, gasPrice *big.Int, from, to common.Address, amount *big.Int) (common.Hash, error) {
	data, err := wethABI.Pack("transferFrom", from, to, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack transferFrom: %w", err)
	}
	nonce, err := w.client.PendingNonceAt(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}
	tx := types.NewTransaction(nonce, w.address, big.NewInt(0), gasLimit, gasPrice, data)
	return w.client.SendTransaction(ctx, tx)
}
