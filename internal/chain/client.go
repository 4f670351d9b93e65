package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-resty/resty/v2"
)

// assignArchiveResult re-marshals the generically-decoded JSON-RPC result
// and unmarshals it into out's concrete type.
func assignArchiveResult(result any, out any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// Client wires a live websocket node (tx submission, receipt polling, gas
// suggestions) alongside an archive node reached over plain HTTP for
// warm-start reads that a websocket node may prune.
type Client struct {
	Signer *Signer

	eth     *ethclient.Client
	archive *resty.Client

	logger *slog.Logger
}

// Dial connects to both the websocket RPC and the archive RPC endpoints,
// then derives the signer from ownerKeyHex against the connected chain id
// (mirroring the reference's LocalWallet::with_chain_id after connecting).
func Dial(ctx context.Context, wsrpc, archiverpc, ownerKeyHex string, logger *slog.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, wsrpc)
	if err != nil {
		return nil, fmt.Errorf("dial wsrpc: %w", err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}

	signer, err := NewSigner(ownerKeyHex, chainID)
	if err != nil {
		return nil, err
	}

	archive := resty.New().
		SetBaseURL(archiverpc).
		SetHeader("Content-Type", "application/json")

	return &Client{
		Signer:  signer,
		eth:     eth,
		archive: archive,
		logger:  logger.With("component", "chain"),
	}, nil
}

// ChainID returns the connected node's chain id.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.eth.ChainID(ctx)
}

// SuggestGasPrice returns the node's current suggested gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasPrice(ctx)
}

// PendingNonceAt returns the signer's next usable nonce.
func (c *Client) PendingNonceAt(ctx context.Context) (uint64, error) {
	return c.eth.PendingNonceAt(ctx, c.Signer.Address())
}

// BalanceAt returns the native balance of the signer's own address.
func (c *Client) BalanceAt(ctx context.Context) (*big.Int, error) {
	return c.eth.BalanceAt(ctx, c.Signer.Address(), nil)
}

// SendTransaction signs and broadcasts tx, returning its hash.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	signed, err := c.Signer.SignTx(tx)
	if err != nil {
		return common.Hash{}, err
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}
	return signed.Hash(), nil
}

// TransactionReceipt polls once for tx's receipt; it returns
// ethereum.NotFound (wrapped) while the transaction is still pending.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return c.eth.TransactionReceipt(ctx, hash)
}

// archiveRPCRequest is a JSON-RPC 2.0 envelope sent to the archive node.
type archiveRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type archiveRPCResponse struct {
	Result any `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// BlockNumber returns the archive node's current block height, used to
// stamp warm-start and periodic DEX-state reads with a last_block value.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var hex string
	if err := c.ArchiveCall(ctx, "eth_blockNumber", []any{}, &hex); err != nil {
		return 0, err
	}
	n, ok := new(big.Int).SetString(trimHexPrefix(hex), 16)
	if !ok {
		return 0, fmt.Errorf("block number: malformed hex %q", hex)
	}
	return n.Uint64(), nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// EthCall issues eth_call against the archive node for a read-only view
// function and returns the raw returned bytes.
func (c *Client) EthCall(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	callObj := map[string]string{
		"to":   to.Hex(),
		"data": "0x" + common.Bytes2Hex(data),
	}
	var hex string
	if err := c.ArchiveCall(ctx, "eth_call", []any{callObj, "latest"}, &hex); err != nil {
		return nil, err
	}
	return common.FromHex(hex), nil
}

// ArchiveCall issues a raw JSON-RPC call against the archive endpoint,
// used for warm-start balance/position reads that don't need a live
// subscription. resty decodes the JSON-RPC envelope, and its result field is
// then re-decoded into out.
func (c *Client) ArchiveCall(ctx context.Context, method string, params []any, out any) error {
	var rpcResp struct {
		Result any `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	resp, err := c.archive.R().
		SetContext(ctx).
		SetBody(archiveRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}).
		SetResult(&rpcResp).
		Post("")
	if err != nil {
		return fmt.Errorf("archive call %s: %w", method, err)
	}
	if resp.IsError() {
		return fmt.Errorf("archive call %s: http %d", method, resp.StatusCode())
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("archive call %s: rpc error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}

	// decode result into out via the struct already populated by resty
	if out != nil {
		if err := assignArchiveResult(rpcResp.Result, out); err != nil {
			return fmt.Errorf("archive call %s: decode result: %w", method, err)
		}
	}
	return nil
}
