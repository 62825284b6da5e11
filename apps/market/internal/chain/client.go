package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"nftmarket/apps/market/internal/codec"
	"nftmarket/apps/market/internal/metrics"
	"nftmarket/apps/market/internal/model"
)

// revertErrorCode is the JSON-RPC code geth-compatible nodes return for eth_call reverts
const revertErrorCode = 3

// Options carries the contract bindings and the external-call policy
type Options struct {
	Exchange      common.Address
	ProxyRegistry common.Address
	CallTimeout   time.Duration
	MaxRetries    uint64
	RetryInterval time.Duration
}

// RevertError is returned when the contract itself rejected the call. It is
// never retried.
type RevertError struct {
	Method string
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s reverted", e.Method)
	}
	return fmt.Sprintf("%s reverted: %s", e.Method, e.Reason)
}

// Client performs the read-only contract calls the order book depends on. It
// is constructed once at startup and passed to every component that needs it.
type Client struct {
	caller  ethereum.ContractCaller
	abis    *abis
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics
	closeFn func()
}

// NewClient dials the node at rpcURL
func NewClient(rpcURL string, opts Options, logger *zap.Logger, m *metrics.Metrics) (*Client, error) {
	ethClient, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum client: %w", err)
	}

	client, err := New(ethClient, opts, logger, m)
	if err != nil {
		ethClient.Close()
		return nil, err
	}
	client.closeFn = ethClient.Close
	return client, nil
}

// New wraps an existing contract caller
func New(caller ethereum.ContractCaller, opts Options, logger *zap.Logger, m *metrics.Metrics) (*Client, error) {
	parsed, err := parseABIs()
	if err != nil {
		return nil, err
	}
	if opts.CallTimeout <= 0 {
		return nil, errors.New("call timeout must be positive")
	}

	return &Client{
		caller:  caller,
		abis:    parsed,
		opts:    opts,
		logger:  logger,
		metrics: m,
	}, nil
}

// Exchange returns the exchange contract address orders are bound to
func (c *Client) Exchange() common.Address {
	return c.opts.Exchange
}

// ProxyAddress returns the user's registered proxy, or the zero address
func (c *Client) ProxyAddress(ctx context.Context, owner common.Address) (common.Address, error) {
	out, err := c.call(ctx, c.abis.proxyRegistry, c.opts.ProxyRegistry, "proxies", owner)
	if err != nil {
		return common.Address{}, err
	}
	return abi.ConvertType(out[0], common.Address{}).(common.Address), nil
}

// OwnerOf returns the current owner of an ERC-721 token
func (c *Client) OwnerOf(ctx context.Context, contract common.Address, tokenID *big.Int) (common.Address, error) {
	out, err := c.call(ctx, c.abis.erc721, contract, "ownerOf", tokenID)
	if err != nil {
		return common.Address{}, err
	}
	return abi.ConvertType(out[0], common.Address{}).(common.Address), nil
}

// IsApprovedForAll reports whether operator may transfer all of owner's tokens
func (c *Client) IsApprovedForAll(ctx context.Context, contract, owner, operator common.Address) (bool, error) {
	out, err := c.call(ctx, c.abis.erc721, contract, "isApprovedForAll", owner, operator)
	if err != nil {
		return false, err
	}
	approved, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected isApprovedForAll result type %T", out[0])
	}
	return approved, nil
}

// Allowance returns how much of token spender may pull from owner
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := c.call(ctx, c.abis.erc20, token, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// BalanceOf returns owner's token balance
func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := c.call(ctx, c.abis.erc20, token, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

type orderTuple struct {
	Exchange           common.Address
	Maker              common.Address
	Taker              common.Address
	SaleSide           uint8
	SaleKind           uint8
	Target             common.Address
	PaymentToken       common.Address
	CallData           []byte
	ReplacementPattern []byte
	StaticTarget       common.Address
	StaticExtra        []byte
	BasePrice          *big.Int
	EndPrice           *big.Int
	ListingTime        *big.Int
	ExpirationTime     *big.Int
	Salt               *big.Int
}

type sigTuple struct {
	R [32]byte
	S [32]byte
	V uint8
}

func newOrderTuple(call model.MaskedCall) orderTuple {
	return orderTuple{
		Exchange:           call.Exchange,
		Maker:              call.Maker,
		Taker:              call.Taker,
		SaleSide:           uint8(call.SaleSide),
		SaleKind:           call.SaleKind,
		Target:             call.Target,
		PaymentToken:       call.PaymentToken,
		CallData:           call.Calldata,
		ReplacementPattern: call.ReplacementPattern,
		StaticTarget:       call.StaticTarget,
		StaticExtra:        call.StaticExtra,
		BasePrice:          call.BasePrice.Big(),
		EndPrice:           call.EndPrice.Big(),
		ListingTime:        new(big.Int).SetUint64(call.ListingTime),
		ExpirationTime:     new(big.Int).SetUint64(call.ExpirationTime),
		Salt:               call.Salt.Big(),
	}
}

// ValidateOrder simulates the exchange's own signature validation. It returns
// nil only if the call succeeded and returned true.
func (c *Client) ValidateOrder(ctx context.Context, call model.MaskedCall, sig codec.Signature) error {
	out, err := c.call(ctx, c.abis.exchange, c.opts.Exchange, "validateOrder",
		newOrderTuple(call), sigTuple{R: sig.R, S: sig.S, V: sig.V})
	if err != nil {
		var revert *RevertError
		if errors.As(err, &revert) {
			return fmt.Errorf("%w: %v", model.ErrSignatureInvalid, revert)
		}
		return err
	}

	valid, ok := out[0].(bool)
	if !ok || !valid {
		return fmt.Errorf("%w: exchange rejected order", model.ErrSignatureInvalid)
	}
	return nil
}

// Close releases the underlying connection
func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

func (c *Client) call(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	var result []byte
	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()

		start := time.Now()
		res, err := c.caller.CallContract(callCtx, ethereum.CallMsg{To: &to, Data: data}, nil)
		c.metrics.ObserveChainCall(method, time.Since(start), err)
		if err != nil {
			if revert := asRevert(method, err); revert != nil {
				return backoff.Permanent(revert)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			c.logger.Warn("Contract call failed",
				zap.String("method", method),
				zap.String("contract", to.Hex()),
				zap.Error(err))
			return err
		}
		result = res
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.opts.RetryInterval
	policy.MaxElapsedTime = 0

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, c.opts.MaxRetries), ctx)); err != nil {
		var revert *RevertError
		if errors.As(err, &revert) {
			return nil, revert
		}
		return nil, fmt.Errorf("%w: %s on %s: %v", model.ErrExternalUnavailable, method, to.Hex(), err)
	}

	out, err := contract.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty %s result", method)
	}
	return out, nil
}

// asRevert returns a RevertError if err is an execution revert reported by the node
func asRevert(method string, err error) *RevertError {
	var rpcErr rpc.Error
	isRevert := errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertErrorCode
	if !isRevert && !strings.Contains(err.Error(), "execution reverted") {
		return nil
	}

	revert := &RevertError{Method: method}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if hexData, ok := dataErr.ErrorData().(string); ok {
			if raw, decodeErr := hexutil.Decode(hexData); decodeErr == nil {
				if reason, unpackErr := abi.UnpackRevert(raw); unpackErr == nil {
					revert.Reason = reason
				}
			}
		}
	}
	return revert
}
