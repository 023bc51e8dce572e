package escrow

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"upirails/internal/contracts"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrRequestIDUnresolved is returned when a create transaction mined but the
// assigned id could not be recovered from the event log or the id counter.
var ErrRequestIDUnresolved = errors.New("assigned request id could not be resolved")

// EthClient talks to the PaymentEscrow contract over JSON-RPC.
type EthClient struct {
	client    *ethclient.Client
	contract  *bind.BoundContract
	abi       abi.ABI
	address   common.Address
	chainID   *big.Int
	signer    common.Address
	transacts *bind.TransactOpts
}

type EthClientConfig struct {
	RPCURL        string
	PrivateKeyHex string
	// Contracts maps chain id to the deployed PaymentEscrow address. The
	// active chain is resolved from the node during the handshake.
	Contracts map[int64]string
}

// NewEthClient dials the node, resolves the chain, binds the per-chain
// contract address and confirms the contract responds with one cheap read.
// A failure here is fatal for the session; callers retry by reconstructing.
func NewEthClient(ctx context.Context, cfg EthClientConfig) (*EthClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if len(cfg.Contracts) == 0 {
		return nil, fmt.Errorf("no escrow contract addresses configured")
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	chainID, err := cli.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	addrHex, ok := cfg.Contracts[chainID.Int64()]
	if !ok {
		return nil, fmt.Errorf("unsupported network: no escrow contract for chain %d", chainID.Int64())
	}
	if !common.IsHexAddress(addrHex) {
		return nil, fmt.Errorf("invalid escrow contract address %q for chain %d", addrHex, chainID.Int64())
	}

	parsedABI, err := abi.JSON(strings.NewReader(contracts.PaymentEscrowABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	address := common.HexToAddress(addrHex)
	bound := bind.NewBoundContract(address, parsedABI, cli, cli, cli)

	c := &EthClient{
		client:   cli,
		contract: bound,
		abi:      parsedABI,
		address:  address,
		chainID:  chainID,
	}

	if cfg.PrivateKeyHex != "" {
		pk, err := parsePrivateKey(cfg.PrivateKeyHex)
		if err != nil {
			return nil, err
		}
		txOpts, err := bind.NewKeyedTransactorWithChainID(pk, chainID)
		if err != nil {
			return nil, fmt.Errorf("transactor: %w", err)
		}
		txOpts.GasLimit = 0 // let node estimate
		txOpts.GasPrice = nil
		txOpts.Nonce = nil
		c.transacts = txOpts
		c.signer = crypto.PubkeyToAddress(pk.PublicKey)
	}

	// Handshake read: proves the address hosts a responding contract before
	// any real traffic.
	if _, err := c.NextRequestID(ctx); err != nil {
		return nil, fmt.Errorf("escrow contract handshake on chain %d: %w", chainID.Int64(), err)
	}

	return c, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func (c *EthClient) SignerAddress() string {
	return c.signer.Hex()
}

// ChainID reports the chain the client bound to during the handshake.
func (c *EthClient) ChainID() int64 {
	return c.chainID.Int64()
}

// rawRequest matches the contract's PaymentRequest tuple layout. Field names
// follow the ABI component names so the abi package can bind them.
type rawRequest struct {
	RequestId         *big.Int
	Requester         common.Address
	Payer             common.Address
	AmountINR         *big.Int
	TokenAddress      common.Address
	DaiAmount         *big.Int
	PayerFee          *big.Int
	Status            uint8
	CreatedAt         *big.Int
	CommittedAt       *big.Int
	ExpiresAt         *big.Int
	TransactionNumber string
}

func (c *EthClient) AvailableRequests(ctx context.Context) ([]PaymentRequest, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getAvailableRequests"); err != nil {
		return nil, fmt.Errorf("read available requests: %w", err)
	}
	raw := *abi.ConvertType(out[0], new([]rawRequest)).(*[]rawRequest)
	return decodeRequests(raw)
}

func (c *EthClient) Request(ctx context.Context, id uint64) (PaymentRequest, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getPaymentRequest", new(big.Int).SetUint64(id)); err != nil {
		return PaymentRequest{}, fmt.Errorf("read request %d: %w", id, err)
	}
	raw := *abi.ConvertType(out[0], new(rawRequest)).(*rawRequest)
	return decodeRequest(raw)
}

func (c *EthClient) PayerCommittedRequests(ctx context.Context, payer string) ([]PaymentRequest, error) {
	if !common.IsHexAddress(payer) {
		return nil, fmt.Errorf("invalid payer address %q", payer)
	}
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getPayerCommittedRequests", common.HexToAddress(payer)); err != nil {
		return nil, fmt.Errorf("read payer commitments: %w", err)
	}
	raw := *abi.ConvertType(out[0], new([]rawRequest)).(*[]rawRequest)
	return decodeRequests(raw)
}

func (c *EthClient) UserRequests(ctx context.Context, requester string) ([]PaymentRequest, error) {
	if !common.IsHexAddress(requester) {
		return nil, fmt.Errorf("invalid requester address %q", requester)
	}
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getUserRequests", common.HexToAddress(requester)); err != nil {
		return nil, fmt.Errorf("read user requests: %w", err)
	}
	raw := *abi.ConvertType(out[0], new([]rawRequest)).(*[]rawRequest)
	return decodeRequests(raw)
}

func (c *EthClient) PlatformFee(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getPlatformFee"); err != nil {
		return nil, fmt.Errorf("read platform fee: %w", err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *EthClient) NextRequestID(ctx context.Context) (uint64, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getNextRequestId"); err != nil {
		return 0, fmt.Errorf("read next request id: %w", err)
	}
	next := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return next.Uint64(), nil
}

// CreateRequest submits the payable create call with the bonus attached as
// value, waits for the receipt, and resolves the assigned id with a fixed
// priority: creation event, then counter minus one, then a typed failure.
func (c *EthClient) CreateRequest(ctx context.Context, params CreateParams) (CreateResult, error) {
	if c.transacts == nil {
		return CreateResult{}, fmt.Errorf("client is read-only")
	}
	if params.AmountFiat <= 0 {
		return CreateResult{}, fmt.Errorf("fiat amount must be positive")
	}

	opts := *c.transacts
	opts.Context = ctx
	opts.Value = ToBaseUnits(params.BonusAmount, LedgerDecimals)

	tx, err := c.contract.Transact(&opts, "createPaymentRequest",
		big.NewInt(params.AmountFiat),
		ToBaseUnits(params.DepositAmount, LedgerDecimals),
	)
	if err != nil {
		return CreateResult{}, fmt.Errorf("create request tx: %w", err)
	}

	receipt, err := WaitForReceipt(ctx, c.client, tx)
	if err != nil {
		return CreateResult{TxHash: tx.Hash().Hex()}, fmt.Errorf("await create receipt: %w", err)
	}

	id, err := c.resolveAssignedID(ctx, receipt)
	if err != nil {
		return CreateResult{TxHash: tx.Hash().Hex()}, err
	}
	return CreateResult{RequestID: id, TxHash: tx.Hash().Hex()}, nil
}

func (c *EthClient) resolveAssignedID(ctx context.Context, receipt *types.Receipt) (uint64, error) {
	createdTopic := c.abi.Events["PaymentRequestCreated"].ID
	for _, lg := range receipt.Logs {
		if lg.Address != c.address || len(lg.Topics) < 2 || lg.Topics[0] != createdTopic {
			continue
		}
		return new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64(), nil
	}

	// Some providers strip decoded logs; derive from the counter instead.
	next, err := c.NextRequestID(ctx)
	if err == nil && next > 0 {
		return next - 1, nil
	}
	return 0, ErrRequestIDUnresolved
}

func (c *EthClient) CommitToPay(ctx context.Context, id uint64) (TxHandle, error) {
	if c.transacts == nil {
		return TxHandle{}, fmt.Errorf("client is read-only")
	}
	opts := *c.transacts
	opts.Context = ctx

	tx, err := c.contract.Transact(&opts, "commitToPay", new(big.Int).SetUint64(id))
	if err != nil {
		return TxHandle{}, err
	}
	return TxHandle{TxHash: tx.Hash().Hex()}, nil
}

func (c *EthClient) FulfillPayment(ctx context.Context, id uint64, reference string) (TxHandle, error) {
	if c.transacts == nil {
		return TxHandle{}, fmt.Errorf("client is read-only")
	}
	opts := *c.transacts
	opts.Context = ctx

	tx, err := c.contract.Transact(&opts, "fulfillPayment", new(big.Int).SetUint64(id), reference)
	if err != nil {
		return TxHandle{}, err
	}
	return TxHandle{TxHash: tx.Hash().Hex()}, nil
}

func (c *EthClient) Ping(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	_, err := c.client.BlockNumber(ctx)
	return err
}

func decodeRequests(raw []rawRequest) ([]PaymentRequest, error) {
	out := make([]PaymentRequest, 0, len(raw))
	for _, r := range raw {
		decoded, err := decodeRequest(r)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded)
	}
	return out, nil
}

func decodeRequest(r rawRequest) (PaymentRequest, error) {
	status, err := StatusFromCode(r.Status)
	if err != nil {
		return PaymentRequest{}, fmt.Errorf("decode request %s: %w", r.RequestId, err)
	}
	return PaymentRequest{
		ID:            r.RequestId.Uint64(),
		Requester:     r.Requester.Hex(),
		Payer:         r.Payer.Hex(),
		AmountFiat:    r.AmountINR.Int64(),
		DepositToken:  r.TokenAddress.Hex(),
		DepositAmount: FromBaseUnits(r.DaiAmount, LedgerDecimals),
		PayerBonus:    FromBaseUnits(r.PayerFee, LedgerDecimals),
		Status:        status,
		CreatedAt:     unixTime(r.CreatedAt),
		CommittedAt:   unixTime(r.CommittedAt),
		ExpiresAt:     unixTime(r.ExpiresAt),
		Reference:     r.TransactionNumber,
	}, nil
}

func unixTime(v *big.Int) time.Time {
	if v == nil || v.Sign() == 0 {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}

// WaitForReceipt polls until the transaction is mined or context cancelled.
func WaitForReceipt(ctx context.Context, client *ethclient.Client, tx *types.Transaction) (*types.Receipt, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, tx.Hash())
		if receipt != nil {
			return receipt, nil
		}
		if err != nil && err.Error() != "not found" {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
