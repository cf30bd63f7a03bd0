package executor

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/common"
	soltx "github.com/OmegaNetwork-source/omega-bridge/pkg/solana"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/watchers/evm/connectors"
	ethBind "github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethCommon "github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// ParseOmegaAddress accepts a 0x-prefixed 20-byte hex address, as found in a burn memo.
func ParseOmegaAddress(s string) (ethCommon.Address, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return ethCommon.Address{}, fmt.Errorf("%w: destination %q is not 0x-prefixed", ErrMalformedIntent, s)
	}
	if !ethCommon.IsHexAddress(s) {
		return ethCommon.Address{}, fmt.Errorf("%w: destination %q is not an address", ErrMalformedIntent, s)
	}
	addr := ethCommon.HexToAddress(s)
	if addr == (ethCommon.Address{}) {
		return ethCommon.Address{}, fmt.Errorf("%w: destination is the zero address", ErrMalformedIntent)
	}
	return addr, nil
}

func transactor(ctx context.Context, session connectors.Session, key *ecdsa.PrivateKey) (*ethBind.TransactOpts, error) {
	chainID, err := session.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	opts, err := ethBind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx
	opts.NoSend = true
	return opts, nil
}

// confirmEVM waits for tx on a context detached from ctx. Any failure to observe the receipt is ErrOutcomeUnknown.
func confirmEVM(ctx context.Context, session connectors.Session, tx *ethTypes.Transaction, timeout time.Duration, action string, logger *zap.Logger) (*Receipt, error) {
	receipt := &Receipt{TxID: tx.Hash().Hex()}
	logger.Info("transaction submitted, waiting for confirmation", zap.String("tx", receipt.TxID))

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	start := time.Now()
	mined, err := session.WaitMined(waitCtx, tx)
	if err != nil {
		return receipt, fmt.Errorf("%w: %s: %w", ErrOutcomeUnknown, receipt.TxID, err)
	}
	confirmLatency.WithLabelValues(action).Observe(time.Since(start).Seconds())

	if mined.Status != ethTypes.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s in block %s", ErrReverted, receipt.TxID, mined.BlockNumber)
	}
	return receipt, nil
}

// submitError classifies an error returned before anything was broadcast.
func submitError(op string, err error) error {
	if isRevertError(err) {
		return fmt.Errorf("%w: %s: %w", ErrReverted, op, err)
	}
	return fmt.Errorf("%s failed: %w", op, err)
}

// Errors with which a node refuses a transaction into its pool. The transaction was not broadcast.
var poolRejections = []string{
	"nonce too low",
	"insufficient funds",
	"intrinsic gas too low",
	"transaction underpriced",
	"replacement transaction underpriced",
	"exceeds block gas limit",
	"invalid sender",
}

func isPoolRejection(err error) bool {
	msg := err.Error()
	for _, r := range poolRejections {
		if strings.Contains(msg, r) {
			return true
		}
	}
	return false
}

// submitEVM broadcasts a transaction built with NoSend. Any send error other than an explicit rejection may have
// reached the network, so the known hash is waited for instead of signing a new transaction.
func submitEVM(ctx context.Context, session connectors.Session, tx *ethTypes.Transaction, cfg Config, action string, logger *zap.Logger) (*Receipt, error) {
	sendCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	err := session.SendTransaction(sendCtx, tx)
	cancel()
	if err != nil {
		switch {
		case isRevertError(err):
			return nil, fmt.Errorf("%w: %s: %w", ErrReverted, action, err)
		case isPoolRejection(err):
			return nil, fmt.Errorf("%s rejected: %w", action, err)
		}
		logger.Warn("send failed, transaction may have been broadcast", zap.String("tx", tx.Hash().Hex()), zap.Error(err))
	}
	return confirmEVM(ctx, session, tx, cfg.ConfirmTimeout, action, logger)
}

// EVMRelease releases native coin on Omega for a burn on Solana.
type EVMRelease struct {
	logger *zap.Logger
	dial   connectors.Dialer
	key    *ecdsa.PrivateKey
	cfg    Config
}

func NewEVMRelease(logger *zap.Logger, dial connectors.Dialer, key *ecdsa.PrivateKey, cfg Config) *EVMRelease {
	return &EVMRelease{logger: logger, dial: dial, key: key, cfg: cfg}
}

func (e *EVMRelease) Execute(ctx context.Context, intent *common.TransferIntent) (*Receipt, error) {
	if intent.Kind != common.AssetKindFungibleBurn {
		return nil, fmt.Errorf("%w: %s is not a fungible burn", ErrMalformedIntent, intent.Kind)
	}
	if intent.Amount == nil || intent.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: no amount", ErrMalformedIntent)
	}
	to, err := ParseOmegaAddress(intent.Destination)
	if err != nil {
		return nil, err
	}
	amount, err := common.SolanaToOmega(intent.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedIntent, err)
	}

	return run(ctx, e.logger, e.cfg, "evm_release", intent, func(ctx context.Context, logger *zap.Logger) (*Receipt, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()

		session, err := e.dial(callCtx)
		if err != nil {
			return nil, fmt.Errorf("dialing omega failed: %w", err)
		}
		defer session.Close()

		opts, err := transactor(callCtx, session, e.key)
		if err != nil {
			return nil, err
		}
		logger.Info("releasing", zap.Stringer("to", to), zap.Stringer("amount", amount))
		tx, err := session.Release(opts, to, amount)
		if err != nil {
			return nil, submitError("release", err)
		}
		return submitEVM(ctx, session, tx, e.cfg, "evm_release", logger)
	})
}

// MetadataSource resolves Metaplex metadata of an NFT mint.
type MetadataSource interface {
	Fetch(ctx context.Context, mint solana.PublicKey) (*soltx.Metadata, error)
}

// Collection is a wrapped NFT contract and the Solana collection it wraps, recognized by symbol or by a name fragment.
type Collection struct {
	Symbol  string
	Name    string
	Address ethCommon.Address
}

// ParseCollections parses a comma separated list of SYMBOL:Name:0xaddress.
func ParseCollections(s string) ([]Collection, error) {
	var out []Collection
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("collection %q: want SYMBOL:Name:address", entry)
		}
		if !ethCommon.IsHexAddress(parts[2]) {
			return nil, fmt.Errorf("collection %q: invalid address", entry)
		}
		out = append(out, Collection{
			Symbol:  strings.TrimSpace(parts[0]),
			Name:    strings.TrimSpace(parts[1]),
			Address: ethCommon.HexToAddress(parts[2]),
		})
	}
	return out, nil
}

// CollectionRouter picks the wrapped NFT contract for a Solana NFT. A symbol match wins over a name match; anything
// unrecognized goes to Default.
type CollectionRouter struct {
	Collections []Collection
	Default     ethCommon.Address
}

func (r *CollectionRouter) Route(md *soltx.Metadata) ethCommon.Address {
	symbol := strings.TrimSpace(md.Symbol)
	for _, c := range r.Collections {
		if c.Symbol != "" && strings.EqualFold(symbol, c.Symbol) {
			return c.Address
		}
	}
	name := strings.TrimSpace(md.Name)
	for _, c := range r.Collections {
		if c.Name != "" && strings.Contains(name, c.Name) {
			return c.Address
		}
	}
	return r.Default
}

// Addresses returns every routable contract, the default first.
func (r *CollectionRouter) Addresses() []ethCommon.Address {
	out := []ethCommon.Address{r.Default}
	for _, c := range r.Collections {
		if c.Address != r.Default {
			out = append(out, c.Address)
		}
	}
	return out
}

const DefaultExistenceWindow = 50

// EVMWrappedMint mints a wrapped NFT on Omega for an NFT deposited into the relayer wallet on Solana.
type EVMWrappedMint struct {
	logger   *zap.Logger
	dial     connectors.Dialer
	key      *ecdsa.PrivateKey
	metadata MetadataSource
	router   *CollectionRouter
	window   int64
	cfg      Config
}

func NewEVMWrappedMint(logger *zap.Logger, dial connectors.Dialer, key *ecdsa.PrivateKey, metadata MetadataSource, router *CollectionRouter, window int64, cfg Config) *EVMWrappedMint {
	if window <= 0 {
		window = DefaultExistenceWindow
	}
	return &EVMWrappedMint{
		logger:   logger,
		dial:     dial,
		key:      key,
		metadata: metadata,
		router:   router,
		window:   window,
		cfg:      cfg,
	}
}

func (e *EVMWrappedMint) Execute(ctx context.Context, intent *common.TransferIntent) (*Receipt, error) {
	if intent.Kind != common.AssetKindNFTDeposit {
		return nil, fmt.Errorf("%w: %s is not an NFT deposit", ErrMalformedIntent, intent.Kind)
	}
	to, err := ParseOmegaAddress(intent.Destination)
	if err != nil {
		return nil, err
	}
	mint, err := solana.PublicKeyFromBase58(intent.AssetID)
	if err != nil {
		return nil, fmt.Errorf("%w: mint %q: %w", ErrMalformedIntent, intent.AssetID, err)
	}

	return run(ctx, e.logger, e.cfg, "evm_wrapped_mint", intent, func(ctx context.Context, logger *zap.Logger) (*Receipt, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()

		md, err := e.metadata.Fetch(callCtx, mint)
		if err != nil {
			if errors.Is(err, soltx.ErrInvalidMetadata) || errors.Is(err, rpc.ErrNotFound) {
				return nil, fmt.Errorf("%w: %w", ErrMalformedIntent, err)
			}
			return nil, fmt.Errorf("metadata lookup failed: %w", err)
		}
		collection := e.router.Route(md)
		logger = logger.With(zap.Stringer("collection", collection), zap.String("symbol", md.Symbol))

		session, err := e.dial(callCtx)
		if err != nil {
			return nil, fmt.Errorf("dialing omega failed: %w", err)
		}
		defer session.Close()

		if err := e.checkNotWrapped(callCtx, session, collection, intent.AssetID); err != nil {
			return nil, err
		}

		opts, err := transactor(callCtx, session, e.key)
		if err != nil {
			return nil, err
		}
		logger.Info("minting wrapped NFT", zap.Stringer("to", to), zap.String("uri", md.URI))
		tx, err := session.MintWrapped(opts, collection, to, md.URI, intent.AssetID)
		if err != nil {
			return nil, submitError("mint", err)
		}
		return submitEVM(ctx, session, tx, e.cfg, "evm_wrapped_mint", logger)
	})
}

// checkNotWrapped scans the most recent tokens of collection, newest first, for one wrapping solanaMint. Tokens
// whose lookup reverts (burned by a bridge back) are skipped.
func (e *EVMWrappedMint) checkNotWrapped(ctx context.Context, session connectors.Session, collection ethCommon.Address, solanaMint string) error {
	counter, err := session.TokenCounter(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to read token counter: %w", err)
	}
	if !counter.IsInt64() {
		return fmt.Errorf("token counter %s out of range", counter)
	}

	n := counter.Int64()
	for id := n - 1; id >= 0 && id >= n-e.window; id-- {
		wrapped, err := session.SolanaMintOf(ctx, collection, big.NewInt(id))
		if err != nil {
			if isRevertError(err) {
				continue
			}
			return fmt.Errorf("failed to read solana mint of token %d: %w", id, err)
		}
		if wrapped == solanaMint {
			return fmt.Errorf("%w: %s is token %d of %s", ErrAlreadyWrapped, solanaMint, id, collection)
		}
	}
	return nil
}
