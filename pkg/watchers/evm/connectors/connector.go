package connectors

import (
	"context"
	"math/big"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/watchers/evm/connectors/bridgeabi"

	ethBind "github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethCommon "github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	ethEvent "github.com/ethereum/go-ethereum/event"
)

// Connector exposes the read side of the Omega network the listener and the sweep need.
type Connector interface {
	NetworkName() string
	BridgeAddress() ethCommon.Address
	CollectionAddresses() []ethCommon.Address
	BlockNumber(ctx context.Context) (uint64, error)
	WatchLocked(ctx context.Context, sink chan<- *bridgeabi.BridgeLocked) (ethEvent.Subscription, error)
	WatchBridgeBack(ctx context.Context, sink chan<- *bridgeabi.WrappedNFTBridgeBack) (ethEvent.Subscription, error)
	FilterLocked(ctx context.Context, from, to uint64) ([]*bridgeabi.BridgeLocked, error)
	FilterBridgeBack(ctx context.Context, from, to uint64) ([]*bridgeabi.WrappedNFTBridgeBack, error)
	Close()
}

// Session is a single dialed connection used by the executor to submit one write and wait for it. A new session is
// dialed for every attempt and closed afterwards. Release and MintWrapped broadcast unless opts.NoSend is set, in
// which case the signed transaction goes out through SendTransaction.
type Session interface {
	ChainID(ctx context.Context) (*big.Int, error)
	Release(opts *ethBind.TransactOpts, to ethCommon.Address, amount *big.Int) (*ethTypes.Transaction, error)
	MintWrapped(opts *ethBind.TransactOpts, collection ethCommon.Address, to ethCommon.Address, uri string, solanaMint string) (*ethTypes.Transaction, error)
	TokenCounter(ctx context.Context, collection ethCommon.Address) (*big.Int, error)
	SolanaMintOf(ctx context.Context, collection ethCommon.Address, tokenID *big.Int) (string, error)
	SendTransaction(ctx context.Context, tx *ethTypes.Transaction) error
	WaitMined(ctx context.Context, tx *ethTypes.Transaction) (*ethTypes.Receipt, error)
	Close()
}

type Dialer func(ctx context.Context) (Session, error)
