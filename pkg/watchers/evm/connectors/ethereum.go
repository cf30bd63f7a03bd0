package connectors

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/watchers/evm/connectors/bridgeabi"

	ethRpc "github.com/ethereum/go-ethereum/rpc"

	ethereum "github.com/ethereum/go-ethereum"
	ethBind "github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethCommon "github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	ethClient "github.com/ethereum/go-ethereum/ethclient"
	ethEvent "github.com/ethereum/go-ethereum/event"

	"go.uber.org/zap"
)

// EthereumConnector implements Connector for the standard web3 rpc. Subscriptions need a websocket url; wrap it in a
// LogPollConnector for HTTP endpoints.
type EthereumConnector struct {
	networkName string
	bridge      *bridgeabi.Bridge
	collections []ethCommon.Address
	logger      *zap.Logger
	client      *ethClient.Client
	rawClient   *ethRpc.Client
}

func NewEthereumConnector(ctx context.Context, networkName, rawUrl string, bridge ethCommon.Address, collections []ethCommon.Address, logger *zap.Logger) (*EthereumConnector, error) {
	rawClient, err := ethRpc.DialContext(ctx, rawUrl)
	if err != nil {
		return nil, err
	}

	client := ethClient.NewClient(rawClient)

	return &EthereumConnector{
		networkName: networkName,
		bridge:      bridgeabi.NewBridge(bridge, client),
		collections: collections,
		logger:      logger,
		client:      client,
		rawClient:   rawClient,
	}, nil
}

func (e *EthereumConnector) NetworkName() string {
	return e.networkName
}

func (e *EthereumConnector) BridgeAddress() ethCommon.Address {
	return e.bridge.Address()
}

func (e *EthereumConnector) CollectionAddresses() []ethCommon.Address {
	return e.collections
}

func (e *EthereumConnector) BlockNumber(ctx context.Context) (uint64, error) {
	return e.client.BlockNumber(ctx)
}

func (e *EthereumConnector) WatchLocked(ctx context.Context, sink chan<- *bridgeabi.BridgeLocked) (ethEvent.Subscription, error) {
	timeout, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return e.bridge.WatchLocked(&ethBind.WatchOpts{Context: timeout}, sink, nil)
}

// WatchBridgeBack subscribes to BridgeBack of every configured collection with a single log filter.
func (e *EthereumConnector) WatchBridgeBack(ctx context.Context, sink chan<- *bridgeabi.WrappedNFTBridgeBack) (ethEvent.Subscription, error) {
	if len(e.collections) == 0 {
		return ethEvent.NewSubscription(func(quit <-chan struct{}) error {
			<-quit
			return nil
		}), nil
	}

	logs := make(chan ethTypes.Log)
	timeout, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	sub, err := e.client.SubscribeFilterLogs(timeout, e.bridgeBackQuery(nil, nil), logs)
	if err != nil {
		return nil, err
	}

	return ethEvent.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case log := <-logs:
				ev, err := bridgeabi.ParseBridgeBack(log)
				if err != nil {
					return err
				}
				select {
				case sink <- ev:
				case err := <-sub.Err():
					return err
				case <-quit:
					return nil
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

func (e *EthereumConnector) FilterLocked(ctx context.Context, from, to uint64) ([]*bridgeabi.BridgeLocked, error) {
	return e.bridge.FilterLocked(&ethBind.FilterOpts{Start: from, End: &to, Context: ctx}, nil)
}

func (e *EthereumConnector) FilterBridgeBack(ctx context.Context, from, to uint64) ([]*bridgeabi.WrappedNFTBridgeBack, error) {
	if len(e.collections) == 0 {
		return nil, nil
	}
	logs, err := e.client.FilterLogs(ctx, e.bridgeBackQuery(new(big.Int).SetUint64(from), new(big.Int).SetUint64(to)))
	if err != nil {
		return nil, err
	}
	out := make([]*bridgeabi.WrappedNFTBridgeBack, 0, len(logs))
	for _, l := range logs {
		ev, err := bridgeabi.ParseBridgeBack(l)
		if err != nil {
			return nil, fmt.Errorf("failed to parse BridgeBack in tx %s: %w", l.TxHash, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (e *EthereumConnector) bridgeBackQuery(from, to *big.Int) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: from,
		ToBlock:   to,
		Addresses: e.collections,
		Topics:    [][]ethCommon.Hash{{bridgeabi.BridgeBackTopic}},
	}
}

func (e *EthereumConnector) Close() {
	e.rawClient.Close()
}

// EthereumSession implements Session on top of a freshly dialed client.
type EthereumSession struct {
	client    *ethClient.Client
	rawClient *ethRpc.Client
	bridge    *bridgeabi.Bridge
}

// NewEthereumDialer returns a Dialer that opens a new connection to rawUrl on every call.
func NewEthereumDialer(rawUrl string, bridge ethCommon.Address) Dialer {
	return func(ctx context.Context) (Session, error) {
		rawClient, err := ethRpc.DialContext(ctx, rawUrl)
		if err != nil {
			return nil, err
		}
		client := ethClient.NewClient(rawClient)
		return &EthereumSession{
			client:    client,
			rawClient: rawClient,
			bridge:    bridgeabi.NewBridge(bridge, client),
		}, nil
	}
}

func (s *EthereumSession) ChainID(ctx context.Context) (*big.Int, error) {
	return s.client.ChainID(ctx)
}

func (s *EthereumSession) Release(opts *ethBind.TransactOpts, to ethCommon.Address, amount *big.Int) (*ethTypes.Transaction, error) {
	return s.bridge.Release(opts, to, amount)
}

func (s *EthereumSession) MintWrapped(opts *ethBind.TransactOpts, collection ethCommon.Address, to ethCommon.Address, uri string, solanaMint string) (*ethTypes.Transaction, error) {
	return bridgeabi.NewWrappedNFT(collection, s.client).Mint(opts, to, uri, solanaMint)
}

func (s *EthereumSession) TokenCounter(ctx context.Context, collection ethCommon.Address) (*big.Int, error) {
	return bridgeabi.NewWrappedNFT(collection, s.client).TokenCounter(&ethBind.CallOpts{Context: ctx})
}

func (s *EthereumSession) SolanaMintOf(ctx context.Context, collection ethCommon.Address, tokenID *big.Int) (string, error) {
	return bridgeabi.NewWrappedNFT(collection, s.client).SolanaMintOf(&ethBind.CallOpts{Context: ctx}, tokenID)
}

func (s *EthereumSession) SendTransaction(ctx context.Context, tx *ethTypes.Transaction) error {
	return s.client.SendTransaction(ctx, tx)
}

func (s *EthereumSession) WaitMined(ctx context.Context, tx *ethTypes.Transaction) (*ethTypes.Receipt, error) {
	return ethBind.WaitMined(ctx, s.client, tx)
}

func (s *EthereumSession) Close() {
	s.rawClient.Close()
}
