package connectors

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/watchers/evm/connectors/bridgeabi"

	ethBind "github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethCommon "github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	ethEvent "github.com/ethereum/go-ethereum/event"
)

// MockConnector implements the connector interface for testing purposes. Events handed to EmitLocked and
// EmitBridgeBack go to the live subscription if there is one and are always kept for Filter* calls.
type MockConnector struct {
	bridge      ethCommon.Address
	collections []ethCommon.Address

	mutex       sync.Mutex
	head        uint64
	err         error
	locked      []*bridgeabi.BridgeLocked
	bridgeBacks []*bridgeabi.WrappedNFTBridgeBack
	lockedSink  chan<- *bridgeabi.BridgeLocked
	backSink    chan<- *bridgeabi.WrappedNFTBridgeBack
	subErr      chan error
}

func NewMockConnector(bridge ethCommon.Address, collections ...ethCommon.Address) *MockConnector {
	return &MockConnector{bridge: bridge, collections: collections, subErr: make(chan error, 1)}
}

// SetHead sets the block number reported by BlockNumber.
func (m *MockConnector) SetHead(head uint64) {
	m.mutex.Lock()
	m.head = head
	m.mutex.Unlock()
}

// SetError takes an error which will be returned by every call until cleared with nil.
func (m *MockConnector) SetError(err error) {
	m.mutex.Lock()
	m.err = err
	m.mutex.Unlock()
}

// FailSubscription terminates the live subscriptions with err.
func (m *MockConnector) FailSubscription(err error) {
	m.subErr <- err
}

// Subscribed reports whether both live subscriptions are established.
func (m *MockConnector) Subscribed() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.lockedSink != nil && m.backSink != nil
}

func (m *MockConnector) EmitLocked(ctx context.Context, ev *bridgeabi.BridgeLocked) {
	m.mutex.Lock()
	m.locked = append(m.locked, ev)
	sink := m.lockedSink
	m.mutex.Unlock()
	if sink != nil {
		select {
		case sink <- ev:
		case <-ctx.Done():
		}
	}
}

func (m *MockConnector) EmitBridgeBack(ctx context.Context, ev *bridgeabi.WrappedNFTBridgeBack) {
	m.mutex.Lock()
	m.bridgeBacks = append(m.bridgeBacks, ev)
	sink := m.backSink
	m.mutex.Unlock()
	if sink != nil {
		select {
		case sink <- ev:
		case <-ctx.Done():
		}
	}
}

func (m *MockConnector) NetworkName() string {
	return "MockConnector"
}

func (m *MockConnector) BridgeAddress() ethCommon.Address {
	return m.bridge
}

func (m *MockConnector) CollectionAddresses() []ethCommon.Address {
	return m.collections
}

func (m *MockConnector) BlockNumber(ctx context.Context) (uint64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.head, m.err
}

func (m *MockConnector) subscription() ethEvent.Subscription {
	return ethEvent.NewSubscription(func(quit <-chan struct{}) error {
		select {
		case err := <-m.subErr:
			return err
		case <-quit:
			return nil
		}
	})
}

func (m *MockConnector) WatchLocked(ctx context.Context, sink chan<- *bridgeabi.BridgeLocked) (ethEvent.Subscription, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.lockedSink = sink
	return m.subscription(), nil
}

func (m *MockConnector) WatchBridgeBack(ctx context.Context, sink chan<- *bridgeabi.WrappedNFTBridgeBack) (ethEvent.Subscription, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.backSink = sink
	return m.subscription(), nil
}

func (m *MockConnector) FilterLocked(ctx context.Context, from, to uint64) ([]*bridgeabi.BridgeLocked, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []*bridgeabi.BridgeLocked
	for _, ev := range m.locked {
		if ev.Raw.BlockNumber >= from && ev.Raw.BlockNumber <= to {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *MockConnector) FilterBridgeBack(ctx context.Context, from, to uint64) ([]*bridgeabi.WrappedNFTBridgeBack, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []*bridgeabi.WrappedNFTBridgeBack
	for _, ev := range m.bridgeBacks {
		if ev.Raw.BlockNumber >= from && ev.Raw.BlockNumber <= to {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *MockConnector) Close() {}

// MockSession is an in-memory Omega network for the executor. Every dialed session shares its state. Writes take
// effect when their transaction is broadcast with SendTransaction.
type MockSession struct {
	mutex sync.Mutex

	chainID *big.Int
	nonce   uint64

	// Counts of Dialer calls and Close calls.
	Dials  int
	Closes int
	// Broadcasts counts transactions that reached the network.
	Broadcasts int

	// DialErrs, SubmitErrs and SendErrs are consumed one per call before succeeding. SubmitErrs fail building a
	// transaction, SendErrs fail broadcasting it.
	DialErrs   []error
	SubmitErrs []error
	SendErrs   []error
	// BroadcastOnSendErr makes a failing SendTransaction still deliver the transaction, like a send that timed out
	// after the node accepted it.
	BroadcastOnSendErr bool
	// Revert makes every mined write fail with status 0.
	Revert bool
	// NeverMined makes WaitMined block until its context is done.
	NeverMined bool

	Released []MockRelease
	minted   map[ethCommon.Address][]string
	pending  map[ethCommon.Hash]func()
	sent     map[ethCommon.Hash]bool
}

type MockRelease struct {
	To     ethCommon.Address
	Amount *big.Int
}

func NewMockSession(chainID int64) *MockSession {
	return &MockSession{
		chainID: big.NewInt(chainID),
		minted:  make(map[ethCommon.Address][]string),
		pending: make(map[ethCommon.Hash]func()),
		sent:    make(map[ethCommon.Hash]bool),
	}
}

func (m *MockSession) Dialer() Dialer {
	return func(ctx context.Context) (Session, error) {
		m.mutex.Lock()
		defer m.mutex.Unlock()
		m.Dials++
		if len(m.DialErrs) > 0 {
			err := m.DialErrs[0]
			m.DialErrs = m.DialErrs[1:]
			return nil, err
		}
		return m, nil
	}
}

// Preload pretends solanaMints were already wrapped by collection, in that order.
func (m *MockSession) Preload(collection ethCommon.Address, solanaMints ...string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, s := range solanaMints {
		m.minted[collection] = append(m.minted[collection], s)
	}
}

// Minted returns the Solana mints wrapped by collection, by token id.
func (m *MockSession) Minted(collection ethCommon.Address) []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]string(nil), m.minted[collection]...)
}

func (m *MockSession) Counts() (dials int, closes int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.Dials, m.Closes
}

func (m *MockSession) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(m.chainID), nil
}

func (m *MockSession) buildLocked(opts *ethBind.TransactOpts, effect func()) (*ethTypes.Transaction, error) {
	if len(m.SubmitErrs) > 0 {
		err := m.SubmitErrs[0]
		m.SubmitErrs = m.SubmitErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	m.nonce++
	tx := ethTypes.NewTx(&ethTypes.LegacyTx{Nonce: m.nonce, Gas: 21000, GasPrice: big.NewInt(1)})
	if opts != nil && opts.Signer != nil {
		signed, err := opts.Signer(opts.From, tx)
		if err != nil {
			return nil, err
		}
		tx = signed
	}
	m.pending[tx.Hash()] = effect
	if opts == nil || !opts.NoSend {
		m.broadcastLocked(tx)
	}
	return tx, nil
}

func (m *MockSession) broadcastLocked(tx *ethTypes.Transaction) {
	if m.sent[tx.Hash()] {
		return
	}
	m.sent[tx.Hash()] = true
	m.Broadcasts++
	if effect := m.pending[tx.Hash()]; effect != nil && !m.Revert {
		effect()
	}
	delete(m.pending, tx.Hash())
}

func (m *MockSession) Release(opts *ethBind.TransactOpts, to ethCommon.Address, amount *big.Int) (*ethTypes.Transaction, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	amount = new(big.Int).Set(amount)
	return m.buildLocked(opts, func() {
		m.Released = append(m.Released, MockRelease{To: to, Amount: amount})
	})
}

func (m *MockSession) MintWrapped(opts *ethBind.TransactOpts, collection ethCommon.Address, to ethCommon.Address, uri string, solanaMint string) (*ethTypes.Transaction, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.buildLocked(opts, func() {
		m.minted[collection] = append(m.minted[collection], solanaMint)
	})
}

func (m *MockSession) SendTransaction(ctx context.Context, tx *ethTypes.Transaction) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if len(m.SendErrs) > 0 {
		err := m.SendErrs[0]
		m.SendErrs = m.SendErrs[1:]
		if err != nil {
			if m.BroadcastOnSendErr {
				m.broadcastLocked(tx)
			}
			return err
		}
	}
	m.broadcastLocked(tx)
	return nil
}

func (m *MockSession) TokenCounter(ctx context.Context, collection ethCommon.Address) (*big.Int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return big.NewInt(int64(len(m.minted[collection]))), nil
}

var errNoSuchToken = errors.New("execution reverted: nonexistent token")

func (m *MockSession) SolanaMintOf(ctx context.Context, collection ethCommon.Address, tokenID *big.Int) (string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	mints := m.minted[collection]
	if !tokenID.IsInt64() || tokenID.Int64() < 0 || tokenID.Int64() >= int64(len(mints)) {
		return "", errNoSuchToken
	}
	return mints[tokenID.Int64()], nil
}

func (m *MockSession) WaitMined(ctx context.Context, tx *ethTypes.Transaction) (*ethTypes.Receipt, error) {
	m.mutex.Lock()
	never, revert, known := m.NeverMined, m.Revert, m.sent[tx.Hash()]
	m.mutex.Unlock()

	if never || !known {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	status := ethTypes.ReceiptStatusSuccessful
	if revert {
		status = ethTypes.ReceiptStatusFailed
	}
	return &ethTypes.Receipt{Status: status, TxHash: tx.Hash(), BlockNumber: big.NewInt(1)}, nil
}

func (m *MockSession) Close() {
	m.mutex.Lock()
	m.Closes++
	m.mutex.Unlock()
}
