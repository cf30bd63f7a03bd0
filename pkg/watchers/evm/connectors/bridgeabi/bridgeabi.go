// Package bridgeabi contains Go bindings for the Omega side of the bridge: the native coin bridge and the wrapped
// NFT collections. The bindings follow abigen's layout but only cover the methods and events the relayer uses.
package bridgeabi

import (
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

const BridgeABI = `[
	{"type":"function","name":"lock","stateMutability":"payable","inputs":[{"name":"solanaAddress","type":"string"}],"outputs":[]},
	{"type":"function","name":"release","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"event","name":"Locked","anonymous":false,"inputs":[
		{"name":"sender","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"solanaAddress","type":"string","indexed":false}]}
]`

const WrappedNFTABI = `[
	{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[
		{"name":"to","type":"address"},
		{"name":"uri","type":"string"},
		{"name":"solanaMint","type":"string"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"tokenCounter","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"solanaMintOf","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
	{"type":"event","name":"BridgeBack","anonymous":false,"inputs":[
		{"name":"tokenId","type":"uint256","indexed":true},
		{"name":"owner","type":"address","indexed":true},
		{"name":"solanaMint","type":"string","indexed":false},
		{"name":"solanaRecipient","type":"string","indexed":false}]}
]`

var (
	bridgeABI     = mustParse(BridgeABI)
	wrappedNFTABI = mustParse(WrappedNFTABI)

	// LockedTopic is the event signature of Locked(address,uint256,string).
	LockedTopic = bridgeABI.Events["Locked"].ID
	// BridgeBackTopic is the event signature of BridgeBack(uint256,address,string,string).
	BridgeBackTopic = wrappedNFTABI.Events["BridgeBack"].ID
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// BridgeLocked represents a Locked event raised by the Bridge contract.
type BridgeLocked struct {
	Sender        common.Address
	Amount        *big.Int
	SolanaAddress string
	Raw           types.Log
}

// WrappedNFTBridgeBack represents a BridgeBack event raised by a wrapped NFT collection.
type WrappedNFTBridgeBack struct {
	TokenId         *big.Int
	Owner           common.Address
	SolanaMint      string
	SolanaRecipient string
	Raw             types.Log
}

type Bridge struct {
	address  common.Address
	contract *bind.BoundContract
}

func NewBridge(address common.Address, backend bind.ContractBackend) *Bridge {
	return &Bridge{
		address:  address,
		contract: bind.NewBoundContract(address, bridgeABI, backend, backend, backend),
	}
}

func (b *Bridge) Address() common.Address {
	return b.address
}

// Release is a paid mutator transaction binding the contract method release(address to, uint256 amount).
func (b *Bridge) Release(opts *bind.TransactOpts, to common.Address, amount *big.Int) (*types.Transaction, error) {
	return b.contract.Transact(opts, "release", to, amount)
}

// Lock is a paid mutator transaction binding the contract method lock(string solanaAddress).
func (b *Bridge) Lock(opts *bind.TransactOpts, solanaAddress string) (*types.Transaction, error) {
	return b.contract.Transact(opts, "lock", solanaAddress)
}

func (b *Bridge) FilterLocked(opts *bind.FilterOpts, sender []common.Address) ([]*BridgeLocked, error) {
	logs, sub, err := b.contract.FilterLogs(opts, "Locked", addressRule(sender))
	if err != nil {
		return nil, err
	}
	var out []*BridgeLocked
	err = drain(logs, sub, func(l types.Log) error {
		ev, err := b.ParseLocked(l)
		if err != nil {
			return err
		}
		out = append(out, ev)
		return nil
	})
	return out, err
}

func (b *Bridge) WatchLocked(opts *bind.WatchOpts, sink chan<- *BridgeLocked, sender []common.Address) (event.Subscription, error) {
	logs, sub, err := b.contract.WatchLogs(opts, "Locked", addressRule(sender))
	if err != nil {
		return nil, err
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case log := <-logs:
				ev, err := b.ParseLocked(log)
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

func (b *Bridge) ParseLocked(log types.Log) (*BridgeLocked, error) {
	ev := new(BridgeLocked)
	if err := b.contract.UnpackLog(ev, "Locked", log); err != nil {
		return nil, err
	}
	ev.Raw = log
	return ev, nil
}

type WrappedNFT struct {
	address  common.Address
	contract *bind.BoundContract
}

func NewWrappedNFT(address common.Address, backend bind.ContractBackend) *WrappedNFT {
	return &WrappedNFT{
		address:  address,
		contract: bind.NewBoundContract(address, wrappedNFTABI, backend, backend, backend),
	}
}

func (w *WrappedNFT) Address() common.Address {
	return w.address
}

// Mint is a paid mutator transaction binding the contract method mint(address to, string uri, string solanaMint).
func (w *WrappedNFT) Mint(opts *bind.TransactOpts, to common.Address, uri string, solanaMint string) (*types.Transaction, error) {
	return w.contract.Transact(opts, "mint", to, uri, solanaMint)
}

// TokenCounter is a free data retrieval call binding the contract method tokenCounter().
func (w *WrappedNFT) TokenCounter(opts *bind.CallOpts) (*big.Int, error) {
	var out []interface{}
	if err := w.contract.Call(opts, &out, "tokenCounter"); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// SolanaMintOf is a free data retrieval call binding the contract method solanaMintOf(uint256 tokenId).
func (w *WrappedNFT) SolanaMintOf(opts *bind.CallOpts, tokenId *big.Int) (string, error) {
	var out []interface{}
	if err := w.contract.Call(opts, &out, "solanaMintOf", tokenId); err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

func (w *WrappedNFT) ParseBridgeBack(log types.Log) (*WrappedNFTBridgeBack, error) {
	ev := new(WrappedNFTBridgeBack)
	if err := w.contract.UnpackLog(ev, "BridgeBack", log); err != nil {
		return nil, err
	}
	ev.Raw = log
	return ev, nil
}

// ParseBridgeBack decodes a BridgeBack log of any collection.
func ParseBridgeBack(log types.Log) (*WrappedNFTBridgeBack, error) {
	return NewWrappedNFT(log.Address, nil).ParseBridgeBack(log)
}

// ParseLocked decodes a Locked log of any bridge deployment.
func ParseLocked(log types.Log) (*BridgeLocked, error) {
	return NewBridge(log.Address, nil).ParseLocked(log)
}

func addressRule(addrs []common.Address) []interface{} {
	var rule []interface{}
	for _, a := range addrs {
		rule = append(rule, a)
	}
	return rule
}

// drain consumes a FilterLogs result to completion.
func drain(logs chan types.Log, sub ethereum.Subscription, fn func(types.Log) error) error {
	defer sub.Unsubscribe()
	for {
		select {
		case l := <-logs:
			if err := fn(l); err != nil {
				return err
			}
		case err, ok := <-sub.Err():
			if ok && err != nil {
				return err
			}
			// FilterLogs delivers every log before completing the subscription.
			for {
				select {
				case l := <-logs:
					if err := fn(l); err != nil {
						return err
					}
				default:
					return nil
				}
			}
		}
	}
}
