package evm

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/common"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/watchers/evm/connectors/bridgeabi"
	ethCommon "github.com/ethereum/go-ethereum/common"
)

var (
	ErrRemovedLog   = errors.New("log was removed by a reorg")
	ErrInvalidEvent = errors.New("invalid event")
)

// LockedAssetID identifies a single Locked event of bridge. Locked carries no asset of its own, so the log position
// stands in for it.
func LockedAssetID(bridge ethCommon.Address, logIndex uint) string {
	return fmt.Sprintf("omega:%s/%d", bridge.Hex(), logIndex)
}

// LockedIntent converts a Locked event into a mint of the locked amount on Solana. The listener and the sweep both
// go through here so that they agree on the dedup identifier.
func LockedIntent(bridge ethCommon.Address, ev *bridgeabi.BridgeLocked) (*common.TransferIntent, error) {
	if ev.Raw.Removed {
		return nil, ErrRemovedLog
	}
	if ev.Amount == nil || ev.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive amount in tx %s", ErrInvalidEvent, ev.Raw.TxHash.Hex())
	}
	if ev.SolanaAddress == "" {
		return nil, fmt.Errorf("%w: empty solana address in tx %s", ErrInvalidEvent, ev.Raw.TxHash.Hex())
	}

	assetID := LockedAssetID(bridge, ev.Raw.Index)
	txHash := ev.Raw.TxHash.Hex()
	return &common.TransferIntent{
		Kind:         common.AssetKindTargetLock,
		SourceID:     common.TargetEventID(assetID, txHash),
		AssetID:      assetID,
		Amount:       new(big.Int).Set(ev.Amount),
		Destination:  ev.SolanaAddress,
		Origin:       common.LedgerOmega,
		TxID:         txHash,
		DiscoveredAt: time.Now(),
	}, nil
}

// BridgeBackIntent converts a BridgeBack event into a return of the original NFT on Solana.
func BridgeBackIntent(ev *bridgeabi.WrappedNFTBridgeBack) (*common.TransferIntent, error) {
	if ev.Raw.Removed {
		return nil, ErrRemovedLog
	}
	if ev.SolanaMint == "" || ev.SolanaRecipient == "" {
		return nil, fmt.Errorf("%w: incomplete BridgeBack in tx %s", ErrInvalidEvent, ev.Raw.TxHash.Hex())
	}

	txHash := ev.Raw.TxHash.Hex()
	return &common.TransferIntent{
		Kind:         common.AssetKindTargetNFTBurn,
		SourceID:     common.TargetEventID(ev.SolanaMint, txHash),
		AssetID:      ev.SolanaMint,
		Destination:  ev.SolanaRecipient,
		Origin:       common.LedgerOmega,
		TxID:         txHash,
		DiscoveredAt: time.Now(),
	}, nil
}
