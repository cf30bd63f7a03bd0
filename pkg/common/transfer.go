package common

import (
	"fmt"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
)

type Ledger string

const (
	LedgerSolana Ledger = "solana"
	LedgerOmega  Ledger = "omega"
)

// AssetKind says what was observed and, with it, which compensating action runs on the opposite ledger.
type AssetKind uint8

const (
	AssetKindUnknown AssetKind = iota
	// An SPL burn on Solana, released as native coin on Omega.
	AssetKindFungibleBurn
	// An NFT sent to the relayer wallet on Solana, minted as a wrapped NFT on Omega.
	AssetKindNFTDeposit
	// A Locked event of the Omega bridge contract, minted as SPL tokens on Solana.
	AssetKindTargetLock
	// A BridgeBack event of a wrapped NFT collection, returned from the relayer wallet on Solana.
	AssetKindTargetNFTBurn
)

func (k AssetKind) String() string {
	switch k {
	case AssetKindFungibleBurn:
		return "fungible_burn"
	case AssetKindNFTDeposit:
		return "nft_deposit"
	case AssetKindTargetLock:
		return "target_lock"
	case AssetKindTargetNFTBurn:
		return "target_nft_burn"
	default:
		return "unknown"
	}
}

// ParseAssetKind is the inverse of AssetKind.String for the kinds a poller can watch.
func ParseAssetKind(s string) (AssetKind, error) {
	switch s {
	case "fungible_burn":
		return AssetKindFungibleBurn, nil
	case "nft_deposit":
		return AssetKindNFTDeposit, nil
	default:
		return AssetKindUnknown, fmt.Errorf("unsupported asset kind %q", s)
	}
}

// DedupDomain names one persisted set of processed identifiers.
type DedupDomain string

const (
	DomainNFTDeposits DedupDomain = "nft_deposits"
	DomainTokenBurns  DedupDomain = "token_burns"
	DomainTargetBurns DedupDomain = "target_burns"
)

// AllDomains lists every dedup domain, in a stable order.
var AllDomains = []DedupDomain{DomainNFTDeposits, DomainTokenBurns, DomainTargetBurns}

// Domain returns the dedup domain that guards intents of this kind.
func (k AssetKind) Domain() DedupDomain {
	switch k {
	case AssetKindFungibleBurn:
		return DomainTokenBurns
	case AssetKindNFTDeposit:
		return DomainNFTDeposits
	case AssetKindTargetLock, AssetKindTargetNFTBurn:
		return DomainTargetBurns
	default:
		return ""
	}
}

// WatchedSource is one account polled on the source ledger. For fungible burns Account is the tracked mint, for
// NFT deposits it is the receiving relayer wallet.
type WatchedSource struct {
	Ledger   Ledger
	Account  solana.PublicKey
	Kind     AssetKind
	PageSize int
	Interval time.Duration
	// PropagationDelay is waited before every transaction fetch to let lagging RPC nodes catch up.
	PropagationDelay time.Duration
}

func (w *WatchedSource) String() string {
	return fmt.Sprintf("%s/%s/%s", w.Ledger, w.Kind, w.Account)
}

// CandidateEvent is a transaction discovered by a poller, before decoding.
type CandidateEvent struct {
	Ledger       Ledger
	TxID         string
	DiscoveredAt time.Time
	Raw          []byte
}

// TransferIntent is a validated request to perform one compensating action.
type TransferIntent struct {
	Kind AssetKind
	// SourceID is the dedup identifier: the source transaction id, or assetID:txHash for target ledger events.
	SourceID string
	// AssetID serializes executions in the concurrency guard. For NFTs it is the Solana mint.
	AssetID string
	// Amount is set for fungible kinds, in the smallest unit of the origin ledger.
	Amount      *big.Int
	Destination string
	Origin      Ledger
	TxID        string

	DiscoveredAt time.Time
}

func (i *TransferIntent) Domain() DedupDomain {
	return i.Kind.Domain()
}

func (i *TransferIntent) String() string {
	return fmt.Sprintf("%s %s -> %s", i.Kind, i.SourceID, i.Destination)
}

// TargetEventID builds the dedup identifier for an event observed on the target ledger. The live listener and the
// reconciliation sweep both go through here so that they agree on identity.
func TargetEventID(assetID string, txHash string) string {
	return fmt.Sprintf("%s:%s", assetID, txHash)
}

// UnknownOutcomePolicy decides what happens to the dedup store when a write was submitted but never confirmed.
type UnknownOutcomePolicy string

const (
	// Do not record. The intent may be executed again later, risking a duplicate delivery if the write landed.
	UnknownOutcomeSkip UnknownOutcomePolicy = "skip"
	// Record as soon as a transaction was submitted. Risks under-delivery if the write never landed.
	UnknownOutcomeRecord UnknownOutcomePolicy = "record"
)

func ParseUnknownOutcomePolicy(s string) (UnknownOutcomePolicy, error) {
	switch UnknownOutcomePolicy(s) {
	case UnknownOutcomeSkip, UnknownOutcomeRecord:
		return UnknownOutcomePolicy(s), nil
	default:
		return "", fmt.Errorf("invalid unknown-outcome policy %q (want skip or record)", s)
	}
}
