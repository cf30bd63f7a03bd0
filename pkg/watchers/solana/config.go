package solana

import (
	"time"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/common"
	"github.com/gagliardetto/solana-go"
)

const (
	DefaultPollInterval = 5 * time.Second

	DefaultNFTPageSize = 20
	// Deposits to the relayer wallet are read from a mainnet node that lags behind its own signature index.
	DefaultNFTPropagationDelay = time.Second

	DefaultBurnPageSize = 10
)

// NFTDepositSource watches wallet for incoming NFTs.
func NFTDepositSource(wallet solana.PublicKey, pageSize int, interval time.Duration) *common.WatchedSource {
	if pageSize <= 0 {
		pageSize = DefaultNFTPageSize
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &common.WatchedSource{
		Ledger:           common.LedgerSolana,
		Account:          wallet,
		Kind:             common.AssetKindNFTDeposit,
		PageSize:         pageSize,
		Interval:         interval,
		PropagationDelay: DefaultNFTPropagationDelay,
	}
}

// TokenBurnSource watches mint for burns.
func TokenBurnSource(mint solana.PublicKey, pageSize int, interval time.Duration) *common.WatchedSource {
	if pageSize <= 0 {
		pageSize = DefaultBurnPageSize
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &common.WatchedSource{
		Ledger:   common.LedgerSolana,
		Account:  mint,
		Kind:     common.AssetKindFungibleBurn,
		PageSize: pageSize,
		Interval: interval,
	}
}
