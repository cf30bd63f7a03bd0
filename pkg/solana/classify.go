package solana

import (
	"math/big"
	"strings"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/common"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/solana/logs"
	"github.com/gagliardetto/solana-go"
)

var (
	TokenProgramID     = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PFnBqCVEpPxuEb")
)

var burnInstructionLogs = []string{"Instruction: Burn", "Instruction: BurnChecked"}

// HasBurn reports whether a token program successfully executed a burn in tx.
func HasBurn(tx *Transaction) bool {
	invs, err := logs.ParseLogs(tx.LogMessages)
	if err != nil {
		// Unparseable or truncated logs. Settle for the log line itself.
		for _, l := range tx.LogMessages {
			for _, m := range burnInstructionLogs {
				if l == "Program log: "+m {
					return true
				}
			}
		}
		return false
	}
	for _, m := range burnInstructionLogs {
		if logs.HasLog(invs, m, TokenProgramID, Token2022ProgramID) {
			return true
		}
	}
	return false
}

// BurnAmount returns the number of raw units of mint destroyed by tx. It is zero unless a burn instruction ran,
// so plain transfers between accounts never count as burns.
func BurnAmount(tx *Transaction, mint solana.PublicKey) *big.Int {
	if tx.Failed || !HasBurn(tx) {
		return new(big.Int)
	}

	m := mint.String()
	post := make(map[int64]*big.Int)
	for _, b := range tx.PostTokenBalances {
		if b.Mint == m {
			post[b.AccountIndex] = b.Amount
		}
	}

	net := new(big.Int)
	seen := make(map[int64]bool)
	for _, pre := range tx.PreTokenBalances {
		if pre.Mint != m {
			continue
		}
		seen[pre.AccountIndex] = true
		net.Add(net, pre.Amount)
		// A closed account has no post balance.
		if p, ok := post[pre.AccountIndex]; ok {
			net.Sub(net, p)
		}
	}
	for idx, p := range post {
		if !seen[idx] {
			net.Sub(net, p)
		}
	}

	if net.Sign() <= 0 {
		return new(big.Int)
	}
	return net
}

// NFTDeposit finds a zero-decimals token whose balance held by owner went up in tx.
func NFTDeposit(tx *Transaction, owner solana.PublicKey) (string, bool) {
	if tx.Failed {
		return "", false
	}
	o := owner.String()

	for _, post := range tx.PostTokenBalances {
		if post.Owner != o || post.Decimals != 0 {
			continue
		}
		pre := new(big.Int)
		for _, b := range tx.PreTokenBalances {
			if b.AccountIndex == post.AccountIndex {
				pre = b.Amount
				break
			}
		}
		if post.Amount.Cmp(pre) > 0 {
			return post.Mint, true
		}
	}
	return "", false
}

// Classify turns a resolved source transaction into a transfer intent. Failed transactions and transactions without
// a memo never produce one.
func Classify(source *common.WatchedSource, tx *Transaction) (*common.TransferIntent, bool) {
	if tx == nil || tx.Failed || tx.Signature == "" {
		return nil, false
	}
	memo, ok := DecodeMemo(tx)
	if !ok {
		return nil, false
	}
	memo = strings.TrimSpace(memo)

	switch source.Kind {
	case common.AssetKindFungibleBurn:
		amount := BurnAmount(tx, source.Account)
		if amount.Sign() <= 0 {
			return nil, false
		}
		return &common.TransferIntent{
			Kind:        common.AssetKindFungibleBurn,
			SourceID:    tx.Signature,
			AssetID:     tx.Signature,
			Amount:      amount,
			Destination: memo,
			Origin:      common.LedgerSolana,
			TxID:        tx.Signature,
		}, true

	case common.AssetKindNFTDeposit:
		mint, ok := NFTDeposit(tx, source.Account)
		if !ok {
			return nil, false
		}
		return &common.TransferIntent{
			Kind:        common.AssetKindNFTDeposit,
			SourceID:    tx.Signature,
			AssetID:     mint,
			Destination: memo,
			Origin:      common.LedgerSolana,
			TxID:        tx.Signature,
		}, true
	}
	return nil, false
}
