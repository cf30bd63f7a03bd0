package debug

import (
	"bytes"
	"testing"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/common"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
)

const burnTxJSON = `{
  "slot": 250000000,
  "blockTime": 1700000000,
  "transaction": {"signatures": ["5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"]},
  "meta": {
    "err": null,
    "logMessages": [
      "Program MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcQb invoke [1]",
      "Program log: Memo (len 42): \"0xABCDabcdABCDabcdABCDabcdABCDabcdABCD1234\"",
      "Program MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcQb consumed 7000 of 200000 compute units",
      "Program MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcQb success",
      "Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA invoke [1]",
      "Program log: Instruction: Burn",
      "Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA consumed 4000 of 193000 compute units",
      "Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA success"
    ],
    "preTokenBalances": [
      {"accountIndex": 1, "mint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", "owner": "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
       "uiTokenAmount": {"amount": "100000000000", "decimals": 9}}
    ],
    "postTokenBalances": [
      {"accountIndex": 1, "mint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", "owner": "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
       "uiTokenAmount": {"amount": "50000000000", "decimals": 9}}
    ]
  }
}`

func TestDescribeBurn(t *testing.T) {
	source := &common.WatchedSource{
		Ledger:  common.LedgerSolana,
		Account: solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"),
		Kind:    common.AssetKindFungibleBurn,
	}

	var out bytes.Buffer
	describe(&out, "fixture", []byte(burnTxJSON), source, false)

	s := out.String()
	assert.Contains(t, s, `memo:      "0xABCDabcdABCDabcdABCDabcdABCDabcdABCD1234"`)
	assert.Contains(t, s, "burn:      true")
	assert.Contains(t, s, "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA (ok)")
	assert.Contains(t, s, "amount:    50000000000")
	assert.Contains(t, s, "released:  50000000000000000000 wei")
}

func TestDescribeDump(t *testing.T) {
	source := &common.WatchedSource{
		Ledger:  common.LedgerSolana,
		Account: solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"),
		Kind:    common.AssetKindFungibleBurn,
	}

	var out bytes.Buffer
	describe(&out, "fixture", []byte(burnTxJSON), source, true)

	s := out.String()
	assert.Contains(t, s, "(*solana.Transaction)")
	assert.Contains(t, s, "(*common.TransferIntent)")
	assert.Contains(t, s, "PostTokenBalances:")
}

func TestDescribeGarbage(t *testing.T) {
	var out bytes.Buffer
	describe(&out, "fixture", []byte(`{"result": null}`), nil, false)
	assert.Contains(t, out.String(), "fixture: ")
	assert.Contains(t, out.String(), "missing transaction")
}
