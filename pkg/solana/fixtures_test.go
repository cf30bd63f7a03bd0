package solana

import (
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

const (
	testSignature = "5pt3xQ8iZ4bq9Zp2wJ1kH1Qy7uV8m3FhT4zRrN2cEo9Yd6sLk3WvG7aBxCnJ5eP1tUgM8yR2fK4hD9sQ6wLzA1b"
	testMint      = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	testRelayer   = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	testPayer     = "F11YDwLVireDZ7zFgnjo3psyiSCW3oumYsWWaXbqR5bF"
	testNFTMint   = "So11111111111111111111111111111111111111112"
	testOmegaAddr = "0xAbCdEf0123456789aBcDeF0123456789AbCd1234"
)

var burnLogs = []string{
	"Program MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcQb invoke [1]",
	`Program log: Memo (len 42): "0xAbCdEf0123456789aBcDeF0123456789AbCd1234"`,
	"Program MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcQb consumed 29847 of 199850 compute units",
	"Program MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcQb success",
	"Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA invoke [1]",
	"Program log: Instruction: BurnChecked",
	"Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA consumed 4522 of 170003 compute units",
	"Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA success",
}

var transferLogs = []string{
	"Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA invoke [1]",
	"Program log: Instruction: TransferChecked",
	"Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA consumed 6200 of 200000 compute units",
	"Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA success",
}

type balance struct {
	index    int
	mint     string
	owner    string
	amount   string
	decimals int
}

func balancesJSON(bs []balance) string {
	parts := make([]string, 0, len(bs))
	for _, b := range bs {
		parts = append(parts, fmt.Sprintf(
			`{"accountIndex":%d,"mint":%q,"owner":%q,"programId":"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA","uiTokenAmount":{"amount":%q,"decimals":%d,"uiAmount":null,"uiAmountString":"0"}}`,
			b.index, b.mint, b.owner, b.amount, b.decimals))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func stringsJSON(ss []string) string {
	parts := make([]string, 0, len(ss))
	for _, s := range ss {
		parts = append(parts, fmt.Sprintf("%q", s))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func bytesJSON(b []byte) string {
	parts := make([]string, 0, len(b))
	for _, c := range b {
		parts = append(parts, fmt.Sprintf("%d", c))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// legacyTx renders a json-encoded getTransaction result with a memo instruction carrying memo.
func legacyTx(memo string, errJSON string, logs []string, pre, post []balance) []byte {
	memoIx := ""
	if memo != "" {
		memoIx = fmt.Sprintf(`,{"programIdIndex":4,"accounts":[0],"data":%q,"stackHeight":null}`, base58.Encode([]byte(memo)))
	}
	return []byte(fmt.Sprintf(`{
  "slot": 312345678,
  "blockTime": 1735689600,
  "meta": {
    "err": %s,
    "fee": 5000,
    "logMessages": %s,
    "preTokenBalances": %s,
    "postTokenBalances": %s,
    "loadedAddresses": {"writable": [], "readonly": []}
  },
  "transaction": {
    "signatures": [%q],
    "message": {
      "accountKeys": [%q, %q, %q, "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcQb"],
      "header": {"numRequiredSignatures": 1, "numReadonlySignedAccounts": 0, "numReadonlyUnsignedAccounts": 2},
      "instructions": [
        {"programIdIndex":3,"accounts":[1,2,0],"data":"6AuM4xMCPFhR","stackHeight":null}%s
      ],
      "recentBlockhash": "EETubP5AKHgjPAhzPAFcb8BAY1hMH639CWCFTqi3hq1k"
    }
  },
  "version": "legacy"
}`, errJSON, stringsJSON(logs), balancesJSON(pre), balancesJSON(post),
		testSignature, testPayer, testRelayer, testMint, memoIx))
}
