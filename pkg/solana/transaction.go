// Package solana turns raw getTransaction bodies into bridge transfer intents.
//
// Nothing here talks to the network. The pollers in pkg/watchers/solana fetch the raw JSON and hand it over.
package solana

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/tidwall/gjson"
)

var ErrNotATransaction = errors.New("not a transaction body")

// TokenBalance is one entry of meta.preTokenBalances or meta.postTokenBalances.
type TokenBalance struct {
	AccountIndex int64
	Mint         string
	Owner        string
	Amount       *big.Int
	Decimals     int64
}

// Transaction is a read-only view over a raw getTransaction body. It only exposes what the decoder and the
// classifier need and keeps the raw document around for instruction-level lookups.
type Transaction struct {
	Signature   string
	Slot        uint64
	BlockTime   time.Time
	Failed      bool
	LogMessages []string

	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance

	raw gjson.Result
}

// ParseTransaction builds a Transaction from the result of getTransaction. A full JSON-RPC envelope with a
// "result" member is accepted as well.
func ParseTransaction(raw []byte) (*Transaction, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: invalid json", ErrNotATransaction)
	}
	doc := gjson.ParseBytes(raw)
	if r := doc.Get("result"); r.Exists() && !doc.Get("transaction").Exists() {
		doc = r
	}
	if !doc.IsObject() || !doc.Get("transaction").Exists() {
		return nil, fmt.Errorf("%w: missing transaction", ErrNotATransaction)
	}

	tx := &Transaction{
		Signature: doc.Get("transaction.signatures.0").String(),
		Slot:      doc.Get("slot").Uint(),
		raw:       doc,
	}
	if bt := doc.Get("blockTime"); bt.Type == gjson.Number {
		tx.BlockTime = time.Unix(bt.Int(), 0).UTC()
	}

	meta := doc.Get("meta")
	if e := meta.Get("err"); e.Exists() && e.Type != gjson.Null {
		tx.Failed = true
	}
	for _, l := range meta.Get("logMessages").Array() {
		tx.LogMessages = append(tx.LogMessages, l.String())
	}

	var err error
	if tx.PreTokenBalances, err = parseTokenBalances(meta.Get("preTokenBalances")); err != nil {
		return nil, fmt.Errorf("preTokenBalances: %w", err)
	}
	if tx.PostTokenBalances, err = parseTokenBalances(meta.Get("postTokenBalances")); err != nil {
		return nil, fmt.Errorf("postTokenBalances: %w", err)
	}

	return tx, nil
}

func parseTokenBalances(list gjson.Result) ([]TokenBalance, error) {
	var out []TokenBalance
	for _, b := range list.Array() {
		// uiTokenAmount.amount is a decimal string of the raw amount. uiAmount is a float and must not be used.
		s := b.Get("uiTokenAmount.amount").String()
		amount, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("account %d: invalid amount %q", b.Get("accountIndex").Int(), s)
		}
		out = append(out, TokenBalance{
			AccountIndex: b.Get("accountIndex").Int(),
			Mint:         b.Get("mint").String(),
			Owner:        b.Get("owner").String(),
			Amount:       amount,
			Decimals:     b.Get("uiTokenAmount.decimals").Int(),
		})
	}
	return out, nil
}

// Raw returns the underlying document.
func (tx *Transaction) Raw() gjson.Result {
	return tx.raw
}
