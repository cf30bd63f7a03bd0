package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var (
	solanaConnectionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_solana_connection_errors_total",
			Help: "Total number of Solana connection errors",
		}, []string{"solana_network", "reason"})
	queryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "relayer_solana_query_latency",
			Help: "Latency histogram for Solana RPC calls",
		}, []string{"solana_network", "operation"})
)

const rpcTimeout = time.Second * 5

// SourceClient is the subset of the Solana JSON-RPC API the pollers and the metadata fetcher need.
type SourceClient interface {
	// RecentSignatures lists up to limit signatures involving account, newest first.
	RecentSignatures(ctx context.Context, account solana.PublicKey, limit int) ([]*rpc.TransactionSignature, error)
	// RawTransaction returns the getTransaction result for sig as received. It returns rpc.ErrNotFound while the
	// node does not know the transaction yet.
	RawTransaction(ctx context.Context, sig solana.Signature) ([]byte, error)
	// AccountData returns the binary data of account, or rpc.ErrNotFound if it does not exist.
	AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)
}

type Client struct {
	rpcClient  *rpc.Client
	limiter    *rate.Limiter
	network    string
	commitment rpc.CommitmentType
	encoding   solana.EncodingType
}

// NewClient returns a SourceClient for rpcURL that issues at most rps requests per second. network is only used to
// label metrics.
func NewClient(rpcURL string, network string, commitment rpc.CommitmentType, encoding solana.EncodingType, rps float64, burst int) (*Client, error) {
	switch encoding {
	case solana.EncodingJSON, solana.EncodingJSONParsed:
	default:
		return nil, fmt.Errorf("unsupported transaction encoding %q", encoding)
	}

	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}

	return &Client{
		rpcClient:  rpc.New(rpcURL),
		limiter:    rate.NewLimiter(limit, burst),
		network:    network,
		commitment: commitment,
		encoding:   encoding,
	}, nil
}

func (c *Client) wait(ctx context.Context, operation string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		solanaConnectionErrors.WithLabelValues(c.network, "rate_limit_wait").Inc()
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}

func (c *Client) RecentSignatures(ctx context.Context, account solana.PublicKey, limit int) ([]*rpc.TransactionSignature, error) {
	if err := c.wait(ctx, "get_signatures_for_address"); err != nil {
		return nil, err
	}

	rCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	start := time.Now()
	sigs, err := c.rpcClient.GetSignaturesForAddressWithOpts(rCtx, account, &rpc.GetSignaturesForAddressOpts{
		Commitment: c.commitment,
		Limit:      &limit,
	})
	queryLatency.WithLabelValues(c.network, "get_signatures_for_address").Observe(time.Since(start).Seconds())
	if err != nil {
		solanaConnectionErrors.WithLabelValues(c.network, "get_signatures_for_address_error").Inc()
		return nil, fmt.Errorf("GetSignaturesForAddressWithOpts failed: %w", err)
	}
	return sigs, nil
}

func (c *Client) RawTransaction(ctx context.Context, sig solana.Signature) ([]byte, error) {
	if err := c.wait(ctx, "get_transaction"); err != nil {
		return nil, err
	}

	rCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	// The raw body is kept so that the decoder sees every shape the node may answer with.
	var raw json.RawMessage
	params := []interface{}{
		sig.String(),
		map[string]interface{}{
			"encoding":                       c.encoding,
			"commitment":                     c.commitment,
			"maxSupportedTransactionVersion": 0,
		},
	}

	start := time.Now()
	err := c.rpcClient.RPCCallForInto(rCtx, &raw, "getTransaction", params)
	queryLatency.WithLabelValues(c.network, "get_transaction").Observe(time.Since(start).Seconds())
	if err != nil {
		solanaConnectionErrors.WithLabelValues(c.network, "get_transaction_error").Inc()
		return nil, fmt.Errorf("getTransaction %s: %w", sig, err)
	}

	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, rpc.ErrNotFound
	}
	return raw, nil
}

func (c *Client) AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	if err := c.wait(ctx, "get_account_info"); err != nil {
		return nil, err
	}

	rCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	start := time.Now()
	info, err := c.rpcClient.GetAccountInfoWithOpts(rCtx, account, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	})
	queryLatency.WithLabelValues(c.network, "get_account_info").Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, err
		}
		solanaConnectionErrors.WithLabelValues(c.network, "get_account_info_error").Inc()
		return nil, fmt.Errorf("GetAccountInfoWithOpts %s: %w", account, err)
	}
	if info == nil || info.Value == nil {
		return nil, rpc.ErrNotFound
	}
	return info.Value.Data.GetBinary(), nil
}

func (c *Client) Close() error {
	return c.rpcClient.Close()
}
