// Package executor performs the compensating write on the opposite ledger for a TransferIntent.
//
// Every Action retries transient failures with a fresh connection per attempt. Once a transaction has been
// submitted it is never resubmitted: the executor waits for confirmation on a context that survives shutdown and
// reports ErrOutcomeUnknown if the wait runs out.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/common"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	// ErrMalformedIntent means the intent cannot be executed as given, e.g. a memo that is not an address.
	ErrMalformedIntent = errors.New("malformed intent")
	// ErrAlreadyWrapped is returned when the NFT already has a wrapped counterpart. No transaction was built.
	ErrAlreadyWrapped = errors.New("asset already wrapped")
	// ErrReverted is a terminal on-chain failure.
	ErrReverted = errors.New("transaction reverted")
	// ErrOutcomeUnknown means a transaction was submitted but its confirmation could not be observed.
	ErrOutcomeUnknown = errors.New("transaction outcome unknown")
	// ErrTransient means every attempt failed with a retryable error.
	ErrTransient = errors.New("transient failure")
)

var (
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_executor_attempts_total",
			Help: "Total number of executor attempts",
		}, []string{"action", "result"})
	confirmLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relayer_executor_confirm_latency",
			Help:    "Latency histogram for transaction confirmations",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"action"})
)

// Receipt describes a submitted transaction. TxID is set whenever something was submitted, including when the
// outcome is unknown.
type Receipt struct {
	TxID     string
	Attempts int
}

type Action interface {
	Execute(ctx context.Context, intent *common.TransferIntent) (*Receipt, error)
}

type Config struct {
	MaxAttempts int
	Retry       common.RetryPolicy
	// CallTimeout bounds every read and every submission of a single attempt.
	CallTimeout time.Duration
	// ConfirmTimeout bounds the wait for a submitted transaction.
	ConfirmTimeout time.Duration
	// ConfirmPoll is the status polling interval on Solana.
	ConfirmPoll time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		Retry:          common.CappedExponentialBackoff(time.Second, 16*time.Second),
		CallTimeout:    15 * time.Second,
		ConfirmTimeout: 2 * time.Minute,
		ConfirmPoll:    2 * time.Second,
	}
}

// Router dispatches an intent to the Action registered for its kind.
type Router map[common.AssetKind]Action

func (r Router) Execute(ctx context.Context, intent *common.TransferIntent) (*Receipt, error) {
	action, ok := r[intent.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: no action for kind %s", ErrMalformedIntent, intent.Kind)
	}
	return action.Execute(ctx, intent)
}

func isTerminal(err error) bool {
	return errors.Is(err, ErrMalformedIntent) ||
		errors.Is(err, ErrAlreadyWrapped) ||
		errors.Is(err, ErrReverted) ||
		errors.Is(err, ErrOutcomeUnknown)
}

// isRevertError reports whether a node rejected a call or a submission because the contract reverted.
func isRevertError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "execution reverted")
}

type attemptFunc func(ctx context.Context, logger *zap.Logger) (*Receipt, error)

// run drives the attempts of one action. Terminal errors end it right away, anything else is retried according to
// cfg and becomes ErrTransient once attempts run out.
func run(ctx context.Context, logger *zap.Logger, cfg Config, name string, intent *common.TransferIntent, attempt attemptFunc) (*Receipt, error) {
	logger = logger.With(zap.String("action", name), zap.String("id", intent.SourceID), zap.String("asset", intent.AssetID))

	receipt, err := common.Retry(ctx, cfg.MaxAttempts, cfg.Retry,
		func(n int) (*Receipt, error) {
			l := logger.With(zap.String("attempt_id", uuid.New().String()), zap.Int("attempt", n))
			l.Debug("executing")

			r, err := attempt(ctx, l)
			if r != nil {
				r.Attempts = n
			}
			if err == nil {
				attemptsTotal.WithLabelValues(name, "success").Inc()
				l.Info("executed", zap.String("tx", r.TxID))
				return r, nil
			}
			if isTerminal(err) {
				attemptsTotal.WithLabelValues(name, "terminal").Inc()
				return r, common.Permanent(err)
			}
			attemptsTotal.WithLabelValues(name, "retryable").Inc()
			return r, err
		},
		func(n int, err error, wait time.Duration) {
			logger.Warn("attempt failed, retrying", zap.Int("attempt", n), zap.Duration("wait", wait), zap.Error(err))
		})
	if err == nil || isTerminal(err) {
		return receipt, err
	}
	return receipt, fmt.Errorf("%w: %w", ErrTransient, err)
}
