package solana

// The poller lists the most recent signatures of a watched account every interval. It keeps no "last seen
// signature" watermark: every tick looks at the same recent window and the dedup store decides what was already
// handled. A transaction that could not be resolved on one tick is picked up again on the next one.

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"time"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/common"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/db"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/readiness"
	soltx "github.com/OmegaNetwork-source/omega-bridge/pkg/solana"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/supervisor"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	pollTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_solana_poll_ticks_total",
			Help: "Total number of poll ticks by result",
		}, []string{"source", "result"})
	intentsFound = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_solana_intents_found_total",
			Help: "Total number of transfer intents discovered on Solana",
		}, []string{"source"})
	unresolvedTransactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_solana_unresolved_transactions_total",
			Help: "Total number of signatures whose transaction could not be fetched within the retry budget",
		}, []string{"source"})
)

const (
	// Maximum attempts to resolve a single signature within a tick.
	maxRetries    = 5
	retryDelay    = 500 * time.Millisecond
	maxRetryDelay = 4 * time.Second
)

// IntentHandler consumes one intent. It must not return before the intent has been fully handled.
type IntentHandler func(ctx context.Context, intent *common.TransferIntent)

type Poller struct {
	source    *common.WatchedSource
	client    SourceClient
	processed db.ProcessedSet
	handle    IntentHandler
	retry     common.RetryPolicy

	// running is set while a tick is in progress.
	running atomic.Bool
}

func NewPoller(source *common.WatchedSource, client SourceClient, processed db.ProcessedSet, handle IntentHandler) (*Poller, error) {
	if source == nil || client == nil || processed == nil || handle == nil {
		return nil, errors.New("poller needs a source, a client, a dedup store and a handler")
	}
	return &Poller{
		source:    source,
		client:    client,
		processed: processed,
		handle:    handle,
		retry:     common.CappedExponentialBackoff(retryDelay, maxRetryDelay),
	}, nil
}

// Run polls until ctx is canceled. Ticks run in their own goroutine; a tick that comes due while the previous one is
// still busy is dropped.
func (p *Poller) Run(ctx context.Context) error {
	logger := supervisor.Logger(ctx).With(zap.Stringer("source", p.source))
	errC := make(chan error)

	logger.Info("starting poller",
		zap.Int("page_size", p.source.PageSize),
		zap.Duration("interval", p.source.Interval),
		zap.Duration("propagation_delay", p.source.PropagationDelay))

	supervisor.Signal(ctx, supervisor.SignalHealthy)

	tick := func() {
		common.RunWithScissors(ctx, errC, "solana_poll", func(ctx context.Context) error {
			if err := p.Poll(ctx, logger); err != nil && ctx.Err() == nil {
				logger.Error("poll failed", zap.Error(err))
			}
			return nil
		})
	}

	tick()
	ticker := time.NewTicker(p.source.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errC:
			return err
		case <-ticker.C:
			tick()
		}
	}
}

var errTickInProgress = errors.New("previous tick still running")

// Poll runs a single tick: list the recent window, then resolve, classify and hand over every signature that was not
// handled before, oldest first.
func (p *Poller) Poll(ctx context.Context, logger *zap.Logger) error {
	if !p.running.CompareAndSwap(false, true) {
		pollTicks.WithLabelValues(p.source.String(), "skipped").Inc()
		logger.Debug("skipping tick", zap.Error(errTickInProgress))
		return nil
	}
	defer p.running.Store(false)

	sigs, err := p.client.RecentSignatures(ctx, p.source.Account, p.source.PageSize)
	if err != nil {
		pollTicks.WithLabelValues(p.source.String(), "list_error").Inc()
		return err
	}
	readiness.SetReady(common.ReadinessSolanaPolling)

	slices.Reverse(sigs)
	for _, s := range sigs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.inspect(ctx, logger, s)
	}

	pollTicks.WithLabelValues(p.source.String(), "ok").Inc()
	return nil
}

func (p *Poller) inspect(ctx context.Context, logger *zap.Logger, s *rpc.TransactionSignature) {
	if s == nil || s.Err != nil {
		return
	}
	sig := s.Signature
	id := sig.String()

	done, err := p.processed.Contains(id)
	if err != nil {
		// Let the processor make the final call, it checks the store again.
		logger.Warn("failed to query dedup store", zap.String("signature", id), zap.Error(err))
	} else if done {
		return
	}

	if p.source.PropagationDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.source.PropagationDelay):
		}
	}

	raw, err := p.fetch(ctx, logger, sig)
	if err != nil {
		unresolvedTransactions.WithLabelValues(p.source.String()).Inc()
		logger.Warn("failed to resolve transaction, will retry next tick", zap.String("signature", id), zap.Error(err))
		return
	}

	tx, err := soltx.ParseTransaction(raw)
	if err != nil {
		logger.Error("failed to parse transaction", zap.String("signature", id), zap.Error(err))
		return
	}

	intent, ok := soltx.Classify(p.source, tx)
	if !ok {
		logger.Debug("not a bridge transaction", zap.String("signature", id))
		return
	}
	intent.DiscoveredAt = time.Now()

	intentsFound.WithLabelValues(p.source.String()).Inc()
	logger.Info("found transfer intent",
		zap.Stringer("kind", intent.Kind),
		zap.String("signature", id),
		zap.String("asset", intent.AssetID),
		zap.String("destination", intent.Destination))

	p.handle(ctx, intent)
}

func (p *Poller) fetch(ctx context.Context, logger *zap.Logger, sig solana.Signature) ([]byte, error) {
	return common.Retry(ctx, maxRetries, p.retry,
		func(int) ([]byte, error) {
			return p.client.RawTransaction(ctx, sig)
		},
		func(attempt int, err error, wait time.Duration) {
			if errors.Is(err, rpc.ErrNotFound) {
				logger.Debug("transaction not found yet", zap.Stringer("signature", sig), zap.Int("attempt", attempt))
				return
			}
			logger.Info("retrying transaction fetch",
				zap.Stringer("signature", sig),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err))
		})
}
