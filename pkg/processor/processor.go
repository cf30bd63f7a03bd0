// Package processor runs every TransferIntent through the same pipeline: dedup check, per-asset guard, execution,
// and recording of the outcome. Errors never escape Handle; the outcome is logged and counted instead.
package processor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/common"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/db"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/executor"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/guard"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/readiness"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/supervisor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	outcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_processor_outcomes_total",
			Help: "Total number of handled intents by kind and outcome",
		}, []string{"kind", "outcome"})
	guardHeld = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relayer_guard_held",
			Help: "Number of assets with an execution in flight",
		})
	intentLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relayer_intent_latency",
			Help:    "Time from discovery of an intent to its recorded execution",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"kind"})
	unpersistedRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relayer_unpersisted_records",
			Help: "Executed intents whose dedup record has not been written yet",
		}, []string{"domain"})
)

type Outcome int

const (
	// The intent was already recorded. Nothing ran.
	OutcomeDuplicate Outcome = iota
	// Another execution for the same asset is in flight. Nothing ran; a later tick rediscovers the intent.
	OutcomeBusy
	OutcomeExecuted
	OutcomeAlreadyWrapped
	OutcomeRejected
	OutcomeUnknown
	OutcomeMalformed
	OutcomeFailed
	OutcomeStoreError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeBusy:
		return "busy"
	case OutcomeExecuted:
		return "executed"
	case OutcomeAlreadyWrapped:
		return "already_wrapped"
	case OutcomeRejected:
		return "rejected"
	case OutcomeUnknown:
		return "unknown"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeFailed:
		return "failed"
	case OutcomeStoreError:
		return "store_error"
	default:
		return "invalid"
	}
}

type Processor struct {
	logger *zap.Logger
	stores *db.Stores
	guard  *guard.Guard
	action executor.Action
	policy common.UnknownOutcomePolicy

	// Handle holds mu for reading; Shutdown takes it for writing to wait out in-flight executions.
	mu     sync.RWMutex
	closed bool

	// Executed intents whose record failed. They count as processed, and their domain executes nothing else until
	// they are written.
	unpersistedMu sync.Mutex
	unpersisted   map[common.DedupDomain]map[string]struct{}
}

func New(logger *zap.Logger, stores *db.Stores, action executor.Action, policy common.UnknownOutcomePolicy) *Processor {
	if policy == "" {
		policy = common.UnknownOutcomeSkip
	}
	return &Processor{
		logger: logger,
		stores: stores,
		guard:  guard.New(),
		action: action,
		policy: policy,

		unpersisted: make(map[common.DedupDomain]map[string]struct{}),
	}
}

// Handle processes intent once. At most one execution per asset runs at a time, and a successful execution is
// recorded before the asset is released.
func (p *Processor) Handle(ctx context.Context, intent *common.TransferIntent) Outcome {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return OutcomeBusy
	}

	outcome := p.handle(ctx, intent)
	outcomesTotal.WithLabelValues(intent.Kind.String(), outcome.String()).Inc()
	return outcome
}

func (p *Processor) handle(ctx context.Context, intent *common.TransferIntent) Outcome {
	logger := p.logger.With(
		zap.Stringer("kind", intent.Kind),
		zap.String("id", intent.SourceID),
		zap.String("asset", intent.AssetID))

	set, ok := p.stores.Get(intent.Domain())
	if !ok {
		logger.Error("no dedup store for intent", zap.String("domain", string(intent.Domain())))
		return OutcomeMalformed
	}

	if p.isUnpersisted(intent) {
		return OutcomeDuplicate
	}
	if !p.flush(logger, set) {
		return OutcomeStoreError
	}

	if done, err := set.Contains(intent.SourceID); err != nil {
		logger.Error("dedup store read failed", zap.Error(err))
		return OutcomeStoreError
	} else if done {
		return OutcomeDuplicate
	}

	if !p.guard.TryAcquire(intent.AssetID) {
		logger.Debug("asset busy, skipping")
		return OutcomeBusy
	}
	guardHeld.Set(float64(p.guard.Held()))
	defer func() {
		p.guard.Release(intent.AssetID)
		guardHeld.Set(float64(p.guard.Held()))
	}()

	// The previous holder of the asset may have executed this very intent.
	if p.isUnpersisted(intent) {
		return OutcomeDuplicate
	}
	if done, err := set.Contains(intent.SourceID); err != nil {
		logger.Error("dedup store read failed", zap.Error(err))
		return OutcomeStoreError
	} else if done {
		return OutcomeDuplicate
	}

	logger.Info("executing", zap.String("destination", intent.Destination), zap.Stringer("amount", intent.Amount))
	receipt, err := p.action.Execute(ctx, intent)
	if receipt != nil {
		logger = logger.With(zap.String("tx", receipt.TxID), zap.Int("attempts", receipt.Attempts))
	}

	switch {
	case err == nil:
		if !p.record(logger, set, intent) {
			return OutcomeStoreError
		}
		if !intent.DiscoveredAt.IsZero() {
			intentLatency.WithLabelValues(intent.Kind.String()).Observe(time.Since(intent.DiscoveredAt).Seconds())
		}
		logger.Info("executed")
		return OutcomeExecuted

	case errors.Is(err, executor.ErrAlreadyWrapped):
		logger.Info("already wrapped, recording", zap.Error(err))
		if !p.record(logger, set, intent) {
			return OutcomeStoreError
		}
		return OutcomeAlreadyWrapped

	case errors.Is(err, executor.ErrReverted):
		logger.Error("transaction reverted", zap.Error(err))
		return OutcomeRejected

	case errors.Is(err, executor.ErrOutcomeUnknown):
		if p.policy == common.UnknownOutcomeRecord && receipt != nil && receipt.TxID != "" {
			logger.Warn("outcome unknown, recording as processed", zap.Error(err))
			if !p.record(logger, set, intent) {
				return OutcomeStoreError
			}
		} else {
			logger.Warn("outcome unknown, not recording", zap.Error(err))
		}
		return OutcomeUnknown

	case errors.Is(err, executor.ErrMalformedIntent):
		logger.Warn("malformed intent", zap.Error(err))
		return OutcomeMalformed

	default:
		logger.Error("execution failed", zap.Error(err))
		return OutcomeFailed
	}
}

func (p *Processor) record(logger *zap.Logger, set db.ProcessedSet, intent *common.TransferIntent) bool {
	if err := set.Record(intent.SourceID); err != nil {
		logger.Error("failed to record processed intent, halting its domain until the store recovers", zap.Error(err))

		p.unpersistedMu.Lock()
		domain := intent.Domain()
		if p.unpersisted[domain] == nil {
			p.unpersisted[domain] = make(map[string]struct{})
		}
		p.unpersisted[domain][intent.SourceID] = struct{}{}
		unpersistedRecords.WithLabelValues(string(domain)).Set(float64(len(p.unpersisted[domain])))
		p.unpersistedMu.Unlock()
		return false
	}
	return true
}

func (p *Processor) isUnpersisted(intent *common.TransferIntent) bool {
	p.unpersistedMu.Lock()
	defer p.unpersistedMu.Unlock()
	_, ok := p.unpersisted[intent.Domain()][intent.SourceID]
	return ok
}

// flush writes the unpersisted records of set's domain. It returns false while any of them still fails.
func (p *Processor) flush(logger *zap.Logger, set db.ProcessedSet) bool {
	p.unpersistedMu.Lock()
	defer p.unpersistedMu.Unlock()

	domain := set.Domain()
	ids := p.unpersisted[domain]
	if len(ids) == 0 {
		return true
	}
	defer func() {
		unpersistedRecords.WithLabelValues(string(domain)).Set(float64(len(ids)))
	}()

	for id := range ids {
		if err := set.Record(id); err != nil {
			logger.Error("dedup store still failing, not executing", zap.String("unpersisted", id), zap.Error(err))
			return false
		}
		logger.Info("recorded previously unpersisted intent", zap.String("unpersisted", id))
		delete(ids, id)
	}
	return true
}

// Shutdown blocks until every running Handle call returned. Later calls return OutcomeBusy without doing anything.
func (p *Processor) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Run drains intentC until ctx is done. It is the single consumer of target ledger events.
func (p *Processor) Run(intentC <-chan *common.TransferIntent) supervisor.Runnable {
	return func(ctx context.Context) error {
		readiness.SetReady(common.ReadinessProcessor)
		supervisor.Signal(ctx, supervisor.SignalHealthy)

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case intent := <-intentC:
				p.Handle(ctx, intent)
			}
		}
	}
}
