package evm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/common"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/readiness"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/supervisor"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/watchers/evm/connectors"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/watchers/evm/connectors/bridgeabi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	omegaConnectionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_omega_connection_errors_total",
			Help: "Total number of Omega connection errors",
		}, []string{"reason"})
	omegaEventsObserved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_omega_events_observed_total",
			Help: "Total number of Omega bridge events observed",
		}, []string{"path", "event"})
	currentOmegaHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relayer_omega_current_height",
			Help: "Head block seen by the last reconciliation sweep",
		})
)

const (
	DefaultSweepInterval = 60 * time.Second
	DefaultSweepDepth    = 1000
)

type ConnectorFactory func(ctx context.Context) (connectors.Connector, error)

// Watcher feeds Omega bridge events into the intent channel. Run follows the live subscription, RunSweep re-reads a
// trailing window of blocks to catch events the subscription missed. The consumer of the channel deduplicates.
type Watcher struct {
	connect ConnectorFactory
	intentC chan<- *common.TransferIntent

	sweepInterval time.Duration
	sweepDepth    uint64
}

func NewWatcher(connect ConnectorFactory, intentC chan<- *common.TransferIntent, sweepInterval time.Duration, sweepDepth uint64) *Watcher {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	if sweepDepth == 0 {
		sweepDepth = DefaultSweepDepth
	}
	return &Watcher{
		connect:       connect,
		intentC:       intentC,
		sweepInterval: sweepInterval,
		sweepDepth:    sweepDepth,
	}
}

func (w *Watcher) push(ctx context.Context, intent *common.TransferIntent) error {
	select {
	case w.intentC <- intent:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run subscribes to Locked and BridgeBack and returns on the first subscription error.
func (w *Watcher) Run(ctx context.Context) error {
	logger := supervisor.Logger(ctx)

	conn, err := w.connect(ctx)
	if err != nil {
		omegaConnectionErrors.WithLabelValues("dial_error").Inc()
		return fmt.Errorf("dialing omega client failed: %w", err)
	}
	defer conn.Close()

	// Both listeners are gone by the time Run returns.
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	errC := make(chan error)

	lockedC := make(chan *bridgeabi.BridgeLocked, 2)
	lockedSub, err := conn.WatchLocked(ctx, lockedC)
	if err != nil {
		omegaConnectionErrors.WithLabelValues("subscribe_error").Inc()
		return fmt.Errorf("failed to subscribe to Locked events: %w", err)
	}
	defer lockedSub.Unsubscribe()

	backC := make(chan *bridgeabi.WrappedNFTBridgeBack, 2)
	backSub, err := conn.WatchBridgeBack(ctx, backC)
	if err != nil {
		omegaConnectionErrors.WithLabelValues("subscribe_error").Inc()
		return fmt.Errorf("failed to subscribe to BridgeBack events: %w", err)
	}
	defer backSub.Unsubscribe()

	bridge := conn.BridgeAddress()
	logger.Info("subscribed to omega bridge events",
		zap.Stringer("bridge", bridge),
		zap.Int("collections", len(conn.CollectionAddresses())))

	wg.Add(2)
	common.RunWithScissors(ctx, errC, "omega_watch_locked", func(ctx context.Context) error {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-lockedSub.Err():
				omegaConnectionErrors.WithLabelValues("subscription_error").Inc()
				select {
				case errC <- fmt.Errorf("error while processing Locked subscription: %w", err):
				case <-ctx.Done():
				}
				return nil
			case ev := <-lockedC:
				intent, err := LockedIntent(bridge, ev)
				if err != nil {
					logger.Warn("ignoring Locked event", zap.String("tx", ev.Raw.TxHash.Hex()), zap.Error(err))
					continue
				}
				omegaEventsObserved.WithLabelValues("listener", "locked").Inc()
				logger.Info("observed Locked",
					zap.String("id", intent.SourceID),
					zap.Stringer("amount", intent.Amount),
					zap.String("destination", intent.Destination))
				if err := w.push(ctx, intent); err != nil {
					return nil
				}
			}
		}
	})

	common.RunWithScissors(ctx, errC, "omega_watch_bridge_back", func(ctx context.Context) error {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-backSub.Err():
				omegaConnectionErrors.WithLabelValues("subscription_error").Inc()
				select {
				case errC <- fmt.Errorf("error while processing BridgeBack subscription: %w", err):
				case <-ctx.Done():
				}
				return nil
			case ev := <-backC:
				intent, err := BridgeBackIntent(ev)
				if err != nil {
					logger.Warn("ignoring BridgeBack event", zap.String("tx", ev.Raw.TxHash.Hex()), zap.Error(err))
					continue
				}
				omegaEventsObserved.WithLabelValues("listener", "bridge_back").Inc()
				logger.Info("observed BridgeBack",
					zap.String("id", intent.SourceID),
					zap.String("mint", intent.AssetID),
					zap.String("destination", intent.Destination))
				if err := w.push(ctx, intent); err != nil {
					return nil
				}
			}
		}
	})

	readiness.SetReady(common.ReadinessOmegaSyncing)
	supervisor.Signal(ctx, supervisor.SignalHealthy)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errC:
		return err
	}
}

// RunSweep calls Sweep every sweep interval, starting immediately.
func (w *Watcher) RunSweep(ctx context.Context) error {
	logger := supervisor.Logger(ctx)

	conn, err := w.connect(ctx)
	if err != nil {
		omegaConnectionErrors.WithLabelValues("dial_error").Inc()
		return fmt.Errorf("dialing omega client failed: %w", err)
	}
	defer conn.Close()

	supervisor.Signal(ctx, supervisor.SignalHealthy)

	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		n, err := w.Sweep(ctx, conn)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			logger.Error("reconciliation sweep failed", zap.Error(err))
		} else {
			logger.Debug("reconciliation sweep done", zap.Int("events", n))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep pushes every bridge event of the trailing sweep window onto the intent channel and returns how many it
// pushed. Events that were already handled are dropped downstream by the dedup store.
func (w *Watcher) Sweep(ctx context.Context, conn connectors.Connector) (int, error) {
	timeout, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	head, err := conn.BlockNumber(timeout)
	if err != nil {
		omegaConnectionErrors.WithLabelValues("block_number_error").Inc()
		return 0, fmt.Errorf("failed to read head: %w", err)
	}
	currentOmegaHeight.Set(float64(head))

	var from uint64
	if head > w.sweepDepth {
		from = head - w.sweepDepth
	}

	locked, err := conn.FilterLocked(timeout, from, head)
	if err != nil {
		omegaConnectionErrors.WithLabelValues("filter_error").Inc()
		return 0, fmt.Errorf("failed to filter Locked events in [%d, %d]: %w", from, head, err)
	}
	backs, err := conn.FilterBridgeBack(timeout, from, head)
	if err != nil {
		omegaConnectionErrors.WithLabelValues("filter_error").Inc()
		return 0, fmt.Errorf("failed to filter BridgeBack events in [%d, %d]: %w", from, head, err)
	}

	pushed := 0
	bridge := conn.BridgeAddress()
	for _, ev := range locked {
		intent, err := LockedIntent(bridge, ev)
		if err != nil {
			continue
		}
		omegaEventsObserved.WithLabelValues("sweep", "locked").Inc()
		if err := w.push(ctx, intent); err != nil {
			return pushed, err
		}
		pushed++
	}
	for _, ev := range backs {
		intent, err := BridgeBackIntent(ev)
		if err != nil {
			continue
		}
		omegaEventsObserved.WithLabelValues("sweep", "bridge_back").Inc()
		if err := w.push(ctx, intent); err != nil {
			return pushed, err
		}
		pushed++
	}
	return pushed, nil
}
