package connectors

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/watchers/evm/connectors/bridgeabi"

	ethCommon "github.com/ethereum/go-ethereum/common"
	ethEvent "github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"
)

const DefaultLogPollInterval = 4 * time.Second

// LogPollConnector serves WatchLocked and WatchBridgeBack on endpoints without subscriptions (plain HTTP). Every
// interval it filters the blocks added since the previous poll. A failed poll is retried from the same block on the
// next tick.
type LogPollConnector struct {
	Connector
	logger   *zap.Logger
	interval time.Duration
}

func NewLogPollConnector(logger *zap.Logger, baseConnector Connector, interval time.Duration) *LogPollConnector {
	if interval <= 0 {
		interval = DefaultLogPollInterval
	}
	return &LogPollConnector{
		Connector: baseConnector,
		logger:    logger,
		interval:  interval,
	}
}

func (l *LogPollConnector) WatchLocked(ctx context.Context, sink chan<- *bridgeabi.BridgeLocked) (ethEvent.Subscription, error) {
	return l.watch(ctx, "Locked", func(ctx context.Context, from, to uint64) error {
		events, err := l.FilterLocked(ctx, from, to)
		if err != nil {
			return err
		}
		for _, ev := range events {
			select {
			case sink <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
}

func (l *LogPollConnector) WatchBridgeBack(ctx context.Context, sink chan<- *bridgeabi.WrappedNFTBridgeBack) (ethEvent.Subscription, error) {
	return l.watch(ctx, "BridgeBack", func(ctx context.Context, from, to uint64) error {
		events, err := l.FilterBridgeBack(ctx, from, to)
		if err != nil {
			return err
		}
		for _, ev := range events {
			select {
			case sink <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
}

func (l *LogPollConnector) watch(ctx context.Context, event string, deliver func(ctx context.Context, from, to uint64) error) (ethEvent.Subscription, error) {
	timeout, cancel := context.WithTimeout(ctx, 15*time.Second)
	head, err := l.BlockNumber(timeout)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to read head for %s polling: %w", event, err)
	}
	next := head + 1

	return ethEvent.NewSubscription(func(quit <-chan struct{}) error {
		pollCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-quit:
				cancel()
			case <-pollCtx.Done():
			}
		}()

		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		for {
			select {
			case <-quit:
				return nil
			case <-ticker.C:
			}

			timeout, cancelPoll := context.WithTimeout(pollCtx, 10*time.Second)
			head, err := l.BlockNumber(timeout)
			if err == nil && head >= next {
				err = deliver(timeout, next, head)
				if err == nil {
					next = head + 1
				}
			}
			cancelPoll()

			if err != nil {
				if pollCtx.Err() != nil {
					return nil
				}
				l.logger.Warn("log poll failed, retrying",
					zap.String("event", event),
					zap.Uint64("from", next),
					zap.Error(err))
			}
		}
	}), nil
}

// IsPollingURL reports whether rawUrl names an endpoint without subscription support.
func IsPollingURL(rawUrl string) bool {
	u, err := url.Parse(rawUrl)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

// NewOmegaConnector dials rawUrl and falls back to log polling when the url is plain HTTP.
func NewOmegaConnector(ctx context.Context, networkName, rawUrl string, bridge ethCommon.Address, collections []ethCommon.Address, pollInterval time.Duration, logger *zap.Logger) (Connector, error) {
	base, err := NewEthereumConnector(ctx, networkName, rawUrl, bridge, collections, logger)
	if err != nil {
		return nil, err
	}
	if IsPollingURL(rawUrl) {
		return NewLogPollConnector(logger, base, pollInterval), nil
	}
	return base, nil
}
