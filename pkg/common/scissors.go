package common

import (
	"context"
	"fmt"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/supervisor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScissorsErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relayer_scissor_errors_caught",
			Help: "Total number of unhandled errors caught",
		})
)

// RunWithScissors starts a go routine that recovers from any panic by sending an error to errC.
func RunWithScissors(ctx context.Context, errC chan error, name string, runnable supervisor.Runnable) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ScissorsErrors.Inc()
				report(ctx, errC, fmt.Errorf("%s: %w", name, recoveredError(r)))
			}
		}()
		if err := runnable(ctx); err != nil {
			report(ctx, errC, err)
		}
	}()
}

// report hands err to whoever reads errC, unless ctx is done and nobody will.
func report(ctx context.Context, errC chan<- error, err error) {
	select {
	case errC <- err:
	case <-ctx.Done():
	}
}

// WrapWithScissors turns a panic inside runnable into a returned error.
func WrapWithScissors(runnable supervisor.Runnable, name string) supervisor.Runnable {
	return func(ctx context.Context) (result error) {
		defer func() {
			if r := recover(); r != nil {
				result = fmt.Errorf("%s: %w", name, recoveredError(r))
				ScissorsErrors.Inc()
			}
		}()

		return runnable(ctx)
	}
}

func recoveredError(r interface{}) error {
	switch x := r.(type) {
	case error:
		return x
	default:
		return fmt.Errorf("%v", x)
	}
}
