package supervisor

// The supervisor runs long-lived runnables (pollers, listeners, the processor) in a tree. A runnable that returns
// an error or panics is restarted with exponential backoff; children of a restarted runnable are canceled together
// with it. This is a trimmed-down take on the Erlang/OTP supervision model, without supervision groups.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// A Runnable is a function that will be run in a goroutine, and supervised throughout its lifetime. It can in turn
// start more runnables as its children, and those will form part of a supervision tree.
// The context passed to a runnable is live as long as the runnable should be running, and canceled when the
// supervisor wants it to exit.
type Runnable func(ctx context.Context) error

type SignalType int

const (
	// The runnable is healthy, done with setup, done with spawning more Runnables, and ready to serve in a loop.
	SignalHealthy SignalType = iota
	// The runnable is done and does not need to run any loop. It will not be restarted after it returns.
	SignalDone
)

type nodeState int

const (
	nodeStateNew nodeState = iota
	nodeStateHealthy
	nodeStateDead
	nodeStateDone
	nodeStateCanceled
)

func (s nodeState) String() string {
	switch s {
	case nodeStateNew:
		return "NODE_STATE_NEW"
	case nodeStateHealthy:
		return "NODE_STATE_HEALTHY"
	case nodeStateDead:
		return "NODE_STATE_DEAD"
	case nodeStateDone:
		return "NODE_STATE_DONE"
	case nodeStateCanceled:
		return "NODE_STATE_CANCELED"
	}
	return "UNKNOWN"
}

type contextKey string

var nodeKey = contextKey("node")

// node is a supervision tree node. It represents the state of a Runnable within the tree.
type node struct {
	name   string
	parent *node
	sup    *supervisor

	mu       sync.Mutex
	state    nodeState
	children map[string]*node
	bo       *backoff.ExponentialBackOff
	logger   *zap.Logger
}

// dn returns the distinguished name of a node, eg. 'root.pollers.nft'.
func (n *node) dn() string {
	if n.parent != nil {
		return fmt.Sprintf("%s.%s", n.parent.dn(), n.name)
	}
	return n.name
}

func (n *node) String() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fmt.Sprintf("%s (%s)", n.dn(), n.state.String())
}

type supervisor struct {
	logger  *zap.Logger
	ilogger *zap.Logger

	// propagate panics, ie. don't catch them.
	propagatePanic bool

	root *node
}

// SupervisorOpt are runtime configurable options for the supervisor.
type SupervisorOpt func(s *supervisor)

var (
	// WithPropagatePanic prevents the Supervisor from catching panics in runnables and treating them as failures.
	WithPropagatePanic = func(s *supervisor) {
		s.propagatePanic = true
	}
)

func newNode(name string, sup *supervisor, parent *node) *node {
	// Exponential backoff for failed runnables, capped at MaxInterval since MaxElapsedTime is 0.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0
	bo.MaxInterval = 30 * time.Second

	n := &node{
		name:     name,
		parent:   parent,
		sup:      sup,
		children: make(map[string]*node),
		bo:       bo,
	}
	n.logger = sup.logger.Named(n.dn())
	return n
}

// New creates a new supervisor with its root running the given root runnable.
// The given context can be used to cancel the entire supervision tree.
func New(ctx context.Context, logger *zap.Logger, rootRunnable Runnable, opts ...SupervisorOpt) *supervisor {
	sup := &supervisor{
		logger:  logger,
		ilogger: logger.Named("supervisor"),
	}
	for _, o := range opts {
		o(sup)
	}

	sup.root = newNode("root", sup, nil)
	go sup.supervise(ctx, sup.root, rootRunnable)

	return sup
}

func fromContext(ctx context.Context) *node {
	n, ok := ctx.Value(nodeKey).(*node)
	if !ok {
		panic("supervisor function called from non-runnable context")
	}
	return n
}

// Run starts a single runnable as a child of the runnable owning ctx.
func Run(ctx context.Context, name string, runnable Runnable) error {
	parent := fromContext(ctx)

	parent.mu.Lock()
	if _, ok := parent.children[name]; ok {
		parent.mu.Unlock()
		return fmt.Errorf("runnable %q already exists in %s", name, parent.dn())
	}
	child := newNode(name, parent.sup, parent)
	parent.children[name] = child
	parent.mu.Unlock()

	go parent.sup.supervise(ctx, child, runnable)
	return nil
}

// Signal tells the supervisor that the calling runnable has reached a certain state of its lifecycle.
func Signal(ctx context.Context, signal SignalType) {
	n := fromContext(ctx)
	n.mu.Lock()
	defer n.mu.Unlock()

	switch signal {
	case SignalHealthy:
		if n.state != nodeStateNew {
			panic(fmt.Errorf("node %s signaled healthy in state %s", n.dn(), n.state))
		}
		n.state = nodeStateHealthy
		n.bo.Reset()
	case SignalDone:
		if n.state != nodeStateHealthy {
			panic(fmt.Errorf("node %s signaled done in state %s", n.dn(), n.state))
		}
		n.state = nodeStateDone
	}
}

// Logger returns a Zap logger that will be named after the Distinguished Name of the runnable (ie its place in the
// supervision tree, dot-separated).
func Logger(ctx context.Context) *zap.Logger {
	return fromContext(ctx).logger
}

// supervise runs the runnable of n until parentCtx is canceled or the runnable declares itself done.
func (s *supervisor) supervise(parentCtx context.Context, n *node, runnable Runnable) {
	for {
		ctx, cancel := context.WithCancel(context.WithValue(parentCtx, nodeKey, n))

		n.mu.Lock()
		n.state = nodeStateNew
		n.children = make(map[string]*node)
		n.mu.Unlock()

		err := s.runOnce(ctx, n, runnable)
		// Canceling the per-attempt context stops every child spawned during this attempt.
		cancel()

		n.mu.Lock()
		state := n.state
		if parentCtx.Err() != nil {
			n.state = nodeStateCanceled
			n.mu.Unlock()
			return
		}
		if state == nodeStateDone && err == nil {
			n.mu.Unlock()
			return
		}
		n.state = nodeStateDead
		wait := n.bo.NextBackOff()
		n.mu.Unlock()

		if err == nil {
			err = fmt.Errorf("returned without signaling done")
		}
		s.ilogger.Error("runnable died, restarting",
			zap.String("dn", n.dn()),
			zap.Duration("backoff", wait),
			zap.Error(err))

		select {
		case <-parentCtx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (s *supervisor) runOnce(ctx context.Context, n *node, runnable Runnable) (err error) {
	if !s.propagatePanic {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
	}
	return runnable(ctx)
}
