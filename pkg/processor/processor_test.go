package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/common"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/db"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/executor"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/supervisor"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedAction returns err for every call and counts executions per source id. If gate is set, every call waits
// on it before returning.
type scriptedAction struct {
	mu      sync.Mutex
	calls   map[string]int
	err     error
	receipt *executor.Receipt
	started chan struct{}
	gate    chan struct{}
}

func newScriptedAction(err error) *scriptedAction {
	return &scriptedAction{calls: make(map[string]int), err: err, receipt: &executor.Receipt{TxID: "0xfeed", Attempts: 1}}
}

func (a *scriptedAction) Execute(ctx context.Context, intent *common.TransferIntent) (*executor.Receipt, error) {
	a.mu.Lock()
	a.calls[intent.SourceID]++
	a.mu.Unlock()
	if a.started != nil {
		a.started <- struct{}{}
	}
	if a.gate != nil {
		<-a.gate
	}
	return a.receipt, a.err
}

func (a *scriptedAction) count(id string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[id]
}

func openStores(t *testing.T) *db.Stores {
	t.Helper()
	stores, err := db.OpenStores(zap.NewNop(), db.BackendFile, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = stores.Close() })
	return stores
}

func contains(t *testing.T, stores *db.Stores, domain common.DedupDomain, id string) bool {
	t.Helper()
	set, ok := stores.Get(domain)
	require.True(t, ok)
	done, err := set.Contains(id)
	require.NoError(t, err)
	return done
}

func burn(sig string) *common.TransferIntent {
	return &common.TransferIntent{
		Kind:         common.AssetKindFungibleBurn,
		SourceID:     sig,
		AssetID:      sig,
		Destination:  "0xABCDabcdABCDabcdABCDabcdABCDabcdABCD1234",
		Origin:       common.LedgerSolana,
		DiscoveredAt: time.Now(),
	}
}

func deposit(sig, mint string) *common.TransferIntent {
	return &common.TransferIntent{
		Kind:        common.AssetKindNFTDeposit,
		SourceID:    sig,
		AssetID:     mint,
		Destination: "0xABCDabcdABCDabcdABCDabcdABCDabcdABCD1234",
		Origin:      common.LedgerSolana,
	}
}

func getOutcomeCount(kind common.AssetKind, outcome Outcome) float64 {
	var m = &dto.Metric{}
	if err := outcomesTotal.WithLabelValues(kind.String(), outcome.String()).Write(m); err != nil {
		return 0
	}
	return m.Counter.GetValue()
}

func TestReplayIsIdempotent(t *testing.T) {
	stores := openStores(t)
	action := newScriptedAction(nil)
	p := New(zap.NewNop(), stores, action, common.UnknownOutcomeSkip)

	executed := getOutcomeCount(common.AssetKindFungibleBurn, OutcomeExecuted)
	duplicates := getOutcomeCount(common.AssetKindFungibleBurn, OutcomeDuplicate)

	intent := burn("sig1")
	assert.Equal(t, OutcomeExecuted, p.Handle(context.Background(), intent))
	assert.Equal(t, OutcomeDuplicate, p.Handle(context.Background(), intent))
	assert.Equal(t, executed+1, getOutcomeCount(common.AssetKindFungibleBurn, OutcomeExecuted))
	assert.Equal(t, duplicates+1, getOutcomeCount(common.AssetKindFungibleBurn, OutcomeDuplicate))
	assert.Equal(t, 1, action.count("sig1"))
	assert.True(t, contains(t, stores, common.DomainTokenBurns, "sig1"))
}

func TestRecordSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	stores, err := db.OpenStores(zap.NewNop(), db.BackendFile, dir)
	require.NoError(t, err)
	action := newScriptedAction(nil)
	assert.Equal(t, OutcomeExecuted, New(zap.NewNop(), stores, action, "").Handle(context.Background(), burn("sig1")))
	require.NoError(t, stores.Close())

	reopened, err := db.OpenStores(zap.NewNop(), db.BackendFile, dir)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, OutcomeDuplicate, New(zap.NewNop(), reopened, action, "").Handle(context.Background(), burn("sig1")))
	assert.Equal(t, 1, action.count("sig1"))
}

func TestOneExecutionPerAssetInFlight(t *testing.T) {
	stores := openStores(t)
	action := newScriptedAction(nil)
	action.started = make(chan struct{}, 1)
	action.gate = make(chan struct{})
	p := New(zap.NewNop(), stores, action, common.UnknownOutcomeSkip)

	first := make(chan Outcome, 1)
	go func() {
		first <- p.Handle(context.Background(), deposit("sig1", "mintA"))
	}()
	<-action.started

	// Same asset, different source transaction.
	assert.Equal(t, OutcomeBusy, p.Handle(context.Background(), deposit("sig2", "mintA")))

	close(action.gate)
	assert.Equal(t, OutcomeExecuted, <-first)
	assert.Equal(t, 0, action.count("sig2"))
	assert.True(t, contains(t, stores, common.DomainNFTDeposits, "sig1"))
	assert.False(t, contains(t, stores, common.DomainNFTDeposits, "sig2"))
}

func TestConcurrentDuplicatesExecuteOnce(t *testing.T) {
	stores := openStores(t)
	action := newScriptedAction(nil)
	p := New(zap.NewNop(), stores, action, common.UnknownOutcomeSkip)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Handle(context.Background(), deposit("sig1", "mintA"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, action.count("sig1"))
	assert.Equal(t, OutcomeDuplicate, p.Handle(context.Background(), deposit("sig1", "mintA")))
}

func TestOutcomeMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		policy   common.UnknownOutcomePolicy
		outcome  Outcome
		recorded bool
	}{
		{"already wrapped", fmt.Errorf("%w: token 3", executor.ErrAlreadyWrapped), common.UnknownOutcomeSkip, OutcomeAlreadyWrapped, true},
		{"reverted", fmt.Errorf("%w: 0xfeed", executor.ErrReverted), common.UnknownOutcomeSkip, OutcomeRejected, false},
		{"unknown skip", fmt.Errorf("%w: 0xfeed", executor.ErrOutcomeUnknown), common.UnknownOutcomeSkip, OutcomeUnknown, false},
		{"unknown record", fmt.Errorf("%w: 0xfeed", executor.ErrOutcomeUnknown), common.UnknownOutcomeRecord, OutcomeUnknown, true},
		{"malformed", fmt.Errorf("%w: bad memo", executor.ErrMalformedIntent), common.UnknownOutcomeRecord, OutcomeMalformed, false},
		{"transient", fmt.Errorf("%w: dial", executor.ErrTransient), common.UnknownOutcomeRecord, OutcomeFailed, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stores := openStores(t)
			p := New(zap.NewNop(), stores, newScriptedAction(tc.err), tc.policy)

			assert.Equal(t, tc.outcome, p.Handle(context.Background(), deposit("sig1", "mintA")))
			assert.Equal(t, tc.recorded, contains(t, stores, common.DomainNFTDeposits, "sig1"))
			assert.Zero(t, p.guard.Held())
		})
	}
}

func TestUnknownWithoutSubmissionIsNotRecorded(t *testing.T) {
	stores := openStores(t)
	action := newScriptedAction(executor.ErrOutcomeUnknown)
	action.receipt = nil
	p := New(zap.NewNop(), stores, action, common.UnknownOutcomeRecord)

	assert.Equal(t, OutcomeUnknown, p.Handle(context.Background(), burn("sig1")))
	assert.False(t, contains(t, stores, common.DomainTokenBurns, "sig1"))
}

// flakySet is an in-memory set whose writes fail while failWrites is set and whose reads fail while readErr is set.
type flakySet struct {
	mu         sync.Mutex
	domain     common.DedupDomain
	ids        map[string]bool
	failWrites bool
	readErr    error
}

func newFlakySet(domain common.DedupDomain) *flakySet {
	return &flakySet{domain: domain, ids: make(map[string]bool)}
}

func (f *flakySet) Domain() common.DedupDomain { return f.domain }

func (f *flakySet) Contains(id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return false, f.readErr
	}
	return f.ids[id], nil
}

func (f *flakySet) Record(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return &db.DBError{Op: db.OpUpdate, Domain: f.domain, Key: []byte(id), Err: errors.New("no space left on device")}
	}
	f.ids[id] = true
	return nil
}

func (f *flakySet) IDs() ([]string, error) { return nil, nil }
func (f *flakySet) Close() error           { return nil }

func (f *flakySet) setFailWrites(fail bool) {
	f.mu.Lock()
	f.failWrites = fail
	f.mu.Unlock()
}

func TestStoreWriteFailureNeverExecutesTwice(t *testing.T) {
	set := newFlakySet(common.DomainTokenBurns)
	set.failWrites = true
	action := newScriptedAction(nil)
	p := New(zap.NewNop(), db.NewStores(set), action, common.UnknownOutcomeSkip)

	assert.Equal(t, OutcomeStoreError, p.Handle(context.Background(), burn("sig1")))
	assert.Equal(t, OutcomeDuplicate, p.Handle(context.Background(), burn("sig1")))
	assert.Equal(t, 1, action.count("sig1"))
	assert.Zero(t, p.guard.Held())

	// The domain executes nothing else while the record is missing.
	assert.Equal(t, OutcomeStoreError, p.Handle(context.Background(), burn("sig2")))
	assert.Equal(t, 0, action.count("sig2"))

	set.setFailWrites(false)
	assert.Equal(t, OutcomeExecuted, p.Handle(context.Background(), burn("sig2")))
	assert.Equal(t, 1, action.count("sig2"))

	done, err := set.Contains("sig1")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, OutcomeDuplicate, p.Handle(context.Background(), burn("sig1")))
	assert.Equal(t, 1, action.count("sig1"))
}

func TestStoreWriteFailureLeavesOtherDomains(t *testing.T) {
	burns := newFlakySet(common.DomainTokenBurns)
	burns.failWrites = true
	deposits := newFlakySet(common.DomainNFTDeposits)
	action := newScriptedAction(nil)
	p := New(zap.NewNop(), db.NewStores(burns, deposits), action, common.UnknownOutcomeSkip)

	assert.Equal(t, OutcomeStoreError, p.Handle(context.Background(), burn("sig1")))
	assert.Equal(t, OutcomeExecuted, p.Handle(context.Background(), deposit("sig2", "mintA")))
}

func TestStoreReadFailure(t *testing.T) {
	set := newFlakySet(common.DomainTokenBurns)
	set.readErr = errors.New("read failed")
	action := newScriptedAction(nil)
	p := New(zap.NewNop(), db.NewStores(set), action, common.UnknownOutcomeSkip)

	assert.Equal(t, OutcomeStoreError, p.Handle(context.Background(), burn("sig2")))
	assert.Equal(t, 0, action.count("sig2"))
}

func TestMissingDomain(t *testing.T) {
	p := New(zap.NewNop(), db.NewStores(), newScriptedAction(nil), common.UnknownOutcomeSkip)
	assert.Equal(t, OutcomeMalformed, p.Handle(context.Background(), burn("sig1")))
}

func TestRunDrainsChannel(t *testing.T) {
	stores := openStores(t)
	action := newScriptedAction(nil)
	p := New(zap.NewNop(), stores, action, common.UnknownOutcomeSkip)

	intentC := make(chan *common.TransferIntent)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	supervisor.New(ctx, zap.NewNop(), func(ctx context.Context) error {
		if err := supervisor.Run(ctx, "processor", p.Run(intentC)); err != nil {
			return err
		}
		supervisor.Signal(ctx, supervisor.SignalHealthy)
		<-ctx.Done()
		return ctx.Err()
	})

	lock := &common.TransferIntent{
		Kind:        common.AssetKindTargetLock,
		SourceID:    common.TargetEventID("omega:0x5FbDB2315678afecb367f032d93F642f64180aa3/2", "0xabc"),
		AssetID:     "omega:0x5FbDB2315678afecb367f032d93F642f64180aa3/2",
		Destination: "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		Origin:      common.LedgerOmega,
	}
	// The listener and the sweep both deliver the same event.
	intentC <- lock
	intentC <- lock
	// A third send only completes once the second was handled.
	intentC <- burn("sig9")

	require.Eventually(t, func() bool {
		return contains(t, stores, common.DomainTokenBurns, "sig9")
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, action.count(lock.SourceID))
	assert.True(t, contains(t, stores, common.DomainTargetBurns, lock.SourceID))
}

func TestShutdownWaitsForInFlight(t *testing.T) {
	stores := openStores(t)
	action := newScriptedAction(nil)
	action.started = make(chan struct{}, 1)
	action.gate = make(chan struct{})
	p := New(zap.NewNop(), stores, action, common.UnknownOutcomeSkip)

	go p.Handle(context.Background(), burn("sig1"))
	<-action.started

	stopped := make(chan struct{})
	go func() {
		p.Shutdown()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("shutdown returned while an execution was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(action.gate)
	<-stopped
	assert.True(t, contains(t, stores, common.DomainTokenBurns, "sig1"))
	assert.Equal(t, OutcomeBusy, p.Handle(context.Background(), burn("sig2")))
	assert.Equal(t, 0, action.count("sig2"))
}
