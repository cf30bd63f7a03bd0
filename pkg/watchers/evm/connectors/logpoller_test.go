package connectors

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/watchers/evm/connectors/bridgeabi"
	ethCommon "github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	pollBridge     = ethCommon.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	pollCollection = ethCommon.HexToAddress("0x1000000000000000000000000000000000000001")
)

func pollLocked(block uint64) *bridgeabi.BridgeLocked {
	return &bridgeabi.BridgeLocked{
		Amount:        big.NewInt(1),
		SolanaAddress: "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		Raw:           ethTypes.Log{Address: pollBridge, BlockNumber: block},
	}
}

func TestLogPollDeliversNewBlocksOnly(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	base := NewMockConnector(pollBridge, pollCollection)
	base.SetHead(10)
	base.EmitLocked(ctx, pollLocked(5))

	conn := NewLogPollConnector(zap.NewNop(), base, 5*time.Millisecond)
	sink := make(chan *bridgeabi.BridgeLocked, 4)
	sub, err := conn.WatchLocked(ctx, sink)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	base.EmitLocked(ctx, pollLocked(12))
	base.SetHead(12)

	select {
	case ev := <-sink:
		assert.Equal(t, uint64(12), ev.Raw.BlockNumber)
	case <-ctx.Done():
		t.Fatal("no event delivered")
	}

	// A failing poll does not skip the blocks it missed.
	base.SetError(errors.New("503 Service Unavailable"))
	base.EmitLocked(ctx, pollLocked(13))
	base.SetHead(13)
	time.Sleep(20 * time.Millisecond)
	base.SetError(nil)

	select {
	case ev := <-sink:
		assert.Equal(t, uint64(13), ev.Raw.BlockNumber)
	case <-ctx.Done():
		t.Fatal("event after a failed poll was lost")
	}
	assert.Empty(t, sink)
}

func TestLogPollBridgeBack(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	base := NewMockConnector(pollBridge, pollCollection)
	conn := NewLogPollConnector(zap.NewNop(), base, 5*time.Millisecond)
	sink := make(chan *bridgeabi.WrappedNFTBridgeBack, 1)
	sub, err := conn.WatchBridgeBack(ctx, sink)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	base.EmitBridgeBack(ctx, &bridgeabi.WrappedNFTBridgeBack{
		TokenId:    big.NewInt(3),
		SolanaMint: "So11111111111111111111111111111111111111112",
		Raw:        ethTypes.Log{Address: pollCollection, BlockNumber: 1},
	})
	base.SetHead(1)

	select {
	case ev := <-sink:
		assert.Equal(t, int64(3), ev.TokenId.Int64())
	case <-ctx.Done():
		t.Fatal("no event delivered")
	}
}

func TestLogPollNeedsHead(t *testing.T) {
	base := NewMockConnector(pollBridge)
	base.SetError(errors.New("connection refused"))
	conn := NewLogPollConnector(zap.NewNop(), base, time.Millisecond)

	_, err := conn.WatchLocked(context.Background(), make(chan *bridgeabi.BridgeLocked))
	assert.Error(t, err)
}

func TestLogPollUnsubscribeStops(t *testing.T) {
	base := NewMockConnector(pollBridge)
	conn := NewLogPollConnector(zap.NewNop(), base, time.Millisecond)
	sub, err := conn.WatchLocked(context.Background(), make(chan *bridgeabi.BridgeLocked))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		sub.Unsubscribe()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Unsubscribe blocked")
	}
}

func TestIsPollingURL(t *testing.T) {
	tests := []struct {
		url  string
		poll bool
	}{
		{"https://0x4e454228.rpc.aurora-cloud.dev", true},
		{"http://localhost:8545", true},
		{"wss://0x4e454228.rpc.aurora-cloud.dev", false},
		{"ws://localhost:8546", false},
		{"/var/run/geth.ipc", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.poll, IsPollingURL(tc.url), tc.url)
	}
}
