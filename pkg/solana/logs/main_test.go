package logs

import (
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tokenProgram = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

var burnWithMemo = `Program ComputeBudget111111111111111111111111111111 invoke [1]
Program ComputeBudget111111111111111111111111111111 success
Program MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcQb invoke [1]
Program log: Memo (len 42): "0xAbCdEf0123456789aBcDeF0123456789AbCd1234"
Program MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcQb consumed 29847 of 199850 compute units
Program MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcQb success
Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA invoke [1]
Program log: Instruction: BurnChecked
Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA consumed 4522 of 170003 compute units
Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA success`

var unstake = `Program F11YDwLVireDZ7zFgnjo3psyiSCW3oumYsWWaXbqR5bF invoke [1]
Program log: Unstake NFT Call
Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA invoke [2]
Program log: Instruction: Transfer
Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA consumed 3121 of 157104 compute units
Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA success
Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA invoke [2]
Program log: Instruction: CloseAccount
Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA consumed 2297 of 150388 compute units
Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA success
Program F11YDwLVireDZ7zFgnjo3psyiSCW3oumYsWWaXbqR5bF consumed 55122 of 200000 compute units
Program F11YDwLVireDZ7zFgnjo3psyiSCW3oumYsWWaXbqR5bF success`

func TestParseLogsNested(t *testing.T) {
	invs, err := ParseLogs(strings.Split(unstake, "\n"))
	require.NoError(t, err)
	require.Len(t, invs, 1)

	root := invs[0]
	assert.Equal(t, "F11YDwLVireDZ7zFgnjo3psyiSCW3oumYsWWaXbqR5bF", root.Program.String())
	assert.Equal(t, 1, root.Depth)
	assert.True(t, root.Success)
	assert.Equal(t, uint64(55122), root.ComputeConsumed)
	assert.Equal(t, uint64(200000), root.ComputeAvailable)
	require.Len(t, root.Logs, 1)
	assert.Equal(t, "Unstake NFT Call", root.Logs[0].String)

	require.Len(t, root.Subcalls, 2)
	assert.Equal(t, 2, root.Subcalls[0].Depth)
	assert.Equal(t, "Instruction: Transfer", root.Subcalls[0].Logs[0].String)
	assert.Equal(t, "Instruction: CloseAccount", root.Subcalls[1].Logs[0].String)
}

func TestParseLogsSiblingsAtTopLevel(t *testing.T) {
	invs, err := ParseLogs(strings.Split(burnWithMemo, "\n"))
	require.NoError(t, err)
	require.Len(t, invs, 3)
	assert.True(t, invs[2].Program.Equals(tokenProgram))
	assert.Equal(t, `Memo (len 42): "0xAbCdEf0123456789aBcDeF0123456789AbCd1234"`, invs[1].Logs[0].String)
}

func TestParseLogsFailure(t *testing.T) {
	lines := []string{
		"Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA invoke [1]",
		"Program log: Instruction: Burn",
		"Program log: Error: insufficient funds",
		"Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA consumed 2000 of 200000 compute units",
		"Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA failed: custom program error: 0x1",
	}
	invs, err := ParseLogs(lines)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.False(t, invs[0].Success)
	assert.Equal(t, "custom program error: 0x1", invs[0].Error)
	assert.False(t, HasLog(invs, "Instruction: Burn", tokenProgram))
}

func TestParseLogsDataAndReturn(t *testing.T) {
	lines := []string{
		"Program worm2ZoG2kUd4vFXhvjh93UUH596ayRfgQ2MgjNMTth invoke [1]",
		"Program data: aGVsbG8= d29ybGQ=",
		"Program return: worm2ZoG2kUd4vFXhvjh93UUH596ayRfgQ2MgjNMTth AQI=",
		"Program consumption: 190000 units remaining",
		"Program worm2ZoG2kUd4vFXhvjh93UUH596ayRfgQ2MgjNMTth success",
		"Log truncated",
	}
	invs, err := ParseLogs(lines)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	require.Len(t, invs[0].Logs, 1)
	assert.Equal(t, LogLineTypeData, invs[0].Logs[0].Type)
	assert.Equal(t, [][]byte{[]byte("hello"), []byte("world")}, invs[0].Logs[0].Data)
	assert.Equal(t, []byte{1, 2}, invs[0].ReturnData)
}

func TestParseLogsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
	}{
		{
			name:  "log before invoke",
			lines: []string{"Program log: hello"},
		},
		{
			name:  "depth skips a level",
			lines: []string{"Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA invoke [2]"},
		},
		{
			name: "result for wrong program",
			lines: []string{
				"Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA invoke [1]",
				"Program MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcQb success",
			},
		},
		{
			name: "unknown line",
			lines: []string{
				"Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA invoke [1]",
				"something else entirely",
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseLogs(tc.lines)
			assert.Error(t, err)
		})
	}
}

func TestHasLog(t *testing.T) {
	invs, err := ParseLogs(strings.Split(burnWithMemo, "\n"))
	require.NoError(t, err)
	assert.True(t, HasLog(invs, "Instruction: BurnChecked", tokenProgram))
	assert.False(t, HasLog(invs, "Instruction: Burn", tokenProgram))

	nested, err := ParseLogs(strings.Split(unstake, "\n"))
	require.NoError(t, err)
	assert.True(t, HasLog(nested, "Instruction: Transfer", tokenProgram))
	assert.False(t, HasLog(nested, "Unstake NFT Call", tokenProgram))
	assert.True(t, HasLog(nested, "Unstake NFT Call"))
}
