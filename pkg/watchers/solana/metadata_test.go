package solana

import (
	"context"
	"encoding/binary"
	"testing"

	soltx "github.com/OmegaNetwork-source/omega-bridge/pkg/solana"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metadataAccount(mint solana.PublicKey, name, symbol, uri string) []byte {
	buf := []byte{4}
	buf = append(buf, make([]byte, 32)...)
	buf = append(buf, mint.Bytes()...)
	for _, s := range []string{name, symbol, uri} {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
		buf = append(buf, s...)
	}
	return buf
}

func TestMetadataFetcherCaches(t *testing.T) {
	client := newFakeClient()
	mint := solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	addr, err := soltx.MetadataAddress(mint)
	require.NoError(t, err)
	client.accounts[addr] = metadataAccount(mint, "Secret Serpent #7\x00\x00", "SSS", "https://arweave.net/7")

	f, err := NewMetadataFetcher(client, 16)
	require.NoError(t, err)

	md, err := f.Fetch(context.Background(), mint)
	require.NoError(t, err)
	assert.Equal(t, "Secret Serpent #7", md.Name)
	assert.Equal(t, "SSS", md.Symbol)
	assert.Equal(t, "https://arweave.net/7", md.URI)

	again, err := f.Fetch(context.Background(), mint)
	require.NoError(t, err)
	assert.Same(t, md, again)
	assert.Equal(t, 1, client.reads)
}

func TestMetadataFetcherMissingAccount(t *testing.T) {
	client := newFakeClient()
	f, err := NewMetadataFetcher(client, 16)
	require.NoError(t, err)

	mint := solana.MustPublicKeyFromBase58(testMint)
	_, err = f.Fetch(context.Background(), mint)
	assert.ErrorIs(t, err, rpc.ErrNotFound)

	// Failures are not cached.
	_, err = f.Fetch(context.Background(), mint)
	assert.Error(t, err)
	assert.Equal(t, 2, client.reads)
}
