package relayer

import (
	"errors"
	"testing"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolanaEndpointDefaults(t *testing.T) {
	e := resolveSolanaEndpoints("https://token", "", "")
	assert.Equal(t, solanaEndpoints{Token: "https://token", NFT: "https://token", Metadata: "https://token"}, e)

	e = resolveSolanaEndpoints("https://token", "https://nft", "")
	assert.Equal(t, "https://nft", e.NFT)
	assert.Equal(t, "https://nft", e.Metadata)

	e = resolveSolanaEndpoints("https://token", "https://nft", "https://meta")
	assert.Equal(t, "https://meta", e.Metadata)
}

func TestSolanaEndpointForKind(t *testing.T) {
	e := resolveSolanaEndpoints("https://token", "https://nft", "")

	tests := []struct {
		kind common.AssetKind
		want string
	}{
		{common.AssetKindFungibleBurn, "https://token"},
		{common.AssetKindTargetLock, "https://token"},
		{common.AssetKindNFTDeposit, "https://nft"},
		{common.AssetKindTargetNFTBurn, "https://nft"},
	}
	for _, tc := range tests {
		t.Run(tc.kind.String(), func(t *testing.T) {
			got, err := e.ForKind(tc.kind)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := e.ForKind(common.AssetKindUnknown)
	assert.Error(t, err)
}

type namedClient struct {
	url  string
	name string
}

// The NFT poller, the metadata fetcher and the NFT return all end up on the NFT cluster, token traffic stays apart.
func TestClientPoolSharesEndpoints(t *testing.T) {
	opened := 0
	pool := newClientPool(func(url, name string) (*namedClient, error) {
		opened++
		return &namedClient{url: url, name: name}, nil
	})
	e := resolveSolanaEndpoints("https://token", "https://nft", "")

	nftURL, err := e.ForKind(common.AssetKindNFTDeposit)
	require.NoError(t, err)
	nft, err := pool.Get(nftURL, "solana-nft")
	require.NoError(t, err)

	tokenURL, err := e.ForKind(common.AssetKindFungibleBurn)
	require.NoError(t, err)
	token, err := pool.Get(tokenURL, "solana-token")
	require.NoError(t, err)

	meta, err := pool.Get(e.Metadata, "solana-metadata")
	require.NoError(t, err)

	assert.Equal(t, 2, opened)
	assert.Same(t, nft, meta)
	assert.NotSame(t, nft, token)
	assert.Equal(t, "https://token", token.url)
	assert.Equal(t, "solana-nft", meta.name)

	var order []string
	pool.Each(func(url string, _ *namedClient) {
		order = append(order, url)
	})
	assert.Equal(t, []string{"https://nft", "https://token"}, order)
}

func TestClientPoolOpenFailureIsNotCached(t *testing.T) {
	fail := true
	pool := newClientPool(func(url, name string) (*namedClient, error) {
		if fail {
			return nil, errors.New("dial refused")
		}
		return &namedClient{url: url}, nil
	})

	_, err := pool.Get("https://token", "solana")
	require.Error(t, err)

	fail = false
	c, err := pool.Get("https://token", "solana")
	require.NoError(t, err)
	assert.Equal(t, "https://token", c.url)
}
