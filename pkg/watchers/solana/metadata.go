package solana

import (
	"context"
	"fmt"

	soltx "github.com/OmegaNetwork-source/omega-bridge/pkg/solana"
	"github.com/gagliardetto/solana-go"
	lru "github.com/hashicorp/golang-lru"
)

// MetadataFetcher resolves Metaplex metadata of NFT mints. Metadata of a bridged NFT does not change in practice,
// so successful lookups are cached.
type MetadataFetcher struct {
	client SourceClient
	cache  *lru.Cache
}

func NewMetadataFetcher(client SourceClient, cacheSize int) (*MetadataFetcher, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata cache: %w", err)
	}
	return &MetadataFetcher{client: client, cache: cache}, nil
}

func (f *MetadataFetcher) Fetch(ctx context.Context, mint solana.PublicKey) (*soltx.Metadata, error) {
	if v, ok := f.cache.Get(mint); ok {
		return v.(*soltx.Metadata), nil
	}

	addr, err := soltx.MetadataAddress(mint)
	if err != nil {
		return nil, err
	}
	data, err := f.client.AccountData(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata account %s of mint %s: %w", addr, mint, err)
	}
	md, err := soltx.DecodeMetadata(data)
	if err != nil {
		return nil, fmt.Errorf("mint %s: %w", mint, err)
	}

	f.cache.Add(mint, md)
	return md, nil
}
