package relayer

import (
	"fmt"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/common"
)

// solanaEndpoints says which Solana RPC serves each side of the bridge. Fungible burns and the SPL mints for Omega
// locks run against Token. NFT deposits and their returns run against NFT, which may be a different cluster.
type solanaEndpoints struct {
	Token    string
	NFT      string
	Metadata string
}

// resolveSolanaEndpoints fills in defaults: NFT falls back to the token RPC, metadata to the NFT RPC since the
// metadata accounts live on the cluster the NFTs live on.
func resolveSolanaEndpoints(tokenRPC, nftRPC, metadataRPC string) solanaEndpoints {
	e := solanaEndpoints{Token: tokenRPC, NFT: nftRPC, Metadata: metadataRPC}
	if e.NFT == "" {
		e.NFT = e.Token
	}
	if e.Metadata == "" {
		e.Metadata = e.NFT
	}
	return e
}

// ForKind returns the endpoint that both observes and executes kind.
func (e solanaEndpoints) ForKind(kind common.AssetKind) (string, error) {
	switch kind {
	case common.AssetKindFungibleBurn, common.AssetKindTargetLock:
		return e.Token, nil
	case common.AssetKindNFTDeposit, common.AssetKindTargetNFTBurn:
		return e.NFT, nil
	}
	return "", fmt.Errorf("no solana endpoint for %s", kind)
}

// clientPool opens one client per distinct endpoint and hands the same client to every concern sharing it.
type clientPool[C any] struct {
	open    func(url string, name string) (C, error)
	clients map[string]C
	order   []string
}

func newClientPool[C any](open func(url string, name string) (C, error)) *clientPool[C] {
	return &clientPool[C]{open: open, clients: make(map[string]C)}
}

// Get returns the client for url. name labels the client's metrics and is only used when url is opened first.
func (p *clientPool[C]) Get(url, name string) (C, error) {
	if c, ok := p.clients[url]; ok {
		return c, nil
	}
	c, err := p.open(url, name)
	if err != nil {
		var zero C
		return zero, err
	}
	p.clients[url] = c
	p.order = append(p.order, url)
	return c, nil
}

// Each calls fn for every opened client in the order they were opened.
func (p *clientPool[C]) Each(fn func(url string, c C)) {
	for _, url := range p.order {
		fn(url, p.clients[url])
	}
}
