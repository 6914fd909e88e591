package tokenregistry

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/ristretto"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	rstore "github.com/eko/gocache/store/ristretto/v4"
	"github.com/ethereum/go-ethereum/common"
)

var ErrNilFetcher = errors.New("token fetcher is required")

// Fetcher loads token metadata from the chain.
type Fetcher func(ctx context.Context, address common.Address) (Token, error)

// Registry resolves token metadata by address. Metadata never changes after
// deployment, so a fetched token is cached for the life of the process.
type Registry struct {
	cache *cache.Cache[Token]
	fetch Fetcher
}

// NewRegistry builds a Registry backed by an in-memory ristretto store.
func NewRegistry(fetch Fetcher) (*Registry, error) {
	if fetch == nil {
		return nil, ErrNilFetcher
	}

	rcache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100000,
		MaxCost:     10000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token cache: %w", err)
	}

	return &Registry{
		cache: cache.New[Token](rstore.NewRistretto(rcache)),
		fetch: fetch,
	}, nil
}

func cacheKey(address common.Address) string {
	return "token:" + address.Hex()
}

// Lookup returns the token at address, fetching it on a cache miss.
func (r *Registry) Lookup(ctx context.Context, address common.Address) (Token, error) {
	key := cacheKey(address)
	if token, err := r.cache.Get(ctx, key); err == nil {
		return token, nil
	}

	token, err := r.fetch(ctx, address)
	if err != nil {
		return Token{}, fmt.Errorf("failed to fetch token %s: %w", address.Hex(), err)
	}

	// a failed insert only costs a refetch
	_ = r.cache.Set(ctx, key, token, store.WithCost(1))
	return token, nil
}

// Pair resolves both tokens of a pool.
func (r *Registry) Pair(ctx context.Context, token0, token1 common.Address) (Token, Token, error) {
	t0, err := r.Lookup(ctx, token0)
	if err != nil {
		return Token{}, Token{}, err
	}
	t1, err := r.Lookup(ctx, token1)
	if err != nil {
		return Token{}, Token{}, err
	}
	return t0, t1, nil
}
