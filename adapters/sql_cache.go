package adapters

import (
	"context"
	"sync"

	"github.com/lychee-technology/shardquery"
)

// SQLResolver resolves a registered query code to its SQL text. ShardStore
// adapters depend on this narrow capability rather than the full
// QueryMetadataStore contract, since all they need is the query text.
type SQLResolver interface {
	ResolveSQL(ctx context.Context, queryCode string) (string, error)
}

// SQLCache is a QueryMetadataStore-backed SQLResolver that caches resolved
// SQL text per code, so a long-running shard task's repeated ExecutePage
// calls don't repeat the registry round-trip. Grounded on
// forma/internal/metadata_loader.go's MetadataCache shape (RWMutex-guarded
// lookup maps).
type SQLCache struct {
	mu    sync.RWMutex
	store shardquery.QueryMetadataStore
	sql   map[string]string
}

// NewSQLCache builds a cache backed by store.
func NewSQLCache(store shardquery.QueryMetadataStore) *SQLCache {
	return &SQLCache{store: store, sql: make(map[string]string)}
}

// ResolveSQL returns queryCode's registered SQL text, fetching and caching it
// on first use.
func (c *SQLCache) ResolveSQL(ctx context.Context, queryCode string) (string, error) {
	c.mu.RLock()
	sqlText, ok := c.sql[queryCode]
	c.mu.RUnlock()
	if ok {
		return sqlText, nil
	}

	query, _, err := c.store.Get(ctx, queryCode)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.sql[queryCode] = query.SQL
	c.mu.Unlock()
	return query.SQL, nil
}
