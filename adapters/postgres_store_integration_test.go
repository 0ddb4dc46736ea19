//go:build integration

package adapters_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lychee-technology/shardquery"
	"github.com/lychee-technology/shardquery/adapters"
	"github.com/lychee-technology/shardquery/internal"
)

// staticResolver is a fixed-code-to-SQL map, standing in for the query
// registry so this test exercises PostgresShardStore against a real
// Postgres container without also depending on internal.QueryRegistry.
type staticResolver map[string]string

func (r staticResolver) ResolveSQL(ctx context.Context, queryCode string) (string, error) {
	sqlText, ok := r[queryCode]
	if !ok {
		return "", fmt.Errorf("unknown query code %q", queryCode)
	}
	return sqlText, nil
}

// TestPostgresShardStoreExecutePageIntegration runs a real page fetch against
// a containerized Postgres, the way
// forma/internal/e2e_harness/harness.go's StartPostgres spins one up for its
// own integration suite. Skipped unless `-tags integration` is passed, since
// it needs a working Docker daemon.
func TestPostgresShardStoreExecutePageIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_DB":       "postgres",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://postgres:password@%s:%s/postgres?sslmode=disable", host, mapped.Port())
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Exec(ctx, `CREATE TABLE infractions (id INT, estado_id INT, fecha DATE)`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO infractions (id, estado_id, fecha) VALUES (1, 5, '2024-01-10'), (2, 5, '2024-02-20'), (3, 9, '2024-03-01')`)
	require.NoError(t, err)

	resolver := staticResolver{
		"infractions_by_state": `SELECT id, estado_id FROM infractions WHERE estado_id = ANY(@stateIds) ORDER BY id`,
	}
	breaker := internal.NewCircuitBreaker(5, 30*time.Second, 15*time.Second)
	store := adapters.NewPostgresShardStore("cordoba", pool, resolver, breaker)

	filters := &shardquery.FilterParams{StateIDs: []int{5}, Limit: 10}
	rows, err := store.ExecutePage(ctx, "infractions_by_state", filters)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	id, ok := rows[0].Get("id")
	require.True(t, ok)
	require.EqualValues(t, 1, id)
}
