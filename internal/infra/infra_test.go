package infra

import (
	"context"
	"io/fs"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet_ledger/internal/config"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/ledger", migrateURL("postgres://u:p@db:5432/ledger"))
	assert.Equal(t, "pgx5://db/ledger?sslmode=disable", migrateURL("postgresql://db/ledger?sslmode=disable"))
	assert.Equal(t, "pgx5://db/ledger", migrateURL("pgx5://db/ledger"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(migrations, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrations, "migrations/*.down.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))

	schema, err := fs.ReadFile(migrations, "migrations/0001_init.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(schema), "CHECK (balance >= 0)")
	assert.Contains(t, string(schema), "ON DELETE RESTRICT")
}

func TestNewKafkaWriter(t *testing.T) {
	_, err := NewKafkaWriter(nil, "topic")
	assert.Error(t, err)

	w, err := NewKafkaWriter([]string{"localhost:9092"}, "ledger")
	require.NoError(t, err)
	assert.Equal(t, "ledger", w.Topic)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
}

func TestNewPostgresPoolRequiresURL(t *testing.T) {
	_, err := NewPostgresPool(context.Background(), config.Config{})
	assert.Error(t, err)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), config.Config{RedisURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = NewRedisClient(context.Background(), config.Config{})
	assert.Error(t, err)
}
