package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smsledger/smsledger/internal/config"
	"github.com/smsledger/smsledger/internal/ledger"
	"github.com/smsledger/smsledger/internal/model"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// exerciseStore checks the behaviour every backend shares.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	b, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, b.Valid, "fresh store is unset")

	require.NoError(t, s.Persist(ctx, ledger.Some(dec("1234.56"))))
	b, err = s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, b.Equal(ledger.Some(dec("1234.56"))), "got %s", b)

	require.NoError(t, s.Persist(ctx, ledger.Some(dec("-10"))))
	b, err = s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, b.Equal(ledger.Some(dec("-10"))), "got %s", b)

	require.NoError(t, s.Persist(ctx, ledger.Balance{}))
	b, err = s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, b.Valid, "reset balance is unset")
}

func TestFileStore(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "data", "balance.yaml"))
	defer s.Close()
	exerciseStore(t, s)
}

func TestFileStore_Format(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balance.yaml")
	s := NewFileStore(path)
	require.NoError(t, s.Persist(context.Background(), ledger.Some(dec("99.50"))))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `balance: "99.5"`)
	assert.Contains(t, string(data), "updated_at:")
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balance.yaml")
	require.NoError(t, os.WriteFile(path, []byte("balance: \"not-a-number\"\n"), 0o644))

	_, err := NewFileStore(path).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing balance")
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "smsledger.db"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smsledger.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Persist(context.Background(), ledger.Some(dec("7"))))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err, "migrations must be idempotent")
	defer s.Close()

	b, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, b.Equal(ledger.Some(dec("7"))))
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	defer s.Close()
	exerciseStore(t, s)
}

func TestRedisStore_Key(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:balance")
	defer s.Close()

	require.NoError(t, s.Persist(context.Background(), ledger.Some(dec("5.25"))))
	v, err := mr.Get("test:balance")
	require.NoError(t, err)
	assert.Equal(t, "5.25", v)

	require.NoError(t, s.Persist(context.Background(), ledger.Balance{}))
	assert.False(t, mr.Exists("test:balance"))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, config.StoreConfig{Backend: BackendFile, Path: filepath.Join(dir, "b.yaml")})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open(ctx, config.StoreConfig{Backend: BackendSQLite, Path: filepath.Join(dir, "b.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	mr := miniredis.RunT(t)
	s, err = Open(ctx, config.StoreConfig{Backend: BackendRedis, Redis: config.RedisConfig{Addr: mr.Addr()}})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, config.StoreConfig{Backend: "tape"})
	assert.Error(t, err)
}

func TestStoreAsLedgerPersister(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "balance.yaml"))
	l := ledger.New(ledger.Balance{}, ledger.WithPersister(s))

	l.SetInitial(dec("1000.0"))
	l.Apply(model.Transaction{Direction: model.Debit, Amount: dec("1.0")})
	l.Wait()

	b, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, b.Equal(ledger.Some(dec("999"))), "got %s", b)
}
