package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/smsledger/smsledger/internal/ledger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore keeps the balance in a single-row table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens dbPath, creating it and running migrations if needed.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func runMigrations(dbPath string) error {
	// Separate connection: the migrate driver closes it on m.Close.
	migrateDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	driver, err := sqlite.WithInstance(migrateDB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Load returns the stored balance; no row or a NULL amount means unset.
func (s *SQLiteStore) Load(ctx context.Context) (ledger.Balance, error) {
	var amount sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT amount FROM balance WHERE id = 1`).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Balance{}, nil
	}
	if err != nil {
		return ledger.Balance{}, fmt.Errorf("select balance: %w", err)
	}
	if !amount.Valid {
		return ledger.Balance{}, nil
	}
	d, err := decimal.NewFromString(amount.String)
	if err != nil {
		return ledger.Balance{}, fmt.Errorf("parsing stored balance %q: %w", amount.String, err)
	}
	return ledger.Some(d), nil
}

// Persist upserts the single balance row.
func (s *SQLiteStore) Persist(ctx context.Context, b ledger.Balance) error {
	var amount sql.NullString
	if d, ok := b.Get(); ok {
		amount = sql.NullString{String: d.String(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO balance (id, amount, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET amount = excluded.amount, updated_at = excluded.updated_at`,
		amount, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert balance: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
