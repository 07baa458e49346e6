// Package store persists users, API key credentials, the shared
// verification cache table and attendance records. It speaks to SQLite,
// PostgreSQL and MySQL through sqlx; queries are written with `?`
// placeholders and rebound for the active driver.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Supported values for Options.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Options selects the backing database.
type Options struct {
	// Driver is one of "sqlite" (default), "postgres" or "mysql".
	Driver string
	// DSN is the driver connection string. For SQLite an empty DSN falls back
	// to DataDir, and an empty DataDir means in-memory.
	DSN string
	// DataDir holds keygate.db when Driver is sqlite and DSN is empty.
	DataDir string
}

// Store is the relational backend shared by the auth and data services.
type Store struct {
	db      *sqlx.DB
	dialect dialect
}

// NewStore opens a SQLite store in dataDir. Pass empty string for in-memory.
func NewStore(dataDir string) (*Store, error) {
	return Open(context.Background(), Options{Driver: DriverSQLite, DataDir: dataDir})
}

// Open connects to the database described by opts and applies migrations.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Driver == "" {
		opts.Driver = DriverSQLite
	}
	d, ok := dialects[opts.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported store driver %q (want sqlite, postgres or mysql)", opts.Driver)
	}

	dsn, err := resolveDSN(opts)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.ConnectContext(ctx, d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", opts.Driver, err)
	}

	if opts.Driver == DriverSQLite {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	s := &Store{db: db, dialect: d}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s database: %w", opts.Driver, err)
	}
	return s, nil
}

func resolveDSN(opts Options) (string, error) {
	switch opts.Driver {
	case DriverSQLite:
		if opts.DSN != "" {
			return opts.DSN, nil
		}
		if opts.DataDir == "" {
			return ":memory:", nil
		}
		if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
			return "", fmt.Errorf("create data dir: %w", err)
		}
		return filepath.Join(opts.DataDir, "keygate.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", nil

	case DriverMySQL:
		if opts.DSN == "" {
			return "", fmt.Errorf("store.dsn is required for driver mysql")
		}
		// Timestamps are scanned into time.Time, which needs parseTime.
		cfg, err := mysql.ParseDSN(opts.DSN)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil

	default:
		if opts.DSN == "" {
			return "", fmt.Errorf("store.dsn is required for driver %s", opts.Driver)
		}
		return opts.DSN, nil
	}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns the configured driver name (sqlite, postgres or mysql).
func (s *Store) Driver() string {
	return s.dialect.name
}

// DB exposes the underlying handle for tests and diagnostics.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// insert runs a named INSERT and returns the generated id. PostgreSQL has
// no LastInsertId, so the id comes back through RETURNING there.
func (s *Store) insert(ctx context.Context, q string, arg interface{}) (int64, error) {
	if !s.dialect.returningID {
		result, err := s.db.NamedExecContext(ctx, q, arg)
		if err != nil {
			return 0, err
		}
		return result.LastInsertId()
	}

	query, args, err := sqlx.Named(q+" RETURNING id", arg)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := s.db.QueryRowxContext(ctx, s.db.Rebind(query), args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// ---------------------------------------------------------------------------
// Dialects
// ---------------------------------------------------------------------------

type dialect struct {
	name        string
	driverName  string
	returningID bool
	ddl         *strings.Replacer
	upsertCache string
}

var dialects = map[string]dialect{
	DriverSQLite: {
		name:       DriverSQLite,
		driverName: "sqlite",
		ddl: strings.NewReplacer(
			"{{serial}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
			"{{bigint}}", "INTEGER",
			"{{bool}}", "INTEGER",
			"{{true}}", "1",
			"{{false}}", "0",
			"{{time}}", "DATETIME",
			"{{now}}", "CURRENT_TIMESTAMP",
			"{{key}}", "TEXT",
			"{{ifnotexists}}", "IF NOT EXISTS ",
		),
		upsertCache: `INSERT INTO verification_cache (cache_key, payload, expires_at) VALUES (?, ?, ?)
			ON CONFLICT(cache_key) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at`,
	},
	DriverPostgres: {
		name:        DriverPostgres,
		driverName:  "pgx",
		returningID: true,
		ddl: strings.NewReplacer(
			"{{serial}}", "BIGSERIAL PRIMARY KEY",
			"{{bigint}}", "BIGINT",
			"{{bool}}", "BOOLEAN",
			"{{true}}", "TRUE",
			"{{false}}", "FALSE",
			"{{time}}", "TIMESTAMPTZ",
			"{{now}}", "CURRENT_TIMESTAMP",
			"{{key}}", "TEXT",
			"{{ifnotexists}}", "IF NOT EXISTS ",
		),
		upsertCache: `INSERT INTO verification_cache (cache_key, payload, expires_at) VALUES (?, ?, ?)
			ON CONFLICT (cache_key) DO UPDATE SET payload = EXCLUDED.payload, expires_at = EXCLUDED.expires_at`,
	},
	DriverMySQL: {
		name:       DriverMySQL,
		driverName: "mysql",
		ddl: strings.NewReplacer(
			"{{serial}}", "BIGINT AUTO_INCREMENT PRIMARY KEY",
			"{{bigint}}", "BIGINT",
			"{{bool}}", "BOOLEAN",
			"{{true}}", "TRUE",
			"{{false}}", "FALSE",
			"{{time}}", "DATETIME(6)",
			"{{now}}", "CURRENT_TIMESTAMP(6)",
			"{{key}}", "VARCHAR(191)",
			"{{ifnotexists}}", "",
		),
		upsertCache: `INSERT INTO verification_cache (cache_key, payload, expires_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE payload = VALUES(payload), expires_at = VALUES(expires_at)`,
	},
}
