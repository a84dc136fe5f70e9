package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/jmoiron/sqlx"
	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DriverName is the database/sql driver registered by the SQLite driver package.
const DriverName = "sqlite3"

// ErrBlocked is returned when the database stayed locked by another
// connection for every retry.
var ErrBlocked = errors.New("database is blocked by another connection")

// VersionError reports a database written by a newer schema than this binary knows.
type VersionError struct {
	Path      string
	Found     int
	Supported int
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("database %s has schema version %d, newer than supported version %d", e.Path, e.Found, e.Supported)
}

// Migration is one versioned SQL script.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Schema is the ordered list of migrations of one database.
type Schema struct {
	Name       string
	Migrations []Migration
}

// Version is the schema version after all migrations are applied.
func (s Schema) Version() int {
	if len(s.Migrations) == 0 {
		return 0
	}
	return s.Migrations[len(s.Migrations)-1].Version
}

// LoadSchema reads NNNN_name.sql files from dir of fsys.
func LoadSchema(name string, fsys fs.FS, dir string) (Schema, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return Schema{}, fmt.Errorf("read %s migrations: %w", name, err)
	}

	schema := Schema{Name: name}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		prefix, _, _ := strings.Cut(entry.Name(), "_")
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return Schema{}, fmt.Errorf("migration %s has no numeric version prefix", entry.Name())
		}
		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return Schema{}, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		schema.Migrations = append(schema.Migrations, Migration{
			Version: version,
			Name:    entry.Name(),
			SQL:     string(content),
		})
	}
	sort.Slice(schema.Migrations, func(i, j int) bool {
		return schema.Migrations[i].Version < schema.Migrations[j].Version
	})
	for i := 1; i < len(schema.Migrations); i++ {
		if schema.Migrations[i].Version == schema.Migrations[i-1].Version {
			return Schema{}, fmt.Errorf("duplicate migration version %d in %s", schema.Migrations[i].Version, name)
		}
	}
	return schema, nil
}

// Options controls how a database is opened.
type Options struct {
	BusyTimeout      time.Duration
	RecreateAttempts uint
	RecreateDelay    time.Duration
	// Blocked is called every time opening is retried because another
	// connection holds the database.
	Blocked func(path string, err error)
	Logger  *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.RecreateAttempts == 0 {
		o.RecreateAttempts = 3
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Blocked == nil {
		o.Blocked = func(string, error) {}
	}
	return o
}

// Open opens the SQLite database at dbPath and migrates it to schema.
// A database with a newer schema version is deleted and recreated.
func Open(ctx context.Context, dbPath string, schema Schema, opts Options) (*sqlx.DB, error) {
	opts = opts.withDefaults()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := openWithRetry(ctx, dbPath, schema, opts, false)
	if err == nil {
		return db, nil
	}

	var versionErr *VersionError
	if !errors.As(err, &versionErr) {
		return nil, err
	}
	opts.Logger.Warn("recreating database with an incompatible schema",
		"path", dbPath, "found", versionErr.Found, "supported", versionErr.Supported)
	return openWithRetry(ctx, dbPath, schema, opts, true)
}

func openWithRetry(ctx context.Context, dbPath string, schema Schema, opts Options, recreate bool) (*sqlx.DB, error) {
	var db *sqlx.DB
	err := retry.Do(
		func() error {
			if recreate {
				if err := RemoveDatabaseFiles(dbPath); err != nil {
					return err
				}
			}
			opened, err := openAndMigrate(ctx, dbPath, schema, opts)
			if err != nil {
				return err
			}
			db = opened
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(opts.RecreateAttempts),
		retry.Delay(opts.RecreateDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsBusy),
		retry.OnRetry(func(n uint, err error) {
			opts.Logger.Warn("database is blocked, retrying", "path", dbPath, "attempt", n+1, "error", err)
			opts.Blocked(dbPath, err)
		}),
	)
	if err != nil {
		if IsBusy(err) {
			return nil, fmt.Errorf("open %s: %w: %w", dbPath, ErrBlocked, err)
		}
		return nil, err
	}
	return db, nil
}

func openAndMigrate(ctx context.Context, dbPath string, schema Schema, opts Options) (*sqlx.DB, error) {
	db, err := sqlx.Open(DriverName, dataSourceName(dbPath, opts.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open database connection: %w", err)
	}
	if err := migrate(ctx, db, dbPath, schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func dataSourceName(dbPath string, busyTimeout time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(wal)")
	q.Add("_pragma", "foreign_keys(1)")
	return "file:" + filepath.ToSlash(dbPath) + "?" + q.Encode()
}

// UserVersion returns PRAGMA user_version.
func UserVersion(ctx context.Context, db *sqlx.DB) (int, error) {
	var version int
	if err := db.GetContext(ctx, &version, "PRAGMA user_version"); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func migrate(ctx context.Context, db *sqlx.DB, dbPath string, schema Schema) error {
	current, err := UserVersion(ctx, db)
	if err != nil {
		return err
	}
	latest := schema.Version()
	if current > latest {
		return &VersionError{Path: dbPath, Found: current, Supported: latest}
	}
	if current == latest {
		return nil
	}

	return RunInTx(ctx, db, func(ctx context.Context, tx *sqlx.Tx) error {
		for _, m := range schema.Migrations {
			if m.Version <= current {
				continue
			}
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return fmt.Errorf("apply %s migration %s: %w", schema.Name, m.Name, err)
			}
			slog.Debug("applied migration", "database", schema.Name, "migration", m.Name)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", latest)); err != nil {
			return fmt.Errorf("write schema version: %w", err)
		}
		return nil
	})
}

// RemoveDatabaseFiles deletes the database file and its WAL side files.
func RemoveDatabaseFiles(dbPath string) error {
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

// IsBusy reports whether err is SQLite's busy or locked condition.
func IsBusy(err error) bool {
	return errors.Is(err, sqlite3.BUSY) || errors.Is(err, sqlite3.LOCKED)
}
