// Package migration applies the SQL schema in migrations/ with golang-migrate
// and scaffolds new migration files.
package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// Status is the schema version recorded in schema_migrations
type Status struct {
	Version uint
	Dirty   bool
	// Applied is false on a database no migration has touched
	Applied bool
}

// Migrator runs migrations from one source against one database
type Migrator struct {
	m      *migrate.Migrate
	src    source.Driver
	logger *zap.Logger
}

// OpenSource opens fsys as a golang-migrate source. Files that do not match
// <version>_<name>.(up|down).sql are ignored.
func OpenSource(fsys fs.FS) (source.Driver, error) {
	src, err := iofs.New(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}
	return src, nil
}

// New returns a Migrator for a Postgres db. Migrations are read from fsys,
// usually migrations.FS; NewFromDir reads a directory instead.
func New(db *sql.DB, fsys fs.FS, logger *zap.Logger) (*Migrator, error) {
	src, err := OpenSource(fsys)
	if err != nil {
		return nil, err
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("postgres migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("init migrate: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{m: m, src: src, logger: logger.Named("migrate")}, nil
}

// NewFromDir reads migrations from dir on disk
func NewFromDir(db *sql.DB, dir string, logger *zap.Logger) (*Migrator, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("migrations directory: %w", err)
	}
	return New(db, os.DirFS(dir), logger)
}

// run executes op and logs the resulting version. ErrNoChange is success.
func (mg *Migrator) run(action string, op func() error, fields ...zap.Field) error {
	mg.logger.Info("Migration "+action, fields...)
	if err := op(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			mg.logger.Info("Schema already current", zap.String("action", action))
			return nil
		}
		return fmt.Errorf("migrate %s: %w", action, err)
	}
	st, err := mg.Status()
	if err != nil {
		return err
	}
	mg.logger.Info("Migration finished",
		zap.String("action", action),
		zap.Uint("version", st.Version),
		zap.Bool("dirty", st.Dirty),
	)
	return nil
}

// Up applies every pending migration
func (mg *Migrator) Up() error { return mg.run("up", mg.m.Up) }

// Down reverts every applied migration
func (mg *Migrator) Down() error { return mg.run("down", mg.m.Down) }

// Steps applies n migrations forward, or -n backward when n is negative
func (mg *Migrator) Steps(n int) error {
	if n == 0 {
		return errors.New("migrate steps: n must not be zero")
	}
	return mg.run("steps", func() error { return mg.m.Steps(n) }, zap.Int("steps", n))
}

// To migrates up or down to version
func (mg *Migrator) To(version uint) error {
	return mg.run("to", func() error { return mg.m.Migrate(version) }, zap.Uint("target", version))
}

// Status reports the current schema version
func (mg *Migrator) Status() (Status, error) {
	v, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("read schema version: %w", err)
	}
	return Status{Version: v, Dirty: dirty, Applied: true}, nil
}

// Pending lists source versions newer than the applied one
func (mg *Migrator) Pending() ([]uint, error) {
	st, err := mg.Status()
	if err != nil {
		return nil, err
	}
	all, err := versions(mg.src)
	if err != nil {
		return nil, err
	}
	var pending []uint
	for _, v := range all {
		if !st.Applied || v > st.Version {
			pending = append(pending, v)
		}
	}
	return pending, nil
}

// Force records version as applied and clears the dirty flag without running
// SQL. It is the recovery path after a failed migration was fixed by hand.
func (mg *Migrator) Force(version int) error {
	mg.logger.Warn("Forcing schema version", zap.Int("version", version))
	if err := mg.m.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

// Drop removes every table in the schema, including schema_migrations
func (mg *Migrator) Drop() error {
	mg.logger.Warn("Dropping all database objects")
	if err := mg.m.Drop(); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	return nil
}

// Close releases the source and the database driver
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr)
}

// versions walks src in ascending order
func versions(src source.Driver) ([]uint, error) {
	v, err := src.First()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read first migration: %w", err)
	}
	out := []uint{v}
	for {
		v, err = src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read migration after %d: %w", out[len(out)-1], err)
		}
		out = append(out, v)
	}
}
