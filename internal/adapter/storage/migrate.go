package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrator applies the embedded schema migrations. It opens its own
// connection so closing the migration driver never touches the serving pool.
type Migrator struct {
	Driver string
	DSN    string
}

func (m *Migrator) MigrateUp() error {
	return m.run(func(mig *migrate.Migrate) error { return mig.Up() })
}

func (m *Migrator) MigrateDown() error {
	return m.run(func(mig *migrate.Migrate) error { return mig.Down() })
}

// Version reports the applied schema version and whether it is dirty.
func (m *Migrator) Version() (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)
	err := m.run(func(mig *migrate.Migrate) error {
		var err error
		version, dirty, err = mig.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		return err
	})
	return version, dirty, err
}

func (m *Migrator) run(fn func(*migrate.Migrate) error) error {
	db, err := sql.Open(m.Driver, m.DSN)
	if err != nil {
		return fmt.Errorf("open %s: %w", m.Driver, err)
	}
	defer db.Close()

	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	var driver database.Driver
	switch m.Driver {
	case "mysql":
		driver, err = migratemysql.WithInstance(db, &migratemysql.Config{})
	case "sqlite":
		driver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	default:
		return fmt.Errorf("unsupported migration driver %q", m.Driver)
	}
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	mig, err := migrate.NewWithInstance("iofs", src, m.Driver, driver)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	defer mig.Close()

	if err := fn(mig); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
