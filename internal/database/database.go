package database

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/buildingco2/tracker/internal/config"
	"github.com/buildingco2/tracker/internal/model"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryDSN returns a DSN for a named in-memory SQLite database. Connections
// opened with the same name share one database.
func MemoryDSN(name string) string {
	if name == "" {
		name = "co2tracker"
	}
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
}

// PostgresDSN builds a libpq connection string from cfg.
func PostgresDSN(cfg config.PostgresConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=%s`,
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
		sslMode,
	)
}

// GetPostgresDB returns a connection to the Postgres database.
func GetPostgresDB(cfg config.PostgresConfig, log zerolog.Logger) (*gorm.DB, error) {
	log.Debug().Str("host", cfg.Host).Str("port", cfg.Port).Str("database", cfg.Database).Msg("Connecting to Postgres DB")

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  PostgresDSN(cfg),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err = sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to validate connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)

	log.Info().Msg("Connected to database")
	return db, nil
}

// GetSqliteDB returns a connection to a SQLite database. dsn is either a
// file path or a MemoryDSN.
func GetSqliteDB(dsn string, log zerolog.Logger) (*gorm.DB, error) {
	if dsn == "" {
		dsn = MemoryDSN("")
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if strings.Contains(dsn, "mode=memory") {
		log.Info().Msg("Using local SQLite DB in memory with periodic disk dump")
	} else {
		log.Info().Str("path", dsn).Msg("Using local SQLite DB")
	}

	// set PRAGMAS
	pragmas := []string{
		"PRAGMA user_version = 1;",
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA cache_size = -32000;",
		"PRAGMA temp_store = MEMORY;",
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}

	// One connection keeps the shared in-memory database alive and
	// serializes writers.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB, log zerolog.Logger) error {
	log.Info().Msg("Migrating schema")
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	log.Info().Msg("Database setup complete")
	return nil
}

// DumpMemoryDBToDisk vacuums the in-memory database to a disk file.
func DumpMemoryDBToDisk(db *gorm.DB, sqliteFilePath string) error {
	if sqliteFilePath == "" {
		return fmt.Errorf("sqlite file path not set")
	}

	if err := os.MkdirAll(filepath.Dir(sqliteFilePath), 0755); err != nil {
		return fmt.Errorf("error creating dump directory: %w", err)
	}

	// VACUUM INTO refuses to overwrite, so write beside and rename.
	tmp := sqliteFilePath + ".tmp"
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error removing stale dump: %w", err)
	}

	err := db.Exec("VACUUM INTO '" + strings.ReplaceAll(tmp, "'", "''") + "';").Error
	if err != nil {
		return fmt.Errorf("error dumping memory DB to disk: %w", err)
	}

	if err := os.Rename(tmp, sqliteFilePath); err != nil {
		return fmt.Errorf("error moving dump into place: %w", err)
	}
	return nil
}

// RestoreDump copies every building from the SQLite file at path into db,
// replacing rows with the same ID. A missing file restores nothing.
func RestoreDump(db *gorm.DB, path string) (int64, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}

	var restored int64
	// ATTACH is per connection, so pin one for the whole sequence.
	err := db.Connection(func(conn *gorm.DB) error {
		if err := conn.Exec("ATTACH DATABASE ? AS snapshot", path).Error; err != nil {
			return fmt.Errorf("error attaching snapshot: %w", err)
		}
		defer conn.Exec("DETACH DATABASE snapshot")

		table := (&model.Building{}).TableName()
		res := conn.Exec(fmt.Sprintf("INSERT OR REPLACE INTO main.%[1]s SELECT * FROM snapshot.%[1]s", table))
		if res.Error != nil {
			return fmt.Errorf("error copying %s: %w", table, res.Error)
		}
		restored = res.RowsAffected
		return nil
	})
	return restored, err
}

// GetBackupDBPaths returns paths to all .db files in the given directory,
// oldest first by modification time.
func GetBackupDBPaths(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type entry struct {
		path string
		mod  time.Time
	}
	var entries []entry
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".db" {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		entries = append(entries, entry{path: filepath.Join(dir, file.Name()), mod: info.ModTime()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].mod.Before(entries[j].mod) })

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, e.path)
	}
	return paths, nil
}
