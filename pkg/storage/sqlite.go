package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/tphan267/arqut-signal/pkg/logger"
	"github.com/tphan267/arqut-signal/pkg/storage/repositories"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStorage implements Storage interface using SQLite
type SQLiteStorage struct {
	db     *gorm.DB
	logger *logger.Logger

	events *repositories.EventRepository
}

// newGormLogger routes gorm's warnings and slow queries through appLogger.
// SQL statements are traced only at debug level.
func newGormLogger(appLogger *logger.Logger) gormlogger.Interface {
	level := gormlogger.Warn
	if appLogger.Enabled(logger.DebugLevel) {
		level = gormlogger.Info
	}
	return gormlogger.New(appLogger, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// NewSQLiteStorage opens dbPath, creating its directory when needed, and
// migrates the journal schema.
func NewSQLiteStorage(dbPath string, appLogger *logger.Logger) (Storage, error) {
	if appLogger == nil {
		appLogger = logger.NewDefault("ARQUT")
	}

	if dbPath != MemoryPath {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: newGormLogger(appLogger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dbPath == MemoryPath {
		// every pooled connection would otherwise get its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database instance: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	events, err := repositories.NewEventRepository(db)
	if err != nil {
		return nil, err
	}

	appLogger.Info("[Storage] SQLite database opened: %s", dbPath)

	return &SQLiteStorage{
		db:     db,
		logger: appLogger,
		events: events,
	}, nil
}

// DB returns the underlying GORM database instance
func (s *SQLiteStorage) DB() *gorm.DB {
	return s.db
}

func (s *SQLiteStorage) Events() *repositories.EventRepository {
	return s.events
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.logger.Info("[Storage] SQLite database closed")
	return nil
}
