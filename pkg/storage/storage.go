package storage

import (
	"github.com/tphan267/arqut-signal/pkg/storage/repositories"
	"gorm.io/gorm"
)

// Storage is the database storage interface
type Storage interface {
	// DB returns the underlying GORM database instance
	DB() *gorm.DB

	// Events returns the call event journal
	Events() *repositories.EventRepository

	Close() error
}
