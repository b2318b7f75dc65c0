package repository

import (
	"context"
	"time"

	"github.com/MartenSchelker/QuotaGate/app/models"
	"gorm.io/gorm"
)

// DefaultHistoryLimit caps history scans when the caller passes no limit.
const DefaultHistoryLimit = 100

// CounterRepository defines the interface for rate-limit counter persistence.
// Rows are append-and-update only; nothing here ever deletes history.
type CounterRepository interface {
	// GetCount returns the request count for the unique
	// (userID, periodType, periodStart) row, or 0 when no row exists.
	GetCount(ctx context.Context, userID, periodType string, periodStart time.Time) (int64, error)

	// IncrementOrInsert bumps the counter row for the given key by one,
	// inserting it with request_count = 1 when it does not exist yet. The
	// increment is a single atomic upsert so concurrent callers on the same
	// key never lose updates.
	IncrementOrInsert(ctx context.Context, userID, periodType string, periodStart, now time.Time) error

	// History returns up to limit rows for (userID, periodType) ordered by
	// period_start descending. A non-positive limit uses DefaultHistoryLimit.
	History(ctx context.Context, userID, periodType string, limit int) ([]models.RateLimitCounter, error)
}

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, *models.UserSettings, error)
	Update(user *models.User) error
	Delete(id uint) error
	Count() (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Counter CounterRepository
	User    UserRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Counter: NewCounterRepository(db),
		User:    NewUserRepository(db),
	}
}
