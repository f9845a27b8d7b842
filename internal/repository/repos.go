package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Repos — набор репозиториев, привязанных к одному *gorm.DB (или транзакции).
type Repos struct {
	Providers ProviderRepository
	Services  ServiceRepository
	Schedules ScheduleRepository
	Blocks    BlockRepository
	Bookings  BookingRepository
	Bundles   BundleRepository
	Credits   CreditRepository
}

func NewGormRepos(db *gorm.DB) Repos {
	return Repos{
		Providers: NewGormProviderRepository(db),
		Services:  NewGormServiceRepository(db),
		Schedules: NewGormScheduleRepository(db),
		Blocks:    NewGormBlockRepository(db),
		Bookings:  NewGormBookingRepository(db),
		Bundles:   NewGormBundleRepository(db),
		Credits:   NewGormCreditRepository(db),
	}
}

// Transactor runs fn in a single transaction with the provider row locked,
// so that validate-then-write on one provider is serialised across processes.
type Transactor interface {
	WithinProvider(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context, tx Repos) error) error
}

// Транзиентные ошибки БД повторяются не больше maxTxAttempts раз.
const (
	maxTxAttempts = 3
	txRetryStep   = 50 * time.Millisecond
)

type GormTransactor struct {
	db *gorm.DB
}

func NewGormTransactor(db *gorm.DB) *GormTransactor {
	return &GormTransactor{db: db}
}

// WithinProvider повторяет всю транзакцию целиком, если она упала на потере
// соединения, serialization failure или дедлоке. Доменные ошибки из fn не повторяются.
func (t *GormTransactor) WithinProvider(
	ctx context.Context,
	providerID uuid.UUID,
	fn func(ctx context.Context, tx Repos) error,
) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			repos := NewGormRepos(tx)
			if err := repos.Providers.LockForUpdate(ctx, providerID); err != nil {
				return err
			}
			return fn(ctx, repos)
		})
		if err == nil || !IsTransient(err) || attempt == maxTxAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * txRetryStep):
		}
	}
	return err
}

// IsTransient: ошибка хранилища, после которой транзакцию можно безопасно повторить.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}
		return false
	}
	return pgconn.SafeToRetry(err)
}
