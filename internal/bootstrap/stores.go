package bootstrap

import (
	"context"
	"fmt"

	"github.com/Domenick1991/spabooking/config"
	"github.com/Domenick1991/spabooking/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Stores struct {
	Bookings    repository.BookingRepository
	Memberships repository.MembershipRepository
	Ledger      repository.LedgerRepository
}

// OpenStores builds the repositories selected by cfg.Database.Driver. The
// returned close func releases the connection pool, if any.
func OpenStores(ctx context.Context, cfg config.DatabaseConfig) (*Stores, func(), error) {
	if cfg.Driver != config.StoragePostgres {
		return &Stores{
			Bookings:    repository.NewMemoryBookingRepository(),
			Memberships: repository.NewMemoryMembershipRepository(),
			Ledger:      repository.NewMemoryLedgerRepository(),
		}, func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := repository.InitializeSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return &Stores{
		Bookings:    repository.NewBookingRepository(pool),
		Memberships: repository.NewMembershipRepository(pool),
		Ledger:      repository.NewLedgerRepository(pool),
	}, pool.Close, nil
}
