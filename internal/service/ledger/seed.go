package ledger

import (
	"context"

	"github.com/Domenick1991/spabooking/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// SeedIdentity is a ledger user with a plain PIN, hashed before storage.
type SeedIdentity struct {
	ID        domain.ID
	UPIID     string
	Name      string
	Role      string
	PIN       string
	AccountID domain.ID
	Type      string
	Balance   decimal.Decimal
}

// DemoIdentities is the sample data loaded by the initialize-data endpoint.
func DemoIdentities() []SeedIdentity {
	return []SeedIdentity{
		{ID: "customer-1", UPIID: "9000090000@bank", Name: "Kalki", Role: "customer", PIN: "1234", AccountID: "acc-customer-1", Type: "savings", Balance: decimal.NewFromInt(50000)},
		{ID: "owner-1", UPIID: "9791273986@bank", Name: "Spa Owner", Role: "owner", PIN: "5678", AccountID: "acc-owner-1", Type: "business", Balance: decimal.NewFromInt(10000)},
		{ID: "customer-2", UPIID: "9876543210@bank", Name: "John Doe", Role: "customer", PIN: "9999", AccountID: "acc-customer-2", Type: "savings", Balance: decimal.NewFromInt(25000)},
	}
}

// Seed upserts identities with one active primary account each.
func (s *Service) Seed(ctx context.Context, seeds []SeedIdentity, pinCost int) ([]domain.Identity, error) {
	if pinCost == 0 {
		pinCost = bcrypt.DefaultCost
	}
	identities := make([]domain.Identity, 0, len(seeds))
	accounts := make([]domain.Account, 0, len(seeds))
	now := s.now().UTC()
	for _, seed := range seeds {
		if seed.ID.IsZero() || seed.UPIID == "" || seed.PIN == "" {
			return nil, domain.NewValidationError("identity", "id, upi id and pin are required")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(seed.PIN), pinCost)
		if err != nil {
			return nil, &domain.InternalError{Op: "hash pin", Err: err}
		}
		identities = append(identities, domain.Identity{
			ID:         seed.ID,
			UPIID:      seed.UPIID,
			Name:       seed.Name,
			Role:       seed.Role,
			UPIEnabled: true,
			PINHash:    string(hash),
			Status:     domain.IdentityStatusActive,
		})
		accountID := seed.AccountID
		if accountID.IsZero() {
			accountID = "acc-" + seed.ID
		}
		accounts = append(accounts, domain.Account{
			ID:         accountID,
			IdentityID: seed.ID,
			Balance:    seed.Balance,
			Type:       seed.Type,
			Primary:    true,
			Active:     true,
			CreatedAt:  now,
		})
	}

	if err := s.repo.Seed(ctx, identities, accounts); err != nil {
		return nil, domain.Internal("seed ledger", err)
	}
	s.logger.Info("ledger seeded", zap.Int("identities", len(identities)))
	return identities, nil
}
