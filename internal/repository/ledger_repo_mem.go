package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/Domenick1991/spabooking/internal/domain"
)

// MemoryLedgerRepository keeps the whole ledger behind one mutex, which is
// what makes ApplyTransfer all-or-nothing.
type MemoryLedgerRepository struct {
	mu           sync.RWMutex
	identities   map[domain.ID]domain.Identity
	byUPI        map[string]domain.ID
	accounts     map[domain.ID]domain.Account
	transactions []domain.Transaction
	txIDs        map[domain.ID]struct{}
}

func NewMemoryLedgerRepository() *MemoryLedgerRepository {
	return &MemoryLedgerRepository{
		identities: make(map[domain.ID]domain.Identity),
		byUPI:      make(map[string]domain.ID),
		accounts:   make(map[domain.ID]domain.Account),
		txIDs:      make(map[domain.ID]struct{}),
	}
}

func (r *MemoryLedgerRepository) IdentityByUPI(_ context.Context, upiID string) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUPI[upiID]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "upi id", ID: upiID}
	}
	identity := r.identities[id]
	return &identity, nil
}

func (r *MemoryLedgerRepository) Identity(_ context.Context, id domain.ID) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.identities[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "identity", ID: id.String()}
	}
	return &identity, nil
}

func (r *MemoryLedgerRepository) Account(_ context.Context, id domain.ID) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "account", ID: id.String()}
	}
	return &account, nil
}

func (r *MemoryLedgerRepository) PrimaryAccount(_ context.Context, identityID domain.ID) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *domain.Account
	for _, a := range r.accounts {
		if a.IdentityID.Equal(identityID) && a.Primary {
			a := a
			// Prefer an active primary account when several exist.
			if found == nil || (!found.Active && a.Active) {
				found = &a
			}
		}
	}
	if found == nil {
		return nil, &domain.NotFoundError{Entity: "primary account of", ID: identityID.String()}
	}
	return found, nil
}

func (r *MemoryLedgerRepository) ApplyTransfer(_ context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.txIDs[tx.ID]; dup {
		return &domain.InternalError{Op: "apply transfer", Err: errDuplicate(tx.ID)}
	}
	from, ok := r.accounts[tx.From.AccountID]
	if !ok {
		return &domain.NotFoundError{Entity: "account", ID: tx.From.AccountID.String()}
	}
	to, ok := r.accounts[tx.To.AccountID]
	if !ok {
		return &domain.NotFoundError{Entity: "account", ID: tx.To.AccountID.String()}
	}
	if err := checkTransfer(&from, &to, tx); err != nil {
		return err
	}

	from.Balance = from.Balance.Sub(tx.Amount)
	to.Balance = to.Balance.Add(tx.Amount)
	r.accounts[from.ID] = from
	r.accounts[to.ID] = to
	r.transactions = append(r.transactions, *tx)
	r.txIDs[tx.ID] = struct{}{}
	return nil
}

func (r *MemoryLedgerRepository) Transactions(_ context.Context, filter TransactionFilter) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Transaction, 0)
	for i := len(r.transactions) - 1; i >= 0; i-- {
		t := r.transactions[i]
		if !filter.IdentityID.IsZero() && !t.Involves(filter.IdentityID) {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemoryLedgerRepository) Seed(_ context.Context, identities []domain.Identity, accounts []domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, identity := range identities {
		if old, ok := r.identities[identity.ID]; ok {
			delete(r.byUPI, old.UPIID)
		}
		r.identities[identity.ID] = identity
		r.byUPI[identity.UPIID] = identity.ID
	}
	for _, account := range accounts {
		r.accounts[account.ID] = account
	}
	return nil
}

// checkTransfer is the in-store guard shared by every ledger backend.
func checkTransfer(from, to *domain.Account, tx *domain.Transaction) error {
	if !from.Active {
		return &domain.AuthError{Subject: "account " + from.ID.String(), Reason: "account is not active"}
	}
	if !to.Active {
		return &domain.AuthError{Subject: "account " + to.ID.String(), Reason: "account is not active"}
	}
	if from.Balance.LessThan(tx.Amount) {
		return &domain.InsufficientFundsError{AccountID: from.ID, Balance: from.Balance, Amount: tx.Amount}
	}
	return nil
}

var _ LedgerRepository = (*MemoryLedgerRepository)(nil)
