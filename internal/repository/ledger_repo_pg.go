package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Domenick1991/spabooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, identity_id, balance::text, type, is_primary, active, created_at`

type PGLedgerRepository struct {
	db *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) *PGLedgerRepository {
	return &PGLedgerRepository{db: db}
}

func (r *PGLedgerRepository) IdentityByUPI(ctx context.Context, upiID string) (*domain.Identity, error) {
	row := r.db.QueryRow(ctx, `SELECT id, upi_id, name, role, upi_enabled, pin_hash, status FROM ledger_identities WHERE upi_id=$1`, upiID)
	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "upi id", ID: upiID}
	}
	if err != nil {
		return nil, &domain.InternalError{Op: "get identity", Err: err}
	}
	return identity, nil
}

func (r *PGLedgerRepository) Identity(ctx context.Context, id domain.ID) (*domain.Identity, error) {
	row := r.db.QueryRow(ctx, `SELECT id, upi_id, name, role, upi_enabled, pin_hash, status FROM ledger_identities WHERE id=$1`, id)
	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "identity", ID: id.String()}
	}
	if err != nil {
		return nil, &domain.InternalError{Op: "get identity", Err: err}
	}
	return identity, nil
}

func (r *PGLedgerRepository) Account(ctx context.Context, id domain.ID) (*domain.Account, error) {
	account, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM ledger_accounts WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "account", ID: id.String()}
	}
	if err != nil {
		return nil, &domain.InternalError{Op: "get account", Err: err}
	}
	return account, nil
}

func (r *PGLedgerRepository) PrimaryAccount(ctx context.Context, identityID domain.ID) (*domain.Account, error) {
	account, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM ledger_accounts
		WHERE identity_id=$1 AND is_primary ORDER BY active DESC LIMIT 1`, identityID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "primary account of", ID: identityID.String()}
	}
	if err != nil {
		return nil, &domain.InternalError{Op: "get primary account", Err: err}
	}
	return account, nil
}

// ApplyTransfer locks both account rows in id order, re-checks the guard and
// writes debit, credit and log entry in one transaction.
func (r *PGLedgerRepository) ApplyTransfer(ctx context.Context, t *domain.Transaction) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return &domain.InternalError{Op: "begin transfer", Err: err}
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT `+accountColumns+` FROM ledger_accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`,
		[]string{t.From.AccountID.String(), t.To.AccountID.String()})
	if err != nil {
		return &domain.InternalError{Op: "lock accounts", Err: err}
	}
	locked := make(map[domain.ID]*domain.Account, 2)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			rows.Close()
			return &domain.InternalError{Op: "scan account", Err: err}
		}
		locked[a.ID] = a
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return &domain.InternalError{Op: "lock accounts", Err: err}
	}

	from, ok := locked[t.From.AccountID]
	if !ok {
		return &domain.NotFoundError{Entity: "account", ID: t.From.AccountID.String()}
	}
	to, ok := locked[t.To.AccountID]
	if !ok {
		return &domain.NotFoundError{Entity: "account", ID: t.To.AccountID.String()}
	}
	if err := checkTransfer(from, to, t); err != nil {
		return err
	}

	amount := t.Amount.String()
	if _, err := tx.Exec(ctx, `UPDATE ledger_accounts SET balance = balance - $1::numeric WHERE id=$2`, amount, from.ID); err != nil {
		return &domain.InternalError{Op: "debit account", Err: err}
	}
	if _, err := tx.Exec(ctx, `UPDATE ledger_accounts SET balance = balance + $1::numeric WHERE id=$2`, amount, to.ID); err != nil {
		return &domain.InternalError{Op: "credit account", Err: err}
	}

	fromParty, err := json.Marshal(t.From)
	if err != nil {
		return &domain.InternalError{Op: "encode transfer", Err: err}
	}
	toParty, err := json.Marshal(t.To)
	if err != nil {
		return &domain.InternalError{Op: "encode transfer", Err: err}
	}
	if _, err := tx.Exec(ctx, `INSERT INTO ledger_transactions
		(id, order_id, description, amount, type, status, from_identity_id, to_identity_id, from_party, to_party, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.OrderID, t.Description, amount, string(t.Type), t.Status,
		t.From.IdentityID, t.To.IdentityID, fromParty, toParty, t.Timestamp); err != nil {
		return &domain.InternalError{Op: "append transaction", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return &domain.InternalError{Op: "commit transfer", Err: err}
	}
	return nil
}

func (r *PGLedgerRepository) Transactions(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error) {
	var (
		conds []string
		args  []any
	)
	if !filter.IdentityID.IsZero() {
		args = append(args, filter.IdentityID)
		conds = append(conds, fmt.Sprintf("(from_identity_id=$%d OR to_identity_id=$%d)", len(args), len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conds = append(conds, fmt.Sprintf("type=$%d", len(args)))
	}
	query := `SELECT id, order_id, description, amount::text, type, status, from_party, to_party, created_at FROM ledger_transactions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, seq DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, &domain.InternalError{Op: "list transactions", Err: err}
	}
	defer rows.Close()

	out := make([]domain.Transaction, 0)
	for rows.Next() {
		var (
			t              domain.Transaction
			amount, typ    string
			fromRaw, toRaw []byte
		)
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Description, &amount, &typ, &t.Status, &fromRaw, &toRaw, &t.Timestamp); err != nil {
			return nil, &domain.InternalError{Op: "scan transaction", Err: err}
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, &domain.InternalError{Op: "scan transaction", Err: err}
		}
		t.Type = domain.TransactionType(typ)
		if err := json.Unmarshal(fromRaw, &t.From); err != nil {
			return nil, &domain.InternalError{Op: "decode transaction", Err: err}
		}
		if err := json.Unmarshal(toRaw, &t.To); err != nil {
			return nil, &domain.InternalError{Op: "decode transaction", Err: err}
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.InternalError{Op: "list transactions", Err: err}
	}
	return out, nil
}

func (r *PGLedgerRepository) Seed(ctx context.Context, identities []domain.Identity, accounts []domain.Account) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return &domain.InternalError{Op: "begin seed", Err: err}
	}
	defer tx.Rollback(ctx)

	for _, i := range identities {
		if _, err := tx.Exec(ctx, `INSERT INTO ledger_identities (id, upi_id, name, role, upi_enabled, pin_hash, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET upi_id=EXCLUDED.upi_id, name=EXCLUDED.name, role=EXCLUDED.role,
				upi_enabled=EXCLUDED.upi_enabled, pin_hash=EXCLUDED.pin_hash, status=EXCLUDED.status`,
			i.ID, i.UPIID, i.Name, i.Role, i.UPIEnabled, i.PINHash, i.Status); err != nil {
			return &domain.InternalError{Op: "seed identity", Err: err}
		}
	}
	for _, a := range accounts {
		if _, err := tx.Exec(ctx, `INSERT INTO ledger_accounts (id, identity_id, balance, type, is_primary, active, created_at)
			VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET identity_id=EXCLUDED.identity_id, balance=EXCLUDED.balance, type=EXCLUDED.type,
				is_primary=EXCLUDED.is_primary, active=EXCLUDED.active`,
			a.ID, a.IdentityID, a.Balance.String(), a.Type, a.Primary, a.Active, a.CreatedAt); err != nil {
			return &domain.InternalError{Op: "seed account", Err: err}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &domain.InternalError{Op: "commit seed", Err: err}
	}
	return nil
}

func scanIdentity(row pgx.Row) (*domain.Identity, error) {
	var i domain.Identity
	if err := row.Scan(&i.ID, &i.UPIID, &i.Name, &i.Role, &i.UPIEnabled, &i.PINHash, &i.Status); err != nil {
		return nil, err
	}
	return &i, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a       domain.Account
		balance string
	)
	if err := row.Scan(&a.ID, &a.IdentityID, &balance, &a.Type, &a.Primary, &a.Active, &a.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, err
	}
	return &a, nil
}

var _ LedgerRepository = (*PGLedgerRepository)(nil)
