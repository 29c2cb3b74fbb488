package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/spabooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGMembershipRepository struct {
	db *pgxpool.Pool
}

func NewMembershipRepository(db *pgxpool.Pool) *PGMembershipRepository {
	return &PGMembershipRepository{db: db}
}

func (r *PGMembershipRepository) Get(ctx context.Context, customerID domain.ID) (*domain.Membership, error) {
	row := r.db.QueryRow(ctx, `SELECT customer_id, status, plan_name, start_date, end_date FROM memberships WHERE customer_id=$1`, customerID)
	m, err := scanMembership(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "membership", ID: customerID.String()}
	}
	if err != nil {
		return nil, &domain.InternalError{Op: "get membership", Err: err}
	}
	return m, nil
}

func (r *PGMembershipRepository) Save(ctx context.Context, m *domain.Membership) error {
	_, err := r.db.Exec(ctx, `INSERT INTO memberships (customer_id, status, plan_name, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (customer_id) DO UPDATE SET status=EXCLUDED.status, plan_name=EXCLUDED.plan_name,
			start_date=EXCLUDED.start_date, end_date=EXCLUDED.end_date, updated_at=now()`,
		m.CustomerID, string(m.Status), m.PlanName, m.StartDate, m.EndDate)
	if err != nil {
		return &domain.InternalError{Op: "save membership", Err: err}
	}
	return nil
}

func (r *PGMembershipRepository) MarkExpired(ctx context.Context, customerID domain.ID, now time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE memberships SET status=$1, updated_at=now() WHERE customer_id=$2 AND status=$3 AND end_date < $4`,
		string(domain.MembershipStatusExpired), customerID, string(domain.MembershipStatusActive), now)
	if err != nil {
		return &domain.InternalError{Op: "expire membership", Err: err}
	}
	return nil
}

func (r *PGMembershipRepository) ExpireBefore(ctx context.Context, deadline time.Time) ([]domain.Membership, error) {
	rows, err := r.db.Query(ctx, `UPDATE memberships SET status=$1, updated_at=now() WHERE status=$2 AND end_date < $3
		RETURNING customer_id, status, plan_name, start_date, end_date`,
		string(domain.MembershipStatusExpired), string(domain.MembershipStatusActive), deadline)
	if err != nil {
		return nil, &domain.InternalError{Op: "expire memberships", Err: err}
	}
	defer rows.Close()

	var expired []domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, &domain.InternalError{Op: "scan membership", Err: err}
		}
		expired = append(expired, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.InternalError{Op: "expire memberships", Err: err}
	}
	return expired, nil
}

func scanMembership(row pgx.Row) (*domain.Membership, error) {
	var (
		m      domain.Membership
		status string
	)
	if err := row.Scan(&m.CustomerID, &status, &m.PlanName, &m.StartDate, &m.EndDate); err != nil {
		return nil, err
	}
	m.Status = domain.ParseMembershipStatus(status)
	return &m, nil
}

var _ MembershipRepository = (*PGMembershipRepository)(nil)
