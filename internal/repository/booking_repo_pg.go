package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/spabooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const bookingColumns = `id, customer_id, spa_id, spa_name, owner_id, services, slot, date, status,
	base_price::text, discount_amount::text, final_price::text,
	payment_method, payment_details, payment_reference, paid_at,
	customer_upi_id, merchant_upi_id, refund, created_at, updated_at`

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) *PGBookingRepository {
	return &PGBookingRepository{db: db}
}

func (r *PGBookingRepository) Insert(ctx context.Context, booking *domain.Booking) error {
	services, details, refund, err := encodeBookingJSON(booking)
	if err != nil {
		return &domain.InternalError{Op: "encode booking", Err: err}
	}

	err = r.db.QueryRow(ctx, `INSERT INTO bookings (id, customer_id, spa_id, spa_name, owner_id, services, slot, date, status,
		base_price, discount_amount, final_price, payment_method, payment_details, payment_reference, paid_at,
		customer_upi_id, merchant_upi_id, refund)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::numeric, $11::numeric, $12::numeric, $13, $14, $15, $16, $17, $18, $19)
		RETURNING created_at, updated_at`,
		booking.ID, booking.CustomerID, booking.SpaID, booking.SpaName, booking.OwnerID, services, booking.Slot, booking.Date,
		string(booking.Status), booking.BasePrice.String(), booking.DiscountAmount.String(), booking.FinalPrice.String(),
		booking.PaymentMethod, details, booking.PaymentReference, booking.PaidAt,
		booking.CustomerUPIID, booking.MerchantUPIID, refund).
		Scan(&booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		return &domain.InternalError{Op: "insert booking", Err: err}
	}
	return nil
}

func (r *PGBookingRepository) Get(ctx context.Context, id domain.ID) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "booking", ID: id.String()}
	}
	if err != nil {
		return nil, &domain.InternalError{Op: "get booking", Err: err}
	}
	return b, nil
}

func (r *PGBookingRepository) Update(ctx context.Context, id domain.ID, fn func(b *domain.Booking) error) (*domain.Booking, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, &domain.InternalError{Op: "begin booking update", Err: err}
	}
	defer tx.Rollback(ctx)

	b, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "booking", ID: id.String()}
	}
	if err != nil {
		return nil, &domain.InternalError{Op: "lock booking", Err: err}
	}

	if err := fn(b); err != nil {
		return nil, err
	}

	services, details, refund, err := encodeBookingJSON(b)
	if err != nil {
		return nil, &domain.InternalError{Op: "encode booking", Err: err}
	}
	err = tx.QueryRow(ctx, `UPDATE bookings SET services=$2, status=$3,
		base_price=$4::numeric, discount_amount=$5::numeric, final_price=$6::numeric,
		payment_method=$7, payment_details=$8, payment_reference=$9, paid_at=$10,
		customer_upi_id=$11, merchant_upi_id=$12, refund=$13, updated_at=now()
		WHERE id=$1 RETURNING updated_at`,
		id, services, string(b.Status), b.BasePrice.String(), b.DiscountAmount.String(), b.FinalPrice.String(),
		b.PaymentMethod, details, b.PaymentReference, b.PaidAt, b.CustomerUPIID, b.MerchantUPIID, refund).
		Scan(&b.UpdatedAt)
	if err != nil {
		return nil, &domain.InternalError{Op: "update booking", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &domain.InternalError{Op: "commit booking update", Err: err}
	}
	return b, nil
}

func (r *PGBookingRepository) ListBySpaDate(ctx context.Context, spaID domain.ID, date string) ([]domain.Booking, error) {
	return r.query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE spa_id=$1 AND date=$2 ORDER BY created_at`, spaID, date)
}

func (r *PGBookingRepository) List(ctx context.Context, filter BookingFilter) ([]domain.Booking, error) {
	var (
		conds []string
		args  []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if !filter.CustomerID.IsZero() {
		add("customer_id", filter.CustomerID)
	}
	if !filter.OwnerID.IsZero() {
		add("owner_id", filter.OwnerID)
	}
	if !filter.SpaID.IsZero() {
		add("spa_id", filter.SpaID)
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	return r.query(ctx, query, args...)
}

func (r *PGBookingRepository) query(ctx context.Context, query string, args ...any) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, &domain.InternalError{Op: "list bookings", Err: err}
	}
	defer rows.Close()

	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, &domain.InternalError{Op: "scan booking", Err: err}
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.InternalError{Op: "list bookings", Err: err}
	}
	return bookings, nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b                                 domain.Booking
		status                            string
		base, discount, final             string
		services, details, refund         []byte
		paidAt                            *time.Time
		paymentMethod, paymentRef         *string
		customerUPI, merchantUPI, spaName *string
	)
	if err := row.Scan(&b.ID, &b.CustomerID, &b.SpaID, &spaName, &b.OwnerID, &services, &b.Slot, &b.Date, &status,
		&base, &discount, &final, &paymentMethod, &details, &paymentRef, &paidAt,
		&customerUPI, &merchantUPI, &refund, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}

	parsed, err := domain.ParseBookingStatus(status)
	if err != nil {
		return nil, err
	}
	b.Status = parsed
	if b.BasePrice, err = decimal.NewFromString(base); err != nil {
		return nil, err
	}
	if b.DiscountAmount, err = decimal.NewFromString(discount); err != nil {
		return nil, err
	}
	if b.FinalPrice, err = decimal.NewFromString(final); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(services, &b.Services); err != nil {
		return nil, fmt.Errorf("decode services: %w", err)
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &b.PaymentDetails); err != nil {
			return nil, fmt.Errorf("decode payment details: %w", err)
		}
	}
	if len(refund) > 0 {
		b.Refund = &domain.RefundRecord{}
		if err := json.Unmarshal(refund, b.Refund); err != nil {
			return nil, fmt.Errorf("decode refund: %w", err)
		}
	}
	b.PaidAt = paidAt
	b.SpaName = deref(spaName)
	b.PaymentMethod = deref(paymentMethod)
	b.PaymentReference = deref(paymentRef)
	b.CustomerUPIID = deref(customerUPI)
	b.MerchantUPIID = deref(merchantUPI)
	return &b, nil
}

func encodeBookingJSON(b *domain.Booking) (services, details, refund []byte, err error) {
	if services, err = json.Marshal(b.Services); err != nil {
		return nil, nil, nil, err
	}
	if b.PaymentDetails != nil {
		if details, err = json.Marshal(b.PaymentDetails); err != nil {
			return nil, nil, nil, err
		}
	}
	if b.Refund != nil {
		if refund, err = json.Marshal(b.Refund); err != nil {
			return nil, nil, nil, err
		}
	}
	return services, details, refund, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ BookingRepository = (*PGBookingRepository)(nil)
