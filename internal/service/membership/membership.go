package membership

import (
	"context"
	"time"

	"github.com/Domenick1991/spabooking/internal/domain"
	"github.com/Domenick1991/spabooking/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultPlanName = "Spa Membership"

// Evaluation is the effective view of a stored membership at one instant.
type Evaluation struct {
	Status           domain.MembershipStatus `json:"status"`
	DiscountEligible bool                    `json:"discountEligible"`
	// NeedsExpiry is set when the stored status still says active although
	// the end date has passed.
	NeedsExpiry bool      `json:"-"`
	PlanName    string    `json:"planName,omitempty"`
	EndDate     time.Time `json:"endDate,omitempty"`
}

// Evaluate derives the effective status. A nil membership is inactive.
func Evaluate(m *domain.Membership, now time.Time) Evaluation {
	if m == nil {
		return Evaluation{Status: domain.MembershipStatusInactive}
	}
	ev := Evaluation{Status: m.Status, PlanName: m.PlanName, EndDate: m.EndDate}
	if m.Status != domain.MembershipStatusActive {
		return ev
	}
	if now.After(m.EndDate) {
		ev.Status = domain.MembershipStatusExpired
		ev.NeedsExpiry = true
		return ev
	}
	ev.DiscountEligible = true
	return ev
}

type Service struct {
	repo         repository.MembershipRepository
	discountRate decimal.Decimal
	months       int
	now          func() time.Time
	logger       *zap.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(repo repository.MembershipRepository, discountRate decimal.Decimal, months int, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		discountRate: discountRate,
		months:       months,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Effective loads and evaluates the customer's membership. A stale active
// record is corrected in the store; failing to persist the correction does
// not change the answer.
func (s *Service) Effective(ctx context.Context, customerID domain.ID) (Evaluation, error) {
	_, ev, err := s.load(ctx, customerID)
	return ev, err
}

// Status returns the stored membership with its effective status applied,
// or nil when the customer never had one.
func (s *Service) Status(ctx context.Context, customerID domain.ID) (*domain.Membership, Evaluation, error) {
	return s.load(ctx, customerID)
}

// load reads the record once and evaluates that same snapshot.
func (s *Service) load(ctx context.Context, customerID domain.ID) (*domain.Membership, Evaluation, error) {
	now := s.now()
	stored, err := s.repo.Get(ctx, customerID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, Evaluate(nil, now), nil
		}
		return nil, Evaluation{}, domain.Internal("load membership", err)
	}

	ev := Evaluate(stored, now)
	if ev.NeedsExpiry {
		if err := s.repo.MarkExpired(ctx, customerID, now); err != nil {
			s.logger.Warn("failed to persist membership expiry", zap.String("customer_id", customerID.String()), zap.Error(err))
		} else {
			s.logger.Info("membership expired", zap.String("customer_id", customerID.String()), zap.Time("end_date", stored.EndDate))
		}
	}
	stored.Status = ev.Status
	return stored, ev, nil
}

// Activate starts a new membership term from now.
func (s *Service) Activate(ctx context.Context, customerID domain.ID, planName string) (*domain.Membership, error) {
	if customerID.IsZero() {
		return nil, domain.NewValidationError("userId", "is required")
	}
	if planName == "" {
		planName = DefaultPlanName
	}
	start := s.now().UTC()
	m := &domain.Membership{
		CustomerID: customerID,
		Status:     domain.MembershipStatusActive,
		PlanName:   planName,
		StartDate:  start,
		EndDate:    start.AddDate(0, s.months, 0),
	}
	if err := s.repo.Save(ctx, m); err != nil {
		return nil, domain.Internal("save membership", err)
	}
	s.logger.Info("membership activated", zap.String("customer_id", customerID.String()), zap.Time("end_date", m.EndDate))
	return m, nil
}

// ExpireStale flips every active membership whose term ended to expired.
func (s *Service) ExpireStale(ctx context.Context) ([]domain.Membership, error) {
	expired, err := s.repo.ExpireBefore(ctx, s.now())
	if err != nil {
		return nil, domain.Internal("expire memberships", err)
	}
	return expired, nil
}

func (s *Service) DiscountRate() decimal.Decimal {
	return s.discountRate
}

// Discount is the amount taken off base for the evaluation, rounded to cents.
func (s *Service) Discount(base decimal.Decimal, ev Evaluation) decimal.Decimal {
	if !ev.DiscountEligible {
		return decimal.Zero
	}
	return base.Mul(s.discountRate).Round(2)
}
