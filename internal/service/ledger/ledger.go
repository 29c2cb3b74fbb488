package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/spabooking/internal/domain"
	"github.com/Domenick1991/spabooking/internal/kafka"
	"github.com/Domenick1991/spabooking/internal/lock"
	"github.com/Domenick1991/spabooking/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// DefaultHistoryLimit caps transaction history when the caller gives none.
const DefaultHistoryLimit = 50

type Publisher interface {
	PublishWithRetry(ctx context.Context, topic, key string, value any, maxRetries int) error
}

type TransferMeta struct {
	OrderID     string
	Description string
	Type        domain.TransactionType
	// Display names override the stored identity names in the snapshots.
	FromName string
	ToName   string
}

type PayRequest struct {
	CustomerUPIID string
	PIN           string
	MerchantUPIID string
	MerchantName  string
	Amount        decimal.Decimal
	OrderID       string
	Description   string
}

type RefundRequest struct {
	MerchantUPIID string
	PIN           string
	CustomerUPIID string
	CustomerName  string
	Amount        decimal.Decimal
	OrderID       string
	Description   string
}

type Balance struct {
	UPIID       string          `json:"upiId"`
	Name        string          `json:"name"`
	AccountID   domain.ID       `json:"accountId"`
	AccountType string          `json:"accountType"`
	Balance     decimal.Decimal `json:"balance"`
	Active      bool            `json:"active"`
}

type Service struct {
	repo     repository.LedgerRepository
	locker   lock.Locker
	producer Publisher
	topic    string
	retries  int
	now      func() time.Time
	logger   *zap.Logger
}

type Option func(*Service)

func WithProducer(producer Publisher, topic string) Option {
	return func(s *Service) {
		s.producer = producer
		s.topic = topic
	}
}

// WithPublishRetries sets the attempts per transaction event.
func WithPublishRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.retries = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(repo repository.LedgerRepository, locker lock.Locker, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		locker:  locker,
		retries: 3,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transfer moves amount between two accounts. Both account locks are taken
// in ascending order; the store applies debit, credit and log entry as one
// unit.
func (s *Service) Transfer(ctx context.Context, fromAccountID, toAccountID domain.ID, amount decimal.Decimal, meta TransferMeta) (*domain.Transaction, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if fromAccountID.IsZero() || toAccountID.IsZero() {
		return nil, domain.NewValidationError("account", "source and destination accounts are required")
	}
	if fromAccountID.Equal(toAccountID) {
		return nil, domain.NewValidationError("account", "source and destination accounts must differ")
	}
	if meta.Type == "" {
		meta.Type = domain.TransactionTypePayment
	}

	var tx *domain.Transaction
	keys := []string{lock.AccountKey(fromAccountID.String()), lock.AccountKey(toAccountID.String())}
	err := lock.WithLocks(ctx, s.locker, keys, func(ctx context.Context) error {
		from, err := s.party(ctx, fromAccountID, meta.FromName)
		if err != nil {
			return err
		}
		to, err := s.party(ctx, toAccountID, meta.ToName)
		if err != nil {
			return err
		}

		tx = &domain.Transaction{
			ID:          domain.ID(uuid.NewString()),
			OrderID:     meta.OrderID,
			Description: meta.Description,
			Amount:      amount,
			Type:        meta.Type,
			Status:      domain.TransactionStatusSuccess,
			From:        from,
			To:          to,
			Timestamp:   s.now().UTC(),
		}
		return s.repo.ApplyTransfer(ctx, tx)
	})
	if err != nil {
		return nil, domain.Internal("transfer", err)
	}

	s.logger.Info("transfer applied",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("type", string(tx.Type)),
		zap.String("from_account", fromAccountID.String()),
		zap.String("to_account", toAccountID.String()),
		zap.String("amount", amount.StringFixed(2)),
	)
	s.publish(ctx, tx)
	return tx, nil
}

// Settle transfers between the primary accounts of two UPI ids without a
// PIN check. It serves system-initiated movements whose authorization was
// obtained earlier, such as booking refunds.
func (s *Service) Settle(ctx context.Context, fromUPIID, toUPIID string, amount decimal.Decimal, meta TransferMeta) (*domain.Transaction, error) {
	from, err := s.resolve(ctx, fromUPIID)
	if err != nil {
		return nil, err
	}
	if err := checkEnabled(from); err != nil {
		return nil, err
	}
	to, err := s.resolve(ctx, toUPIID)
	if err != nil {
		return nil, err
	}
	fromAccount, err := s.primaryAccount(ctx, from)
	if err != nil {
		return nil, err
	}
	toAccount, err := s.primaryAccount(ctx, to)
	if err != nil {
		return nil, err
	}
	return s.Transfer(ctx, fromAccount.ID, toAccount.ID, amount, meta)
}

// Pay debits the customer after verifying their PIN and credits the merchant.
func (s *Service) Pay(ctx context.Context, req PayRequest) (*domain.Transaction, error) {
	if err := requireFields(map[string]string{"orderId": req.OrderID, "upiId": req.CustomerUPIID, "merchant": req.MerchantUPIID}); err != nil {
		return nil, err
	}
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	customer, err := s.resolve(ctx, req.CustomerUPIID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(customer, req.PIN); err != nil {
		return nil, err
	}
	if _, err := s.resolve(ctx, req.MerchantUPIID); err != nil {
		return nil, err
	}
	return s.Settle(ctx, req.CustomerUPIID, req.MerchantUPIID, req.Amount, TransferMeta{
		OrderID:     req.OrderID,
		Description: req.Description,
		Type:        domain.TransactionTypePayment,
		ToName:      req.MerchantName,
	})
}

// Refund returns money from the merchant, who authorizes it with their PIN.
func (s *Service) Refund(ctx context.Context, req RefundRequest) (*domain.Transaction, error) {
	if err := requireFields(map[string]string{"orderId": req.OrderID, "customer": req.CustomerUPIID, "merchant": req.MerchantUPIID}); err != nil {
		return nil, err
	}
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	merchant, err := s.resolve(ctx, req.MerchantUPIID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(merchant, req.PIN); err != nil {
		return nil, err
	}
	return s.Settle(ctx, req.MerchantUPIID, req.CustomerUPIID, req.Amount, TransferMeta{
		OrderID:     req.OrderID,
		Description: req.Description,
		Type:        domain.TransactionTypeRefund,
		ToName:      req.CustomerName,
	})
}

func (s *Service) BalanceOf(ctx context.Context, accountID domain.ID) (decimal.Decimal, error) {
	account, err := s.repo.Account(ctx, accountID)
	if err != nil {
		return decimal.Zero, domain.Internal("load account", err)
	}
	return account.Balance, nil
}

func (s *Service) Balance(ctx context.Context, upiID string) (*Balance, error) {
	identity, err := s.resolve(ctx, upiID)
	if err != nil {
		return nil, err
	}
	account, err := s.repo.PrimaryAccount(ctx, identity.ID)
	if err != nil {
		return nil, domain.Internal("load account", err)
	}
	return &Balance{
		UPIID:       identity.UPIID,
		Name:        identity.Name,
		AccountID:   account.ID,
		AccountType: account.Type,
		Balance:     account.Balance,
		Active:      account.Active,
	}, nil
}

// TransactionsFor lists the identity's transfers newest first. Each call
// reads the current log.
func (s *Service) TransactionsFor(ctx context.Context, identityID domain.ID, txType domain.TransactionType, limit int) ([]domain.Transaction, error) {
	if txType != "" && txType != domain.TransactionTypePayment && txType != domain.TransactionTypeRefund {
		return nil, domain.NewValidationError("type", "must be payment or refund")
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	txs, err := s.repo.Transactions(ctx, repository.TransactionFilter{IdentityID: identityID, Type: txType, Limit: limit})
	if err != nil {
		return nil, domain.Internal("list transactions", err)
	}
	return txs, nil
}

func (s *Service) TransactionsByUPI(ctx context.Context, upiID string, txType domain.TransactionType, limit int) ([]domain.Transaction, error) {
	identity, err := s.resolve(ctx, upiID)
	if err != nil {
		return nil, err
	}
	return s.TransactionsFor(ctx, identity.ID, txType, limit)
}

// Identity looks up a ledger identity by its user id.
func (s *Service) Identity(ctx context.Context, id domain.ID) (*domain.Identity, error) {
	if id.IsZero() {
		return nil, domain.NewValidationError("userId", "is required")
	}
	identity, err := s.repo.Identity(ctx, id)
	if err != nil {
		return nil, domain.Internal("load identity", err)
	}
	return identity, nil
}

// Authorize checks that identity may initiate a transfer with pin.
func Authorize(identity *domain.Identity, pin string) error {
	if err := checkEnabled(identity); err != nil {
		return err
	}
	if pin == "" {
		return domain.NewValidationError("pin", "is required")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(identity.PINHash), []byte(pin)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return &domain.AuthError{Subject: "upi id " + identity.UPIID, Reason: "invalid UPI PIN", Unauthorized: true}
		}
		return &domain.InternalError{Op: "verify pin", Err: err}
	}
	return nil
}

func checkEnabled(identity *domain.Identity) error {
	if !identity.UPIEnabled {
		return &domain.AuthError{Subject: "upi id " + identity.UPIID, Reason: "UPI is not enabled"}
	}
	if identity.Status != domain.IdentityStatusActive {
		return &domain.AuthError{Subject: "upi id " + identity.UPIID, Reason: "account is not active"}
	}
	return nil
}

func (s *Service) resolve(ctx context.Context, upiID string) (*domain.Identity, error) {
	if upiID == "" {
		return nil, domain.NewValidationError("upiId", "is required")
	}
	identity, err := s.repo.IdentityByUPI(ctx, upiID)
	if err != nil {
		return nil, domain.Internal("resolve upi id", err)
	}
	return identity, nil
}

func (s *Service) primaryAccount(ctx context.Context, identity *domain.Identity) (*domain.Account, error) {
	account, err := s.repo.PrimaryAccount(ctx, identity.ID)
	if err != nil {
		return nil, domain.Internal("load primary account", err)
	}
	if !account.Active {
		return nil, &domain.AuthError{Subject: "account " + account.ID.String(), Reason: "account is not active"}
	}
	return account, nil
}

func (s *Service) party(ctx context.Context, accountID domain.ID, name string) (domain.Party, error) {
	account, err := s.repo.Account(ctx, accountID)
	if err != nil {
		return domain.Party{}, err
	}
	identity, err := s.repo.Identity(ctx, account.IdentityID)
	if err != nil {
		return domain.Party{}, err
	}
	if name == "" {
		name = identity.Name
	}
	return domain.Party{IdentityID: identity.ID, UPIID: identity.UPIID, AccountID: account.ID, Name: name}, nil
}

func (s *Service) publish(ctx context.Context, tx *domain.Transaction) {
	if s.producer == nil || s.topic == "" {
		return
	}
	if err := s.producer.PublishWithRetry(ctx, s.topic, tx.ID.String(), kafka.NewTransactionEvent(tx), s.retries); err != nil {
		s.logger.Warn("failed to publish transaction event", zap.String("transaction_id", tx.ID.String()), zap.Error(err))
	}
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.NewValidationError("amount", "must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return domain.NewValidationError("amount", "must have at most two decimal places")
	}
	return nil
}

func requireFields(fields map[string]string) error {
	for _, name := range []string{"orderId", "upiId", "customer", "merchant"} {
		if value, ok := fields[name]; ok && value == "" {
			return domain.NewValidationError(name, "is required")
		}
	}
	return nil
}
