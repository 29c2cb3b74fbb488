package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/spabooking/internal/domain"
	"github.com/Domenick1991/spabooking/internal/lock"
	"github.com/Domenick1991/spabooking/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) PublishWithRetry(ctx context.Context, topic, key string, value any, maxRetries int) error {
	args := m.Called(ctx, topic, key, value, maxRetries)
	return args.Error(0)
}

func newTestService(t *testing.T, opts ...Option) (*Service, *repository.MemoryLedgerRepository) {
	t.Helper()
	repo := repository.NewMemoryLedgerRepository()
	service := NewService(repo, lock.NewKeyedMutex(), opts...)
	_, err := service.Seed(context.Background(), DemoIdentities(), bcrypt.MinCost)
	require.NoError(t, err)
	return service, repo
}

func balance(t *testing.T, s *Service, accountID domain.ID) decimal.Decimal {
	t.Helper()
	b, err := s.BalanceOf(context.Background(), accountID)
	require.NoError(t, err)
	return b
}

func TestTransfer_Conserves(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	before := balance(t, service, "acc-customer-1").Add(balance(t, service, "acc-owner-1"))
	tx, err := service.Transfer(ctx, "acc-customer-1", "acc-owner-1", decimal.NewFromInt(700), TransferMeta{OrderID: "order-1"})
	require.NoError(t, err)

	assert.Equal(t, domain.TransactionTypePayment, tx.Type)
	assert.Equal(t, "9000090000@bank", tx.From.UPIID)
	assert.Equal(t, "Spa Owner", tx.To.Name)
	assert.True(t, balance(t, service, "acc-customer-1").Equal(decimal.NewFromInt(49300)))
	after := balance(t, service, "acc-customer-1").Add(balance(t, service, "acc-owner-1"))
	assert.True(t, before.Equal(after))
}

func TestTransfer_Validation(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	testCases := []struct {
		name   string
		from   domain.ID
		to     domain.ID
		amount decimal.Decimal
	}{
		{name: "zero amount", from: "acc-customer-1", to: "acc-owner-1", amount: decimal.Zero},
		{name: "negative amount", from: "acc-customer-1", to: "acc-owner-1", amount: decimal.NewFromInt(-5)},
		{name: "fractional cents", from: "acc-customer-1", to: "acc-owner-1", amount: decimal.RequireFromString("1.005")},
		{name: "same account", from: "acc-customer-1", to: "acc-customer-1", amount: decimal.NewFromInt(5)},
		{name: "missing account", from: "", to: "acc-customer-1", amount: decimal.NewFromInt(5)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.Transfer(ctx, tc.from, tc.to, tc.amount, TransferMeta{})
			var validation *domain.ValidationError
			assert.ErrorAs(t, err, &validation)
		})
	}
}

func TestTransfer_InsufficientFundsChangesNothing(t *testing.T) {
	service, repo := newTestService(t)
	ctx := context.Background()

	_, err := service.Transfer(ctx, "acc-owner-1", "acc-customer-1", decimal.NewFromInt(10001), TransferMeta{})
	var funds *domain.InsufficientFundsError
	require.ErrorAs(t, err, &funds)
	assert.Equal(t, domain.ID("acc-owner-1"), funds.AccountID)

	assert.True(t, balance(t, service, "acc-owner-1").Equal(decimal.NewFromInt(10000)))
	txs, err := repo.Transactions(ctx, repository.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestTransfer_UnknownAccount(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.Transfer(context.Background(), "acc-ghost", "acc-owner-1", decimal.NewFromInt(1), TransferMeta{})
	assert.True(t, domain.IsNotFound(err))
}

func TestTransfer_OppositeDirectionsConcurrently(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	total := balance(t, service, "acc-customer-1").Add(balance(t, service, "acc-owner-1"))

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = service.Transfer(ctx, "acc-customer-1", "acc-owner-1", decimal.NewFromInt(150), TransferMeta{})
		}()
		go func() {
			defer wg.Done()
			_, _ = service.Transfer(ctx, "acc-owner-1", "acc-customer-1", decimal.NewFromInt(100), TransferMeta{})
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("transfers deadlocked")
	}

	assert.True(t, total.Equal(balance(t, service, "acc-customer-1").Add(balance(t, service, "acc-owner-1"))))
}

func TestTransfer_NeverOverdraws(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.Transfer(ctx, "acc-owner-1", "acc-customer-2", decimal.NewFromInt(1000), TransferMeta{}); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.True(t, balance(t, service, "acc-owner-1").IsZero())
}

func TestPay(t *testing.T) {
	producer := &MockProducer{}
	service, _ := newTestService(t, WithProducer(producer, "ledger-events"))
	ctx := context.Background()

	producer.On("PublishWithRetry", mock.Anything, "ledger-events", mock.Anything, mock.Anything, 3).Return(nil).Once()

	tx, err := service.Pay(ctx, PayRequest{
		CustomerUPIID: "9000090000@bank",
		PIN:           "1234",
		MerchantUPIID: "9791273986@bank",
		MerchantName:  "Serenity Spa",
		Amount:        decimal.NewFromInt(1000),
		OrderID:       "booking-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Serenity Spa", tx.To.Name)
	assert.Equal(t, domain.ID("customer-1"), tx.From.IdentityID)
	assert.True(t, balance(t, service, "acc-owner-1").Equal(decimal.NewFromInt(11000)))
	producer.AssertExpectations(t)
}

func TestPay_PublishFailureDoesNotFailTransfer(t *testing.T) {
	producer := &MockProducer{}
	service, _ := newTestService(t, WithProducer(producer, "ledger-events"), WithPublishRetries(5))

	producer.On("PublishWithRetry", mock.Anything, "ledger-events", mock.Anything, mock.Anything, 5).Return(errors.New("kafka down")).Once()

	_, err := service.Pay(context.Background(), PayRequest{
		CustomerUPIID: "9000090000@bank", PIN: "1234", MerchantUPIID: "9791273986@bank",
		Amount: decimal.NewFromInt(10), OrderID: "o",
	})
	assert.NoError(t, err)
	producer.AssertExpectations(t)
}

func TestPay_AuthFailures(t *testing.T) {
	service, repo := newTestService(t)
	ctx := context.Background()

	_, err := service.Pay(ctx, PayRequest{CustomerUPIID: "9000090000@bank", PIN: "0000", MerchantUPIID: "9791273986@bank", Amount: decimal.NewFromInt(10), OrderID: "o"})
	var auth *domain.AuthError
	require.ErrorAs(t, err, &auth)
	assert.True(t, auth.Unauthorized)

	_, err = service.Pay(ctx, PayRequest{CustomerUPIID: "nobody@bank", PIN: "1234", MerchantUPIID: "9791273986@bank", Amount: decimal.NewFromInt(10), OrderID: "o"})
	assert.True(t, domain.IsNotFound(err))

	_, err = service.Pay(ctx, PayRequest{CustomerUPIID: "9000090000@bank", PIN: "1234", MerchantUPIID: "9791273986@bank", Amount: decimal.NewFromInt(10)})
	var validation *domain.ValidationError
	assert.ErrorAs(t, err, &validation)

	disabled, err := repo.IdentityByUPI(ctx, "9876543210@bank")
	require.NoError(t, err)
	disabled.UPIEnabled = false
	require.NoError(t, repo.Seed(ctx, []domain.Identity{*disabled}, nil))

	_, err = service.Pay(ctx, PayRequest{CustomerUPIID: "9876543210@bank", PIN: "9999", MerchantUPIID: "9791273986@bank", Amount: decimal.NewFromInt(10), OrderID: "o"})
	require.ErrorAs(t, err, &auth)
	assert.False(t, auth.Unauthorized)
}

func TestRefund(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	tx, err := service.Refund(ctx, RefundRequest{
		MerchantUPIID: "9791273986@bank",
		PIN:           "5678",
		CustomerUPIID: "9000090000@bank",
		Amount:        decimal.NewFromInt(900),
		OrderID:       "booking-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionTypeRefund, tx.Type)
	assert.True(t, balance(t, service, "acc-customer-1").Equal(decimal.NewFromInt(50900)))

	_, err = service.Refund(ctx, RefundRequest{MerchantUPIID: "9791273986@bank", PIN: "1234", CustomerUPIID: "9000090000@bank", Amount: decimal.NewFromInt(1), OrderID: "o"})
	var auth *domain.AuthError
	assert.ErrorAs(t, err, &auth)
}

func TestBalanceAndHistory(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	service, _ := newTestService(t, WithClock(clock))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := service.Settle(ctx, "9000090000@bank", "9791273986@bank", decimal.NewFromInt(10), TransferMeta{OrderID: fmt.Sprintf("o-%d", i)})
		require.NoError(t, err)
	}
	_, err := service.Settle(ctx, "9791273986@bank", "9000090000@bank", decimal.NewFromInt(5), TransferMeta{OrderID: "r-1", Type: domain.TransactionTypeRefund})
	require.NoError(t, err)

	b, err := service.Balance(ctx, "9000090000@bank")
	require.NoError(t, err)
	assert.True(t, b.Balance.Equal(decimal.NewFromInt(49975)))
	assert.Equal(t, "Kalki", b.Name)

	history, err := service.TransactionsByUPI(ctx, "9000090000@bank", "", 0)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "r-1", history[0].OrderID)

	payments, err := service.TransactionsByUPI(ctx, "9791273986@bank", domain.TransactionTypePayment, 2)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "o-2", payments[0].OrderID)

	_, err = service.TransactionsByUPI(ctx, "9791273986@bank", "bogus", 0)
	var validation *domain.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestAuthorize(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("4321"), bcrypt.MinCost)
	require.NoError(t, err)
	identity := &domain.Identity{UPIID: "x@bank", UPIEnabled: true, Status: domain.IdentityStatusActive, PINHash: string(hash)}

	assert.NoError(t, Authorize(identity, "4321"))

	var validation *domain.ValidationError
	assert.ErrorAs(t, Authorize(identity, ""), &validation)

	identity.Status = "suspended"
	var auth *domain.AuthError
	require.ErrorAs(t, Authorize(identity, "4321"), &auth)
	assert.False(t, auth.Unauthorized)
}
