package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Domenick1991/spabooking/internal/domain"
	"github.com/Domenick1991/spabooking/internal/repository"
	"github.com/Domenick1991/spabooking/internal/service/booking"
	"github.com/Domenick1991/spabooking/internal/service/checkout"
	"github.com/Domenick1991/spabooking/internal/service/refund"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockBookingUseCase is a mock implementation of booking.BookingUseCase
type MockBookingUseCase struct {
	mock.Mock
}

func (m *MockBookingUseCase) result(args mock.Arguments) (*domain.Booking, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) CreateBooking(ctx context.Context, input booking.CreateBookingInput) (*domain.Booking, error) {
	return m.result(m.Called(ctx, input))
}

func (m *MockBookingUseCase) ValidateSlot(ctx context.Context, input booking.SlotInput) (*booking.SlotCheck, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.SlotCheck), args.Error(1)
}

func (m *MockBookingUseCase) CheckAvailability(ctx context.Context, input booking.AvailabilityInput) ([]domain.SlotAvailability, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SlotAvailability), args.Error(1)
}

func (m *MockBookingUseCase) ApproveBooking(ctx context.Context, id domain.ID) (*domain.Booking, error) {
	return m.result(m.Called(ctx, id))
}

func (m *MockBookingUseCase) CompleteBooking(ctx context.Context, id domain.ID, input booking.CompleteInput) (*domain.Booking, error) {
	return m.result(m.Called(ctx, id, input))
}

func (m *MockBookingUseCase) CompleteWith(ctx context.Context, id domain.ID, settle booking.PaymentStep) (*domain.Booking, error) {
	return m.result(m.Called(ctx, id, settle))
}

func (m *MockBookingUseCase) CancelBooking(ctx context.Context, id domain.ID, record domain.RefundRecord) (*domain.Booking, error) {
	return m.result(m.Called(ctx, id, record))
}

func (m *MockBookingUseCase) CancelWith(ctx context.Context, id domain.ID, settle booking.RefundStep) (*domain.Booking, error) {
	return m.result(m.Called(ctx, id, settle))
}

func (m *MockBookingUseCase) GetBooking(ctx context.Context, id domain.ID) (*domain.Booking, error) {
	return m.result(m.Called(ctx, id))
}

func (m *MockBookingUseCase) ListBookings(ctx context.Context, filter repository.BookingFilter) ([]domain.Booking, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) ListByCustomer(ctx context.Context, customerID domain.ID) ([]domain.Booking, error) {
	args := m.Called(ctx, customerID)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) ListByOwner(ctx context.Context, ownerID domain.ID) ([]domain.Booking, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

type MockRefundProcessor struct {
	mock.Mock
}

func (m *MockRefundProcessor) Process(ctx context.Context, id domain.ID, req refund.Request) (*domain.Booking, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

type MockCheckoutUseCase struct {
	mock.Mock
}

func (m *MockCheckoutUseCase) Quote(ctx context.Context, id domain.ID) (*checkout.Quote, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.Quote), args.Error(1)
}

func (m *MockCheckoutUseCase) Checkout(ctx context.Context, id domain.ID, req checkout.Request) (*domain.Booking, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

type bookingMocks struct {
	service  *MockBookingUseCase
	refunds  *MockRefundProcessor
	checkout *MockCheckoutUseCase
	router   *gin.Engine
}

func newBookingRouter() *bookingMocks {
	gin.SetMode(gin.TestMode)
	m := &bookingMocks{service: &MockBookingUseCase{}, refunds: &MockRefundProcessor{}, checkout: &MockCheckoutUseCase{}}
	m.router = NewRouter(RouterConfig{}, zap.NewNop(), NewBookingHandler(m.service, m.refunds, m.checkout))
	return m
}

func (m *bookingMocks) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	m.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestBookingHandler_create(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService, nil, nil)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	body := `{"userId": 7, "spaId": 10, "ownerId": "3", "slot": "10:00 AM", "date": "2025-12-01",
		"services": [{"id": 1, "name": "Massage", "price": 1000}]}`
	c.Request = httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	created := &domain.Booking{ID: "b-1", SpaID: "10", Status: domain.BookingStatusPending, FinalPrice: decimal.NewFromInt(1000)}
	mockService.On("CreateBooking", c.Request.Context(), mock.MatchedBy(func(in booking.CreateBookingInput) bool {
		return in.CustomerID == "7" && in.SpaID == "10" && len(in.Services) == 1 && in.Services[0].ID == "1"
	})).Return(created, nil)

	handler.create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var response bookingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "Booking created successfully", response.Message)
	assert.Equal(t, domain.ID("b-1"), response.Booking.ID)
	assert.Equal(t, domain.BookingStatusPending, response.Booking.Status)

	mockService.AssertExpectations(t)
}

func TestBookingHandler_createConflict(t *testing.T) {
	m := newBookingRouter()
	m.service.On("CreateBooking", mock.Anything, mock.Anything).Return(nil, &domain.ConflictError{
		SpaID:       "10",
		Date:        "2025-12-01",
		Slot:        "10:00 AM",
		Conflicting: []domain.ConflictingBooking{{ID: "b-0", Services: []string{"Massage"}}},
	})

	w := m.do(http.MethodPost, "/bookings", `{"userId":"7","spaId":"10","ownerId":"3","slot":"10:00 AM","date":"2025-12-01","services":[{"id":"1"}]}`)

	assert.Equal(t, http.StatusConflict, w.Code)
	body := decode(t, w)
	assert.Equal(t, conflictMessage, body["message"])
	conflicts := body["conflictingBookings"].([]any)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "b-0", conflicts[0].(map[string]any)["id"])
	assert.Equal(t, []any{"Massage"}, conflicts[0].(map[string]any)["services"])
}

func TestBookingHandler_createInvalidBody(t *testing.T) {
	m := newBookingRouter()

	w := m.do(http.MethodPost, "/bookings", `{"services": "nope"`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	m.service.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
}

func TestBookingHandler_errorMapping(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "validation", err: domain.NewValidationError("slot", "is required"), status: http.StatusBadRequest},
		{name: "not found", err: &domain.NotFoundError{Entity: "booking", ID: "x"}, status: http.StatusNotFound},
		{name: "state", err: &domain.StateError{BookingID: "x", From: domain.BookingStatusPending, To: domain.BookingStatusCompleted}, status: http.StatusBadRequest},
		{name: "funds", err: &domain.InsufficientFundsError{AccountID: "a"}, status: http.StatusBadRequest},
		{name: "pin", err: &domain.AuthError{Subject: "upi id", Reason: "invalid UPI PIN", Unauthorized: true}, status: http.StatusUnauthorized},
		{name: "inactive", err: &domain.AuthError{Subject: "upi id", Reason: "account is not active"}, status: http.StatusBadRequest},
		{name: "internal", err: &domain.InternalError{Op: "get booking", Err: errors.New("connection reset")}, status: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := newBookingRouter()
			m.service.On("GetBooking", mock.Anything, domain.ID("x")).Return(nil, tc.err)

			w := m.do(http.MethodGet, "/bookings/x", "")

			assert.Equal(t, tc.status, w.Code)
			assert.NotEmpty(t, decode(t, w)["message"])
		})
	}
}

func TestBookingHandler_internalErrorHidesDetails(t *testing.T) {
	m := newBookingRouter()
	m.service.On("ApproveBooking", mock.Anything, domain.ID("b-1")).Return(nil, &domain.InternalError{Op: "approve", Err: errors.New("password=secret")})

	w := m.do(http.MethodPatch, "/bookings/b-1/approve", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
}

func TestBookingHandler_checkAvailability(t *testing.T) {
	m := newBookingRouter()
	slots := []domain.SlotAvailability{{Time: "10:00 AM", IsBooked: true}, {Time: "11:00 AM"}}
	m.service.On("CheckAvailability", mock.Anything, mock.MatchedBy(func(in booking.AvailabilityInput) bool {
		return in.SpaID == "10" && in.Date == "2025-12-01" && len(in.SelectedServices) == 1
	})).Return(slots, nil)

	w := m.do(http.MethodPost, "/check-availability", `{"spaId":10,"date":"2025-12-01","selectedServices":[{"id":1}]}`)

	assert.Equal(t, http.StatusOK, w.Code)
	var response availabilityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, slots, response.Slots)
}

func TestBookingHandler_validateSlot(t *testing.T) {
	m := newBookingRouter()
	m.service.On("ValidateSlot", mock.Anything, mock.Anything).Return(&booking.SlotCheck{Available: true, Message: "Slot is available"}, nil)

	w := m.do(http.MethodPost, "/bookings/validate-slot", `{"spaId":"10","date":"2025-12-01","slot":"10:00 AM","services":[{"id":"1"}]}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["available"])
}

func TestBookingHandler_lists(t *testing.T) {
	m := newBookingRouter()
	m.service.On("ListBookings", mock.Anything, repository.BookingFilter{SpaID: "10", Status: domain.BookingStatusPending}).Return([]domain.Booking{{ID: "b-1"}}, nil)
	m.service.On("ListByCustomer", mock.Anything, domain.ID("7")).Return([]domain.Booking{{ID: "b-1"}, {ID: "b-2"}}, nil)
	m.service.On("ListByOwner", mock.Anything, domain.ID("3")).Return([]domain.Booking{}, nil)

	w := m.do(http.MethodGet, "/bookings?spaId=10&status=PENDING", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = m.do(http.MethodGet, "/bookings/user/7", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["count"])

	w = m.do(http.MethodGet, "/bookings/owner/3", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["count"])

	w = m.do(http.MethodGet, "/bookings?status=lost", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	m.service.AssertExpectations(t)
}

func TestBookingHandler_approveAndComplete(t *testing.T) {
	m := newBookingRouter()
	m.service.On("ApproveBooking", mock.Anything, domain.ID("b-1")).Return(&domain.Booking{ID: "b-1", Status: domain.BookingStatusApproved}, nil)
	m.service.On("CompleteBooking", mock.Anything, domain.ID("b-1"), mock.MatchedBy(func(in booking.CompleteInput) bool {
		return in.PaymentMethod == "upi" && in.DiscountAmount != nil && in.DiscountAmount.Equal(decimal.NewFromInt(300))
	})).Return(&domain.Booking{ID: "b-1", Status: domain.BookingStatusCompleted}, nil)

	w := m.do(http.MethodPatch, "/bookings/b-1/approve", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = m.do(http.MethodPatch, "/bookings/b-1/complete", `{"paymentMethod":"upi","discountPrice":300,"totalPrice":700}`)
	assert.Equal(t, http.StatusOK, w.Code)
	var response bookingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, domain.BookingStatusCompleted, response.Booking.Status)

	m.service.AssertExpectations(t)
}

func TestBookingHandler_cancel(t *testing.T) {
	m := newBookingRouter()
	cancelled := &domain.Booking{
		ID:     "b-1",
		Status: domain.BookingStatusCancelled,
		Refund: &domain.RefundRecord{RefundAmount: decimal.NewFromInt(900), DeductedAmount: decimal.NewFromInt(100)},
	}
	m.refunds.On("Process", mock.Anything, domain.ID("b-1"), refund.Request{Details: "sick", ExternalTransactionID: "ext-1"}).Return(cancelled, nil).Once()
	m.refunds.On("Process", mock.Anything, domain.ID("b-2"), refund.Request{}).Return(nil, &domain.StateError{BookingID: "b-2", From: domain.BookingStatusCancelled, To: domain.BookingStatusCancelled}).Once()

	// Client supplied amounts are not part of the request model.
	w := m.do(http.MethodPatch, "/bookings/b-1/cancel", `{"refundDetails":"sick","refundTransactionId":"ext-1","refundAmount":5000}`)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.NotNil(t, body["refund"])

	w = m.do(http.MethodPatch, "/bookings/b-2/cancel", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	m.refunds.AssertExpectations(t)
}

func TestBookingHandler_quoteAndCheckout(t *testing.T) {
	m := newBookingRouter()
	m.checkout.On("Quote", mock.Anything, domain.ID("b-1")).Return(&checkout.Quote{BookingID: "b-1", FinalPrice: decimal.NewFromInt(700)}, nil)
	m.checkout.On("Checkout", mock.Anything, domain.ID("b-1"), checkout.Request{CustomerUPIID: "c@bank", PIN: "1234"}).
		Return(&domain.Booking{ID: "b-1", Status: domain.BookingStatusCompleted}, nil)

	w := m.do(http.MethodGet, "/bookings/b-1/quote", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "b-1", decode(t, w)["bookingId"])

	w = m.do(http.MethodPost, "/bookings/b-1/checkout", `{"upiId":"c@bank","pin":"1234"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Payment successful", decode(t, w)["message"])

	m.checkout.AssertExpectations(t)
}

func TestRouter_healthAndNoRoute(t *testing.T) {
	m := newBookingRouter()

	w := m.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = m.do(http.MethodGet, "/treatments", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_recoversFromPanic(t *testing.T) {
	m := newBookingRouter()
	m.service.On("GetBooking", mock.Anything, domain.ID("boom")).Run(func(mock.Arguments) { panic("nil map") })

	w := m.do(http.MethodGet, "/bookings/boom", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(RouterConfig{RateLimitPerMinute: 1, RateLimitBurst: 2}, zap.NewNop())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
