package api

import (
	"context"
	"net/http"

	"github.com/Domenick1991/spabooking/internal/domain"
	"github.com/Domenick1991/spabooking/internal/repository"
	"github.com/Domenick1991/spabooking/internal/service/booking"
	"github.com/Domenick1991/spabooking/internal/service/checkout"
	"github.com/Domenick1991/spabooking/internal/service/refund"
	"github.com/gin-gonic/gin"
)

type RefundProcessor interface {
	Process(ctx context.Context, bookingID domain.ID, req refund.Request) (*domain.Booking, error)
}

type CheckoutUseCase interface {
	Quote(ctx context.Context, id domain.ID) (*checkout.Quote, error)
	Checkout(ctx context.Context, id domain.ID, req checkout.Request) (*domain.Booking, error)
}

type BookingHandler struct {
	service  booking.BookingUseCase
	refunds  RefundProcessor
	checkout CheckoutUseCase
}

type bookingResponse struct {
	Message string          `json:"message"`
	Booking *domain.Booking `json:"booking"`
}

type bookingListResponse struct {
	Count    int              `json:"count"`
	Bookings []domain.Booking `json:"bookings"`
}

type availabilityResponse struct {
	Slots []domain.SlotAvailability `json:"slots"`
}

func NewBookingHandler(service booking.BookingUseCase, refunds RefundProcessor, checkout CheckoutUseCase) *BookingHandler {
	return &BookingHandler{service: service, refunds: refunds, checkout: checkout}
}

func (h *BookingHandler) Register(router gin.IRouter) {
	router.POST("/check-availability", h.checkAvailability)

	bookings := router.Group("/bookings")
	bookings.POST("", h.create)
	bookings.GET("", h.list)
	bookings.POST("/validate-slot", h.validateSlot)
	bookings.GET("/user/:userId", h.listByCustomer)
	bookings.GET("/owner/:ownerId", h.listByOwner)
	bookings.GET("/:id", h.get)
	bookings.GET("/:id/quote", h.quote)
	bookings.POST("/:id/checkout", h.pay)
	bookings.PATCH("/:id/approve", h.approve)
	bookings.PATCH("/:id/complete", h.complete)
	bookings.PATCH("/:id/cancel", h.cancel)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req booking.CreateBookingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	created, err := h.service.CreateBooking(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bookingResponse{Message: "Booking created successfully", Booking: created})
}

func (h *BookingHandler) checkAvailability(c *gin.Context) {
	var req booking.AvailabilityInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	slots, err := h.service.CheckAvailability(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, availabilityResponse{Slots: slots})
}

func (h *BookingHandler) validateSlot(c *gin.Context) {
	var req booking.SlotInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	check, err := h.service.ValidateSlot(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, check)
}

func (h *BookingHandler) get(c *gin.Context) {
	b, err := h.service.GetBooking(c.Request.Context(), domain.ID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) list(c *gin.Context) {
	filter := repository.BookingFilter{
		SpaID:      domain.ID(c.Query("spaId")),
		CustomerID: domain.ID(c.Query("userId")),
		OwnerID:    domain.ID(c.Query("ownerId")),
	}
	if status := c.Query("status"); status != "" {
		parsed, err := domain.ParseBookingStatus(status)
		if err != nil {
			writeError(c, err)
			return
		}
		filter.Status = parsed
	}

	bookings, err := h.service.ListBookings(c.Request.Context(), filter)
	h.writeList(c, bookings, err)
}

func (h *BookingHandler) listByCustomer(c *gin.Context) {
	bookings, err := h.service.ListByCustomer(c.Request.Context(), domain.ID(c.Param("userId")))
	h.writeList(c, bookings, err)
}

func (h *BookingHandler) listByOwner(c *gin.Context) {
	bookings, err := h.service.ListByOwner(c.Request.Context(), domain.ID(c.Param("ownerId")))
	h.writeList(c, bookings, err)
}

func (h *BookingHandler) writeList(c *gin.Context, bookings []domain.Booking, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookingListResponse{Count: len(bookings), Bookings: bookings})
}

func (h *BookingHandler) approve(c *gin.Context) {
	approved, err := h.service.ApproveBooking(c.Request.Context(), domain.ID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookingResponse{Message: "Booking approved successfully", Booking: approved})
}

func (h *BookingHandler) complete(c *gin.Context) {
	var req booking.CompleteInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	completed, err := h.service.CompleteBooking(c.Request.Context(), domain.ID(c.Param("id")), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookingResponse{Message: "Payment completed successfully", Booking: completed})
}

// cancel ignores any amounts in the body; the refund is computed server
// side from the stored price and the current membership.
func (h *BookingHandler) cancel(c *gin.Context) {
	var req refund.Request
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	cancelled, err := h.refunds.Process(c.Request.Context(), domain.ID(c.Param("id")), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Booking cancelled and refund processed",
		"booking": cancelled,
		"refund":  cancelled.Refund,
	})
}

func (h *BookingHandler) quote(c *gin.Context) {
	q, err := h.checkout.Quote(c.Request.Context(), domain.ID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *BookingHandler) pay(c *gin.Context) {
	var req checkout.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	paid, err := h.checkout.Checkout(c.Request.Context(), domain.ID(c.Param("id")), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookingResponse{Message: "Payment successful", Booking: paid})
}
