package api

import (
	"errors"
	"net/http"

	"github.com/Domenick1991/spabooking/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const conflictMessage = "This slot is already booked for one or more of the selected services"

type ErrorResponse struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// writeError maps the domain error taxonomy to a status code and body.
func writeError(c *gin.Context, err error) {
	var (
		validation *domain.ValidationError
		conflict   *domain.ConflictError
		notFound   *domain.NotFoundError
		state      *domain.StateError
		funds      *domain.InsufficientFundsError
		auth       *domain.AuthError
	)

	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"message":             conflictMessage,
			"conflictingBookings": conflict.Conflicting,
		})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"message": validation.Error(), "field": validation.Field})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: notFound.Error()})
	case errors.As(err, &state):
		c.JSON(http.StatusBadRequest, gin.H{
			"message":   state.Error(),
			"bookingId": state.BookingID,
			"status":    state.From,
			"attempted": state.To,
		})
	case errors.As(err, &funds):
		c.JSON(http.StatusBadRequest, gin.H{
			"message":   "Insufficient funds",
			"accountId": funds.AccountID,
			"balance":   funds.Balance,
			"amount":    funds.Amount,
		})
	case errors.As(err, &auth):
		status := http.StatusBadRequest
		if auth.Unauthorized {
			status = http.StatusUnauthorized
		}
		c.JSON(status, ErrorResponse{Message: auth.Reason, Details: auth.Subject})
	default:
		loggerFrom(c).Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Internal Server Error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request body", Details: err.Error()})
}
