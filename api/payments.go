package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Domenick1991/spabooking/internal/domain"
	"github.com/Domenick1991/spabooking/internal/service/ledger"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type LedgerUseCase interface {
	Pay(ctx context.Context, req ledger.PayRequest) (*domain.Transaction, error)
	Refund(ctx context.Context, req ledger.RefundRequest) (*domain.Transaction, error)
	Balance(ctx context.Context, upiID string) (*ledger.Balance, error)
	TransactionsByUPI(ctx context.Context, upiID string, txType domain.TransactionType, limit int) ([]domain.Transaction, error)
	Seed(ctx context.Context, seeds []ledger.SeedIdentity, pinCost int) ([]domain.Identity, error)
}

type PaymentHandler struct {
	service LedgerUseCase
	pinCost int
}

type party struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	PIN        string `json:"pin"`
}

type externalPaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Merchant      party           `json:"merchant"`
	PaymentMethod struct {
		Type    string `json:"type"`
		Details struct {
			UPIID string `json:"upiId"`
			PIN   string `json:"pin"`
		} `json:"details"`
	} `json:"paymentMethod"`
	OrderID     string `json:"orderId"`
	Description string `json:"description"`
}

type refundRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Customer    party           `json:"customer"`
	Merchant    party           `json:"merchant"`
	OrderID     string          `json:"orderId"`
	Description string          `json:"description"`
}

type transactionListResponse struct {
	UPIID        string               `json:"upiId"`
	Count        int                  `json:"count"`
	Transactions []domain.Transaction `json:"transactions"`
}

func NewPaymentHandler(service LedgerUseCase, pinCost int) *PaymentHandler {
	return &PaymentHandler{service: service, pinCost: pinCost}
}

func (h *PaymentHandler) Register(router gin.IRouter) {
	payment := router.Group("/payment")
	payment.POST("/external", h.external)
	payment.POST("/refund", h.refund)
	payment.GET("/balance/:identifier", h.balance)
	payment.GET("/transactions/:identifier", h.transactions)
	payment.POST("/initialize-data", h.initialize)
}

func (h *PaymentHandler) external(c *gin.Context) {
	var req externalPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.PaymentMethod.Type != "upi" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Only UPI payments supported"})
		return
	}

	tx, err := h.service.Pay(c.Request.Context(), ledger.PayRequest{
		CustomerUPIID: req.PaymentMethod.Details.UPIID,
		PIN:           req.PaymentMethod.Details.PIN,
		MerchantUPIID: req.Merchant.Identifier,
		MerchantName:  req.Merchant.Name,
		Amount:        req.Amount,
		OrderID:       req.OrderID,
		Description:   req.Description,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        tx.Status,
		"transactionId": tx.ID,
		"message":       "Payment processed successfully",
		"merchantName":  tx.To.Name,
		"amount":        tx.Amount,
	})
}

func (h *PaymentHandler) refund(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	tx, err := h.service.Refund(c.Request.Context(), ledger.RefundRequest{
		MerchantUPIID: req.Merchant.Identifier,
		PIN:           req.Merchant.PIN,
		CustomerUPIID: req.Customer.Identifier,
		CustomerName:  req.Customer.Name,
		Amount:        req.Amount,
		OrderID:       req.OrderID,
		Description:   req.Description,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        tx.Status,
		"transactionId": tx.ID,
		"message":       "Refund processed successfully",
		"customerName":  tx.To.Name,
		"amount":        tx.Amount,
	})
}

func (h *PaymentHandler) balance(c *gin.Context) {
	balance, err := h.service.Balance(c.Request.Context(), c.Param("identifier"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (h *PaymentHandler) transactions(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Message: "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	upiID := c.Param("identifier")
	txs, err := h.service.TransactionsByUPI(c.Request.Context(), upiID, domain.TransactionType(c.Query("type")), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, transactionListResponse{UPIID: upiID, Count: len(txs), Transactions: txs})
}

func (h *PaymentHandler) initialize(c *gin.Context) {
	identities, err := h.service.Seed(c.Request.Context(), ledger.DemoIdentities(), h.pinCost)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Bank data initialized successfully",
		"users":   identities,
	})
}
