package api

import (
	"context"
	"net/http"

	"github.com/Domenick1991/spabooking/internal/domain"
	"github.com/Domenick1991/spabooking/internal/service/membership"
	"github.com/gin-gonic/gin"
)

type MembershipUseCase interface {
	Status(ctx context.Context, customerID domain.ID) (*domain.Membership, membership.Evaluation, error)
	Activate(ctx context.Context, customerID domain.ID, planName string) (*domain.Membership, error)
}

type MembershipHandler struct {
	service MembershipUseCase
}

type activateRequest struct {
	CustomerID domain.ID `json:"userId"`
	PlanName   string    `json:"planName"`
}

type membershipStatusResponse struct {
	CustomerID       domain.ID               `json:"userId"`
	Status           domain.MembershipStatus `json:"status"`
	DiscountEligible bool                    `json:"discountEligible"`
	Membership       *domain.Membership      `json:"membership"`
}

func NewMembershipHandler(service MembershipUseCase) *MembershipHandler {
	return &MembershipHandler{service: service}
}

func (h *MembershipHandler) Register(router gin.IRouter) {
	group := router.Group("/membership")
	group.GET("/status/:userId", h.status)
	group.POST("/activate", h.activate)
}

func (h *MembershipHandler) status(c *gin.Context) {
	customerID := domain.ID(c.Param("userId"))
	m, ev, err := h.service.Status(c.Request.Context(), customerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, membershipStatusResponse{
		CustomerID:       customerID,
		Status:           ev.Status,
		DiscountEligible: ev.DiscountEligible,
		Membership:       m,
	})
}

func (h *MembershipHandler) activate(c *gin.Context) {
	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	m, err := h.service.Activate(c.Request.Context(), req.CustomerID, req.PlanName)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Membership activated", "membership": m})
}
