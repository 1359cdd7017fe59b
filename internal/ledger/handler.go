package ledger

import (
	"fmt"
	"net/http"
	"strconv"

	"vpsbot/internal/apperr"
	"vpsbot/internal/auth"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type AdjustRequest struct {
	UserID  int64  `json:"user_id" binding:"required"`
	Delta   int64  `json:"delta" binding:"required"`
	Details string `json:"details"`
}

func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	u, err := h.svc.GetUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": apperr.UserMessage(err)})
		return
	}

	c.JSON(http.StatusOK, u)
}

func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	txs, err := h.svc.History(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": apperr.UserMessage(err)})
		return
	}

	c.JSON(http.StatusOK, txs)
}

func (h *Handler) Adjust(c *gin.Context) {
	var req AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	balance, err := h.svc.Adjust(c.Request.Context(), req.UserID, req.Delta, req.Details)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": apperr.UserMessage(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": req.UserID, "balance": balance})
}

type SetBalanceRequest struct {
	Balance *int64 `json:"balance" binding:"required"`
}

func pathUserID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) SetBalance(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}
	var req SetBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	adminID, _ := auth.GetUserID(c)
	balance, err := h.svc.SetBalance(c.Request.Context(), userID, *req.Balance, fmt.Sprintf("Balance set by admin %d", adminID))
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": apperr.UserMessage(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": userID, "balance": balance})
}

// ToggleAdmin flips the target's admin flag. Admins cannot demote themselves.
func (h *Handler) ToggleAdmin(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}
	if caller, _ := auth.GetUserID(c); caller == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot change your own admin status"})
		return
	}

	admin, err := h.svc.ToggleAdmin(c.Request.Context(), userID)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": apperr.UserMessage(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": userID, "is_admin": admin})
}

func (h *Handler) UserTransactions(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	ctx := c.Request.Context()
	if _, err := h.svc.GetUser(ctx, userID); err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": apperr.UserMessage(err)})
		return
	}
	txs, err := h.svc.History(ctx, userID, limit)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": apperr.UserMessage(err)})
		return
	}

	c.JSON(http.StatusOK, txs)
}

func (h *Handler) CheckConsistency(c *gin.Context) {
	bad, err := h.svc.CheckAll(c.Request.Context())
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": apperr.UserMessage(err)})
		return
	}

	status := http.StatusOK
	if len(bad) > 0 {
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"inconsistent_users": bad})
}
