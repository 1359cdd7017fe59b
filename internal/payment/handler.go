package payment

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"vpsbot/internal/api"
	"vpsbot/internal/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type CreateRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

type CreateResponse struct {
	Ref        string    `json:"reference_id"`
	Amount     int64     `json:"amount"`
	Settlement int64     `json:"settlement_amount"`
	Currency   string    `json:"currency"`
	ExpiresAt  time.Time `json:"expires_at"`
	// QRCode is the PNG, base64 encoded by encoding/json.
	QRCode []byte `json:"qr_code"`
}

type SettleRequest struct {
	Note string `json:"note" validate:"required,max=200"`
}

// Create starts a top-up for the caller.
func (h *Handler) Create(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		api.RespondUnauthorized(c)
		return
	}

	var req CreateRequest
	if !api.BindJSON(c, &req) {
		return
	}

	in, code, err := h.svc.Create(c.Request.Context(), userID, req.Amount)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateResponse{
		Ref:        in.Ref,
		Amount:     in.Requested,
		Settlement: in.Settlement,
		Currency:   h.svc.cfg.Currency,
		ExpiresAt:  in.ExpiresAt(),
		QRCode:     code,
	})
}

// Status is scoped to the caller; other users' references are not found.
func (h *Handler) Status(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		api.RespondUnauthorized(c)
		return
	}

	v, err := h.svc.StatusFor(c.Request.Context(), userID, c.Param("ref"))
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// ListMine returns the caller's intents, newest first.
func (h *Handler) ListMine(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		api.RespondUnauthorized(c)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	rows, err := h.svc.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// List is the admin view. Without ?status it returns the live pending set.
func (h *Handler) List(c *gin.Context) {
	status := c.Query("status")
	if status == "" {
		c.JSON(http.StatusOK, h.svc.Pending())
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := h.svc.ListByStatus(c.Request.Context(), Status(status), limit)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// Stats takes ?from=YYYY-MM-DD&to=YYYY-MM-DD, both inclusive. It defaults to
// the last seven days.
func (h *Handler) Stats(c *gin.Context) {
	today := h.svc.now().UTC().Truncate(24 * time.Hour)
	from, err := parseDay(c.Query("from"), today.AddDate(0, 0, -6))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid from date, want YYYY-MM-DD"})
		return
	}
	to, err := parseDay(c.Query("to"), today)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid to date, want YYYY-MM-DD"})
		return
	}

	stats, err := h.svc.Stats(c.Request.Context(), from, to.AddDate(0, 0, 1))
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func parseDay(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	return time.Parse(dayLayout, s)
}

func (h *Handler) Settle(c *gin.Context) {
	var req SettleRequest
	if !api.BindJSON(c, &req) {
		return
	}

	ref := c.Param("ref")
	if err := h.svc.ManualSettle(c.Request.Context(), ref, req.Note); err != nil {
		api.RespondError(c, err)
		return
	}

	v, err := h.svc.Status(c.Request.Context(), ref)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}
