package provision

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"vpsbot/internal/api"
	"vpsbot/internal/apperr"
	"vpsbot/internal/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type ActionRequest struct {
	Action string `json:"action" validate:"required,oneof=reboot power_off power_on"`
}

func (h *Handler) Catalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"accounts": h.svc.Accounts(),
		"prices":   PriceList(),
	})
}

func (h *Handler) List(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		api.RespondUnauthorized(c)
		return
	}

	servers, err := h.svc.Servers(c.Request.Context(), userID)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, servers)
}

func (h *Handler) Purchase(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		api.RespondUnauthorized(c)
		return
	}

	var o Order
	if !api.BindJSON(c, &o) {
		return
	}

	rc, err := h.svc.Purchase(c.Request.Context(), userID, o)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rc)
}

func (h *Handler) Control(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		api.RespondUnauthorized(c)
		return
	}
	id, err := resourceIDParam(c)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	var req ActionRequest
	if !api.BindJSON(c, &req) {
		return
	}

	if err := h.svc.Control(c.Request.Context(), userID, id, Action(req.Action)); err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, api.MessageResponse{Message: req.Action + " requested"})
}

func (h *Handler) Destroy(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		api.RespondUnauthorized(c)
		return
	}
	id, err := resourceIDParam(c)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	if err := h.svc.Destroy(c.Request.Context(), userID, id); err != nil {
		api.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func resourceIDParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid server id")
	}
	return id, nil
}
