// Package api holds the JSON shapes and helpers shared by every HTTP handler.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vpsbot/internal/apperr"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// RespondError writes err with the status its kind maps to. Details of
// external and internal failures stay in the logs.
func RespondError(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), ErrorResponse{Error: apperr.UserMessage(err)})
}

func RespondUnauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "user not authenticated"})
}
