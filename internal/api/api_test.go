package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpsbot/internal/apperr"
)

type topupBody struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Note   string `json:"note" validate:"max=10"`
}

func TestValidateStruct(t *testing.T) {
	assert.Empty(t, ValidateStruct(topupBody{Amount: 1000}))

	errs := ValidateStruct(topupBody{Note: "far too long for this"})
	require.Len(t, errs, 2)
	assert.Equal(t, "Amount", errs[0].Field)
	assert.Equal(t, "required", errs[0].Tag)
	assert.Equal(t, "Note must be at most 10", errs[1].Message)
}

func setupBindRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/topup", func(c *gin.Context) {
		var body topupBody
		if !BindJSON(c, &body) {
			return
		}
		c.JSON(http.StatusOK, body)
	})
	return r
}

func TestBindJSON(t *testing.T) {
	r := setupBindRouter()

	tests := []struct {
		name string
		body string
		code int
	}{
		{"valid", `{"amount":5000}`, http.StatusOK},
		{"malformed", `{"amount":`, http.StatusBadRequest},
		{"fails validation", `{"amount":-1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/topup", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondError(c, apperr.External("gateway", errors.New("dial tcp 10.0.0.1:443: refused")))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotContains(t, resp.Error, "10.0.0.1")
}
