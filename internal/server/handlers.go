package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"vpsbot/internal/api"
	"vpsbot/internal/auth"
	"vpsbot/internal/chat"
	"vpsbot/internal/ledger"
	"vpsbot/internal/logger"
	"vpsbot/internal/settlement"
)

type chatWebhook struct {
	router  *chat.Router
	outbox  chat.Outbox
	limiter *RateLimiter
	secret  string
}

// Handle answers one chat update. The reply goes out through the outbox and
// is echoed in the response body. Updates carry the sender's identity, so the
// endpoint stays closed until a shared secret is configured.
func (w *chatWebhook) Handle(c *gin.Context) {
	if w.secret == "" {
		c.JSON(http.StatusServiceUnavailable, api.ErrorResponse{Error: "chat webhook disabled: secret not configured"})
		return
	}
	got := c.GetHeader("X-Webhook-Secret")
	if subtle.ConstantTimeCompare([]byte(got), []byte(w.secret)) != 1 {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "invalid webhook secret"})
		return
	}

	var u chat.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid update"})
		return
	}

	if !w.limiter.Allow(strconv.FormatInt(u.UserID, 10)) {
		c.JSON(http.StatusTooManyRequests, api.ErrorResponse{Error: "rate limit exceeded"})
		return
	}

	reply := w.router.Handle(c.Request.Context(), u)

	var err error
	if len(reply.Image) > 0 {
		err = w.outbox.SendImage(c.Request.Context(), u.ChatID, reply.Text, reply.Image)
	} else {
		err = w.outbox.Send(c.Request.Context(), u.ChatID, reply.Text)
	}
	if err != nil {
		logger.Error("queue chat reply", "chat_id", u.ChatID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"text": reply.Text, "queued": false})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"text": reply.Text, "queued": true})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func refreshToken(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refreshRequest
		if !api.BindJSON(c, &req) {
			return
		}

		access, claims, err := auth.RefreshAccessToken(req.RefreshToken, secret)
		if err != nil {
			msg := "invalid refresh token"
			if errors.Is(err, auth.ErrTokenExpired) {
				msg = "refresh token expired"
			}
			c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: msg})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token": access,
			"token_type":   "Bearer",
			"expires_in":   int(auth.AccessTokenTTL.Seconds()),
			"user_id":      claims.UserID,
		})
	}
}

func listUsers(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := svc.ListUsers(c.Request.Context())
		if err != nil {
			api.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

type simulateRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Payer  string `json:"payer" validate:"max=100"`
}

// simulatePayment appends a transfer to the simulated feed. The next poll
// cycle picks it up like any gateway entry.
func simulatePayment(feed *settlement.SimulatedFeed) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req simulateRequest
		if !api.BindJSON(c, &req) {
			return
		}
		c.JSON(http.StatusAccepted, feed.Pay(req.Amount, req.Payer))
	}
}
