// Package qris renders scannable payment codes for an exact amount.
package qris

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var (
	ErrRender        = errors.New("payment code render failed")
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Renderer produces a PNG payment code that asks the payer for exactly amount.
type Renderer interface {
	Render(ctx context.Context, amount int64) ([]byte, error)
}

// HTTPRenderer delegates rendering to a remote QRIS generator.
type HTTPRenderer struct {
	endpoint string
	payload  string
	client   *http.Client
}

func NewHTTPRenderer(endpoint, staticPayload string, timeout time.Duration) *HTTPRenderer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRenderer{
		endpoint: endpoint,
		payload:  staticPayload,
		client:   &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRenderer) Render(ctx context.Context, amount int64) ([]byte, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	u, err := url.Parse(r.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: bad endpoint: %v", ErrRender, err)
	}
	q := u.Query()
	q.Set("nominal", fmt.Sprint(amount))
	q.Set("qris", r.payload)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	req.Header.Set("Accept", "image/png")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrRender, resp.StatusCode)
	}

	img, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	if len(img) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrRender)
	}
	return img, nil
}
