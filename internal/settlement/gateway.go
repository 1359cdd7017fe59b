package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBrand = "QRIS"
	defaultRef   = "N/A"
	defaultPayer = "QRIS Payment"
	maxBodyBytes = 4 << 20
)

type GatewayConfig struct {
	CallbackURL string
	MerchantID  string
	APIKey      string
	Timeout     time.Duration
}

// GatewayFeed polls the merchant mutation endpoint over HTTP.
type GatewayFeed struct {
	url    string
	client *http.Client
}

func NewGatewayFeed(cfg GatewayConfig) *GatewayFeed {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GatewayFeed{
		url:    strings.TrimRight(cfg.CallbackURL, "/") + "/" + cfg.MerchantID + "/" + cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

type gatewayResponse struct {
	Data []gatewayEntry `json:"data"`
}

type gatewayEntry struct {
	Amount     flexAmount `json:"amount"`
	BrandName  string     `json:"brand_name"`
	IssuerReff string     `json:"issuer_reff"`
	BuyerReff  string     `json:"buyer_reff"`
}

// flexAmount accepts both 10023 and "10023".
type flexAmount int64

func (a *flexAmount) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*a = 0
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(string(b), 64)
		if ferr != nil {
			return fmt.Errorf("amount %q: %w", b, err)
		}
		n = int64(f)
	}
	*a = flexAmount(n)
	return nil
}

func (g *GatewayFeed) Fetch(ctx context.Context) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrNetwork, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	return parseGatewayBody(body)
}

func parseGatewayBody(body []byte) ([]Entry, error) {
	var payload gatewayResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	entries := make([]Entry, 0, len(payload.Data))
	for _, d := range payload.Data {
		entries = append(entries, Entry{
			Amount:      int64(d.Amount),
			ExternalRef: orDefault(d.IssuerReff, defaultRef),
			PayerLabel:  payerLabel(d.BuyerReff),
			Brand:       orDefault(d.BrandName, defaultBrand),
		})
	}
	return entries, nil
}

// payerLabel takes the part after the first "/" of buyer_reff.
func payerLabel(buyerReff string) string {
	_, after, found := strings.Cut(buyerReff, "/")
	if !found {
		return defaultPayer
	}
	if label := strings.TrimSpace(after); label != "" {
		if i := strings.Index(label, "/"); i >= 0 {
			label = strings.TrimSpace(label[:i])
		}
		if label != "" {
			return label
		}
	}
	return defaultPayer
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
