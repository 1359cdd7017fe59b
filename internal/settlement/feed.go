// Package settlement reads the merchant's list of received payments.
package settlement

import (
	"context"
	"errors"
)

var (
	ErrNetwork = errors.New("settlement feed unreachable")
	ErrParse   = errors.New("settlement feed response malformed")
)

// Entry is one received payment as reported by the gateway. Amount is in
// minor currency units and is the only field used for matching.
type Entry struct {
	Amount      int64  `json:"amount"`
	ExternalRef string `json:"external_ref"`
	PayerLabel  string `json:"payer_label"`
	Brand       string `json:"brand"`
}

// Feed returns the gateway's current list of received payments. Entries may
// repeat across calls; callers track what they have already consumed.
type Feed interface {
	Fetch(ctx context.Context) ([]Entry, error)
}
