package provision

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"vpsbot/internal/ledger"
	"vpsbot/internal/logger"
	"vpsbot/internal/metrics"
)

const defaultCreateTimeout = 5 * time.Minute

type Service struct {
	ledger        ledger.Repository
	repo          Repository
	accounts      map[string]Client
	createTimeout time.Duration
	password      func() (string, error)
}

// NewService wires the provider accounts by name. Orders name the account
// they run on.
func NewService(ledgerRepo ledger.Repository, repo Repository, accounts map[string]Client) *Service {
	return &Service{
		ledger:        ledgerRepo,
		repo:          repo,
		accounts:      accounts,
		createTimeout: defaultCreateTimeout,
		password:      func() (string, error) { return generatePassword(16) },
	}
}

func (s *Service) SetCreateTimeout(d time.Duration) {
	if d > 0 {
		s.createTimeout = d
	}
}

// Accounts lists the configured provider account names in order.
func (s *Service) Accounts() []string {
	names := make([]string, 0, len(s.accounts))
	for name := range s.accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Service) client(account string) (Client, error) {
	c, ok := s.accounts[account]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, account)
	}
	return c, nil
}

// Purchase debits the price, then creates the server. A failed creation is
// refunded in full.
func (s *Service) Purchase(ctx context.Context, userID int64, o Order) (*Receipt, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	c, err := s.client(o.Account)
	if err != nil {
		return nil, err
	}
	password, err := s.password()
	if err != nil {
		return nil, fmt.Errorf("generate password: %w", err)
	}

	price := Price(o.Size)
	balance, err := s.ledger.AdjustBalance(ctx, ledger.Entry{
		UserID:  userID,
		Amount:  -price,
		Type:    ledger.TypePurchase,
		Details: fmt.Sprintf("VPS %s - %s", o.Size, o.Name),
	})
	if err != nil {
		metrics.RecordPurchase("rejected")
		return nil, err
	}

	createCtx, cancel := context.WithTimeout(ctx, s.createTimeout)
	h, err := c.CreateResource(createCtx, Spec{
		Name:     o.Name,
		Region:   o.Region,
		Size:     o.Size,
		Image:    o.Image,
		UserData: rootPasswordScript(password),
	})
	cancel()
	if err != nil {
		logger.Error("server creation failed, refunding",
			"user_id", userID, "account", o.Account, "size", o.Size, "error", err)
		if _, rerr := s.ledger.AdjustBalance(context.WithoutCancel(ctx), ledger.Entry{
			UserID:  userID,
			Amount:  price,
			Type:    ledger.TypeRefund,
			Details: fmt.Sprintf("Refund: failed to create VPS - %v", err),
		}); rerr != nil {
			logger.Error("refund failed", "user_id", userID, "amount", price, "error", rerr)
			metrics.RecordPurchase("refund_failed")
			return nil, errors.Join(err, fmt.Errorf("refund: %w", rerr))
		}
		metrics.RecordPurchase("refunded")
		return nil, err
	}

	res := &Resource{
		UserID:     userID,
		AccountRef: o.Account,
		ResourceID: h.ResourceID,
		Name:       o.Name,
		SizeSlug:   o.Size,
	}
	if err := s.repo.Add(ctx, res); err != nil {
		// The server exists and is paid for; only the ownership record is missing.
		logger.Error("record server ownership",
			"user_id", userID, "account", o.Account, "resource_id", h.ResourceID, "error", err)
		metrics.RecordPurchase("unrecorded")
		return nil, fmt.Errorf("record server %d: %w", h.ResourceID, err)
	}

	metrics.RecordPurchase("success")
	logger.Info("server purchased",
		"user_id", userID,
		"account", o.Account,
		"resource_id", h.ResourceID,
		"size", o.Size,
		"price", price,
	)
	return &Receipt{Resource: *res, Price: price, Balance: balance, IPv4: h.IPv4, Password: password}, nil
}

// Servers lists a user's servers with live state. Provider errors leave the
// state as "unknown" instead of failing the listing.
func (s *Service) Servers(ctx context.Context, userID int64) ([]Server, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Server, 0, len(rows))
	for _, r := range rows {
		srv := Server{Resource: r, State: State{Status: "unknown", Name: r.Name, Size: r.SizeSlug}}
		if c, err := s.client(r.AccountRef); err == nil {
			if st, err := c.GetStatus(ctx, r.Handle()); err == nil {
				srv.State = st
			} else {
				logger.Warn("server status unavailable", "resource_id", r.ResourceID, "error", err)
			}
		}
		out = append(out, srv)
	}
	return out, nil
}

func (s *Service) Control(ctx context.Context, userID, resourceID int64, a Action) error {
	r, err := s.repo.FindOwned(ctx, userID, resourceID)
	if err != nil {
		return err
	}
	c, err := s.client(r.AccountRef)
	if err != nil {
		return err
	}
	if err := c.Action(ctx, r.Handle(), a); err != nil {
		return err
	}
	logger.Info("server action", "user_id", userID, "resource_id", resourceID, "action", a)
	return nil
}

func (s *Service) Destroy(ctx context.Context, userID, resourceID int64) error {
	r, err := s.repo.FindOwned(ctx, userID, resourceID)
	if err != nil {
		return err
	}
	c, err := s.client(r.AccountRef)
	if err != nil {
		return err
	}
	if err := c.Destroy(ctx, r.Handle()); err != nil {
		return err
	}
	if err := s.repo.Remove(ctx, userID, resourceID); err != nil {
		return err
	}
	logger.Info("server destroyed", "user_id", userID, "resource_id", resourceID)
	return nil
}
