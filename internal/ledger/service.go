package ledger

import (
	"context"
	"errors"
	"fmt"

	"vpsbot/internal/apperr"
	"vpsbot/internal/logger"
	"vpsbot/internal/metrics"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Repository() Repository {
	return s.repo
}

func (s *Service) Register(ctx context.Context, id int64, p Profile) (*User, error) {
	u, err := s.repo.Register(ctx, id, p)
	if err != nil {
		return nil, err
	}
	logger.Info("user registered", "user_id", id, "username", p.Username)
	return u, nil
}

// Login refreshes the last-login stamp. Identity comes from the chat
// platform, so there is nothing to verify.
func (s *Service) Login(ctx context.Context, id int64) (*User, error) {
	if err := s.repo.TouchLogin(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.GetUser(ctx, id)
}

func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetUser(ctx, id)
}

func (s *Service) History(ctx context.Context, id int64, limit int) ([]Transaction, error) {
	if _, err := s.repo.GetUser(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, id, limit)
}

// Adjust posts an admin adjustment. Negative deltas are allowed as long as the
// balance stays non-negative.
func (s *Service) Adjust(ctx context.Context, userID, delta int64, details string) (int64, error) {
	balance, err := s.repo.AdjustBalance(ctx, Entry{
		UserID:  userID,
		Amount:  delta,
		Type:    TypeAdjustment,
		Details: details,
	})
	if err != nil {
		return 0, err
	}
	logger.Info("balance adjusted", "user_id", userID, "delta", delta, "balance", balance)
	return balance, nil
}

// SetBalance moves a balance to target by posting the difference, keeping the
// transaction log in step with the balance.
func (s *Service) SetBalance(ctx context.Context, userID, target int64, details string) (int64, error) {
	if target < 0 {
		return 0, apperr.Validation("balance cannot be negative")
	}
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	diff := target - u.Balance
	if diff == 0 {
		return u.Balance, nil
	}
	return s.Adjust(ctx, userID, diff, details)
}

func (s *Service) SetAdmin(ctx context.Context, userID int64, admin bool) error {
	return s.repo.SetAdmin(ctx, userID, admin)
}

// ToggleAdmin flips the admin flag of userID and returns the new value.
func (s *Service) ToggleAdmin(ctx context.Context, userID int64) (bool, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if err := s.repo.SetAdmin(ctx, userID, !u.IsAdmin); err != nil {
		return false, err
	}
	logger.Info("admin flag changed", "user_id", userID, "admin", !u.IsAdmin)
	return !u.IsAdmin, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// CheckConsistency verifies sum(transactions) == balance for one user. A
// mismatch is never corrected here.
func (s *Service) CheckConsistency(ctx context.Context, userID int64) error {
	t, err := s.repo.Totals(ctx, userID)
	if err != nil {
		return err
	}
	if !t.Consistent() {
		metrics.RecordInvariantViolation()
		logger.Error("ledger invariant violated",
			"user_id", userID,
			"balance", t.Balance,
			"transactions_sum", t.Sum,
		)
		return fmt.Errorf("%w: user %d balance %d != transactions %d",
			apperr.ErrInvariantViolation, userID, t.Balance, t.Sum)
	}
	return nil
}

// CheckAll runs CheckConsistency for every user and returns the ids that
// failed it.
func (s *Service) CheckAll(ctx context.Context) ([]int64, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	var bad []int64
	for _, u := range users {
		err := s.CheckConsistency(ctx, u.ID)
		if errors.Is(err, apperr.ErrInvariantViolation) {
			bad = append(bad, u.ID)
			continue
		}
		if err != nil {
			return bad, err
		}
	}
	return bad, nil
}
