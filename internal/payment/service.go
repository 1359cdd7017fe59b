package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"vpsbot/internal/apperr"
	"vpsbot/internal/ledger"
	"vpsbot/internal/logger"
	"vpsbot/internal/metrics"
	"vpsbot/internal/notify"
	"vpsbot/internal/qris"
	"vpsbot/internal/settlement"
)

type Config struct {
	MinAmount     int64
	TTL           time.Duration
	CheckInterval time.Duration
	SweepInterval time.Duration
	FeedTimeout   time.Duration
	RenderTimeout time.Duration
	Currency      string
}

func (c *Config) defaults() {
	if c.MinAmount <= 0 {
		c.MinAmount = 1000
	}
	if c.TTL <= 0 {
		c.TTL = 30 * time.Minute
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 5 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Minute
	}
	if c.FeedTimeout <= 0 {
		c.FeedTimeout = 30 * time.Second
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = 30 * time.Second
	}
	if c.Currency == "" {
		c.Currency = "IDR"
	}
}

type Deps struct {
	Ledger   ledger.Repository
	Store    Repository
	Feed     settlement.Feed
	Renderer qris.Renderer
	// Sender, when set, tells users about settled top-ups.
	Sender notify.Sender
}

// Service is the payment lifecycle engine: intents are created in the
// foreground, the poller and sweeper settle or expire them in the
// background.
type Service struct {
	cfg        Config
	table      *Table
	notifier   *Notifier
	generator  *Generator
	reconciler *Reconciler
	sweeper    *Sweeper
	poller     *Poller
	store      Repository
	ledger     ledger.Repository
	sender     notify.Sender
	now        func() time.Time
}

func NewService(cfg Config, deps Deps) *Service {
	cfg.defaults()

	table := NewTable()
	notifier := NewNotifier()
	reconciler := NewReconciler(table, deps.Ledger, deps.Store, notifier)
	sweeper := NewSweeper(table, reconciler, cfg.SweepInterval)

	return &Service{
		cfg:        cfg,
		table:      table,
		notifier:   notifier,
		generator:  NewGenerator(table, deps.Store, notifier, deps.Renderer, cfg.MinAmount, cfg.TTL, cfg.RenderTimeout),
		reconciler: reconciler,
		sweeper:    sweeper,
		poller:     NewPoller(deps.Feed, table, reconciler, sweeper, deps.Store, cfg.CheckInterval, cfg.FeedTimeout),
		store:      deps.Store,
		ledger:     deps.Ledger,
		sender:     deps.Sender,
		now:        time.Now,
	}
}

// SetClock replaces the time source of every component. Tests only.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.generator.now = now
	s.reconciler.now = now
	s.sweeper.now = now
}

func (s *Service) Notifier() *Notifier { return s.notifier }
func (s *Service) Poller() *Poller     { return s.poller }
func (s *Service) Sweeper() *Sweeper   { return s.sweeper }

// Create makes a pending intent for a registered user and returns it with
// the rendered payment code.
func (s *Service) Create(ctx context.Context, userID, requested int64) (*Intent, []byte, error) {
	if _, err := s.ledger.GetUser(ctx, userID); err != nil {
		return nil, nil, err
	}

	var cb Callback
	if s.sender != nil {
		cb = s.chatCallback(userID)
	}
	return s.generator.Create(ctx, userID, requested, cb)
}

// Status reports the state of ref without changing it. A pending intent
// past its TTL is reported expired even before the sweeper removes it.
func (s *Service) Status(ctx context.Context, ref string) (*StatusView, error) {
	in, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.view(in), nil
}

// StatusFor is Status scoped to the intent's owner. Other users' references
// are reported as not found.
func (s *Service) StatusFor(ctx context.Context, userID int64, ref string) (*StatusView, error) {
	in, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	if in.UserID != userID {
		return nil, ErrIntentNotFound
	}
	return s.view(in), nil
}

func (s *Service) lookup(ctx context.Context, ref string) (*Intent, error) {
	if in, ok := s.table.Get(ref); ok {
		return &in, nil
	}
	return s.store.Get(ctx, ref)
}

func (s *Service) view(in *Intent) *StatusView {
	status := in.Status
	if status == StatusPending && in.Expired(s.now()) {
		status = StatusExpired
	}
	return &StatusView{Ref: in.Ref, Status: status, Amount: in.Requested}
}

// ManualSettle credits ref on an operator's word, for transfers the feed
// missed. Completed intents are refused; the ledger's reference index
// rejects a second credit regardless.
func (s *Service) ManualSettle(ctx context.Context, ref, note string) error {
	in, claimed := s.table.Claim(ref)
	if claimed {
		metrics.SetPending(s.table.Len())
	} else {
		stored, err := s.store.Get(ctx, ref)
		if err != nil {
			return err
		}
		if stored.Status == StatusCompleted {
			return ErrNotPending
		}
		in = *stored
	}

	logger.Warn("manual settlement", "reference_id", ref, "user_id", in.UserID, "note", note)
	return s.reconciler.credit(ctx, in, settlement.Entry{
		Amount:      in.Settlement,
		ExternalRef: ManualRef,
		PayerLabel:  note,
		Brand:       "manual",
	})
}

// Restore reloads every pending intent after a restart. Overdue ones are
// expired immediately.
func (s *Service) Restore(ctx context.Context) (int, error) {
	rows, err := s.store.ListByStatus(ctx, StatusPending, 0)
	if err != nil {
		return 0, fmt.Errorf("load pending intents: %w", err)
	}

	now := s.now()
	restored := 0
	for i := range rows {
		in := rows[i]
		if in.Expired(now) {
			s.reconciler.expire(ctx, in)
			continue
		}
		if err := s.table.Adopt(&in); err != nil {
			logger.Warn("skipping pending intent", "reference_id", in.Ref, "error", err)
			continue
		}
		if s.sender != nil {
			s.notifier.Register(in.Ref, s.chatCallback(in.UserID))
		}
		restored++
	}

	metrics.SetPending(s.table.Len())
	logger.Info("payment intents restored", "pending", restored, "loaded", len(rows))
	return restored, nil
}

// Run drives the poller and sweeper until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.poller.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.sweeper.Run(ctx)
	}()
	wg.Wait()
}

func (s *Service) Pending() []Intent {
	return s.table.Snapshot()
}

func (s *Service) ListByUser(ctx context.Context, userID int64, limit int) ([]Intent, error) {
	return s.store.ListByUser(ctx, userID, limit)
}

func (s *Service) ListByStatus(ctx context.Context, status Status, limit int) ([]Intent, error) {
	switch status {
	case StatusPending, StatusCompleted, StatusExpired, StatusError:
	default:
		return nil, apperr.Validation("unknown status " + string(status))
	}
	return s.store.ListByStatus(ctx, status, limit)
}

// Stats reports daily intent counts for [from, to).
func (s *Service) Stats(ctx context.Context, from, to time.Time) ([]DailyStats, error) {
	if !from.Before(to) {
		return nil, apperr.Validation("from must be before to")
	}
	if to.Sub(from) > 366*24*time.Hour {
		return nil, apperr.Validation("range is limited to one year")
	}
	return s.store.StatsByDay(ctx, from, to)
}

func (s *Service) MinAmount() int64 { return s.cfg.MinAmount }
func (s *Service) TTL() time.Duration { return s.cfg.TTL }

func (s *Service) chatCallback(chatID int64) Callback {
	return func(ctx context.Context, o Outcome) error {
		var text string
		switch o.Status {
		case StatusCompleted:
			text = fmt.Sprintf("Top-up %s received: %s %d credited.\nPaid via %s by %s.\nNew balance: %s %d",
				o.Ref, s.cfg.Currency, o.Amount, o.Brand, o.PayerLabel, s.cfg.Currency, o.Balance)
		case StatusError:
			text = fmt.Sprintf("Top-up %s was received but could not be credited yet. An admin has been alerted.", o.Ref)
		default:
			return errors.New("unexpected outcome status " + string(o.Status))
		}
		return s.sender.Send(ctx, chatID, text)
	}
}
