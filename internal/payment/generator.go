package payment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"vpsbot/internal/apperr"
	"vpsbot/internal/db"
	"vpsbot/internal/logger"
	"vpsbot/internal/metrics"
	"vpsbot/internal/qris"
)

// Generator creates pending intents with a unique settlement amount and a
// rendered payment code.
type Generator struct {
	table         *Table
	store         Repository
	notifier      *Notifier
	renderer      qris.Renderer
	minAmount     int64
	ttl           time.Duration
	renderTimeout time.Duration

	now    func() time.Time
	pick   func(n int) int
	newRef func(time.Time) string
}

func NewGenerator(table *Table, store Repository, notifier *Notifier, renderer qris.Renderer, minAmount int64, ttl, renderTimeout time.Duration) *Generator {
	return &Generator{
		table:         table,
		store:         store,
		notifier:      notifier,
		renderer:      renderer,
		minAmount:     minAmount,
		ttl:           ttl,
		renderTimeout: renderTimeout,
		now:           time.Now,
		pick:          rand.Intn,
		newRef:        NewReference,
	}
}

// NewReference returns TX-<unix seconds>-<6 upper-case hex digits>.
func NewReference(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return fmt.Sprintf("TX-%d-%s", at.Unix(), suffix)
}

func isDuplicateRef(err error) bool {
	return errors.Is(err, errDuplicateRef) || db.IsUniqueViolation(err)
}

// Create reserves an offset, renders the code for the settlement amount and
// only then persists the intent. Nothing is kept when rendering fails. cb,
// when set, is registered before the intent becomes matchable.
func (g *Generator) Create(ctx context.Context, userID, requested int64, cb Callback) (*Intent, []byte, error) {
	if requested < g.minAmount {
		return nil, nil, fmt.Errorf("%w: got %d, minimum is %d", ErrBelowMinimum, requested, g.minAmount)
	}

	offset, err := g.table.Reserve(requested, g.pick)
	if err != nil {
		logger.Warn("no free settlement offset", "requested", requested)
		return nil, nil, err
	}
	settlement := requested + offset

	renderCtx, cancel := context.WithTimeout(ctx, g.renderTimeout)
	code, err := g.renderer.Render(renderCtx, settlement)
	cancel()
	if err != nil {
		g.table.Release(requested, offset)
		logger.Error("payment code render failed", "user_id", userID, "amount", settlement, "error", err)
		return nil, nil, apperr.External("qris renderer", err)
	}

	now := g.now()
	in := &Intent{
		UserID:     userID,
		Requested:  requested,
		Settlement: settlement,
		Status:     StatusPending,
		TTLSeconds: int64(g.ttl / time.Second),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	for attempt := 0; attempt < 3; attempt++ {
		in.Ref = g.newRef(now)
		err = g.store.Create(ctx, in)
		if !isDuplicateRef(err) {
			break
		}
	}
	if err != nil {
		g.table.Release(requested, offset)
		return nil, nil, fmt.Errorf("persist intent: %w", err)
	}
	if cb != nil {
		g.notifier.Register(in.Ref, cb)
	}
	if err := g.table.Add(in); err != nil {
		g.notifier.Deregister(in.Ref)
		g.table.Release(requested, offset)
		_ = g.store.UpdateStatus(ctx, in.Ref, StatusError)
		return nil, nil, err
	}

	metrics.RecordIntent(string(StatusPending))
	metrics.SetPending(g.table.Len())
	logger.Info("payment intent created",
		"reference_id", in.Ref,
		"user_id", userID,
		"requested", requested,
		"settlement", settlement,
	)

	return in, code, nil
}
