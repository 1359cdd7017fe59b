package payment

import (
	"context"
	"time"
)

// DailyStats counts intents created on one day by their current status.
type DailyStats struct {
	Day       string `db:"day" json:"day"`
	Created   int    `db:"created" json:"created"`
	Completed int    `db:"completed" json:"completed"`
	Expired   int    `db:"expired" json:"expired"`
	Errored   int    `db:"errored" json:"errored"`
	Settled   int64  `db:"settled" json:"settled_amount"`
}

const dayLayout = "2006-01-02"

func (r *PostgresRepository) StatsByDay(ctx context.Context, from, to time.Time) ([]DailyStats, error) {
	query := `
SELECT
  TO_CHAR(DATE(created_at), 'YYYY-MM-DD')                  AS day,
  COUNT(*)                                                 AS created,
  COUNT(*) FILTER (WHERE status = 'completed')             AS completed,
  COUNT(*) FILTER (WHERE status = 'expired')               AS expired,
  COUNT(*) FILTER (WHERE status = 'error')                 AS errored,
  COALESCE(SUM(requested_amount) FILTER (WHERE status = 'completed'), 0) AS settled
FROM payment_intents
WHERE created_at >= $1 AND created_at < $2
GROUP BY DATE(created_at)
ORDER BY day;
`
	stats := []DailyStats{}
	if err := r.db.SelectContext(ctx, &stats, query, from, to); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *MemoryRepository) StatsByDay(_ context.Context, from, to time.Time) ([]DailyStats, error) {
	rows := r.filter(0, false, func(in Intent) bool {
		return !in.CreatedAt.Before(from) && in.CreatedAt.Before(to)
	})

	stats := []DailyStats{}
	for _, in := range rows {
		day := in.CreatedAt.UTC().Format(dayLayout)
		if len(stats) == 0 || stats[len(stats)-1].Day != day {
			stats = append(stats, DailyStats{Day: day})
		}
		s := &stats[len(stats)-1]
		s.Created++
		switch in.Status {
		case StatusCompleted:
			s.Completed++
			s.Settled += in.Requested
		case StatusExpired:
			s.Expired++
		case StatusError:
			s.Errored++
		}
	}
	return stats, nil
}
