package worker

import (
	"context"
	"log/slog"
	"time"
)

type expiredSessionPruner interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// PruneSessions deletes credential sessions that expired more than grace ago.
func PruneSessions(sessions expiredSessionPruner, grace, every time.Duration, log *slog.Logger) Task {
	return Task{
		Name:     "prune_sessions",
		Interval: every,
		Run: func(ctx context.Context) error {
			n, err := sessions.DeleteExpired(ctx, time.Now().Add(-grace))
			if err != nil {
				return err
			}
			if n > 0 && log != nil {
				log.Info("expired sessions pruned", "count", n)
			}
			return nil
		},
	}
}

type poolStatsSource interface {
	PoolStats() (total, idle, stale uint32)
}

type poolStatsSink interface {
	RedisPool(total, idle, stale uint32)
}

// ReportPoolStats copies cache connection pool gauges into metrics.
func ReportPoolStats(src poolStatsSource, sink poolStatsSink, every time.Duration) Task {
	return Task{
		Name:     "cache_pool_stats",
		Interval: every,
		Run: func(context.Context) error {
			sink.RedisPool(src.PoolStats())
			return nil
		},
	}
}
