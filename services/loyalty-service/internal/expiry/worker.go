package expiry

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/md-rashed-zaman/detailcrm/libs/db"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/loyalty"
)

// Sweeper is implemented by *loyalty.Service.
type Sweeper interface {
	SweepExpired(ctx context.Context, businessID string) (loyalty.SweepSummary, error)
}

type Locker interface {
	TryLock(ctx context.Context, key int64) (bool, error)
	Unlock(ctx context.Context, key int64) error
}

// PGLocker takes session-level Postgres advisory locks. The lock belongs to
// the session that took it, so one pooled connection is held while locked.
type PGLocker struct {
	pool *db.Pool
	conn *pgxpool.Conn
}

func NewPGLocker(pool *db.Pool) *PGLocker {
	return &PGLocker{pool: pool}
}

func (l *PGLocker) TryLock(ctx context.Context, key int64) (bool, error) {
	if l.conn == nil {
		conn, err := l.pool.Acquire(ctx)
		if err != nil {
			return false, err
		}
		l.conn = conn
	}
	var locked bool
	if err := l.conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&locked); err != nil {
		l.release()
		return false, err
	}
	if !locked {
		l.release()
	}
	return locked, nil
}

func (l *PGLocker) Unlock(ctx context.Context, key int64) error {
	if l.conn == nil {
		return nil
	}
	defer l.release()
	_, err := l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, key)
	return err
}

func (l *PGLocker) release() {
	if l.conn != nil {
		l.conn.Release()
		l.conn = nil
	}
}

type Worker struct {
	sweeper   Sweeper
	lock      Locker
	logger    *slog.Logger
	interval  time.Duration
	lockKey   int64
	retryWait time.Duration
}

type Config struct {
	Interval        time.Duration
	AdvisoryLockKey int64
}

func NewWorker(sweeper Sweeper, lock Locker, logger *slog.Logger, cfg Config) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.AdvisoryLockKey == 0 {
		cfg.AdvisoryLockKey = 7316002
	}
	return &Worker{
		sweeper:   sweeper,
		lock:      lock,
		logger:    logger,
		interval:  cfg.Interval,
		lockKey:   cfg.AdvisoryLockKey,
		retryWait: 30 * time.Second,
	}
}

// Run waits until this instance holds the advisory lock, then sweeps
// immediately and on every tick until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	for {
		locked, err := w.lock.TryLock(ctx, w.lockKey)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("expiry sweep: failed to acquire advisory lock", "err", err)
		} else if locked {
			break
		} else {
			w.logger.Info("expiry sweep: advisory lock held by another instance", "lock_key", w.lockKey)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.retryWait):
		}
	}
	w.logger.Info("expiry sweep: advisory lock acquired", "lock_key", w.lockKey)
	defer func() {
		if err := w.lock.Unlock(context.Background(), w.lockKey); err != nil {
			w.logger.Warn("expiry sweep: unlock failed", "err", err)
		}
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.SweepOnce(ctx)
		}
	}
}

func (w *Worker) SweepOnce(ctx context.Context) loyalty.SweepSummary {
	start := time.Now()
	sum, err := w.sweeper.SweepExpired(ctx, "")
	if err != nil {
		w.logger.Error("expiry sweep failed", "err", err)
		return sum
	}
	w.logger.Info("expiry sweep finished",
		"accounts", sum.Accounts,
		"expired_accounts", sum.Expired,
		"points_expired", sum.PointsExpired,
		"failed", sum.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return sum
}
