package correlation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// DefaultSweepCron purges expired records every five minutes.
const DefaultSweepCron = "*/5 * * * *"

// Sweeper periodically purges expired records from stores that keep them after expiry.
type Sweeper struct {
	purger Purger
	expr   string
	gron   *gronx.Gronx
	tick   time.Duration
}

// NewSweeper validates the cron expression and creates a sweeper.
func NewSweeper(p Purger, expr string) (*Sweeper, error) {
	if expr == "" {
		expr = DefaultSweepCron
	}
	g := gronx.New()
	if !g.IsValid(expr) {
		return nil, fmt.Errorf("invalid sweep cron expression %q", expr)
	}
	return &Sweeper{purger: p, expr: expr, gron: g, tick: time.Minute}, nil
}

// Run checks the schedule once a minute and purges when due. It blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	slog.Info("correlation sweeper started", "cron", s.expr)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			due, err := s.gron.IsDue(s.expr, now.Truncate(time.Minute))
			if err != nil {
				slog.Warn("correlation sweeper: schedule check failed", "error", err)
				continue
			}
			if !due {
				continue
			}
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		slog.Warn("correlation sweeper: purge failed", "error", err)
		return
	}
	if n > 0 {
		slog.Debug("correlation sweeper: purged expired records", "count", n)
	}
}
