package blackouts

import (
	"context"
	"log/slog"
	"time"
)

// Pruner calls Prune on a fixed interval until its context ends.
type Pruner struct {
	svc      *Service
	interval time.Duration
	log      *slog.Logger
}

func NewPruner(svc *Service, interval time.Duration, log *slog.Logger) *Pruner {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pruner{svc: svc, interval: interval, log: log.With(slog.String("component", "blackouts.pruner"))}
}

// Run prunes once immediately, then on every tick. It returns when ctx is
// done.
func (p *Pruner) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Pruner) tick(ctx context.Context) {
	if _, err := p.svc.Prune(ctx, p.svc.now()); err != nil && ctx.Err() == nil {
		p.log.Warn("scheduled prune failed", slog.Any("err", err))
	}
}
