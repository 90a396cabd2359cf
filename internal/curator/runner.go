package curator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jkivela/packwatch/internal/logging"
)

// Runner drives each group's periodic pass on its own ticker. Group failures
// are isolated: one group erroring never stalls another.
type Runner struct {
	groups []*Group
	logger *slog.Logger
}

func NewRunner(groups []*Group) *Runner {
	return &Runner{
		groups: groups,
		logger: logging.ForService("curator"),
	}
}

// Run blocks until ctx is cancelled, running each group's pass loop in its
// own goroutine. The first pass for a group fires immediately, then on its
// configured period.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, g := range r.groups {
		wg.Add(1)
		go func(g *Group) {
			defer wg.Done()
			r.runGroup(ctx, g)
		}(g)
	}
	wg.Wait()
}

func (r *Runner) runGroup(ctx context.Context, g *Group) {
	ticker := time.NewTicker(g.Period())
	defer ticker.Stop()

	r.pass(ctx, g)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("group loop stopping", "group", g.ID())
			return
		case <-ticker.C:
			r.pass(ctx, g)
		}
	}
}

func (r *Runner) pass(ctx context.Context, g *Group) {
	if err := g.RunPass(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("pass failed", "group", g.ID(), "error", err)
	}
}
