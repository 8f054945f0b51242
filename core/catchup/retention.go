package catchup

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/mudler/xlog"
)

// Retention runs Sweep on a cron expression until Stop is called.
type Retention struct {
	sim    *Simulator
	cron   string
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRetention(sim *Simulator, cron string) (*Retention, error) {
	if !gronx.New().IsValid(cron) {
		return nil, fmt.Errorf("invalid retention cron %q", cron)
	}
	return &Retention{sim: sim, cron: cron}, nil
}

func (r *Retention) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	xlog.Info("Retention sweep scheduled", "cron", r.cron)
	go r.loop(ctx)
}

func (r *Retention) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

func (r *Retention) loop(ctx context.Context) {
	defer close(r.done)
	for {
		now := time.Now()
		next, err := gronx.NextTickAfter(r.cron, now, false)
		if err != nil {
			xlog.Error("Retention next tick failed", "cron", r.cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if _, err := r.sim.Sweep(ctx); err != nil {
				xlog.Error("Retention sweep failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
