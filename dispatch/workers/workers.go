package workers

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v4/pgxpool"

	"go.fieldcore.build/dispatch/config"
	"go.fieldcore.build/dispatch/escalation"
	"go.fieldcore.build/go/now"
	"go.fieldcore.build/go/skerr"
	"go.fieldcore.build/go/sklog"
)

// task pairs one periodic job with its own ticker, mirroring
// golden/cmd/periodictasks' one-goroutine-per-task shape.
type task struct {
	name   string
	period config.Duration
	tick   func(ctx context.Context) error
}

// Workers owns every periodic background job this service runs (spec.md
// §4.8) and drives each on its own configured period.
type Workers struct {
	pool  *pgxpool.Pool
	tasks []task
}

// New builds the full set of background workers from cfg, wiring the
// shared pool and the given Geocoder/SMSSender/EmailSender collaborators.
func New(pool *pgxpool.Pool, cfg config.PeriodicTasksConfig, geocoder Geocoder, sms SMSSender, email EmailSender) *Workers {
	geo := NewGeocodingWorker(pool, geocoder)
	sched := NewScheduleMaterializer(pool)
	membership := NewMembershipRenewalProcessor(pool)
	reviews := NewReviewRequestDispatcher(pool, sms, email)

	w := &Workers{pool: pool}
	w.tasks = []task{
		{name: "geocoding", period: cfg.GeocodingPeriod, tick: geo.Tick},
		{name: "schedule-materializer", period: cfg.ScheduleMaterializerPeriod, tick: sched.Tick},
		{name: "membership-renewal", period: cfg.MembershipRenewalPeriod, tick: membership.Tick},
		{name: "review-requests", period: cfg.ReviewRequestPeriod, tick: reviews.Tick},
		{name: "escalation-advance", period: cfg.EscalationAdvancePeriod, tick: w.advanceEscalations},
	}
	return w
}

// Run starts every task's ticker and blocks until ctx is cancelled. Each
// task's errors are logged, not fatal - one task's failure never stops the
// others (spec.md §4.8: "a single task's failure must never halt the
// others").
func (w *Workers) Run(ctx context.Context) {
	done := make(chan struct{}, len(w.tasks))
	for _, t := range w.tasks {
		t := t
		go func() {
			w.runTask(ctx, t)
			done <- struct{}{}
		}()
	}
	for range w.tasks {
		<-done
	}
}

func (w *Workers) runTask(ctx context.Context, t task) {
	ticker := now.NewTicker(t.period.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if err := t.tick(ctx); err != nil {
				sklog.Errorf("periodic task %s failed: %s", t.name, err)
			}
		}
	}
}

func (w *Workers) advanceEscalations(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return skerr.Wrap(err)
	}
	defer tx.Rollback(ctx)
	res, err := escalation.AdvanceEscalations(ctx, tx)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return skerr.Wrap(err)
	}
	if res.Advanced > 0 || res.TimedOut > 0 {
		sklog.Infof("escalation advance: %d advanced, %d timed out", res.Advanced, res.TimedOut)
	}
	return nil
}

// RunOnce runs every task's tick function exactly once, accumulating
// errors via multierror rather than stopping at the first failure. Used
// by cmd/dispatch-workers in -once mode and by tests.
func (w *Workers) RunOnce(ctx context.Context) error {
	var merr *multierror.Error
	for _, t := range w.tasks {
		if err := t.tick(ctx); err != nil {
			merr = multierror.Append(merr, skerr.Wrapf(err, "task %s", t.name))
		}
	}
	return merr.ErrorOrNil()
}
