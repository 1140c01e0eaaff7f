package scheduler

import (
	"context"
	"log/slog"
	"rssreader/internal/metrics"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	PollDelay    = 5 * time.Second
	cycleTimeout = time.Minute
)

// delaySchedule activates exactly d after the given time. cron.Every rounds down to
// whole seconds, which would shorten the gap between cycles.
type delaySchedule struct {
	d time.Duration
}

// Delay returns a schedule whose next activation is d after the end of the previous cycle.
func Delay(d time.Duration) cron.Schedule {
	return delaySchedule{d: d}
}

func (s delaySchedule) Next(t time.Time) time.Time {
	return t.Add(s.d)
}

// Refresher runs one polling cycle.
type Refresher interface {
	Refresh(ctx context.Context) (int, error)
}

// Poller repeats refresh cycles until stopped. The next cycle starts at the schedule's
// next activation after the previous cycle ended, so slow cycles never overlap.
type Poller struct {
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once

	schedule  cron.Schedule
	refresher Refresher
	log       *slog.Logger
}

func New(ctx context.Context, refresher Refresher, log *slog.Logger) *Poller {
	return NewWithSchedule(ctx, refresher, Delay(PollDelay), log)
}

func NewWithSchedule(
	ctx context.Context,
	refresher Refresher,
	schedule cron.Schedule,
	log *slog.Logger,
) *Poller {
	ctx, cancel := context.WithCancel(ctx)

	return &Poller{
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		schedule:  schedule,
		refresher: refresher,
		log:       log,
	}
}

func (p *Poller) Start() {
	p.startOnce.Do(func() {
		go p.run()
	})
}

// Stop cancels the loop and waits for an in-flight cycle to return.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()

		started := true
		p.startOnce.Do(func() {
			started = false
		})
		if started {
			<-p.done
		}
	})
}

func (p *Poller) run() {
	defer close(p.done)

	for {
		p.cycle()

		next := p.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-p.ctx.Done():
			timer.Stop()
			p.log.InfoContext(p.ctx, "Poller context is done",
				"error", p.ctx.Err())
			return
		case <-timer.C:
		}
	}
}

func (p *Poller) cycle() {
	ctx, cancel := context.WithTimeout(p.ctx, cycleTimeout)
	defer cancel()

	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			metrics.PollCycles.WithLabelValues("panicked").Inc()
			p.log.ErrorContext(ctx, "Refresh cycle panicked",
				"panic", r,
				"durationSeconds", time.Since(start).Seconds())
		}
	}()

	merged, err := p.refresher.Refresh(ctx)
	if err != nil {
		if p.ctx.Err() != nil {
			return
		}

		metrics.PollCycles.WithLabelValues("failed").Inc()
		p.log.WarnContext(ctx, "Failed to refresh feeds",
			"error", err,
			"durationSeconds", time.Since(start).Seconds())

		return
	}

	metrics.PollCycles.WithLabelValues("ok").Inc()
	metrics.PolledPosts.Add(float64(merged))

	if merged > 0 {
		p.log.InfoContext(ctx, "New posts are merged",
			"postCount", merged,
			"durationSeconds", time.Since(start).Seconds())
	}
}
