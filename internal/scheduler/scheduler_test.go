package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fundingflow/config"
	"fundingflow/internal/models"
	"fundingflow/internal/scraper"
	"fundingflow/internal/timeframe"
)

type fakeJob struct {
	mu       sync.Mutex
	exchange models.Exchange
	runs     int
	lastWin  timeframe.Window
	err      error
	ran      chan struct{}
}

func (f *fakeJob) Exchange() models.Exchange { return f.exchange }

func (f *fakeJob) Run(ctx context.Context, win timeframe.Window) (scraper.Summary, error) {
	f.mu.Lock()
	f.runs++
	f.lastWin = win
	first := f.runs == 1
	f.mu.Unlock()
	if first && f.ran != nil {
		close(f.ran)
	}
	if f.err != nil {
		return scraper.Summary{}, f.err
	}
	return scraper.Summary{Exchange: f.exchange, Rows: 1}, nil
}

func (f *fakeJob) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func TestNextDelayHourly(t *testing.T) {
	s := New(config.SchedulerConfig{Mode: "hourly", HourlyAtMinute: 30}, nil)

	now := time.Date(2024, 6, 1, 12, 15, 0, 0, time.UTC)
	if got := s.nextDelay(now); got != 15*time.Minute {
		t.Errorf("delay before the minute = %v, want 15m", got)
	}

	now = time.Date(2024, 6, 1, 12, 45, 0, 0, time.UTC)
	if got := s.nextDelay(now); got != 45*time.Minute {
		t.Errorf("delay after the minute = %v, want 45m", got)
	}
}

func TestNextDelayInterval(t *testing.T) {
	s := New(config.SchedulerConfig{Mode: "interval", IntervalSeconds: 90}, nil)
	if got := s.nextDelay(time.Now()); got != 90*time.Second {
		t.Errorf("interval delay = %v, want 90s", got)
	}
}

func TestRunAllIsolatesFailures(t *testing.T) {
	broken := &fakeJob{exchange: models.ExchangeAevo, err: errors.New("upstream down")}
	healthy := &fakeJob{exchange: models.ExchangeBybit}
	s := New(config.SchedulerConfig{Mode: "interval", IntervalSeconds: 3600, Timeframe: "1h"}, []Job{broken, healthy})

	s.runAll(context.Background(), "1h")

	if broken.runCount() != 1 || healthy.runCount() != 1 {
		t.Errorf("runs = %d, %d; want 1, 1", broken.runCount(), healthy.runCount())
	}
}

func TestRunAllParallel(t *testing.T) {
	jobs := []Job{
		&fakeJob{exchange: models.ExchangeAevo},
		&fakeJob{exchange: models.ExchangeBybit},
		&fakeJob{exchange: models.ExchangeGateio},
	}
	s := New(config.SchedulerConfig{Mode: "interval", IntervalSeconds: 3600, Parallel: true, Timeframe: "1h"}, jobs)

	s.runAll(context.Background(), "1h")

	for _, j := range jobs {
		if j.(*fakeJob).runCount() != 1 {
			t.Errorf("%s ran %d times, want 1", j.Exchange(), j.(*fakeJob).runCount())
		}
	}
}

func TestStartRunsImmediatelyWithBootstrap(t *testing.T) {
	job := &fakeJob{exchange: models.ExchangeBybit, ran: make(chan struct{})}
	s := New(config.SchedulerConfig{
		Mode:              "interval",
		IntervalSeconds:   3600,
		Timeframe:         "1h",
		BootstrapFirstRun: true,
	}, []Job{job})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	select {
	case <-job.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("first run did not fire immediately")
	}

	job.mu.Lock()
	dur := job.lastWin.Duration()
	job.mu.Unlock()
	if dur != 365*86_400_000 {
		t.Errorf("bootstrap window = %d ms, want one year", dur)
	}

	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start should fail while running")
	}
}
