package scraper

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"fundingflow/config"
	"fundingflow/internal/models"
	"fundingflow/internal/timeframe"
	"fundingflow/logger"
)

// Fetcher is the slice of the fetch adapter the scraper needs.
type Fetcher interface {
	Exchange() models.Exchange
	FetchHistory(ctx context.Context, instrument string, win timeframe.Window) ([]models.RawFunding, error)
}

// Sink receives the normalized records, one atomic batch at a time.
type Sink interface {
	InsertMany(ctx context.Context, ex models.Exchange, records []models.FundingRecord) error
}

// Summary describes one completed scrape run for an exchange.
type Summary struct {
	RunID       string
	Exchange    models.Exchange
	Instruments int
	Rows        int
	Failed      int
	Duration    time.Duration
}

// Scraper pulls funding history for a fixed instrument list from one
// exchange. Instruments are processed in batches to bound memory; within a
// batch a worker pool fetches concurrently and the batch is flushed to the
// sink before the next one starts.
type Scraper struct {
	adapter      Fetcher
	sink         Sink
	instruments  []string
	batchSize    int
	maxWorkers   int
	fetchTimeout time.Duration
	log          *logger.Entry
}

func New(adapter Fetcher, sink Sink, instruments []string, cfg config.ScraperConfig) *Scraper {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	return &Scraper{
		adapter:      adapter,
		sink:         sink,
		instruments:  instruments,
		batchSize:    batchSize,
		maxWorkers:   maxWorkers,
		fetchTimeout: cfg.FetchTimeout,
		log:          logger.GetLogger().WithComponent(string(adapter.Exchange()) + "_scraper"),
	}
}

func (s *Scraper) Exchange() models.Exchange {
	return s.adapter.Exchange()
}

// Run scrapes the full instrument list for the given window. Individual
// instrument failures are logged and counted but do not abort the run.
func (s *Scraper) Run(ctx context.Context, win timeframe.Window) (Summary, error) {
	start := time.Now()
	summary := Summary{
		RunID:       uuid.NewString(),
		Exchange:    s.adapter.Exchange(),
		Instruments: len(s.instruments),
	}

	s.log.WithFields(logger.Fields{
		"run_id":      summary.RunID,
		"instruments": len(s.instruments),
		"since":       win.Since,
		"until":       win.Until,
	}).Info("scrape run started")

	for i := 0; i < len(s.instruments); i += s.batchSize {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		end := i + s.batchSize
		if end > len(s.instruments) {
			end = len(s.instruments)
		}
		batch := s.instruments[i:end]

		records, failed := s.fetchBatch(ctx, batch, win)
		summary.Failed += failed

		if len(records) == 0 {
			continue
		}
		if err := s.sink.InsertMany(ctx, summary.Exchange, records); err != nil {
			// The batch is atomic, so every instrument in it is lost.
			s.log.WithError(err).WithFields(logger.Fields{"run_id": summary.RunID, "batch_rows": len(records)}).Error("failed to store batch")
			summary.Failed += len(batch)
			continue
		}
		summary.Rows += len(records)
	}

	summary.Duration = time.Since(start)
	logger.IncrementScrapeRun()

	s.log.WithFields(logger.Fields{
		"run_id":      summary.RunID,
		"rows":        summary.Rows,
		"failed":      summary.Failed,
		"duration_ms": summary.Duration.Milliseconds(),
	}).Info("scrape run finished")

	return summary, nil
}

// fetchBatch fans the batch out over min(maxWorkers, len(batch)) workers and
// joins before returning.
func (s *Scraper) fetchBatch(ctx context.Context, batch []string, win timeframe.Window) ([]models.FundingRecord, int) {
	workers := s.maxWorkers
	if len(batch) < workers {
		workers = len(batch)
	}

	jobs := make(chan string)
	var mu sync.Mutex
	var records []models.FundingRecord
	failed := 0

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for instrument := range jobs {
				rows, err := s.fetchOne(ctx, instrument, win)
				mu.Lock()
				if err != nil {
					failed++
				} else {
					records = append(records, rows...)
				}
				mu.Unlock()
				if err != nil {
					s.log.WithError(err).WithFields(logger.Fields{"instrument": instrument}).Warn("instrument fetch failed")
				}
			}
		}()
	}

	for _, instrument := range batch {
		jobs <- instrument
	}
	close(jobs)
	wg.Wait()

	return records, failed
}

func (s *Scraper) fetchOne(ctx context.Context, instrument string, win timeframe.Window) ([]models.FundingRecord, error) {
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	raw, err := s.adapter.FetchHistory(ctx, instrument, win)
	if err != nil {
		return nil, err
	}

	records := make([]models.FundingRecord, 0, len(raw))
	for _, r := range raw {
		records = append(records, models.FundingRecord{
			InstrumentName: r.Ticker,
			Timestamp:      r.Timestamp,
			FundingRate:    r.FundingRate,
			MarkPrice:      r.MarkPrice,
		})
	}
	return records, nil
}
