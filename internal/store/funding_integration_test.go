package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"fundingflow/config"
	"fundingflow/internal/models"
	"fundingflow/internal/timeframe"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		t.Skip("DB_DSN not set; integration test skipped")
	}
	db, err := OpenPostgres(config.PostgresConfig{DSN: dsn})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	s := New(db)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestInsertManyAndAccumulate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ex := models.ExchangeBybit

	// Unique ticker per run so reruns do not interfere.
	ticker := fmt.Sprintf("T%d", time.Now().UnixNano())
	now := time.Now().UnixMilli()
	mark := "100.5"

	records := []models.FundingRecord{
		{InstrumentName: ticker, Timestamp: now - 1000, FundingRate: "0.0001", MarkPrice: &mark},
		{InstrumentName: ticker, Timestamp: now, FundingRate: "0.0002"},
	}
	if err := s.InsertMany(ctx, ex, records); err != nil {
		t.Fatalf("InsertMany: %v", err)
	}

	// Duplicate insert is kept as-is: two more rows, no dedup.
	if err := s.InsertMany(ctx, ex, records); err != nil {
		t.Fatalf("second InsertMany: %v", err)
	}

	win := timeframe.Window{Since: now - 2000, Until: now}
	sums, err := s.AccumulatedFunding(ctx, ex, win, ticker)
	if err != nil {
		t.Fatalf("AccumulatedFunding: %v", err)
	}
	if len(sums) != 1 {
		t.Fatalf("got %d groups, want 1", len(sums))
	}
	// 2 * (0.0001 + 0.0002) summed exactly in NUMERIC.
	if sums[0].FundingRate != "0.0006" {
		t.Errorf("sum = %s, want 0.0006", sums[0].FundingRate)
	}

	latest, err := s.LatestFunding(ctx, ex, ticker)
	if err != nil {
		t.Fatalf("LatestFunding: %v", err)
	}
	if len(latest) != 1 || latest[0].FundingRate != "0.0002" {
		t.Errorf("latest = %+v, want the newest rate 0.0002", latest)
	}
}

func TestAccumulatedFundingPaginated(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ex := models.ExchangeGateio

	suf := time.Now().UnixNano()
	nowSec := time.Now().Unix()
	var records []models.FundingRecord
	for i := 0; i < 3; i++ {
		records = append(records, models.FundingRecord{
			InstrumentName: fmt.Sprintf("P%d%c", suf, 'A'+i),
			Timestamp:      nowSec,
			FundingRate:    "0.0001",
		})
	}
	if err := s.InsertMany(ctx, ex, records); err != nil {
		t.Fatalf("InsertMany: %v", err)
	}

	win := timeframe.Window{Since: (nowSec - 10) * 1000, Until: nowSec * 1000}
	page1, err := s.AccumulatedFundingPaginated(ctx, ex, 1, 2, win, "asc", "")
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	page2, err := s.AccumulatedFundingPaginated(ctx, ex, 2, 2, win, "asc", "")
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page1) != 2 {
		t.Errorf("page 1 has %d rows, want 2", len(page1))
	}
	if len(page1) > 0 && len(page2) > 0 && page1[0].Ticker >= page2[len(page2)-1].Ticker {
		t.Errorf("pages out of order: %v then %v", page1, page2)
	}

	if _, err := s.AccumulatedFundingPaginated(ctx, ex, 1, 2, win, "sideways", ""); err == nil {
		t.Error("expected error for invalid sort order")
	}
}

func TestDeleteOlderThan(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ex := models.ExchangeHyperliquid

	ticker := fmt.Sprintf("D%d", time.Now().UnixNano())
	old := time.Now().AddDate(0, 0, -400).UnixMilli()
	fresh := time.Now().UnixMilli()

	records := []models.FundingRecord{
		{InstrumentName: ticker, Timestamp: old, FundingRate: "0.0001"},
		{InstrumentName: ticker, Timestamp: fresh, FundingRate: "0.0002"},
	}
	if err := s.InsertMany(ctx, ex, records); err != nil {
		t.Fatalf("InsertMany: %v", err)
	}

	expired, err := s.SelectOlderThan(ctx, ex, 365)
	if err != nil {
		t.Fatalf("SelectOlderThan: %v", err)
	}
	found := false
	for _, rec := range expired {
		if rec.InstrumentName == ticker {
			found = true
		}
	}
	if !found {
		t.Error("old row not selected for expiry")
	}

	if _, err := s.DeleteOlderThan(ctx, ex, 365); err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}

	latest, err := s.LatestFunding(ctx, ex, ticker)
	if err != nil {
		t.Fatalf("LatestFunding: %v", err)
	}
	if len(latest) != 1 || latest[0].FundingRate != "0.0002" {
		t.Errorf("fresh row should survive expiry, got %+v", latest)
	}
}
