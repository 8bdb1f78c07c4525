package archive

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"fundingflow/internal/models"
	"fundingflow/logger"
)

type fakeStore struct {
	rows       map[models.Exchange][]models.FundingRecord
	deletes    map[models.Exchange]int
	selectErr  error
	deleteErr  error
}

func (f *fakeStore) SelectOlderThan(ctx context.Context, ex models.Exchange, ageDays int) ([]models.FundingRecord, error) {
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	return f.rows[ex], nil
}

func (f *fakeStore) DeleteOlderThan(ctx context.Context, ex models.Exchange, ageDays int) (int64, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	if f.deletes == nil {
		f.deletes = map[models.Exchange]int{}
	}
	f.deletes[ex]++
	return int64(len(f.rows[ex])), nil
}

type fakeUploader struct {
	keys []string
	err  error
}

func (f *fakeUploader) PutObject(ctx context.Context, input *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.keys = append(f.keys, *input.Key)
	return &s3.PutObjectOutput{}, nil
}

func newTestSweeper(store Store, up Uploader) *Sweeper {
	return &Sweeper{
		store:      store,
		uploader:   up,
		bucket:     "test-bucket",
		prefix:     "funding-archive",
		maxAgeDays: 365,
		log:        logger.GetLogger().WithComponent("archive"),
	}
}

func TestSweepArchivesThenDeletes(t *testing.T) {
	mark := "100.5"
	store := &fakeStore{rows: map[models.Exchange][]models.FundingRecord{
		models.ExchangeBybit: {
			{InstrumentName: "BTC", Timestamp: 1, FundingRate: "0.0001", MarkPrice: &mark},
			{InstrumentName: "ETH", Timestamp: 2, FundingRate: "0.0002"},
		},
	}}
	up := &fakeUploader{}

	if err := newTestSweeper(store, up).Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if len(up.keys) != 1 {
		t.Fatalf("uploaded %d objects, want 1", len(up.keys))
	}
	if !strings.HasPrefix(up.keys[0], "funding-archive/bybit/") || !strings.HasSuffix(up.keys[0], ".parquet") {
		t.Errorf("unexpected object key %s", up.keys[0])
	}
	if store.deletes[models.ExchangeBybit] != 1 {
		t.Errorf("bybit deletes = %d, want 1", store.deletes[models.ExchangeBybit])
	}
	// Exchanges with nothing expired are left alone.
	if store.deletes[models.ExchangeAevo] != 0 {
		t.Errorf("aevo should not be touched")
	}
}

func TestSweepUploadFailureKeepsRows(t *testing.T) {
	store := &fakeStore{rows: map[models.Exchange][]models.FundingRecord{
		models.ExchangeBybit: {{InstrumentName: "BTC", Timestamp: 1, FundingRate: "0.0001"}},
	}}
	up := &fakeUploader{err: errors.New("s3 down")}

	if err := newTestSweeper(store, up).Sweep(context.Background()); err == nil {
		t.Fatal("expected error when upload fails")
	}
	if len(store.deletes) != 0 {
		t.Fatalf("rows deleted despite failed archive: %v", store.deletes)
	}
}

func TestCreateParquetFile(t *testing.T) {
	rows := []models.FundingRecord{
		{InstrumentName: "BTC", Timestamp: 1000, FundingRate: "0.0001"},
	}
	data, err := createParquetFile(models.ExchangeGateio, rows)
	if err != nil {
		t.Fatalf("createParquetFile failed: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("empty parquet output")
	}
	// Parquet files start and end with the PAR1 magic.
	if !strings.HasPrefix(string(data), "PAR1") || !strings.HasSuffix(string(data), "PAR1") {
		t.Error("output is not a parquet file")
	}
}
