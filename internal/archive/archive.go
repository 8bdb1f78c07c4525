package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "fundingflow/config"
	"fundingflow/internal/models"
	"fundingflow/logger"
)

// ParquetRecord is the archived row layout.
type ParquetRecord struct {
	Exchange       string `parquet:"name=exchange, type=BYTE_ARRAY, convertedtype=UTF8"`
	InstrumentName string `parquet:"name=instrument_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp      int64  `parquet:"name=timestamp, type=INT64"`
	FundingRate    string `parquet:"name=funding_rate, type=BYTE_ARRAY, convertedtype=UTF8"`
	MarkPrice      string `parquet:"name=mark_price, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// memoryFileWriter implements the ParquetFile interface for in-memory writing
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

// Store is the slice of the storage gateway the sweeper needs.
type Store interface {
	SelectOlderThan(ctx context.Context, ex models.Exchange, ageDays int) ([]models.FundingRecord, error)
	DeleteOlderThan(ctx context.Context, ex models.Exchange, ageDays int) (int64, error)
}

// Uploader is satisfied by *s3.Client.
type Uploader interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Sweeper copies expired funding rows to S3 as parquet and only then
// deletes them. A failed upload aborts the deletion for that exchange, so
// rows are never lost to a half-done sweep.
type Sweeper struct {
	store      Store
	uploader   Uploader
	bucket     string
	prefix     string
	maxAgeDays int
	log        *logger.Entry
}

// NewSweeper wires the sweeper against a real S3 client built from the
// storage configuration.
func NewSweeper(cfg *appconfig.Config, store Store) (*Sweeper, error) {
	ctx := context.Background()

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Storage.S3.Region)}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	return &Sweeper{
		store:      store,
		uploader:   client,
		bucket:     cfg.Storage.S3.Bucket,
		prefix:     cfg.Retention.Prefix,
		maxAgeDays: cfg.Retention.MaxAgeDays,
		log:        logger.GetLogger().WithComponent("archive"),
	}, nil
}

// Sweep archives and deletes expired rows for every exchange. Exchanges are
// independent; one failure does not stop the others.
func (s *Sweeper) Sweep(ctx context.Context) error {
	var failed int
	for _, ex := range models.Exchanges() {
		if err := s.sweepExchange(ctx, ex); err != nil {
			s.log.WithError(err).WithFields(logger.Fields{"exchange": ex}).Error("sweep failed")
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("sweep failed for %d exchange(s)", failed)
	}
	return nil
}

func (s *Sweeper) sweepExchange(ctx context.Context, ex models.Exchange) error {
	rows, err := s.store.SelectOlderThan(ctx, ex, s.maxAgeDays)
	if err != nil {
		return fmt.Errorf("failed to select expired rows: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	data, err := createParquetFile(ex, rows)
	if err != nil {
		return fmt.Errorf("failed to build parquet file: %w", err)
	}

	key := s.objectKey(ex)
	if _, err := s.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type": "parquet",
			"exchange":     string(ex),
		},
	}); err != nil {
		// Keep the rows; deleting without a confirmed archive loses data.
		return fmt.Errorf("failed to upload archive to s3://%s/%s: %w", s.bucket, key, err)
	}
	logger.IncrementArchiveWrite()

	deleted, err := s.store.DeleteOlderThan(ctx, ex, s.maxAgeDays)
	if err != nil {
		return fmt.Errorf("archived but failed to delete expired rows: %w", err)
	}

	s.log.WithFields(logger.Fields{
		"exchange": ex,
		"rows":     len(rows),
		"deleted":  deleted,
		"key":      key,
	}).Info("expired rows archived")
	return nil
}

func (s *Sweeper) objectKey(ex models.Exchange) string {
	prefix := s.prefix
	if prefix == "" {
		prefix = "funding-archive"
	}
	return fmt.Sprintf("%s/%s/%s-%s.parquet", prefix, ex, time.Now().UTC().Format("2006-01-02"), uuid.NewString())
}

func createParquetFile(ex models.Exchange, rows []models.FundingRecord) ([]byte, error) {
	fw := newMemoryFileWriter()

	pw, err := writer.NewParquetWriter(fw, new(ParquetRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		record := ParquetRecord{
			Exchange:       string(ex),
			InstrumentName: row.InstrumentName,
			Timestamp:      row.Timestamp,
			FundingRate:    row.FundingRate,
		}
		if row.MarkPrice != nil {
			record.MarkPrice = *row.MarkPrice
		}
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Bytes(), nil
}
