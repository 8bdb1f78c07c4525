package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"fundingflow/internal/models"
	"fundingflow/internal/timeframe"
	"fundingflow/logger"
)

// Store persists funding history in Postgres, one table per exchange.
// Timestamps are stored in each exchange's native unit; the millisecond
// windows callers pass in are converted at query time.
type Store struct {
	db  *sql.DB
	log *logger.Entry
}

func New(db *sql.DB) *Store {
	return &Store{
		db:  db,
		log: logger.GetLogger().WithComponent("store"),
	}
}

func tableFor(ex models.Exchange) string {
	return "funding_data_" + string(ex)
}

// Migrate creates the per-exchange funding tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, ex := range models.Exchanges() {
		table := tableFor(ex)
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			instrument_name TEXT NOT NULL,
			timestamp BIGINT NOT NULL,
			funding_rate TEXT NOT NULL,
			mark_price TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, table)
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}
		idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_instrument_ts ON %s (instrument_name, timestamp)`, table, table)
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", table, err)
		}
	}
	return nil
}

// InsertMany bulk-loads one batch of records in a single transaction. The
// batch is atomic: on any failure the transaction rolls back and no row of
// the batch is kept.
func (s *Store) InsertMany(ctx context.Context, ex models.Exchange, records []models.FundingRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(tableFor(ex), "id", "instrument_name", "timestamp", "funding_rate", "mark_price"))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare bulk insert: %w", err)
	}

	for _, rec := range records {
		var mark any
		if rec.MarkPrice != nil {
			mark = *rec.MarkPrice
		}
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), rec.InstrumentName, rec.Timestamp, rec.FundingRate, mark); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("failed to stage row for %s: %w", ex, err)
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		tx.Rollback()
		return fmt.Errorf("failed to flush bulk insert for %s: %w", ex, err)
	}
	if err := stmt.Close(); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to close bulk insert for %s: %w", ex, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch for %s: %w", ex, err)
	}

	logger.IncrementStored(len(records))
	return nil
}

func (s *Store) DeleteAll(ctx context.Context, ex models.Exchange) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM "+tableFor(ex))
	return err
}

func (s *Store) Count(ctx context.Context, ex models.Exchange) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+tableFor(ex)).Scan(&n)
	return n, err
}

// cutoffNative converts an age in days to a native-unit timestamp below
// which rows count as expired.
func cutoffNative(ex models.Exchange, ageDays int, now time.Time) int64 {
	cutoffMs := now.Add(-time.Duration(ageDays) * 24 * time.Hour).UnixMilli()
	return timeframe.UnitFor(ex).FromMillis(cutoffMs)
}

// DeleteOlderThan removes rows older than ageDays and reports how many went.
func (s *Store) DeleteOlderThan(ctx context.Context, ex models.Exchange, ageDays int) (int64, error) {
	cutoff := cutoffNative(ex, ageDays, time.Now())
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+tableFor(ex)+" WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SelectOlderThan returns the rows that DeleteOlderThan would remove, so the
// archiver can copy them out first.
func (s *Store) SelectOlderThan(ctx context.Context, ex models.Exchange, ageDays int) ([]models.FundingRecord, error) {
	cutoff := cutoffNative(ex, ageDays, time.Now())
	rows, err := s.db.QueryContext(ctx,
		"SELECT instrument_name, timestamp, funding_rate, mark_price FROM "+tableFor(ex)+" WHERE timestamp < $1 ORDER BY timestamp",
		cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FundingRecord
	for rows.Next() {
		var rec models.FundingRecord
		var mark sql.NullString
		if err := rows.Scan(&rec.InstrumentName, &rec.Timestamp, &rec.FundingRate, &mark); err != nil {
			return nil, err
		}
		if mark.Valid {
			rec.MarkPrice = &mark.String
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) DistinctTickers(ctx context.Context, ex models.Exchange) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT instrument_name FROM "+tableFor(ex))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UnionDistinctTickers merges the distinct tickers of every exchange table
// into one sorted, deduplicated list.
func (s *Store) UnionDistinctTickers(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, ex := range models.Exchanges() {
		tickers, err := s.DistinctTickers(ctx, ex)
		if err != nil {
			return nil, err
		}
		for _, t := range tickers {
			seen[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// AccumulatedFunding sums funding rates per ticker over the window. The sum
// happens in NUMERIC so string-stored rates keep their exact precision; the
// window is converted to the exchange's native unit and is inclusive on both
// ends.
func (s *Store) AccumulatedFunding(ctx context.Context, ex models.Exchange, win timeframe.Window, keyword string) ([]models.TickerFunding, error) {
	native := timeframe.ToNative(ex, win)

	query := "SELECT instrument_name, SUM(CAST(funding_rate AS NUMERIC))::text FROM " + tableFor(ex) +
		" WHERE timestamp >= $1 AND timestamp <= $2"
	args := []any{native.Since, native.Until}
	if keyword != "" {
		query += " AND instrument_name = $3"
		args = append(args, strings.ToUpper(keyword))
	}
	query += " GROUP BY instrument_name"

	return s.queryTickerFunding(ctx, query, args...)
}

// AccumulatedFundingPaginated is AccumulatedFunding with name ordering and
// offset pagination applied in SQL.
func (s *Store) AccumulatedFundingPaginated(ctx context.Context, ex models.Exchange, page, limit int, win timeframe.Window, sortOrder, keyword string) ([]models.TickerFunding, error) {
	var order string
	switch sortOrder {
	case "asc":
		order = "ASC"
	case "desc":
		order = "DESC"
	default:
		return nil, fmt.Errorf("invalid sort order %q: use 'asc' or 'desc'", sortOrder)
	}

	native := timeframe.ToNative(ex, win)

	query := "SELECT instrument_name, SUM(CAST(funding_rate AS NUMERIC))::text FROM " + tableFor(ex) +
		" WHERE timestamp >= $1 AND timestamp <= $2"
	args := []any{native.Since, native.Until}
	if keyword != "" {
		query += fmt.Sprintf(" AND instrument_name = $%d", len(args)+1)
		args = append(args, strings.ToUpper(keyword))
	}
	query += " GROUP BY instrument_name ORDER BY instrument_name " + order
	query += fmt.Sprintf(" OFFSET $%d LIMIT $%d", len(args)+1, len(args)+2)
	args = append(args, (page-1)*limit, limit)

	return s.queryTickerFunding(ctx, query, args...)
}

// LatestFunding returns the most recent funding rate per ticker, used as the
// fallback when a windowed query comes back empty.
func (s *Store) LatestFunding(ctx context.Context, ex models.Exchange, keyword string) ([]models.TickerFunding, error) {
	query := "SELECT DISTINCT ON (instrument_name) instrument_name, funding_rate FROM " + tableFor(ex)
	var args []any
	if keyword != "" {
		query += " WHERE instrument_name = $1"
		args = append(args, strings.ToUpper(keyword))
	}
	query += " ORDER BY instrument_name, timestamp DESC"

	return s.queryTickerFunding(ctx, query, args...)
}

func (s *Store) queryTickerFunding(ctx context.Context, query string, args ...any) ([]models.TickerFunding, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TickerFunding
	for rows.Next() {
		var tf models.TickerFunding
		if err := rows.Scan(&tf.Ticker, &tf.FundingRate); err != nil {
			return nil, err
		}
		out = append(out, tf)
	}
	return out, rows.Err()
}
