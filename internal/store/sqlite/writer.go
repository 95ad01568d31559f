package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"traffic-light/internal/metrics"
	"traffic-light/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath     string // path to SQLite database file, e.g. "data/traffic_light.db"
	BatchSize  int
	FlushDelay time.Duration
	Metrics    *metrics.Metrics // optional
}

// Writer is a single-connection SQLite writer with transaction batching.
type Writer struct {
	db         *sql.DB
	batchSize  int
	flushDelay time.Duration
	metrics    *metrics.Metrics
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer connection; readers use their own pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	w := &Writer{
		db:         db,
		batchSize:  cfg.BatchSize,
		flushDelay: cfg.FlushDelay,
		metrics:    cfg.Metrics,
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultBatchSize
	}
	if w.flushDelay <= 0 {
		w.flushDelay = defaultFlushDelay
	}

	log.Info().Str("component", "sqlite").Str("path", cfg.DBPath).Msg("opened database")
	return w, nil
}

func open(path string) (*sql.DB, error) {
	return sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS market_data (
			id                   INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol               TEXT    NOT NULL,
			price                REAL    NOT NULL,
			volume               REAL    NOT NULL,
			ts                   INTEGER NOT NULL,
			sma_20               REAL,
			sma_50               REAL,
			rsi                  REAL,
			momentum_score       REAL,
			mean_reversion_score REAL
		);
		CREATE INDEX IF NOT EXISTS idx_market_data_symbol_ts ON market_data (symbol, ts);

		CREATE TABLE IF NOT EXISTS trade_setups (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol              TEXT    NOT NULL,
			setup_type          TEXT    NOT NULL,
			signal_strength     TEXT    NOT NULL,
			score               REAL    NOT NULL,
			r_multiple          REAL    NOT NULL,
			entry_price         REAL    NOT NULL,
			stop_loss           REAL    NOT NULL,
			target_price        REAL    NOT NULL,
			ts                  INTEGER NOT NULL,
			setup_notes         TEXT,
			invalidation_reason TEXT,
			risk_reward_ratio   REAL,
			market_context      TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_trade_setups_symbol_ts ON trade_setups (symbol, ts);
	`)
	return err
}

// Run reads enriched samples from ch and inserts them in batched transactions.
// Flushes every batchSize rows OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or ch is closed.
func (w *Writer) Run(ctx context.Context, ch <-chan model.MarketData) {
	batch := make([]model.MarketData, 0, w.batchSize)
	timer := time.NewTimer(w.flushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatch(batch); err != nil {
			log.Error().Err(err).Str("component", "sqlite").Int("rows", len(batch)).Msg("batch insert failed")
		} else {
			if w.metrics != nil {
				w.metrics.SQLiteCommitDur.Observe(time.Since(start).Seconds())
			}
			log.Debug().Str("component", "sqlite").Int("rows", len(batch)).
				Dur("took", time.Since(start)).Msg("committed market data")
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case md, ok := <-ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, md)
			if len(batch) >= w.batchSize {
				flush()
				timer.Reset(w.flushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(w.flushDelay)
		}
	}
}

// insertBatch inserts a batch of rows in a single transaction.
func (w *Writer) insertBatch(rows []model.MarketData) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO market_data (symbol, price, volume, ts, sma_20, sma_50, rsi, momentum_score, mean_reversion_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, md := range rows {
		_, err := stmt.Exec(md.Symbol, md.Price, md.Volume, md.Timestamp.UnixNano(),
			nullable(md.SMA20), nullable(md.SMA50), nullable(md.RSI),
			nullable(md.MomentumScore), nullable(md.MeanReversionScore))
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// SaveSetup persists s and assigns its ID.
func (w *Writer) SaveSetup(ctx context.Context, s *model.TradeSetup) error {
	res, err := w.db.ExecContext(ctx, `
		INSERT INTO trade_setups (symbol, setup_type, signal_strength, score, r_multiple,
			entry_price, stop_loss, target_price, ts,
			setup_notes, invalidation_reason, risk_reward_ratio, market_context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.Symbol, string(s.SetupType), string(s.SignalStrength), s.Score, s.RMultiple,
		s.EntryPrice, s.StopLoss, s.TargetPrice, s.Timestamp.UnixNano(),
		nullString(s.Notes), nullString(s.InvalidationReason), s.RiskRewardRatio, nullString(s.MarketContext))
	if err != nil {
		return fmt.Errorf("sqlite insert setup: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite setup id: %w", err)
	}
	s.ID = id
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
