package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"traffic-light/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for analysis and history.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection pool for reading.
// The schema must already exist; open a Writer first.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	log.Info().Str("component", "sqlite-reader").Str("path", dbPath).Msg("opened database")
	return &Reader{db: db}, nil
}

// RecentSamples returns samples for symbol with timestamp >= since,
// ordered by timestamp ascending.
func (r *Reader) RecentSamples(ctx context.Context, symbol string, since time.Time) ([]model.MarketSample, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, price, volume, ts
		FROM market_data
		WHERE symbol = ? AND ts >= ?
		ORDER BY ts ASC, id ASC
	`, symbol, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("sqlite query market_data: %w", err)
	}
	defer rows.Close()

	var out []model.MarketSample
	for rows.Next() {
		var s model.MarketSample
		var tsNano int64
		if err := rows.Scan(&s.Symbol, &s.Price, &s.Volume, &tsNano); err != nil {
			return nil, fmt.Errorf("sqlite scan market_data: %w", err)
		}
		s.Timestamp = time.Unix(0, tsNano).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// SetupHistory returns at most limit setups for symbol, newest first.
func (r *Reader) SetupHistory(ctx context.Context, symbol string, limit int) ([]model.TradeSetup, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, symbol, setup_type, signal_strength, score, r_multiple,
			entry_price, stop_loss, target_price, ts,
			setup_notes, invalidation_reason, risk_reward_ratio, market_context
		FROM trade_setups
		WHERE symbol = ?
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trade_setups: %w", err)
	}
	defer rows.Close()

	out := make([]model.TradeSetup, 0)
	for rows.Next() {
		var (
			s                     model.TradeSetup
			setupType, strength   string
			tsNano                int64
			notes, reason, market sql.NullString
			rr                    sql.NullFloat64
		)
		if err := rows.Scan(&s.ID, &s.Symbol, &setupType, &strength, &s.Score, &s.RMultiple,
			&s.EntryPrice, &s.StopLoss, &s.TargetPrice, &tsNano,
			&notes, &reason, &rr, &market); err != nil {
			return nil, fmt.Errorf("sqlite scan trade_setups: %w", err)
		}
		s.SetupType = model.SetupType(setupType)
		s.SignalStrength = model.SignalLabel(strength)
		s.Timestamp = time.Unix(0, tsNano).UTC()
		s.Notes = notes.String
		s.InvalidationReason = reason.String
		s.RiskRewardRatio = rr.Float64
		s.MarketContext = market.String
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}
