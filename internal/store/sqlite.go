// Package store persists the automation catalog: assets, strategies,
// instructions, daily prices with indicator metrics, and validity
// markers recording when each keyed dataset was last refreshed.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"marana/internal/data"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Instructions(ctx context.Context) ([]data.Instruction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT active, description, format, symbol, strategy, quantity, frequency
		FROM instructions
		ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instructions []data.Instruction
	for rows.Next() {
		var ins data.Instruction
		if err := rows.Scan(&ins.Active, &ins.Description, &ins.Format,
			&ins.Symbol, &ins.Strategy, &ins.Quantity, &ins.Frequency); err != nil {
			return nil, err
		}
		instructions = append(instructions, ins)
	}
	return instructions, rows.Err()
}

func (s *SQLite) SaveInstruction(ctx context.Context, ins data.Instruction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO instructions
		(active, description, format, symbol, strategy, quantity, frequency)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ins.Active, ins.Description, ins.Format, ins.Symbol,
		ins.Strategy, ins.Quantity, ins.Frequency,
	)
	return err
}

func (s *SQLite) Strategies(ctx context.Context) ([]data.Strategy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, entry, exit_gain, exit_loss
		FROM strategies
		ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var strategies []data.Strategy
	for rows.Next() {
		var st data.Strategy
		if err := rows.Scan(&st.Name, &st.Entry, &st.ExitGain, &st.ExitLoss); err != nil {
			return nil, err
		}
		strategies = append(strategies, st)
	}
	return strategies, rows.Err()
}

func (s *SQLite) SaveStrategy(ctx context.Context, st data.Strategy) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO strategies (name, entry, exit_gain, exit_loss)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			entry = excluded.entry,
			exit_gain = excluded.exit_gain,
			exit_loss = excluded.exit_loss`,
		st.Name, st.Entry, st.ExitGain, st.ExitLoss,
	)
	return err
}

func (s *SQLite) Assets(ctx context.Context) ([]data.Asset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, class, exchange, status,
			tradeable, marginable, shortable, easy_to_borrow
		FROM assets
		ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []data.Asset
	for rows.Next() {
		var a data.Asset
		if err := rows.Scan(&a.ID, &a.Symbol, &a.Class, &a.Exchange, &a.Status,
			&a.Tradeable, &a.Marginable, &a.Shortable, &a.EasyToBorrow); err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// AssetBySymbol returns the catalog entry for a symbol, or ErrNotFound.
func (s *SQLite) AssetBySymbol(ctx context.Context, symbol string) (data.Asset, error) {
	var a data.Asset
	err := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, class, exchange, status,
			tradeable, marginable, shortable, easy_to_borrow
		FROM assets
		WHERE symbol = ?`, symbol).
		Scan(&a.ID, &a.Symbol, &a.Class, &a.Exchange, &a.Status,
			&a.Tradeable, &a.Marginable, &a.Shortable, &a.EasyToBorrow)
	if errors.Is(err, sql.ErrNoRows) {
		return data.Asset{}, ErrNotFound
	}
	if err != nil {
		return data.Asset{}, err
	}
	return a, nil
}

func (s *SQLite) SaveAssets(ctx context.Context, assets []data.Asset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, a := range assets {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO assets
			(id, symbol, class, exchange, status, tradeable, marginable, shortable, easy_to_borrow)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				symbol = excluded.symbol,
				class = excluded.class,
				exchange = excluded.exchange,
				status = excluded.status,
				tradeable = excluded.tradeable,
				marginable = excluded.marginable,
				shortable = excluded.shortable,
				easy_to_borrow = excluded.easy_to_borrow`,
			a.ID, a.Symbol, a.Class, a.Exchange, a.Status,
			a.Tradeable, a.Marginable, a.Shortable, a.EasyToBorrow,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveDaily replaces the stored daily series for one asset.
func (s *SQLite) SaveDaily(ctx context.Context, assetID string, series []data.Metrics) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM daily WHERE asset_id = ?`, assetID); err != nil {
		return err
	}
	for _, m := range series {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO daily
			(asset_id, date, open, high, low, close, volume, sma7, sma20, sma50, ema7, ema20, rsi)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			assetID, m.Date.UTC(), m.Open, m.High, m.Low, m.Close, m.Volume,
			nullable(m.SMA7), nullable(m.SMA20), nullable(m.SMA50),
			nullable(m.EMA7), nullable(m.EMA20), nullable(m.RSI),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LatestPrice returns the most recent daily bar for an asset.
func (s *SQLite) LatestPrice(ctx context.Context, assetID string) (data.Price, error) {
	m, err := s.scanDaily(s.db.QueryRowContext(ctx, `
		SELECT date, open, high, low, close, volume, sma7, sma20, sma50, ema7, ema20, rsi
		FROM daily
		WHERE asset_id = ?
		ORDER BY date DESC
		LIMIT 1`, assetID))
	if err != nil {
		return data.Price{}, err
	}
	return m.Price, nil
}

// Metrics returns the daily bar and indicator values for an asset on the
// given day.
func (s *SQLite) Metrics(ctx context.Context, assetID string, day time.Time) (data.Metrics, error) {
	return s.scanDaily(s.db.QueryRowContext(ctx, `
		SELECT date, open, high, low, close, volume, sma7, sma20, sma50, ema7, ema20, rsi
		FROM daily
		WHERE asset_id = ? AND date(date) = date(?)`,
		assetID, day.UTC()))
}

func (s *SQLite) scanDaily(row *sql.Row) (data.Metrics, error) {
	var m data.Metrics
	var sma7, sma20, sma50, ema7, ema20, rsi sql.NullFloat64
	err := row.Scan(&m.Date, &m.Open, &m.High, &m.Low, &m.Close, &m.Volume,
		&sma7, &sma20, &sma50, &ema7, &ema20, &rsi)
	if errors.Is(err, sql.ErrNoRows) {
		return data.Metrics{}, ErrNotFound
	}
	if err != nil {
		return data.Metrics{}, err
	}
	m.SMA7 = fromNull(sma7)
	m.SMA20 = fromNull(sma20)
	m.SMA50 = fromNull(sma50)
	m.EMA7 = fromNull(ema7)
	m.EMA20 = fromNull(ema20)
	m.RSI = fromNull(rsi)
	return m, nil
}

// Validity returns the last-refresh timestamp recorded for an item key.
// A key that has never been refreshed reports the zero time.
func (s *SQLite) Validity(ctx context.Context, item string) (time.Time, error) {
	var updated time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT updated FROM validity WHERE item = ?`, item).Scan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read validity %q: %w", item, err)
	}
	return updated, nil
}

func (s *SQLite) SetValidity(ctx context.Context, item string, updated time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO validity (item, updated)
		VALUES (?, ?)
		ON CONFLICT(item) DO UPDATE SET updated = excluded.updated`,
		item, updated.UTC(),
	)
	return err
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
