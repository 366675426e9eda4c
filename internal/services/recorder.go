package services

import (
	"database/sql"
	"time"

	"github.com/betbot/perpmaker/internal/domain"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// Recorder 把成交与终态订单落到本地 sqlite，供盘后复盘。
// 写入在回调协程上发生，database/sql 自带连接池串行化。
type Recorder struct {
	db *sql.DB
}

const recorderSchema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id        TEXT PRIMARY KEY,
	client_order_id TEXT NOT NULL,
	symbol          TEXT NOT NULL,
	side            TEXT NOT NULL,
	price           TEXT NOT NULL,
	quantity        TEXT NOT NULL,
	fee             TEXT NOT NULL,
	fee_asset       TEXT NOT NULL,
	is_maker        INTEGER NOT NULL,
	ts              INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS orders (
	client_order_id TEXT PRIMARY KEY,
	exchange_id     TEXT,
	symbol          TEXT NOT NULL,
	side            TEXT NOT NULL,
	type            TEXT NOT NULL,
	price           TEXT NOT NULL,
	quantity        TEXT NOT NULL,
	executed_qty    TEXT NOT NULL,
	avg_fill_price  TEXT NOT NULL,
	action          TEXT NOT NULL,
	status          TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol_ts ON trades(symbol, ts);
`

// NewRecorder 打开（或创建）数据库文件并确保表结构存在
func NewRecorder(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// sqlite 单写者
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(recorderSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create schema")
	}
	return &Recorder{db: db}, nil
}

func (r *Recorder) RecordTrade(t *domain.Trade) error {
	_, err := r.db.Exec(
		`INSERT OR IGNORE INTO trades
		 (trade_id, client_order_id, symbol, side, price, quantity, fee, fee_asset, is_maker, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.ClientOrderID, t.Symbol, string(t.Side),
		t.Price.String(), t.Quantity.String(), t.Fee.String(), t.FeeAsset,
		boolToInt(t.IsMaker), t.Timestamp.UnixMilli(),
	)
	return errors.Wrap(err, "insert trade")
}

func (r *Recorder) RecordOrder(o *domain.Order) error {
	_, err := r.db.Exec(
		`INSERT INTO orders
		 (client_order_id, exchange_id, symbol, side, type, price, quantity,
		  executed_qty, avg_fill_price, action, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(client_order_id) DO UPDATE SET
		  executed_qty = excluded.executed_qty,
		  avg_fill_price = excluded.avg_fill_price,
		  status = excluded.status,
		  updated_at = excluded.updated_at`,
		o.ClientOrderID, o.ExchangeOrderID, o.Symbol, string(o.Side), string(o.Type),
		o.Price.String(), o.Quantity.String(), o.ExecutedQty.String(), o.AvgFillPrice.String(),
		string(o.PositionAction), string(o.Status),
		timeMilli(o.CreatedAt), timeMilli(o.UpdatedAt),
	)
	return errors.Wrap(err, "upsert order")
}

// TradeCount 指定市场的成交笔数（状态接口用）
func (r *Recorder) TradeCount(symbol string) (int64, error) {
	var n int64
	err := r.db.QueryRow(`SELECT COUNT(*) FROM trades WHERE symbol = ?`, symbol).Scan(&n)
	return n, errors.Wrap(err, "count trades")
}

func (r *Recorder) Close() error { return r.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
