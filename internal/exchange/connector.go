package exchange

import (
	"context"

	"github.com/betbot/perpmaker/internal/domain"
	"github.com/betbot/perpmaker/internal/events"
	"github.com/shopspring/decimal"
)

// PriceLevel 盘口档位
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderBook 浅层订单簿快照（用于 price-for-volume 估算）
type OrderBook struct {
	Bids []PriceLevel // 按价格降序
	Asks []PriceLevel // 按价格升序
}

// PriceChangedHandler 盘口变化回调（由连接器的读协程触发）
type PriceChangedHandler func(e events.PriceChangedEvent)

// TradeHandler 市场成交回调
type TradeHandler func(symbol string, price decimal.Decimal)

// OrderUpdateHandler 订单状态/成交更新回调；trade 在成交事件时非 nil
type OrderUpdateHandler func(order *domain.Order, trade *domain.Trade)

// Connector 永续合约交易所连接器。
// REST 读操作是同步的；TradingService 负责缓存为快照。
// 流式回调在连接器自己的协程上触发，调用方负责串行化。
type Connector interface {
	Name() string

	FetchMarket(ctx context.Context, symbol string) (*domain.Market, error)
	FetchBookTicker(ctx context.Context, symbol string) (bid, ask decimal.Decimal, err error)
	FetchOrderBook(ctx context.Context, symbol string, limit int) (*OrderBook, error)
	FetchFundingRate(ctx context.Context, symbol string) (decimal.Decimal, error)
	FetchCommissionRates(ctx context.Context, symbol string) (maker, taker decimal.Decimal, err error)
	FetchBalances(ctx context.Context) (map[string]decimal.Decimal, error)
	FetchPositions(ctx context.Context, symbol string) ([]*domain.Position, error)

	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetPositionMode(ctx context.Context, mode domain.PositionMode) error

	PlaceOrder(ctx context.Context, order *domain.Order) (*domain.Order, error)
	CancelOrder(ctx context.Context, symbol, clientOrderID string) error

	Connect(ctx context.Context, symbol string) error
	Close() error
	Connected() bool

	OnPriceChanged(h PriceChangedHandler)
	OnTrade(h TradeHandler)
	OnOrderUpdate(h OrderUpdateHandler)
}
