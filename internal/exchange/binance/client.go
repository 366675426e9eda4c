package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/betbot/perpmaker/internal/domain"
	"github.com/betbot/perpmaker/internal/exchange"
	"github.com/betbot/perpmaker/pkg/ratelimit"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "binance")

const (
	defaultRESTHost   = "https://fapi.binance.com"
	defaultStreamHost = "wss://fstream.binance.com"
)

// Config 连接器配置
type Config struct {
	APIKey     string
	APISecret  string
	RESTHost   string // 可覆盖（testnet）
	StreamHost string
	RecvWindow int64 // 毫秒，默认 5000
}

// Connector Binance USDⓈ-M futures 连接器
type Connector struct {
	cfg    Config
	client *resty.Client
	limits *ratelimit.Manager

	stream *streamManager

	positionModeMu sync.Mutex
}

// New 创建连接器。resty 会自动从环境变量读取代理配置。
func New(cfg Config) *Connector {
	if cfg.RESTHost == "" {
		cfg.RESTHost = defaultRESTHost
	}
	if cfg.StreamHost == "" {
		cfg.StreamHost = defaultStreamHost
	}
	if cfg.RecvWindow <= 0 {
		cfg.RecvWindow = 5000
	}

	client := resty.New().
		SetBaseURL(cfg.RESTHost).
		SetTimeout(15 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			// 429/418 限流：尊重 Retry-After
			if resp.StatusCode() == 429 || resp.StatusCode() == 418 {
				if ra := resp.Header().Get("Retry-After"); ra != "" {
					if secs, err := strconv.Atoi(ra); err == nil {
						return time.Duration(secs) * time.Second, nil
					}
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		}).
		SetHeader("X-MBX-APIKEY", cfg.APIKey)

	c := &Connector{
		cfg:    cfg,
		client: client,
		limits: ratelimit.NewManager(),
	}
	c.stream = newStreamManager(c)
	return c
}

func (c *Connector) Name() string { return "binance-futures" }

// sign 生成 HMAC-SHA256 签名 query
func (c *Connector) sign(params url.Values) string {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
	payload := params.Encode()
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(payload))
	return payload + "&signature=" + hex.EncodeToString(mac.Sum(nil))
}

func (c *Connector) do(ctx context.Context, endpoint, method, path string, params url.Values, signed bool, out interface{}) error {
	if err := c.limits.Wait(ctx, endpoint); err != nil {
		return err
	}

	req := c.client.R().SetContext(ctx)
	query := ""
	if signed {
		query = c.sign(params)
	} else if len(params) > 0 {
		query = params.Encode()
	}
	if query != "" {
		path = path + "?" + query
	}

	var (
		resp *resty.Response
		err  error
	)
	switch method {
	case "GET":
		resp, err = req.Get(path)
	case "POST":
		resp, err = req.Post(path)
	case "PUT":
		resp, err = req.Put(path)
	case "DELETE":
		resp, err = req.Delete(path)
	default:
		return fmt.Errorf("unsupported method: %s", method)
	}
	if err != nil {
		return errors.Wrapf(err, "request %s %s", method, path)
	}

	if resp.IsError() {
		var apiErr apiError
		if jerr := json.Unmarshal(resp.Body(), &apiErr); jerr == nil && apiErr.Code != 0 {
			return errors.Errorf("api error %d: %s (http %d)", apiErr.Code, apiErr.Message, resp.StatusCode())
		}
		return errors.Errorf("http %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return errors.Wrap(err, "decode response")
		}
	}
	return nil
}

// FetchMarket 读取交易对撮合精度（tick/step/minNotional）
func (c *Connector) FetchMarket(ctx context.Context, symbol string) (*domain.Market, error) {
	var info exchangeInfoResponse
	params := url.Values{}
	params.Set("symbol", symbol)
	if err := c.do(ctx, "market:get", "GET", "/fapi/v1/exchangeInfo", params, false, &info); err != nil {
		return nil, err
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		base, quote := s.BaseAsset, s.QuoteAsset
		if base == "" || quote == "" {
			base, quote = domain.SplitSymbol(s.Symbol)
		}
		m := &domain.Market{
			Symbol:     s.Symbol,
			BaseAsset:  base,
			QuoteAsset: quote,
		}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "PRICE_FILTER":
				m.TickSize = mustDecimal(f.TickSize)
			case "LOT_SIZE":
				m.StepSize = mustDecimal(f.StepSize)
			case "MIN_NOTIONAL":
				m.MinNotional = mustDecimal(f.Notional)
			}
		}
		return m, nil
	}
	return nil, errors.Errorf("symbol %s not found in exchange info", symbol)
}

func (c *Connector) FetchBookTicker(ctx context.Context, symbol string) (decimal.Decimal, decimal.Decimal, error) {
	var bt bookTickerResponse
	params := url.Values{}
	params.Set("symbol", symbol)
	if err := c.do(ctx, "market:get", "GET", "/fapi/v1/ticker/bookTicker", params, false, &bt); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return mustDecimal(bt.BidPrice), mustDecimal(bt.AskPrice), nil
}

func (c *Connector) FetchOrderBook(ctx context.Context, symbol string, limit int) (*exchange.OrderBook, error) {
	if limit <= 0 {
		limit = 20
	}
	var d depthResponse
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(limit))
	if err := c.do(ctx, "market:get", "GET", "/fapi/v1/depth", params, false, &d); err != nil {
		return nil, err
	}
	return depthToBook(&d), nil
}

func (c *Connector) FetchFundingRate(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var pi premiumIndexResponse
	params := url.Values{}
	params.Set("symbol", symbol)
	if err := c.do(ctx, "market:get", "GET", "/fapi/v1/premiumIndex", params, false, &pi); err != nil {
		return decimal.Zero, err
	}
	return mustDecimal(pi.LastFundingRate), nil
}

func (c *Connector) FetchCommissionRates(ctx context.Context, symbol string) (decimal.Decimal, decimal.Decimal, error) {
	var cr commissionRateResponse
	params := url.Values{}
	params.Set("symbol", symbol)
	if err := c.do(ctx, "account:get", "GET", "/fapi/v1/commissionRate", params, true, &cr); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return mustDecimal(cr.MakerCommissionRate), mustDecimal(cr.TakerCommissionRate), nil
}

func (c *Connector) FetchBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	var entries []balanceEntry
	if err := c.do(ctx, "account:get", "GET", "/fapi/v2/balance", url.Values{}, true, &entries); err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(entries))
	for _, e := range entries {
		out[e.Asset] = mustDecimal(e.AvailableBalance)
	}
	return out, nil
}

func (c *Connector) FetchPositions(ctx context.Context, symbol string) ([]*domain.Position, error) {
	var entries []positionRiskEntry
	params := url.Values{}
	params.Set("symbol", symbol)
	if err := c.do(ctx, "account:get", "GET", "/fapi/v2/positionRisk", params, true, &entries); err != nil {
		return nil, err
	}
	positions := make([]*domain.Position, 0, len(entries))
	for _, e := range entries {
		amount := mustDecimal(e.PositionAmt)
		if amount.IsZero() {
			continue
		}
		lev, _ := strconv.Atoi(e.Leverage)
		positions = append(positions, &domain.Position{
			Symbol:        e.Symbol,
			Side:          domain.PositionSide(e.PositionSide),
			EntryPrice:    mustDecimal(e.EntryPrice),
			Amount:        amount,
			Leverage:      lev,
			UnrealizedPnL: mustDecimal(e.UnRealized),
		})
	}
	return positions, nil
}

func (c *Connector) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))
	return c.do(ctx, "account:get", "POST", "/fapi/v1/leverage", params, true, nil)
}

func (c *Connector) SetPositionMode(ctx context.Context, mode domain.PositionMode) error {
	c.positionModeMu.Lock()
	defer c.positionModeMu.Unlock()

	params := url.Values{}
	if mode == domain.PositionModeHedge {
		params.Set("dualSidePosition", "true")
	} else {
		params.Set("dualSidePosition", "false")
	}
	err := c.do(ctx, "account:get", "POST", "/fapi/v1/positionSide/dual", params, true, nil)
	// -4059: no need to change position side — 已经是目标模式
	if err != nil && strings.Contains(err.Error(), "-4059") {
		return nil
	}
	return err
}

// PlaceOrder 下单。LIMIT 单使用 GTC；订单以 clientOrderID 幂等。
func (c *Connector) PlaceOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", string(order.Side))
	params.Set("type", string(order.Type))
	params.Set("quantity", order.Quantity.String())
	params.Set("newClientOrderId", order.ClientOrderID)
	if order.Type == domain.OrderTypeLimit {
		params.Set("price", order.Price.String())
		params.Set("timeInForce", "GTC")
	}
	if order.PositionSide != "" && order.PositionSide != domain.PositionSideBoth {
		params.Set("positionSide", string(order.PositionSide))
	} else if order.PositionAction == domain.PositionActionClose {
		// ONEWAY 模式下用 reduceOnly 标记平仓单，避免反向开仓
		params.Set("reduceOnly", "true")
	}

	var resp orderResponse
	if err := c.do(ctx, "order:post", "POST", "/fapi/v1/order", params, true, &resp); err != nil {
		return nil, errors.Wrap(err, "place order")
	}

	placed := *order
	placed.ExchangeOrderID = strconv.FormatInt(resp.OrderID, 10)
	placed.Status = domain.OrderStatusOpen
	placed.UpdatedAt = time.Now()
	return &placed, nil
}

func (c *Connector) CancelOrder(ctx context.Context, symbol, clientOrderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("origClientOrderId", clientOrderID)
	err := c.do(ctx, "order:delete", "DELETE", "/fapi/v1/order", params, true, nil)
	// -2011: unknown order — 已经成交或已撤，视为成功
	if err != nil && strings.Contains(err.Error(), "-2011") {
		log.Debugf("cancel %s: order already gone", clientOrderID)
		return nil
	}
	return errors.Wrap(err, "cancel order")
}

func (c *Connector) createListenKey(ctx context.Context) (string, error) {
	var lk listenKeyResponse
	if err := c.do(ctx, "account:get", "POST", "/fapi/v1/listenKey", url.Values{}, false, &lk); err != nil {
		return "", err
	}
	return lk.ListenKey, nil
}

func (c *Connector) keepAliveListenKey(ctx context.Context) error {
	return c.do(ctx, "account:get", "PUT", "/fapi/v1/listenKey", url.Values{}, false, nil)
}

func depthToBook(d *depthResponse) *exchange.OrderBook {
	book := &exchange.OrderBook{
		Bids: make([]exchange.PriceLevel, 0, len(d.Bids)),
		Asks: make([]exchange.PriceLevel, 0, len(d.Asks)),
	}
	for _, lvl := range d.Bids {
		if len(lvl) < 2 {
			continue
		}
		book.Bids = append(book.Bids, exchange.PriceLevel{Price: mustDecimal(lvl[0]), Quantity: mustDecimal(lvl[1])})
	}
	for _, lvl := range d.Asks {
		if len(lvl) < 2 {
			continue
		}
		book.Asks = append(book.Asks, exchange.PriceLevel{Price: mustDecimal(lvl[0]), Quantity: mustDecimal(lvl[1])})
	}
	return book
}

func mustDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
