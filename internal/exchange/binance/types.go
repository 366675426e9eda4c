package binance

// REST payloads（只保留用到的字段）

type exchangeInfoResponse struct {
	Symbols []symbolInfo `json:"symbols"`
}

type symbolInfo struct {
	Symbol     string         `json:"symbol"`
	BaseAsset  string         `json:"baseAsset"`
	QuoteAsset string         `json:"quoteAsset"`
	Filters    []symbolFilter `json:"filters"`
}

type symbolFilter struct {
	FilterType string `json:"filterType"`
	TickSize   string `json:"tickSize"`
	StepSize   string `json:"stepSize"`
	Notional   string `json:"notional"`
}

type bookTickerResponse struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
}

type depthResponse struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

type premiumIndexResponse struct {
	Symbol          string `json:"symbol"`
	LastFundingRate string `json:"lastFundingRate"`
}

type commissionRateResponse struct {
	Symbol              string `json:"symbol"`
	MakerCommissionRate string `json:"makerCommissionRate"`
	TakerCommissionRate string `json:"takerCommissionRate"`
}

type balanceEntry struct {
	Asset            string `json:"asset"`
	AvailableBalance string `json:"availableBalance"`
}

type positionRiskEntry struct {
	Symbol       string `json:"symbol"`
	PositionAmt  string `json:"positionAmt"`
	EntryPrice   string `json:"entryPrice"`
	PositionSide string `json:"positionSide"`
	Leverage     string `json:"leverage"`
	UnRealized   string `json:"unRealizedProfit"`
}

type orderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Status        string `json:"status"`
	Price         string `json:"price"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	AvgPrice      string `json:"avgPrice"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	PositionSide  string `json:"positionSide"`
}

type listenKeyResponse struct {
	ListenKey string `json:"listenKey"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

// WS payloads

type wsBookTicker struct {
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	AskPrice string `json:"a"`
	Time     int64  `json:"E"`
}

type wsAggTrade struct {
	Symbol string `json:"s"`
	Price  string `json:"p"`
	Time   int64  `json:"T"`
}

type wsUserEvent struct {
	EventType string       `json:"e"`
	EventTime int64        `json:"E"`
	Order     *wsOrderData `json:"o,omitempty"`
}

type wsOrderData struct {
	Symbol          string `json:"s"`
	ClientOrderID   string `json:"c"`
	Side            string `json:"S"`
	OrderType       string `json:"o"`
	Price           string `json:"p"`
	Quantity        string `json:"q"`
	AvgPrice        string `json:"ap"`
	Status          string `json:"X"`
	ExecType        string `json:"x"`
	OrderID         int64  `json:"i"`
	LastFillQty     string `json:"l"`
	CumFillQty      string `json:"z"`
	LastFillPrice   string `json:"L"`
	Commission      string `json:"n"`
	CommissionAsset string `json:"N"`
	TradeTime       int64  `json:"T"`
	TradeID         int64  `json:"t"`
	IsMaker         bool   `json:"m"`
	PositionSide    string `json:"ps"`
}
