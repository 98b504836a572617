package exchange

// apiResponse is the envelope every Bitget endpoint returns.
type apiResponse struct {
	Code string      `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data"`
}

// Config carries the venue credentials and environment selection.
type Config struct {
	APIKey     string
	APISecret  string
	Passphrase string
	BaseURL    string // override for testing; defaults to the production API
}

// rawPosition mirrors the fields of a Bitget futures position payload that we
// consume. Entry price appears under different keys depending on endpoint
// version and account mode, so all candidates are kept and normalized later.
type rawPosition struct {
	Symbol           string `json:"symbol"`
	HoldSide         string `json:"holdSide"`
	Total            string `json:"total"`
	Available        string `json:"available"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	OpenPriceAvg     string `json:"openPriceAvg"`
	AvgPrice         string `json:"avgPrice"`
	AverageOpenPrice string `json:"averageOpenPrice"`
	UnrealizedPL     string `json:"unrealizedPL"`
}

// Position is the normalized view of an open futures position.
type Position struct {
	Symbol     string
	Side       string  // "long" or "short"
	Size       float64 // contracts, absolute
	EntryPrice float64 // normalized from the payload; 0 when the venue reported none
}

// rawOrderDetail mirrors a Bitget order-detail payload. Fill price appears
// under several keys across endpoint versions.
type rawOrderDetail struct {
	OrderID    string `json:"orderId"`
	State      string `json:"state"`
	Size       string `json:"size"`
	BaseVolume string `json:"baseVolume"`
	PriceAvg   string `json:"priceAvg"`
	FillPrice  string `json:"fillPrice"`
	AvgPrice   string `json:"avgPrice"`
}

// Order is the normalized status of an order on the venue.
type Order struct {
	ID        string
	Status    string // venue state: live, new, init, partially_filled, filled, canceled
	FilledQty float64
	AvgPrice  float64 // normalized fill price; 0 when unknown
}

// OrderResult reports the outcome of a market order submission.
type OrderResult struct {
	OrderID   string
	FilledQty float64
	Remaining float64
	AvgPrice  float64 // 0 when the venue did not report an average
}

// SymbolSpec carries the contract precision rules needed to size and price
// orders.
type SymbolSpec struct {
	Symbol         string
	PricePlaces    int32   // decimal places for prices
	VolumePlaces   int32   // decimal places for quantities
	SizeMultiplier float64 // contract size in base units
	MinTradeNum    float64 // minimum order quantity
}

type rawContract struct {
	Symbol         string `json:"symbol"`
	PricePlace     string `json:"pricePlace"`
	VolumePlace    string `json:"volumePlace"`
	SizeMultiplier string `json:"sizeMultiplier"`
	MinTradeNum    string `json:"minTradeNum"`
}

type rawAccount struct {
	MarginCoin    string `json:"marginCoin"`
	Available     string `json:"available"`
	AccountEquity string `json:"accountEquity"`
	USDTEquity    string `json:"usdtEquity"`
}
