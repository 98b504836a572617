package models

import "time"

// Bar is a single OHLCV candle. Bars are immutable once fetched; only the
// most recent closed bar is decision-relevant (the last fetched bar is still
// forming).
type Bar struct {
	Timestamp int64 // candle open time, milliseconds since epoch
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// SignalResult is the output of one signal evaluation over a bar window.
// It is a value, not an entity: computed fresh every tick, no lifecycle.
// Levels are nil when the window is too short to evaluate.
type SignalResult struct {
	EntryEligible bool
	Invalidation  *float64 // stop level: entry candle low
	TakeProfit    *float64 // rolling pivot high as of the previous bar
	PivotLow      *float64 // SFP reference level, for logging and reports
}

// Position is the in-memory view of the single open long, loaded from the
// ledger at startup. Either all four core fields are set (position open) or
// all are unset (flat); a partially-set position is an invalid state.
type Position struct {
	EntryPrice    *float64
	Invalidation  *float64
	TakeProfit    *float64
	EntryCandleTS *int64 // open time of the candle that triggered the entry, ms
	TPOrderID     string // resting reduce-only take-profit order, "" when none
}

// IsOpen reports whether a position is currently believed open.
func (p *Position) IsOpen() bool {
	return p.EntryPrice != nil
}

// Clear resets the position to flat.
func (p *Position) Clear() {
	p.EntryPrice = nil
	p.Invalidation = nil
	p.TakeProfit = nil
	p.EntryCandleTS = nil
	p.TPOrderID = ""
}

// BotState is everything the bot must remember across restarts. It is
// snapshotted into every ledger row and reconstructed by
// ledger.LoadLatestState.
type BotState struct {
	Position Position

	// LastEntryCandleTS blocks re-entering on the bar that just triggered a
	// close or an entry. Compared against the current (still-forming) candle.
	LastEntryCandleTS *int64

	// PriorEntryCandleTS is the entry candle of the most recent long, kept
	// even when flat so an adopted position can recover its exact levels.
	PriorEntryCandleTS *int64

	// LastDailyReportDate is the UTC date ("2006-01-02") of the last daily
	// report sent, so a restart does not repeat it.
	LastDailyReportDate string
}

// ClearPosition flats the position while remembering its entry candle
// timestamp for later level re-derivation.
func (s *BotState) ClearPosition() {
	if s.Position.EntryCandleTS != nil {
		s.PriorEntryCandleTS = s.Position.EntryCandleTS
	}
	s.Position.Clear()
}

// RecordSide identifies the kind of ledger row.
type RecordSide string

const (
	SideBotState  RecordSide = "BOT_STATE"
	SideLongOpen  RecordSide = "LONG_OPEN"
	SideLongClose RecordSide = "LONG_CLOSE"
	SideTPOrder   RecordSide = "TP_ORDER"
)

// Close reason codes recorded in the ledger.
const (
	ReasonSFPEntry         = "SFP_ENTRY"
	ReasonStopInvalidation = "STOP_INVALIDATION"
	ReasonTPLimitFilled    = "TP_LIMIT_FILLED"
	ReasonManualClose      = "MANUAL_CLOSE"
	ReasonAdopted          = "POSITION_ADOPTED"
)

// LedgerRecord is one append-only row: a trade event or a BOT_STATE snapshot.
// Event fields are pointers so that snapshot-only rows serialize as empty
// cells. Every row carries the full BotState at time of write.
type LedgerRecord struct {
	Timestamp time.Time
	Symbol    string
	Side      RecordSide
	Price     *float64
	Quantity  *float64
	USDTValue *float64
	Balance   *float64
	PnL       *float64
	Reason    string
	State     BotState
}
