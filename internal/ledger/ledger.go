// Package ledger persists every trade event and state snapshot to a single
// append-only CSV file. The same file serves the human-auditable trade log
// and machine recovery: the tail of the file is the authoritative bot state,
// so recovery logic is exercised on every write rather than on a separate
// state file that could drift.
package ledger

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/Ur1k/SFP-Strategy-Bot/pkg/models"
)

const timestampLayout = "2006-01-02 15:04:05"

// Column order is part of the on-disk format. Never reorder.
var columns = []string{
	"timestamp", "symbol", "side",
	"price", "quantity", "usdt_value", "account_balance", "pnl", "reason",
	"entry_price", "entry_candle_timestamp", "invalidation", "take_profit",
	"last_entry_candle_timestamp", "last_daily_report_date", "take_profit_order_id",
}

type Ledger struct {
	path   string
	symbol string
	logger *logrus.Logger
}

// New opens (or creates with a header row) the ledger file at path.
func New(path, symbol string, logger *logrus.Logger) (*Ledger, error) {
	l := &Ledger{path: path, symbol: symbol, logger: logger}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to create ledger file: %w", err)
		}
		w := csv.NewWriter(f)
		if err := w.Write(columns); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write ledger header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to flush ledger header: %w", err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("failed to close ledger file: %w", err)
		}
		logger.WithField("path", path).Info("Created new ledger file")
	}

	return l, nil
}

// Append durably writes one record. Errors are returned, never swallowed:
// a failed write is fatal to the current tick.
func (l *Ledger) Append(rec models.LedgerRecord) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open ledger for append: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(l.row(rec)); err != nil {
		return fmt.Errorf("failed to write ledger record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush ledger record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync ledger file: %w", err)
	}

	l.logger.WithFields(logrus.Fields{
		"side":   rec.Side,
		"reason": rec.Reason,
	}).Debug("Ledger record appended")

	return nil
}

func (l *Ledger) row(rec models.LedgerRecord) []string {
	st := rec.State
	return []string{
		rec.Timestamp.UTC().Format(timestampLayout),
		rec.Symbol,
		string(rec.Side),
		fmtFloat(rec.Price),
		fmtFloat(rec.Quantity),
		fmtFloat(rec.USDTValue),
		fmtFloat(rec.Balance),
		fmtFloat(rec.PnL),
		rec.Reason,
		fmtFloat(st.Position.EntryPrice),
		fmtInt(st.Position.EntryCandleTS),
		fmtFloat(st.Position.Invalidation),
		fmtFloat(st.Position.TakeProfit),
		fmtInt(st.LastEntryCandleTS),
		st.LastDailyReportDate,
		st.Position.TPOrderID,
	}
}

// LoadLatestState reconstructs the bot state from the file tail. The carry
// fields come from the latest BOT_STATE row, falling back to the latest trade
// row. An open position is believed only when the latest LONG_OPEN is
// strictly newer than the latest LONG_CLOSE. Any parse trouble degrades to a
// flat default state; a broken ledger must not keep the bot from starting.
func (l *Ledger) LoadLatestState() models.BotState {
	var state models.BotState

	f, err := os.Open(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.WithError(err).Warn("Could not open ledger, starting from flat state")
		}
		return state
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		l.logger.WithError(err).Warn("Could not parse ledger, starting from flat state")
		return state
	}
	if len(rows) <= 1 {
		return state
	}
	rows = rows[1:] // header

	var lastSnapshot, lastOpen []string
	var lastOpenTS, lastCloseTS, tpOrderID string
	for _, row := range rows {
		if len(row) < len(columns) {
			continue
		}
		switch models.RecordSide(row[2]) {
		case models.SideBotState:
			lastSnapshot = row
		case models.SideLongOpen:
			lastOpen = row
			lastOpenTS = row[0]
			lastSnapshot = row
		case models.SideLongClose:
			lastCloseTS = row[0]
			lastSnapshot = row
		case models.SideTPOrder:
			if lastOpenTS != "" && row[0] >= lastOpenTS && row[15] != "" {
				tpOrderID = row[15]
			}
			lastSnapshot = row
		}
	}

	if lastSnapshot != nil {
		state.LastEntryCandleTS = parseInt(lastSnapshot[13])
		state.LastDailyReportDate = lastSnapshot[14]
	}

	// The entry candle of the last open survives even when the position is
	// believed closed; it lets an adopted position recover exact levels.
	if lastOpen != nil {
		state.PriorEntryCandleTS = parseInt(lastOpen[10])
	}

	// Timestamps are written in a lexicographically sortable layout, so
	// string comparison is a time comparison. An open with no later close
	// means the position is believed open.
	if lastOpen == nil || lastOpenTS <= lastCloseTS {
		return state
	}

	pos := models.Position{
		EntryPrice:    parseFloat(lastOpen[9]),
		EntryCandleTS: parseInt(lastOpen[10]),
		Invalidation:  parseFloat(lastOpen[11]),
		TakeProfit:    parseFloat(lastOpen[12]),
		TPOrderID:     tpOrderID,
	}

	// All four core fields or none: a partially recorded open is treated as
	// flat rather than resurrected half-broken.
	if pos.EntryPrice == nil || pos.EntryCandleTS == nil || pos.Invalidation == nil || pos.TakeProfit == nil {
		l.logger.Warn("Latest LONG_OPEN record is incomplete, starting from flat state")
		return state
	}
	state.Position = pos

	l.logger.WithFields(logrus.Fields{
		"entry_price":  *pos.EntryPrice,
		"invalidation": *pos.Invalidation,
		"take_profit":  *pos.TakeProfit,
		"tp_order_id":  pos.TPOrderID,
	}).Info("Recovered open position from ledger")

	return state
}

func fmtFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(math.Round(*v*1e6)/1e6, 'f', -1, 64)
}

func fmtInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func parseFloat(s string) *float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return nil
	}
	return &f
}

func parseInt(s string) *int64 {
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &i
}
