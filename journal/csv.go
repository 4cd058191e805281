// journal/csv.go
package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/Drix10/hypothesis-arena/portfolio"
)

// CSVTradeLog appends one line per execution. Opening an existing file
// continues it, so the audit trail spans restarts.
type CSVTradeLog struct {
	w *csv.Writer
	f *os.File
}

var csvHeader = []string{
	"agent_id", "trade_id", "ticker", "side", "shares", "price",
	"total_value", "executed_at", "confidence", "recommendation", "thesis_id", "realized_pnl",
}

func NewCSVTradeLog(path string) (*CSVTradeLog, error) {
	info, statErr := os.Stat(path)
	fresh := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(csvHeader); err != nil {
			f.Close()
			return nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &CSVTradeLog{w: w, f: f}, nil
}

func (l *CSVTradeLog) Append(agentID string, t portfolio.Trade) error {
	err := l.w.Write([]string{
		agentID,
		t.ID,
		t.Ticker,
		string(t.Side),
		strconv.FormatInt(t.Shares, 10),
		t.Price.String(),
		t.TotalValue.String(),
		t.ExecutedAt.UTC().Format(time.RFC3339),
		strconv.FormatFloat(t.Confidence, 'f', 2, 64),
		t.Recommendation,
		t.ThesisID,
		t.RealizedPnL.String(),
	})
	if err != nil {
		return err
	}

	l.w.Flush()
	return l.w.Error()
}

func (l *CSVTradeLog) Close() error {
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return err
	}
	return l.f.Close()
}

var _ TradeLog = (*CSVTradeLog)(nil)
