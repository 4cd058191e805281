package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/Drix10/hypothesis-arena/portfolio"
)

// SQLite persists portfolios to one embedded database file. Writes run in
// WAL mode so readers never block a save.
type SQLite struct {
	db        *sql.DB
	retention Retention
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	j := &SQLite{db: db, retention: DefaultRetention()}
	if err := j.checkVersion(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// SetRetention replaces the history caps applied on each save.
func (j *SQLite) SetRetention(r Retention) {
	j.retention = r
}

func (j *SQLite) checkVersion() error {
	var v string
	err := j.db.QueryRow(`SELECT value FROM metadata WHERE key = 'schema_version'`).Scan(&v)
	switch {
	case err == sql.ErrNoRows:
		_, err := j.db.Exec(`INSERT INTO metadata (key, value) VALUES ('schema_version', ?)`, SchemaVersion)
		return err
	case err != nil:
		return err
	case v != SchemaVersion:
		return fmt.Errorf("database schema version %s, this build expects %s", v, SchemaVersion)
	}
	return nil
}

// PutMeta stores an arbitrary key alongside the portfolio data.
func (j *SQLite) PutMeta(key, value string) error {
	_, err := j.db.Exec(`INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)`, key, value)
	return err
}

// GetMeta returns the stored value for key, empty when absent.
func (j *SQLite) GetMeta(key string) (string, error) {
	var v string
	err := j.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}

// SaveAgent writes the whole portfolio in one transaction. Positions and
// the error log are replaced wholesale; trades and snapshots are
// append-only and deduplicated on their keys, then trimmed to retention.
func (j *SQLite) SaveAgent(p *portfolio.Portfolio) error {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO portfolios
		(agent_id, methodology, status, initial_cash, current_cash, total_value, realized_pnl,
		 total_return_pct, sharpe_value, sharpe_valid, max_drawdown_pct, current_drawdown_pct,
		 peak_value, wins, losses, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.AgentID, p.Methodology, string(p.Status),
		p.InitialCash.String(), p.CurrentCash.String(), p.TotalValue.String(), p.RealizedPnL.String(),
		p.TotalReturnPct, p.Sharpe.Value, boolInt(p.Sharpe.Valid),
		p.MaxDrawdownPct, p.CurrentDrawdownPct,
		p.PeakValue.String(), p.Wins, p.Losses, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save portfolio %s: %w", p.AgentID, err)
	}

	if _, err := tx.Exec(`DELETE FROM positions WHERE agent_id = ?`, p.AgentID); err != nil {
		return err
	}
	for _, pos := range p.Positions {
		_, err = tx.Exec(`
			INSERT INTO positions
			(agent_id, ticker, shares, avg_cost_basis, total_cost_basis, current_price,
			 market_value, unrealized_pnl, realized_pnl, high_water_mark, drawdown_from_high_pct, opened_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.AgentID, pos.Ticker, pos.Shares,
			pos.AvgCostBasis.String(), pos.TotalCostBasis.String(), pos.CurrentPrice.String(),
			pos.MarketValue.String(), pos.UnrealizedPnL.String(), pos.RealizedPnL.String(),
			pos.HighWaterMark.String(), pos.DrawdownFromHighPct, pos.OpenedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("save position %s/%s: %w", p.AgentID, pos.Ticker, err)
		}
	}

	for _, t := range p.Trades {
		_, err = tx.Exec(`
			INSERT OR IGNORE INTO trades
			(trade_id, agent_id, ticker, side, shares, price, total_value, executed_at,
			 confidence, recommendation, thesis_id, valid, realized_pnl)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, p.AgentID, t.Ticker, string(t.Side), t.Shares,
			t.Price.String(), t.TotalValue.String(), t.ExecutedAt.UTC(),
			t.Confidence, t.Recommendation, t.ThesisID, boolInt(t.Valid), t.RealizedPnL.String(),
		)
		if err != nil {
			return fmt.Errorf("save trade %s: %w", t.ID, err)
		}
	}

	for _, s := range p.Snapshots {
		_, err = tx.Exec(`
			INSERT OR IGNORE INTO snapshots
			(agent_id, taken_at, total_value, cash, positions_value, daily_return_pct, cumulative_return_pct)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.AgentID, s.TakenAt.UTC(), s.TotalValue.String(), s.Cash.String(),
			s.PositionsValue.String(), s.DailyReturnPct, s.CumulativeReturnPct,
		)
		if err != nil {
			return fmt.Errorf("save snapshot %s: %w", p.AgentID, err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM error_log WHERE agent_id = ?`, p.AgentID); err != nil {
		return err
	}
	for _, e := range p.Errors {
		_, err = tx.Exec(`
			INSERT INTO error_log (agent_id, code, message, recoverable, resolved, occurred_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.AgentID, string(e.Code), e.Message, boolInt(e.Recoverable), boolInt(e.Resolved), e.OccurredAt.UTC(),
		)
		if err != nil {
			return err
		}
	}

	for _, a := range p.Actions {
		_, err = tx.Exec(`
			INSERT OR REPLACE INTO corporate_actions
			(action_id, agent_id, ticker, kind, ratio, amount, executed_at, applied)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, p.AgentID, a.Ticker, string(a.Kind),
			a.Ratio.String(), a.Amount.String(), a.ExecutedAt.UTC(), boolInt(a.Applied),
		)
		if err != nil {
			return fmt.Errorf("save corporate action %s: %w", a.ID, err)
		}
	}

	if err := j.trimLocked(tx, p.AgentID); err != nil {
		return err
	}
	return tx.Commit()
}

func (j *SQLite) trimLocked(tx *sql.Tx, agentID string) error {
	if n := j.retention.MaxTradesPerAgent; n > 0 {
		_, err := tx.Exec(`
			DELETE FROM trades WHERE agent_id = ? AND trade_id NOT IN (
				SELECT trade_id FROM trades WHERE agent_id = ?
				ORDER BY executed_at DESC, trade_id DESC LIMIT ?
			)`, agentID, agentID, n)
		if err != nil {
			return err
		}
	}
	if n := j.retention.MaxSnapshotsPerAgent; n > 0 {
		_, err := tx.Exec(`
			DELETE FROM snapshots WHERE agent_id = ? AND taken_at NOT IN (
				SELECT taken_at FROM snapshots WHERE agent_id = ?
				ORDER BY taken_at DESC LIMIT ?
			)`, agentID, agentID, n)
		if err != nil {
			return err
		}
	}
	if n := j.retention.MaxErrorsPerAgent; n > 0 {
		_, err := tx.Exec(`
			DELETE FROM error_log WHERE agent_id = ? AND rowid NOT IN (
				SELECT rowid FROM error_log WHERE agent_id = ?
				ORDER BY occurred_at DESC, rowid DESC LIMIT ?
			)`, agentID, agentID, n)
		if err != nil {
			return err
		}
	}
	return nil
}

// LoadAgent reads one portfolio back, validates it and recomputes derived
// totals rather than trusting stored ones.
func (j *SQLite) LoadAgent(agentID string) (*portfolio.Portfolio, error) {
	p := &portfolio.Portfolio{}
	var (
		status                                  string
		sharpeValid                             int
		initial, current, total, realized, peak string
	)
	err := j.db.QueryRow(`
		SELECT agent_id, methodology, status, initial_cash, current_cash, total_value, realized_pnl,
		       total_return_pct, sharpe_value, sharpe_valid, max_drawdown_pct, current_drawdown_pct,
		       peak_value, wins, losses, created_at, updated_at
		FROM portfolios WHERE agent_id = ?`, agentID).Scan(
		&p.AgentID, &p.Methodology, &status, &initial, &current, &total, &realized,
		&p.TotalReturnPct, &p.Sharpe.Value, &sharpeValid, &p.MaxDrawdownPct, &p.CurrentDrawdownPct,
		&peak, &p.Wins, &p.Losses, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Status = portfolio.Status(status)
	p.Sharpe.Valid = sharpeValid != 0
	if p.InitialCash, err = parseDec(initial, "initial_cash"); err != nil {
		return nil, err
	}
	if p.CurrentCash, err = parseDec(current, "current_cash"); err != nil {
		return nil, err
	}
	if p.TotalValue, err = parseDec(total, "total_value"); err != nil {
		return nil, err
	}
	if p.RealizedPnL, err = parseDec(realized, "realized_pnl"); err != nil {
		return nil, err
	}
	if p.PeakValue, err = parseDec(peak, "peak_value"); err != nil {
		return nil, err
	}

	if err := j.loadPositions(p); err != nil {
		return nil, err
	}
	if err := j.loadTrades(p); err != nil {
		return nil, err
	}
	if err := j.loadSnapshots(p); err != nil {
		return nil, err
	}
	if err := j.loadErrors(p); err != nil {
		return nil, err
	}
	if err := j.loadActions(p); err != nil {
		return nil, err
	}

	if err := Validate(p); err != nil {
		return nil, err
	}
	p.RecomputeTotals()
	return p, nil
}

func (j *SQLite) loadPositions(p *portfolio.Portfolio) error {
	rows, err := j.db.Query(`
		SELECT ticker, shares, avg_cost_basis, total_cost_basis, current_price,
		       market_value, unrealized_pnl, realized_pnl, high_water_mark, drawdown_from_high_pct, opened_at
		FROM positions WHERE agent_id = ? ORDER BY ticker`, p.AgentID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		pos := &portfolio.Position{}
		var avg, totalCost, price, mv, upnl, rpnl, hwm string
		if err := rows.Scan(&pos.Ticker, &pos.Shares, &avg, &totalCost, &price,
			&mv, &upnl, &rpnl, &hwm, &pos.DrawdownFromHighPct, &pos.OpenedAt); err != nil {
			return err
		}
		fields := []struct {
			dst  *decimal.Decimal
			raw  string
			name string
		}{
			{&pos.AvgCostBasis, avg, "avg_cost_basis"},
			{&pos.TotalCostBasis, totalCost, "total_cost_basis"},
			{&pos.CurrentPrice, price, "current_price"},
			{&pos.MarketValue, mv, "market_value"},
			{&pos.UnrealizedPnL, upnl, "unrealized_pnl"},
			{&pos.RealizedPnL, rpnl, "realized_pnl"},
			{&pos.HighWaterMark, hwm, "high_water_mark"},
		}
		for _, f := range fields {
			if *f.dst, err = parseDec(f.raw, f.name); err != nil {
				return err
			}
		}
		p.Positions = append(p.Positions, pos)
	}
	return rows.Err()
}

func (j *SQLite) loadTrades(p *portfolio.Portfolio) error {
	rows, err := j.db.Query(`
		SELECT trade_id, ticker, side, shares, price, total_value, executed_at,
		       confidence, recommendation, thesis_id, valid, realized_pnl
		FROM trades WHERE agent_id = ? ORDER BY executed_at, trade_id`, p.AgentID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var t portfolio.Trade
		var side, price, total, rpnl string
		var valid int
		if err := rows.Scan(&t.ID, &t.Ticker, &side, &t.Shares, &price, &total, &t.ExecutedAt,
			&t.Confidence, &t.Recommendation, &t.ThesisID, &valid, &rpnl); err != nil {
			return err
		}
		t.Side = portfolio.Side(side)
		t.Valid = valid != 0
		if t.Price, err = parseDec(price, "price"); err != nil {
			return err
		}
		if t.TotalValue, err = parseDec(total, "total_value"); err != nil {
			return err
		}
		if t.RealizedPnL, err = parseDec(rpnl, "realized_pnl"); err != nil {
			return err
		}
		p.Trades = append(p.Trades, t)
	}
	return rows.Err()
}

func (j *SQLite) loadSnapshots(p *portfolio.Portfolio) error {
	rows, err := j.db.Query(`
		SELECT taken_at, total_value, cash, positions_value, daily_return_pct, cumulative_return_pct
		FROM snapshots WHERE agent_id = ? ORDER BY taken_at`, p.AgentID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var s portfolio.PerformanceSnapshot
		var total, cash, posVal string
		if err := rows.Scan(&s.TakenAt, &total, &cash, &posVal, &s.DailyReturnPct, &s.CumulativeReturnPct); err != nil {
			return err
		}
		if s.TotalValue, err = parseDec(total, "total_value"); err != nil {
			return err
		}
		if s.Cash, err = parseDec(cash, "cash"); err != nil {
			return err
		}
		if s.PositionsValue, err = parseDec(posVal, "positions_value"); err != nil {
			return err
		}
		p.Snapshots = append(p.Snapshots, s)
	}
	return rows.Err()
}

func (j *SQLite) loadErrors(p *portfolio.Portfolio) error {
	rows, err := j.db.Query(`
		SELECT code, message, recoverable, resolved, occurred_at
		FROM error_log WHERE agent_id = ? ORDER BY occurred_at, rowid`, p.AgentID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var e portfolio.ErrorEntry
		var code string
		var recoverable, resolved int
		if err := rows.Scan(&code, &e.Message, &recoverable, &resolved, &e.OccurredAt); err != nil {
			return err
		}
		e.Code = portfolio.ErrorCode(code)
		e.Recoverable = recoverable != 0
		e.Resolved = resolved != 0
		p.Errors = append(p.Errors, e)
	}
	return rows.Err()
}

func (j *SQLite) loadActions(p *portfolio.Portfolio) error {
	rows, err := j.db.Query(`
		SELECT action_id, ticker, kind, ratio, amount, executed_at, applied
		FROM corporate_actions WHERE agent_id = ? ORDER BY executed_at, action_id`, p.AgentID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var a portfolio.CorporateAction
		var kind, ratio, amount string
		var applied int
		if err := rows.Scan(&a.ID, &a.Ticker, &kind, &ratio, &amount, &a.ExecutedAt, &applied); err != nil {
			return err
		}
		a.Kind = portfolio.ActionKind(kind)
		a.Applied = applied != 0
		if a.Ratio, err = parseDec(ratio, "ratio"); err != nil {
			return err
		}
		if a.Amount, err = parseDec(amount, "amount"); err != nil {
			return err
		}
		p.Actions = append(p.Actions, a)
	}
	return rows.Err()
}

// LoadAll reads every stored portfolio in agent-id order.
func (j *SQLite) LoadAll() ([]*portfolio.Portfolio, error) {
	rows, err := j.db.Query(`SELECT agent_id FROM portfolios ORDER BY agent_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*portfolio.Portfolio, 0, len(ids))
	for _, id := range ids {
		p, err := j.LoadAgent(id)
		if err != nil {
			return nil, fmt.Errorf("load agent %s: %w", id, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// DeleteAgent removes an agent and all of its history.
func (j *SQLite) DeleteAgent(agentID string) error {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"portfolios", "positions", "trades", "snapshots", "error_log", "corporate_actions"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE agent_id = ?`, agentID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseDec(s, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, portfolio.Errorf(portfolio.CodeDataCorruption,
			"stored %s %q is not a decimal: %v", field, s, err)
	}
	return d, nil
}

var _ Store = (*SQLite)(nil)
