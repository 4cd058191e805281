// journal/schema.go
package journal

// Money columns are stored as TEXT so decimal values round-trip exactly;
// REAL would silently reintroduce float drift.
const Schema = `
CREATE TABLE IF NOT EXISTS portfolios (
	agent_id TEXT PRIMARY KEY,
	methodology TEXT NOT NULL,
	status TEXT NOT NULL,
	initial_cash TEXT NOT NULL,
	current_cash TEXT NOT NULL,
	total_value TEXT NOT NULL,
	realized_pnl TEXT NOT NULL,
	total_return_pct REAL NOT NULL,
	sharpe_value REAL NOT NULL,
	sharpe_valid INTEGER NOT NULL,
	max_drawdown_pct REAL NOT NULL,
	current_drawdown_pct REAL NOT NULL,
	peak_value TEXT NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	agent_id TEXT NOT NULL,
	ticker TEXT NOT NULL,
	shares INTEGER NOT NULL,
	avg_cost_basis TEXT NOT NULL,
	total_cost_basis TEXT NOT NULL,
	current_price TEXT NOT NULL,
	market_value TEXT NOT NULL,
	unrealized_pnl TEXT NOT NULL,
	realized_pnl TEXT NOT NULL,
	high_water_mark TEXT NOT NULL,
	drawdown_from_high_pct REAL NOT NULL,
	opened_at DATETIME NOT NULL,
	PRIMARY KEY (agent_id, ticker)
);

CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	ticker TEXT NOT NULL,
	side TEXT NOT NULL,
	shares INTEGER NOT NULL,
	price TEXT NOT NULL,
	total_value TEXT NOT NULL,
	executed_at DATETIME NOT NULL,
	confidence REAL NOT NULL,
	recommendation TEXT NOT NULL,
	thesis_id TEXT NOT NULL,
	valid INTEGER NOT NULL,
	realized_pnl TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	agent_id TEXT NOT NULL,
	taken_at DATETIME NOT NULL,
	total_value TEXT NOT NULL,
	cash TEXT NOT NULL,
	positions_value TEXT NOT NULL,
	daily_return_pct REAL NOT NULL,
	cumulative_return_pct REAL NOT NULL,
	PRIMARY KEY (agent_id, taken_at)
);

CREATE TABLE IF NOT EXISTS error_log (
	agent_id TEXT NOT NULL,
	code TEXT NOT NULL,
	message TEXT NOT NULL,
	recoverable INTEGER NOT NULL,
	resolved INTEGER NOT NULL,
	occurred_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS corporate_actions (
	action_id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	ticker TEXT NOT NULL,
	kind TEXT NOT NULL,
	ratio TEXT NOT NULL,
	amount TEXT NOT NULL,
	executed_at DATETIME NOT NULL,
	applied INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_agent ON trades(agent_id, executed_at);
CREATE INDEX IF NOT EXISTS idx_snapshots_agent ON snapshots(agent_id, taken_at);
CREATE INDEX IF NOT EXISTS idx_errors_agent ON error_log(agent_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_actions_agent ON corporate_actions(agent_id, executed_at);
`

// SchemaVersion guards against opening a database written by an
// incompatible build.
const SchemaVersion = "1"
