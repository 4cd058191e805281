// Package journal persists agent portfolios. The SQLite store is the
// durable source of truth; the CSV trade log is an append-only audit trail
// that survives even when the store is unhappy.
package journal

import (
	"errors"

	"github.com/Drix10/hypothesis-arena/portfolio"
)

// ErrNotFound is returned when no stored state exists for an agent.
var ErrNotFound = errors.New("journal: agent not found")

// MetaAggregates is the metadata key holding the system-wide trade
// counters, serialized as JSON.
const MetaAggregates = "aggregates"

// Store is durable full-state persistence for portfolios. SaveAgent writes
// the complete state in one transaction; a partially applied save is never
// visible to a reader. The metadata methods carry small system-wide values
// (schema version, aggregate counters) alongside the per-agent tables.
type Store interface {
	SaveAgent(p *portfolio.Portfolio) error
	LoadAgent(agentID string) (*portfolio.Portfolio, error)
	LoadAll() ([]*portfolio.Portfolio, error)
	DeleteAgent(agentID string) error
	PutMeta(key, value string) error
	GetMeta(key string) (string, error)
	Close() error
}

// TradeLog is an append-only record of executions, one line per fill.
type TradeLog interface {
	Append(agentID string, t portfolio.Trade) error
	Close() error
}

// Retention bounds unbounded history so the store cannot grow without
// limit. Zero means unlimited for that series.
type Retention struct {
	MaxTradesPerAgent    int `yaml:"max_trades_per_agent" json:"max_trades_per_agent"`
	MaxSnapshotsPerAgent int `yaml:"max_snapshots_per_agent" json:"max_snapshots_per_agent"`
	MaxErrorsPerAgent    int `yaml:"max_errors_per_agent" json:"max_errors_per_agent"`
}

// DefaultRetention keeps roughly three years of daily snapshots and a deep
// but bounded trade history.
func DefaultRetention() Retention {
	return Retention{
		MaxTradesPerAgent:    10000,
		MaxSnapshotsPerAgent: 1095,
		MaxErrorsPerAgent:    500,
	}
}
