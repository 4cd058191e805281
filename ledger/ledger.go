// Package ledger owns the canonical in-memory state of every agent
// portfolio and is the only writer of it. Each mutation runs under the
// agent's own FIFO lock, applies fully or not at all, and is then journaled;
// a storage failure is logged and survived, never rolled back into memory.
package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Drix10/hypothesis-arena/decision"
	"github.com/Drix10/hypothesis-arena/journal"
	"github.com/Drix10/hypothesis-arena/lock"
	"github.com/Drix10/hypothesis-arena/market"
	"github.com/Drix10/hypothesis-arena/portfolio"
	"github.com/Drix10/hypothesis-arena/risk"
)

// ErrUnknownAgent is returned for operations against an agent id the
// ledger has never seen.
var ErrUnknownAgent = errors.New("ledger: unknown agent")

// ErrAgentExists is returned when adding an agent id twice.
var ErrAgentExists = errors.New("ledger: agent already exists")

const defaultMaxErrorEntries = 100

// Options wires the ledger's collaborators. Zero-value fields fall back to
// safe defaults; Store and TradeLog may be nil for a memory-only ledger.
type Options struct {
	Store    journal.Store
	TradeLog journal.TradeLog

	Board     *market.Board
	Validator market.Validator
	Hours     market.Hours
	// EnforceHours rejects executions outside the session. Replay runs
	// leave it off.
	EnforceHours bool

	Policy     risk.Policy
	Thresholds decision.Thresholds

	// PauseDrawdownPct and LiquidateDrawdownPct drive the automatic
	// status transitions after every revaluation.
	PauseDrawdownPct     float64
	LiquidateDrawdownPct float64

	Retention       journal.Retention
	MaxErrorEntries int
	LockTimeout     time.Duration
	Logger          *slog.Logger
}

// Ledger is safe for concurrent use. The registry lock only guards the
// agent map; each portfolio mutates under its own keyed lock so agents
// never stall each other.
type Ledger struct {
	reg    *registry
	locks  *lock.Keyed
	agg    *aggregates
	store  journal.Store
	trades journal.TradeLog

	board     *market.Board
	validator market.Validator
	hours     market.Hours

	enforceHours  bool
	policy        risk.Policy
	thresholds    decision.Thresholds
	pausePct      float64
	liquidatePct  float64
	retention     journal.Retention
	maxErrEntries int
	lockTimeout   time.Duration

	log *slog.Logger
	now func() time.Time
}

func New(opts Options) *Ledger {
	if opts.Board == nil {
		opts.Board = market.NewBoard()
	}
	if opts.Policy.MaxOpenPositions == 0 {
		opts.Policy = risk.DefaultPolicy()
	}
	if opts.Thresholds.MinBuyConfidence == 0 {
		opts.Thresholds = decision.DefaultThresholds()
	}
	if opts.PauseDrawdownPct == 0 {
		opts.PauseDrawdownPct = 20
	}
	if opts.LiquidateDrawdownPct == 0 {
		opts.LiquidateDrawdownPct = 40
	}
	if opts.MaxErrorEntries == 0 {
		opts.MaxErrorEntries = defaultMaxErrorEntries
	}
	if opts.LockTimeout == 0 {
		opts.LockTimeout = lock.DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Ledger{
		reg:           newRegistry(),
		locks:         lock.NewKeyed(),
		agg:           newAggregates(),
		store:         opts.Store,
		trades:        opts.TradeLog,
		board:         opts.Board,
		validator:     opts.Validator,
		hours:         opts.Hours,
		enforceHours:  opts.EnforceHours,
		policy:        opts.Policy,
		thresholds:    opts.Thresholds,
		pausePct:      opts.PauseDrawdownPct,
		liquidatePct:  opts.LiquidateDrawdownPct,
		retention:     opts.Retention,
		maxErrEntries: opts.MaxErrorEntries,
		lockTimeout:   opts.LockTimeout,
		log:           opts.Logger,
		now:           time.Now,
	}
}

// SetClock replaces the time source, for replay and tests.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Board exposes the quote board shared with the price feed.
func (l *Ledger) Board() *market.Board {
	return l.board
}

// Policy returns the sizing policy in force.
func (l *Ledger) Policy() risk.Policy {
	return l.policy
}

// Thresholds returns the decision tuning in force.
func (l *Ledger) Thresholds() decision.Thresholds {
	return l.thresholds
}

// AddAgent registers a new portfolio and persists it.
func (l *Ledger) AddAgent(agentID, methodology string, initialCash decimal.Decimal) (*portfolio.Portfolio, error) {
	if !initialCash.IsPositive() {
		return nil, fmt.Errorf("initial cash %s is not positive", initialCash)
	}

	p := portfolio.New(agentID, methodology, initialCash)
	p.CreatedAt = l.now().UTC()
	p.UpdatedAt = p.CreatedAt
	if !l.reg.add(p) {
		return nil, fmt.Errorf("%w: %s", ErrAgentExists, p.AgentID)
	}

	l.persist(p)
	l.log.Info("agent registered",
		"agent", p.AgentID,
		"methodology", methodology,
		"initial_cash", initialCash.String())
	return p.Clone(), nil
}

// Agent returns a deep copy of one portfolio. Callers never see live state;
// mutation happens only through ledger operations.
func (l *Ledger) Agent(agentID string) (*portfolio.Portfolio, error) {
	var out *portfolio.Portfolio
	err := l.withAgent(agentID, func(p *portfolio.Portfolio) error {
		out = p.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Agents returns deep copies of every portfolio, ordered by agent id.
func (l *Ledger) Agents() []*portfolio.Portfolio {
	ids := l.reg.ids()
	out := make([]*portfolio.Portfolio, 0, len(ids))
	for _, id := range ids {
		if p, err := l.Agent(id); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// AgentIDs lists registered agents in order.
func (l *Ledger) AgentIDs() []string {
	return l.reg.ids()
}

// RemoveAgent drops an agent from memory and the store.
func (l *Ledger) RemoveAgent(agentID string) error {
	if !l.reg.remove(agentID) {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	if l.store != nil {
		if err := l.store.DeleteAgent(agentID); err != nil {
			return fmt.Errorf("delete agent %s from store: %w", agentID, err)
		}
	}
	l.log.Info("agent removed", "agent", agentID)
	return nil
}

// LoadFromStore replaces the in-memory registry with everything the store
// holds. Called once at startup before any trading.
func (l *Ledger) LoadFromStore() (int, error) {
	if l.store == nil {
		return 0, nil
	}
	agents, err := l.store.LoadAll()
	if err != nil {
		return 0, err
	}
	l.reg.reset(agents)
	// stored counters include trades that retention has since trimmed;
	// rebuild from history only when none were saved
	if !l.restoreAggregates() {
		for _, p := range agents {
			l.agg.absorb(p)
		}
	}
	l.log.Info("state restored", "agents", len(agents))
	return len(agents), nil
}

// ForceUnlock clears a wedged agent lock, failing any queued waiters.
func (l *Ledger) ForceUnlock(agentID string) int {
	n := l.locks.ForceRelease(agentID)
	l.log.Warn("lock force released", "agent", agentID, "waiters_failed", n)
	return n
}

// ResolveErrors marks unresolved error entries with the given code as
// resolved, returning how many were touched.
func (l *Ledger) ResolveErrors(agentID string, code portfolio.ErrorCode) (int, error) {
	resolved := 0
	err := l.withAgent(agentID, func(p *portfolio.Portfolio) error {
		for i := range p.Errors {
			if p.Errors[i].Code == code && !p.Errors[i].Resolved {
				p.Errors[i].Resolved = true
				resolved++
			}
		}
		if resolved > 0 {
			p.UpdatedAt = l.now().UTC()
			l.persist(p)
		}
		return nil
	})
	return resolved, err
}

// withAgent runs fn with the live portfolio under the agent's FIFO lock.
func (l *Ledger) withAgent(agentID string, fn func(p *portfolio.Portfolio) error) error {
	p, ok := l.reg.get(agentID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	return l.locks.With(agentID, l.lockTimeout, func() error {
		return fn(p)
	})
}

// persist journals the portfolio, surviving storage failure: the error is
// recorded on the portfolio itself and in the log, and memory remains the
// source of truth until the store recovers.
func (l *Ledger) persist(p *portfolio.Portfolio) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveAgent(p); err != nil {
		l.log.Error("persist failed, continuing on memory",
			"agent", p.AgentID, "err", err)
		p.LogError(portfolio.CodeStorageFull, err.Error(), true, l.now().UTC(), l.maxErrEntries)
	}
}

// trimHistory applies the same retention caps to memory that the store
// applies to its tables, so a reload sees the same window.
func (l *Ledger) trimHistory(p *portfolio.Portfolio) {
	if n := l.retention.MaxTradesPerAgent; n > 0 && len(p.Trades) > n {
		p.Trades = append([]portfolio.Trade(nil), p.Trades[len(p.Trades)-n:]...)
	}
	if n := l.retention.MaxSnapshotsPerAgent; n > 0 && len(p.Snapshots) > n {
		p.Snapshots = append([]portfolio.PerformanceSnapshot(nil), p.Snapshots[len(p.Snapshots)-n:]...)
	}
}

// registry is the id-keyed set of live portfolios.
type registry struct {
	mu     sync.RWMutex
	agents map[string]*portfolio.Portfolio
}

func newRegistry() *registry {
	return &registry{agents: make(map[string]*portfolio.Portfolio)}
}

func (r *registry) add(p *portfolio.Portfolio) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[p.AgentID]; exists {
		return false
	}
	r.agents[p.AgentID] = p
	return true
}

func (r *registry) get(id string) (*portfolio.Portfolio, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.agents[id]
	return p, ok
}

func (r *registry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[id]; !exists {
		return false
	}
	delete(r.agents, id)
	return true
}

func (r *registry) reset(agents []*portfolio.Portfolio) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = make(map[string]*portfolio.Portfolio, len(agents))
	for _, p := range agents {
		r.agents[p.AgentID] = p
	}
}

func (r *registry) ids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.agents))
	for id := range r.agents {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
