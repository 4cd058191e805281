// Package replay drives the arena from a scripted scenario file: timestamped
// cycles of quotes, thesis signals and corporate actions, executed against a
// deterministic clock so the same file always produces the same portfolios.
package replay

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
	"gopkg.in/yaml.v3"

	"github.com/Drix10/hypothesis-arena/decision"
)

// Scenario is a named sequence of cycles, ordered by time.
type Scenario struct {
	Name   string  `yaml:"name" json:"name"`
	Cycles []Cycle `yaml:"cycles" json:"cycles"`
}

// Cycle is one tick of the arena: quotes publish first, then signals are
// evaluated and executed, then corporate actions apply, then snapshots run.
type Cycle struct {
	At      time.Time          `yaml:"at" json:"at"`
	Prices  map[string]float64 `yaml:"prices,omitempty" json:"prices,omitempty"`
	Signals []AgentSignal      `yaml:"signals,omitempty" json:"signals,omitempty"`
	Actions []MarketAction     `yaml:"actions,omitempty" json:"actions,omitempty"`
}

// AgentSignal is one thesis plus its debate outcome. An empty Agent
// broadcasts the signal to every registered agent.
type AgentSignal struct {
	Agent          string         `yaml:"agent,omitempty" json:"agent,omitempty"`
	Ticker         string         `yaml:"ticker" json:"ticker"`
	Recommendation string         `yaml:"recommendation" json:"recommendation"`
	Confidence     float64        `yaml:"confidence" json:"confidence"`
	ThesisID       string         `yaml:"thesis_id,omitempty" json:"thesis_id,omitempty"`
	Debate         *DebateOutcome `yaml:"debate,omitempty" json:"debate,omitempty"`
}

// DebateOutcome mirrors decision.Debate in scenario form.
type DebateOutcome struct {
	Winner string  `yaml:"winner" json:"winner"`
	Margin float64 `yaml:"margin" json:"margin"`
}

// MarketAction is a corporate action event. An empty Agent applies it to
// every agent holding the ticker.
type MarketAction struct {
	Agent  string  `yaml:"agent,omitempty" json:"agent,omitempty"`
	ID     string  `yaml:"id,omitempty" json:"id,omitempty"`
	Ticker string  `yaml:"ticker" json:"ticker"`
	Kind   string  `yaml:"kind" json:"kind"` // "split" or "dividend"
	Ratio  float64 `yaml:"ratio,omitempty" json:"ratio,omitempty"`
	Amount float64 `yaml:"amount,omitempty" json:"amount,omitempty"`
}

// Load reads a scenario from a YAML file. Files ending in .xz are
// decompressed transparently.
func Load(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()

	var src io.Reader = f
	if strings.HasSuffix(path, ".xz") {
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open xz stream: %w", err)
		}
		src = xr
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	sc := &Scenario{}
	if err := yaml.Unmarshal(data, sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return sc, nil
}

// Validate checks the scenario top to bottom. Everything in the file is
// untrusted input.
func (s *Scenario) Validate() error {
	if len(s.Cycles) == 0 {
		return fmt.Errorf("scenario has no cycles")
	}

	var last time.Time
	for i, c := range s.Cycles {
		if c.At.IsZero() {
			return fmt.Errorf("cycles[%d]: at is required", i)
		}
		if c.At.Before(last) {
			return fmt.Errorf("cycles[%d]: at %s is before the previous cycle", i, c.At.Format(time.RFC3339))
		}
		last = c.At

		for ticker, price := range c.Prices {
			if ticker == "" {
				return fmt.Errorf("cycles[%d]: empty ticker in prices", i)
			}
			if price <= 0 {
				return fmt.Errorf("cycles[%d]: price for %s must be positive, got %v", i, ticker, price)
			}
		}

		for j, sig := range c.Signals {
			if sig.Ticker == "" {
				return fmt.Errorf("cycles[%d].signals[%d]: ticker is required", i, j)
			}
			if !decision.Recommendation(sig.Recommendation).Valid() {
				return fmt.Errorf("cycles[%d].signals[%d]: unknown recommendation %q", i, j, sig.Recommendation)
			}
			if sig.Confidence < 0 || sig.Confidence > 100 {
				return fmt.Errorf("cycles[%d].signals[%d]: confidence %v out of 0..100", i, j, sig.Confidence)
			}
			if sig.Debate != nil {
				switch decision.Stance(sig.Debate.Winner) {
				case decision.StanceBull, decision.StanceBear:
				default:
					return fmt.Errorf("cycles[%d].signals[%d]: debate winner must be bull or bear", i, j)
				}
				if sig.Debate.Margin < 0 || sig.Debate.Margin > 100 {
					return fmt.Errorf("cycles[%d].signals[%d]: debate margin %v out of 0..100", i, j, sig.Debate.Margin)
				}
			}
		}

		for j, act := range c.Actions {
			if act.Ticker == "" {
				return fmt.Errorf("cycles[%d].actions[%d]: ticker is required", i, j)
			}
			switch act.Kind {
			case "split":
				if act.Ratio <= 0 {
					return fmt.Errorf("cycles[%d].actions[%d]: split ratio must be positive", i, j)
				}
			case "dividend":
				if act.Amount < 0 {
					return fmt.Errorf("cycles[%d].actions[%d]: dividend amount must not be negative", i, j)
				}
			default:
				return fmt.Errorf("cycles[%d].actions[%d]: unknown kind %q", i, j, act.Kind)
			}
		}
	}
	return nil
}

// Span returns the time range the scenario covers.
func (s *Scenario) Span() (start, end time.Time) {
	if len(s.Cycles) == 0 {
		return
	}
	return s.Cycles[0].At, s.Cycles[len(s.Cycles)-1].At
}
