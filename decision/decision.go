// Package decision turns an agent's thesis signal and its debate outcome
// into a final trade action. The engine is a pure function of its inputs so
// the same signals always produce the same action.
package decision

import "fmt"

// Action is what the engine tells the ledger to do.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Recommendation is the thesis verdict on a five point scale.
type Recommendation string

const (
	RecStrongBuy  Recommendation = "strong_buy"
	RecBuy        Recommendation = "buy"
	RecHold       Recommendation = "hold"
	RecSell       Recommendation = "sell"
	RecStrongSell Recommendation = "strong_sell"
)

// Valid reports whether r is one of the five known verdicts.
func (r Recommendation) Valid() bool {
	switch r {
	case RecStrongBuy, RecBuy, RecHold, RecSell, RecStrongSell:
		return true
	}
	return false
}

func (r Recommendation) buySide() bool  { return r == RecBuy || r == RecStrongBuy }
func (r Recommendation) sellSide() bool { return r == RecSell || r == RecStrongSell }

// Stance is the side a debate participant argues.
type Stance string

const (
	StanceBull Stance = "bull"
	StanceBear Stance = "bear"
)

// Signal is the external thesis output driving one agent's next move.
// Confidence is on a 0..100 scale.
type Signal struct {
	Ticker         string         `json:"ticker"`
	Recommendation Recommendation `json:"recommendation"`
	Confidence     float64        `json:"confidence"`
	ThesisID       string         `json:"thesis_id"`
}

// Debate is the adversarial review of the same thesis. Margin is the
// winner's victory margin on a 0..100 scale; a zero-value Debate means no
// debate was held and leaves the confidence untouched.
type Debate struct {
	Winner Stance  `json:"winner"`
	Margin float64 `json:"margin"`
}

// AgentView is the slice of an agent's state the engine reads: its status,
// its scoring record and how many shares of the signal's ticker it holds.
// An empty Status counts as active.
type AgentView struct {
	Status       string
	WinRate      float64
	ClosedTrades int
	HeldShares   int64
}

// Adjustment is one applied confidence modification, kept for audit.
type Adjustment struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Outcome is the engine's verdict. When Skipped is true the ledger must not
// trade; Action is then ActionHold and SkipReason says why. For sells the
// engine fixes Shares itself; for buys Shares stays zero and the sizing
// policy decides.
type Outcome struct {
	Action         Action         `json:"action"`
	Ticker         string         `json:"ticker"`
	Recommendation Recommendation `json:"recommendation,omitempty"`
	ThesisID       string         `json:"thesis_id"`
	Confidence     float64        `json:"confidence"`
	Shares         int64          `json:"shares,omitempty"`
	Applied        []Adjustment   `json:"applied,omitempty"`
	Skipped        bool           `json:"skipped"`
	SkipReason     string         `json:"skip_reason,omitempty"`
}

// Thresholds holds the tunable constants of the adjustment pipeline.
type Thresholds struct {
	// DebateBonusPerMargin scales the winner's margin into a confidence
	// bonus, capped at DebateBonusCap.
	DebateBonusPerMargin float64 `yaml:"debate_bonus_per_margin" json:"debate_bonus_per_margin"`
	DebateBonusCap       float64 `yaml:"debate_bonus_cap" json:"debate_bonus_cap"`
	// DebateLossFactor multiplies confidence when the agent's side lost.
	DebateLossFactor float64 `yaml:"debate_loss_factor" json:"debate_loss_factor"`
	// CloseMargin marks a debate as too close to trust; CloseFactor damps
	// confidence when the margin falls under it.
	CloseMargin float64 `yaml:"close_margin" json:"close_margin"`
	CloseFactor float64 `yaml:"close_factor" json:"close_factor"`
	// ColdWinRate and ColdMinTrades damp confidence for agents on a losing
	// record once enough trades exist to judge.
	ColdWinRate   float64 `yaml:"cold_win_rate" json:"cold_win_rate"`
	ColdMinTrades int     `yaml:"cold_min_trades" json:"cold_min_trades"`
	ColdFactor    float64 `yaml:"cold_factor" json:"cold_factor"`
	// MinBuyConfidence is the floor under which a buy degrades to HOLD.
	MinBuyConfidence float64 `yaml:"min_buy_confidence" json:"min_buy_confidence"`
}

// DefaultThresholds returns the standard pipeline tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DebateBonusPerMargin: 0.4,
		DebateBonusCap:       15,
		DebateLossFactor:     0.5,
		CloseMargin:          10,
		CloseFactor:          0.85,
		ColdWinRate:          0.40,
		ColdMinTrades:        5,
		ColdFactor:           0.85,
		MinBuyConfidence:     50,
	}
}

// stanceFor maps a recommendation onto the debate side arguing for it.
func stanceFor(r Recommendation) Stance {
	if r.sellSide() {
		return StanceBear
	}
	return StanceBull
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Evaluate runs the decision pipeline:
//
//  1. a non-active agent holds, whatever the signal says
//  2. start from the signal confidence, clamped to 0..100
//  3. debate won  -> add min(DebateBonusPerMargin * margin, DebateBonusCap)
//     debate lost -> multiply by DebateLossFactor
//     then, margin under CloseMargin -> multiply by CloseFactor
//  4. win rate under ColdWinRate with more than ColdMinTrades closed
//     trades -> multiply by ColdFactor; clamp to 0..100
//  5. buy side: holds when the debate was lost or the adjusted confidence
//     is under MinBuyConfidence, otherwise BUY sized later by policy
//  6. sell side: holds without an open position or after a lost debate,
//     otherwise SELL everything on strong_sell and half (at least one
//     share) on sell
//
// The same inputs always produce the same Outcome.
func Evaluate(th Thresholds, sig Signal, deb Debate, view AgentView) Outcome {
	out := Outcome{
		Action:         ActionHold,
		Ticker:         sig.Ticker,
		Recommendation: sig.Recommendation,
		ThesisID:       sig.ThesisID,
	}

	if view.Status != "" && view.Status != "active" {
		out.Skipped = true
		out.SkipReason = fmt.Sprintf("portfolio is %s", view.Status)
		out.Confidence = clamp(sig.Confidence, 0, 100)
		return out
	}

	conf := clamp(sig.Confidence, 0, 100)
	wonDebate := false

	if deb.Winner != "" {
		margin := clamp(deb.Margin, 0, 100)
		wonDebate = deb.Winner == stanceFor(sig.Recommendation)
		if wonDebate {
			bonus := th.DebateBonusPerMargin * margin
			if bonus > th.DebateBonusCap {
				bonus = th.DebateBonusCap
			}
			conf += bonus
			out.Applied = append(out.Applied, Adjustment{
				Code:   "debate_won",
				Detail: fmt.Sprintf("+%.1f for a %.0f point victory", bonus, margin),
			})
		} else {
			conf *= th.DebateLossFactor
			out.Applied = append(out.Applied, Adjustment{
				Code:   "debate_lost",
				Detail: fmt.Sprintf("x%.2f after losing the debate", th.DebateLossFactor),
			})
		}
		if margin < th.CloseMargin {
			conf *= th.CloseFactor
			out.Applied = append(out.Applied, Adjustment{
				Code:   "close_debate",
				Detail: fmt.Sprintf("x%.2f, margin %.0f under %.0f", th.CloseFactor, margin, th.CloseMargin),
			})
		}
	}

	if view.ClosedTrades > th.ColdMinTrades && view.WinRate < th.ColdWinRate {
		conf *= th.ColdFactor
		out.Applied = append(out.Applied, Adjustment{
			Code:   "cold_streak",
			Detail: fmt.Sprintf("x%.2f at %.0f%% win rate over %d trades", th.ColdFactor, view.WinRate*100, view.ClosedTrades),
		})
	}

	out.Confidence = clamp(conf, 0, 100)
	lostDebate := deb.Winner != "" && !wonDebate

	switch {
	case sig.Recommendation.buySide():
		if lostDebate {
			out.Skipped = true
			out.SkipReason = "debate lost"
			return out
		}
		if out.Confidence < th.MinBuyConfidence {
			out.Skipped = true
			out.SkipReason = fmt.Sprintf("adjusted confidence %.1f under buy floor %.1f", out.Confidence, th.MinBuyConfidence)
			return out
		}
		out.Action = ActionBuy

	case sig.Recommendation.sellSide():
		if view.HeldShares <= 0 {
			out.Skipped = true
			out.SkipReason = fmt.Sprintf("no open position in %s", sig.Ticker)
			return out
		}
		if lostDebate {
			out.Skipped = true
			out.SkipReason = "debate lost"
			return out
		}
		out.Action = ActionSell
		if sig.Recommendation == RecStrongSell {
			out.Shares = view.HeldShares
		} else {
			out.Shares = view.HeldShares / 2
			if out.Shares < 1 {
				out.Shares = 1
			}
		}

	default:
		out.Skipped = true
		out.SkipReason = "signal recommends holding"
	}
	return out
}
