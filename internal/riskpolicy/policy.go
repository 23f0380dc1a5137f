// Package riskpolicy layers pre-place portfolio/position gates in front
// of engine.Place: max position value, max open positions, a drawdown
// halt, and stop-distance/risk-per-trade bounds. Enforcement is
// optional — an Enforcer with a nil Policy allows everything — and it
// never mutates the wallet itself; it only decides whether engine.Place
// should be called at all.
package riskpolicy

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// PortfolioConstraints mirrors the portfolio-level gates of a loaded
// risk policy file.
type PortfolioConstraints struct {
	MaxPositionValue decimal.Decimal `json:"max_position_value"`
	MaxOpenPositions int             `json:"max_open_positions"`
	MaxDrawdown      decimal.Decimal `json:"max_drawdown"`
	MinAccountEquity decimal.Decimal `json:"min_account_equity"`
}

// PositionLimits mirrors the per-trade gates.
type PositionLimits struct {
	MaxRiskPerTrade decimal.Decimal `json:"max_risk_per_trade"`
	MinStopDistance decimal.Decimal `json:"min_stop_distance"`
	MaxStopDistance decimal.Decimal `json:"max_stop_distance"`
}

// Policy is the immutable, loaded risk policy, read-only once built.
type Policy struct {
	Portfolio  PortfolioConstraints `json:"portfolio_constraints"`
	Position   PositionLimits       `json:"position_limits"`
	LoadedFrom string               `json:"-"`
}

// LoadPolicy reads a JSON policy file. An empty path or a missing file
// yields DefaultPolicy so a run can start without one in development.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return nil, fmt.Errorf("riskpolicy: read policy file %q: %w", path, err)
	}

	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("riskpolicy: parse policy file %q: %w", path, err)
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("riskpolicy: invalid policy in %q: %w", path, err)
	}
	p.LoadedFrom = path
	return &p, nil
}

// DefaultPolicy returns a conservative policy used when no file exists.
func DefaultPolicy() *Policy {
	return &Policy{
		Portfolio: PortfolioConstraints{
			MaxPositionValue: decimal.NewFromInt(50_000),
			MaxOpenPositions: 10,
			MaxDrawdown:      decimal.NewFromFloat(0.20),
			MinAccountEquity: decimal.NewFromInt(1_000),
		},
		Position: PositionLimits{
			MaxRiskPerTrade: decimal.NewFromFloat(0.02),
			MinStopDistance: decimal.NewFromFloat(0.001),
			MaxStopDistance: decimal.NewFromFloat(0.25),
		},
	}
}

func (p *Policy) validate() error {
	if p.Portfolio.MaxOpenPositions <= 0 {
		return fmt.Errorf("max_open_positions must be > 0")
	}
	if p.Position.MaxRiskPerTrade.Sign() <= 0 || p.Position.MaxRiskPerTrade.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("max_risk_per_trade must be in (0,1], got %s", p.Position.MaxRiskPerTrade)
	}
	if p.Position.MinStopDistance.IsNegative() || p.Position.MinStopDistance.GreaterThanOrEqual(p.Position.MaxStopDistance) {
		return fmt.Errorf("min_stop_distance (%s) must be < max_stop_distance (%s)", p.Position.MinStopDistance, p.Position.MaxStopDistance)
	}
	return nil
}

// ViolationCode is a machine-readable identifier for a specific breach.
type ViolationCode string

const (
	ViolationStopTooTight     ViolationCode = "STOP_TOO_TIGHT"
	ViolationStopTooWide      ViolationCode = "STOP_TOO_WIDE"
	ViolationRiskTooHigh      ViolationCode = "RISK_PER_TRADE_TOO_HIGH"
	ViolationPositionTooLarge ViolationCode = "POSITION_VALUE_TOO_LARGE"
	ViolationTooManyPositions ViolationCode = "TOO_MANY_OPEN_POSITIONS"
	ViolationAccountTooSmall  ViolationCode = "ACCOUNT_TOO_SMALL"
	ViolationDrawdownHalt     ViolationCode = "DRAWDOWN_HALT"
)

// Violation describes a single policy breach.
type Violation struct {
	Code     ViolationCode
	Message  string
	Limit    decimal.Decimal
	Observed decimal.Decimal
}

func (v Violation) Error() string {
	return fmt.Sprintf("riskpolicy violation [%s]: %s (limit=%s, observed=%s)", v.Code, v.Message, v.Limit, v.Observed)
}

// Violations is a slice of Violation that also satisfies error.
type Violations []Violation

func (vs Violations) Error() string {
	if len(vs) == 0 {
		return ""
	}
	out := vs[0].Error()
	for _, v := range vs[1:] {
		out += " | " + v.Error()
	}
	return out
}

// IsEmpty reports whether there are no violations.
func (vs Violations) IsEmpty() bool { return len(vs) == 0 }

// OrderCheck carries the order-level values needed for the per-trade
// gates: entry price, an optional stop price (zero if the order has no
// protective stop attached), notional value, and the account equity the
// risk fraction is measured against.
type OrderCheck struct {
	Symbol        string
	EntryPrice    decimal.Decimal
	StopPrice     decimal.Decimal
	PositionValue decimal.Decimal
	AccountEquity decimal.Decimal
}

// PortfolioState carries the current account values the portfolio-level
// gates are measured against.
type PortfolioState struct {
	Equity          decimal.Decimal
	OpenPositions   int
	CurrentDrawdown decimal.Decimal
}

// Enforcer applies a Policy to orders and portfolio state. A nil
// Enforcer (or one built over a nil Policy) allows everything, so
// enforcement is opt-in.
type Enforcer struct {
	policy *Policy
}

// NewEnforcer builds an Enforcer backed by policy. A nil policy makes
// every check pass.
func NewEnforcer(policy *Policy) *Enforcer {
	return &Enforcer{policy: policy}
}

// CheckOrder validates a single intended order against the per-trade
// position limits.
func (e *Enforcer) CheckOrder(o OrderCheck) Violations {
	if e == nil || e.policy == nil {
		return nil
	}
	var vs Violations
	p := e.policy.Position

	if !o.StopPrice.IsZero() && o.EntryPrice.Sign() > 0 {
		stopDist := o.EntryPrice.Sub(o.StopPrice).Abs().Div(o.EntryPrice)

		if p.MinStopDistance.Sign() > 0 && stopDist.LessThan(p.MinStopDistance) {
			vs = append(vs, Violation{
				Code:     ViolationStopTooTight,
				Message:  fmt.Sprintf("stop distance %s is below minimum %s", stopDist, p.MinStopDistance),
				Limit:    p.MinStopDistance,
				Observed: stopDist,
			})
		}
		if p.MaxStopDistance.Sign() > 0 && stopDist.GreaterThan(p.MaxStopDistance) {
			vs = append(vs, Violation{
				Code:     ViolationStopTooWide,
				Message:  fmt.Sprintf("stop distance %s exceeds maximum %s", stopDist, p.MaxStopDistance),
				Limit:    p.MaxStopDistance,
				Observed: stopDist,
			})
		}

		if o.AccountEquity.Sign() > 0 {
			riskDollar := o.EntryPrice.Sub(o.StopPrice).Abs().Mul(o.PositionValue.Div(o.EntryPrice))
			riskFrac := riskDollar.Div(o.AccountEquity)
			if p.MaxRiskPerTrade.Sign() > 0 && riskFrac.GreaterThan(p.MaxRiskPerTrade) {
				vs = append(vs, Violation{
					Code:     ViolationRiskTooHigh,
					Message:  fmt.Sprintf("trade risk %s exceeds maximum %s", riskFrac, p.MaxRiskPerTrade),
					Limit:    p.MaxRiskPerTrade,
					Observed: riskFrac,
				})
			}
		}
	}

	pc := e.policy.Portfolio
	if pc.MaxPositionValue.Sign() > 0 && o.PositionValue.GreaterThan(pc.MaxPositionValue) {
		vs = append(vs, Violation{
			Code:     ViolationPositionTooLarge,
			Message:  fmt.Sprintf("position value %s exceeds maximum %s", o.PositionValue, pc.MaxPositionValue),
			Limit:    pc.MaxPositionValue,
			Observed: o.PositionValue,
		})
	}

	return vs
}

// CheckPortfolio validates the current portfolio state against the
// portfolio-level gates. These block order submission outright — an
// open-positions count at the cap, or a drawdown past the halt
// threshold, rejects every new order regardless of its own size.
func (e *Enforcer) CheckPortfolio(s PortfolioState) Violations {
	if e == nil || e.policy == nil {
		return nil
	}
	var vs Violations
	pc := e.policy.Portfolio

	if pc.MinAccountEquity.Sign() > 0 && s.Equity.LessThan(pc.MinAccountEquity) {
		vs = append(vs, Violation{
			Code:     ViolationAccountTooSmall,
			Message:  fmt.Sprintf("account equity %s is below minimum %s", s.Equity, pc.MinAccountEquity),
			Limit:    pc.MinAccountEquity,
			Observed: s.Equity,
		})
	}
	if pc.MaxOpenPositions > 0 && s.OpenPositions >= pc.MaxOpenPositions {
		vs = append(vs, Violation{
			Code:     ViolationTooManyPositions,
			Message:  fmt.Sprintf("open positions %d has reached maximum %d", s.OpenPositions, pc.MaxOpenPositions),
			Limit:    decimal.NewFromInt(int64(pc.MaxOpenPositions)),
			Observed: decimal.NewFromInt(int64(s.OpenPositions)),
		})
	}
	if pc.MaxDrawdown.Sign() > 0 && s.CurrentDrawdown.GreaterThanOrEqual(pc.MaxDrawdown) {
		vs = append(vs, Violation{
			Code:     ViolationDrawdownHalt,
			Message:  fmt.Sprintf("drawdown %s has reached halt threshold %s", s.CurrentDrawdown, pc.MaxDrawdown),
			Limit:    pc.MaxDrawdown,
			Observed: s.CurrentDrawdown,
		})
	}

	return vs
}
