package riskpolicy_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"virtual-exchange/internal/riskpolicy"
)

func TestDefaultPolicyIsValid(t *testing.T) {
	p := riskpolicy.DefaultPolicy()
	if p.Position.MaxRiskPerTrade.Sign() <= 0 {
		t.Errorf("expected MaxRiskPerTrade > 0, got %s", p.Position.MaxRiskPerTrade)
	}
	if p.Portfolio.MaxOpenPositions <= 0 {
		t.Errorf("expected MaxOpenPositions > 0, got %d", p.Portfolio.MaxOpenPositions)
	}
}

func TestLoadPolicyMissingFileUsesDefault(t *testing.T) {
	p, err := riskpolicy.LoadPolicy(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if p.Portfolio.MaxOpenPositions != riskpolicy.DefaultPolicy().Portfolio.MaxOpenPositions {
		t.Fatal("expected default policy for a missing file")
	}
}

func TestLoadPolicyFromFile(t *testing.T) {
	doc := map[string]any{
		"portfolio_constraints": map[string]any{
			"max_position_value": "25000",
			"max_open_positions": 5,
			"max_drawdown":       "0.15",
			"min_account_equity": "5000",
		},
		"position_limits": map[string]any{
			"max_risk_per_trade": "0.01",
			"min_stop_distance":  "0.005",
			"max_stop_distance":  "0.08",
		},
	}
	path := filepath.Join(t.TempDir(), "policy.json")
	blob, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := riskpolicy.LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if !p.Portfolio.MaxPositionValue.Equal(decimal.NewFromInt(25000)) {
		t.Errorf("MaxPositionValue = %s, want 25000", p.Portfolio.MaxPositionValue)
	}
	if p.Portfolio.MaxOpenPositions != 5 {
		t.Errorf("MaxOpenPositions = %d, want 5", p.Portfolio.MaxOpenPositions)
	}
}

func TestLoadPolicyRejectsInvalid(t *testing.T) {
	doc := map[string]any{
		"portfolio_constraints": map[string]any{"max_open_positions": 5},
		"position_limits": map[string]any{
			"max_risk_per_trade": "0.01",
			"min_stop_distance":  "0.10",
			"max_stop_distance":  "0.05",
		},
	}
	path := filepath.Join(t.TempDir(), "bad-policy.json")
	blob, _ := json.Marshal(doc)
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := riskpolicy.LoadPolicy(path); err == nil {
		t.Fatal("expected an error for min_stop_distance >= max_stop_distance")
	}
}

func TestEnforcerNilPolicyAllowsEverything(t *testing.T) {
	e := riskpolicy.NewEnforcer(nil)
	if vs := e.CheckOrder(riskpolicy.OrderCheck{PositionValue: decimal.NewFromInt(1_000_000)}); !vs.IsEmpty() {
		t.Fatalf("expected no violations with a nil policy, got %v", vs)
	}
	if vs := e.CheckPortfolio(riskpolicy.PortfolioState{OpenPositions: 1000}); !vs.IsEmpty() {
		t.Fatalf("expected no violations with a nil policy, got %v", vs)
	}
}

func TestCheckOrderStopTooTight(t *testing.T) {
	e := riskpolicy.NewEnforcer(riskpolicy.DefaultPolicy())
	vs := e.CheckOrder(riskpolicy.OrderCheck{
		EntryPrice:    decimal.NewFromInt(100),
		StopPrice:     decimal.NewFromFloat(99.95), // 0.05% distance, below the 0.1% default minimum
		PositionValue: decimal.NewFromInt(1000),
		AccountEquity: decimal.NewFromInt(10000),
	})
	found := false
	for _, v := range vs {
		if v.Code == riskpolicy.ViolationStopTooTight {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ViolationStopTooTight, got %v", vs)
	}
}

func TestCheckOrderPositionTooLarge(t *testing.T) {
	policy := riskpolicy.DefaultPolicy()
	e := riskpolicy.NewEnforcer(policy)
	vs := e.CheckOrder(riskpolicy.OrderCheck{
		PositionValue: policy.Portfolio.MaxPositionValue.Add(decimal.NewFromInt(1)),
	})
	if vs.IsEmpty() {
		t.Fatal("expected ViolationPositionTooLarge")
	}
	if vs[0].Code != riskpolicy.ViolationPositionTooLarge {
		t.Fatalf("got %s, want %s", vs[0].Code, riskpolicy.ViolationPositionTooLarge)
	}
}

func TestCheckPortfolioDrawdownHalt(t *testing.T) {
	e := riskpolicy.NewEnforcer(riskpolicy.DefaultPolicy())
	vs := e.CheckPortfolio(riskpolicy.PortfolioState{
		Equity:          decimal.NewFromInt(10000),
		CurrentDrawdown: decimal.NewFromFloat(0.25),
	})
	found := false
	for _, v := range vs {
		if v.Code == riskpolicy.ViolationDrawdownHalt {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ViolationDrawdownHalt, got %v", vs)
	}
}

func TestCheckPortfolioTooManyPositions(t *testing.T) {
	policy := riskpolicy.DefaultPolicy()
	e := riskpolicy.NewEnforcer(policy)
	vs := e.CheckPortfolio(riskpolicy.PortfolioState{
		Equity:        decimal.NewFromInt(100000),
		OpenPositions: policy.Portfolio.MaxOpenPositions,
	})
	if vs.IsEmpty() {
		t.Fatal("expected ViolationTooManyPositions")
	}
}
