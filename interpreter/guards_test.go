package interpreter

import (
	"testing"

	"github.com/comalice/machinestore/chart"
)

func TestDefaultGuardEvaluator_Eval_Func(t *testing.T) {
	ctx := chart.NewContext(nil)
	event := chart.NewEvent("test", nil)
	called := false
	guard := func(c *chart.Context, e chart.Event) bool {
		called = true
		return true
	}
	e := &DefaultGuardEvaluator{}
	if !e.Eval(ctx, guard, event) {
		t.Error("func guard returned false")
	}
	if !called {
		t.Error("guard func not called")
	}
	if e.Eval(ctx, chart.GuardFunc(func(*chart.Context, chart.Event) bool { return false }), event) {
		t.Error("GuardFunc result ignored")
	}
}

func TestDefaultGuardEvaluator_Eval_Nil(t *testing.T) {
	e := &DefaultGuardEvaluator{}
	if !e.Eval(chart.NewContext(nil), nil, chart.NewEvent("test", nil)) {
		t.Error("nil guard should be true")
	}
}

func TestDefaultGuardEvaluator_Eval_String(t *testing.T) {
	e := &DefaultGuardEvaluator{}
	if e.Eval(chart.NewContext(nil), "unknown", chart.NewEvent("test", nil)) {
		t.Error("unresolved guard name should be false")
	}
}

func TestExpressionGuardEvaluator(t *testing.T) {
	ctx := chart.NewContext(map[string]any{
		"temp":     35.0,
		"count":    3,
		"loggedIn": true,
		"user":     "alice",
		"missing":  nil,
	})
	event := chart.NewEvent("test", nil)
	e := NewExpressionGuardEvaluator()

	tests := []struct {
		expr string
		want bool
	}{
		{"temp == 35", true},
		{"temp == 31", false},
		{"temp > 30", true},
		{"temp >= 35", true},
		{"temp < 30", false},
		{"count <= 3", true},
		{"count != 4", true},
		{"loggedIn == true", true},
		{"loggedIn == false", false},
		{"user != bob", true},
		{"user != alice", false},
		{"user == 'alice'", true},
		{"missing == nil", true},
		{"absent == true", false},
		{"user > 3", false},
		{"temp > hot", false},
		{"temp ~ 3", false},
		{"malformed", false},
	}
	for _, tt := range tests {
		if got := e.Eval(ctx, tt.expr, event); got != tt.want {
			t.Errorf("Eval(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestExpressionGuardEvaluator_FallsBack(t *testing.T) {
	e := NewExpressionGuardEvaluator()
	ctx := chart.NewContext(nil)
	if !e.Eval(ctx, nil, chart.NewEvent("test", nil)) {
		t.Error("nil guard should be true")
	}
	if e.Eval(ctx, chart.GuardFunc(func(*chart.Context, chart.Event) bool { return false }), chart.NewEvent("test", nil)) {
		t.Error("func guard should be delegated")
	}
}
