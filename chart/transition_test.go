package chart

import "testing"

func TestTransitionConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		trans   TransitionConfig
		wantErr bool
	}{
		{"simple target", TransitionConfig{Event: "go", Target: "next"}, false},
		{"nested target", TransitionConfig{Event: "go", Target: "parent.child-1"}, false},
		{"targetless", TransitionConfig{Event: "go"}, false},
		{"empty segment", TransitionConfig{Event: "go", Target: "parent..child"}, true},
		{"trailing dot", TransitionConfig{Event: "go", Target: "parent."}, true},
		{"bad character", TransitionConfig{Event: "go", Target: "par ent"}, true},
		{"negative priority", TransitionConfig{Event: "go", Target: "next", Priority: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.trans.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSortTransitionsStable(t *testing.T) {
	ts := []TransitionConfig{
		{Target: "a", Priority: 0},
		{Target: "b", Priority: 2},
		{Target: "c", Priority: 0},
		{Target: "d", Priority: 2},
	}
	SortTransitions(ts)
	want := []string{"b", "d", "a", "c"}
	for i, tr := range ts {
		if tr.Target != want[i] {
			t.Fatalf("order mismatch at %d: got %q want %q", i, tr.Target, want[i])
		}
	}
}
