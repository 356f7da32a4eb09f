package interpreter

import (
	"reflect"
	"testing"
)

func TestCommonAncestor(t *testing.T) {
	tests := []struct {
		a, b, want string
	}{
		{"a.b.c", "a.b.d", "a.b"},
		{"a.b", "a.c", "a"},
		{"a", "b", ""},
		{"a.b.c", "a.b.c", "a.b.c"},
		{"a.b", "a.b.c", "a.b"},
	}
	for _, tt := range tests {
		if got := commonAncestor(tt.a, tt.b); got != tt.want {
			t.Errorf("commonAncestor(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestGetAncestors(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"a", []string{"a"}},
		{"a.b", []string{"a", "a.b"}},
		{"a.b.c", []string{"a", "a.b", "a.b.c"}},
	}
	for _, tt := range tests {
		if got := getAncestors(tt.path); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("getAncestors(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestIsDescendant(t *testing.T) {
	tests := []struct {
		path, ancestor string
		want           bool
	}{
		{"a.b", "a", true},
		{"a", "a", false},
		{"ab", "a", false},
		{"a", "", true},
		{"", "", false},
	}
	for _, tt := range tests {
		if got := isDescendant(tt.path, tt.ancestor); got != tt.want {
			t.Errorf("isDescendant(%q, %q) = %v, want %v", tt.path, tt.ancestor, got, tt.want)
		}
	}
}

func TestParentPath(t *testing.T) {
	if got := parentPath("a.b.c"); got != "a.b" {
		t.Errorf("parentPath(a.b.c) = %q", got)
	}
	if got := parentPath("a"); got != "" {
		t.Errorf("parentPath(a) = %q", got)
	}
}
