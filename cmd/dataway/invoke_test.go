package main

import (
	"reflect"
	"testing"
)

func TestParseCallArgs(t *testing.T) {
	tests := []struct {
		name  string
		pairs []string
		want  map[string]any
	}{
		{"empty", nil, map[string]any{}},
		{"plain string", []string{"name=alice"}, map[string]any{"name": "alice"}},
		{"json number", []string{"id=42"}, map[string]any{"id": float64(42)}},
		{"json bool", []string{"active=true"}, map[string]any{"active": true}},
		{"json object", []string{`filter={"a":1}`},
			map[string]any{"filter": map[string]any{"a": float64(1)}}},
		{"value with equals", []string{"expr=a=b"}, map[string]any{"expr": "a=b"}},
		{"empty value", []string{"note="}, map[string]any{"note": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCallArgs(tt.pairs)
			if err != nil {
				t.Fatalf("parseCallArgs failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseCallArgs = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseCallArgsInvalid(t *testing.T) {
	for _, pair := range []string{"noequals", "=value"} {
		if _, err := parseCallArgs([]string{pair}); err == nil {
			t.Errorf("parseCallArgs(%q) succeeded, want error", pair)
		}
	}
}
