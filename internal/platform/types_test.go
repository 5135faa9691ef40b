package platform

import (
	"encoding/json"
	"testing"
)

func TestTextDecoding(t *testing.T) {
	tests := []struct {
		in       string
		wantStr  string
		wantInt  int64
		wantBool bool
	}{
		{`"42"`, "42", 42, true},
		{`42`, "42", 42, true},
		{`1.7e9`, "1.7e9", 1700000000, true},
		{`true`, "true", 0, true},
		{`false`, "false", 0, false},
		{`null`, "", 0, false},
		{`"0"`, "0", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got Text
			if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
				t.Fatal(err)
			}
			if got.String() != tt.wantStr || got.Int() != tt.wantInt || got.Bool() != tt.wantBool {
				t.Errorf("%s => %q %d %v", tt.in, got, got.Int(), got.Bool())
			}
		})
	}
}

func TestRecordStatusLabel(t *testing.T) {
	for code, want := range map[string]string{
		"0": "pending check-in",
		"1": "active",
		"4": "cancelled",
		"7": "completed (system checkout)",
		"9": "unknown",
	} {
		if got := (Record{Status: Text(code)}).StatusLabel(); got != want {
			t.Errorf("StatusLabel(%s) = %q, want %q", code, got, want)
		}
	}
}
