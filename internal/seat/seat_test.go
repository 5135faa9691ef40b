package seat

import "testing"

func pois(labels ...string) []Candidate {
	out := make([]Candidate, 0, len(labels))
	for i, l := range labels {
		out = append(out, Candidate{ID: "id-" + l, Label: l, State: StateSelectable + 2*(i%2)})
	}
	return out
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name      string
		preferred int
		av        Availability
		want      string
		wantOK    bool
	}{
		{
			name:   "recommended when no preference",
			av:     Availability{BestPair: []Candidate{{ID: "9001", Label: "17"}}, POIs: pois("259")},
			want:   "9001",
			wantOK: true,
		},
		{
			name:   "no recommendation",
			av:     Availability{POIs: pois("259")},
			wantOK: false,
		},
		{
			name:      "exact match wins",
			preferred: 259,
			av:        Availability{POIs: pois("261", "259")},
			want:      "id-259",
			wantOK:    true,
		},
		{
			name:      "odd neighbour replaces even",
			preferred: 100,
			av:        Availability{POIs: pois("104", "103")},
			want:      "id-103",
			wantOK:    true,
		},
		{
			name:      "even neighbour within ten does not replace",
			preferred: 100,
			av:        Availability{POIs: pois("105", "102")},
			want:      "id-105",
			wantOK:    true,
		},
		{
			name:      "large improvement replaces regardless of parity",
			preferred: 100,
			av:        Availability{POIs: pois("150", "102")},
			want:      "id-102",
			wantOK:    true,
		},
		{
			name:      "occupied seats ignored",
			preferred: 10,
			av: Availability{POIs: []Candidate{
				{ID: "a", Label: "10", State: 1},
				{ID: "b", Label: "13", State: StateSelectable},
			}},
			want:   "b",
			wantOK: true,
		},
		{
			name:      "non numeric labels ignored",
			preferred: 10,
			av:        Availability{POIs: []Candidate{{ID: "x", Label: "A1"}}},
			wantOK:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Select(tt.preferred, tt.av)
			if ok != tt.wantOK {
				t.Fatalf("Select() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.ID != tt.want {
				t.Errorf("Select() = %q, want %q", got.ID, tt.want)
			}
		})
	}
}
