package status

import "testing"

func TestTerminal(t *testing.T) {
	tests := []struct {
		code Code
		want bool
	}{
		{AlreadyBooked, true},
		{ParamError, true},
		{LoginFailed, true},
		{NoNeed, true},
		{LoopFailed, true},
		{TimeOut, false},
		{StatusCodeError, false},
		{JSONDecodeError, false},
		{UnknownError, false},
		{NoSeat, false},
		{NotAffordable, false},
		{ProxyError, false},
		{Code(0), true},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			if got := tt.code.Terminal(); got != tt.want {
				t.Errorf("%v.Terminal() = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestStringCoversAllCodes(t *testing.T) {
	for c := Success; c <= NoNeed; c++ {
		if c.String() == "invalid" {
			t.Errorf("code %d has no name", int(c))
		}
		if c.Describe() == "unknown outcome" {
			t.Errorf("code %v has no description", c)
		}
	}
}
