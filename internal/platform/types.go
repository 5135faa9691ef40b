package platform

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Text decodes a JSON string, number or boolean into its string form. The
// platform is inconsistent about quoting ids, timestamps and states.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	*t = Text(b)
	return nil
}

func (t Text) String() string { return string(t) }

// Int returns t as an integer, or 0 when it is not numeric.
func (t Text) Int() int64 {
	n, err := strconv.ParseInt(string(t), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(string(t), 64)
		if ferr != nil {
			return 0
		}
		return int64(f)
	}
	return n
}

// Bool treats "", "0", "false" and null as false.
func (t Text) Bool() bool {
	switch t {
	case "", "0", "false", "False":
		return false
	}
	return true
}

// Booking states as the platform reports them.
const (
	RecordPending       = "0"
	RecordActive        = "1"
	RecordCheckedOut    = "3"
	RecordCancelled     = "4"
	RecordNoCheckIn     = "5"
	RecordAwayTimeout   = "6"
	RecordSystemChecked = "7"
)

var recordLabels = map[string]string{
	RecordPending:       "pending check-in",
	RecordActive:        "active",
	RecordCheckedOut:    "completed (checked out)",
	RecordCancelled:     "cancelled",
	RecordNoCheckIn:     "completed (no check-in)",
	RecordAwayTimeout:   "completed (away, not returned)",
	RecordSystemChecked: "completed (system checkout)",
}

// Record is one entry of the account's booking list.
type Record struct {
	ID       Text `json:"id"`
	Status   Text `json:"status"`
	Time     Text `json:"time"`
	Duration Text `json:"duration"`
	SeatNum  Text `json:"seatNum"`
	RoomName Text `json:"roomName"`
}

func (r Record) StatusLabel() string {
	if l, ok := recordLabels[string(r.Status)]; ok {
		return l
	}
	return "unknown"
}

func (r Record) Pending() bool { return string(r.Status) == RecordPending }
func (r Record) Active() bool  { return string(r.Status) == RecordActive }

func (r Record) Start() time.Time { return time.Unix(r.Time.Int(), 0) }

func (r Record) End() time.Time {
	return r.Start().Add(time.Duration(r.Duration.Int()) * time.Second)
}

// Window formats the booking window in loc, e.g. "2024-05-01 08:00 to 18:00".
func (r Record) Window(loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return r.Start().In(loc).Format("2006-01-02 15:04") + " to " + r.End().In(loc).Format("15:04")
}
