package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/example/seat-scheduler/internal/seat"
	"github.com/example/seat-scheduler/internal/status"
)

// Static fields the vendor web client sends with every login.
var loginDefaults = map[string]string{
	"ui_type":         "com.Raw",
	"code":            "ef4037d86e78f28fee8eca00d1a16e50",
	"str":             "ViCRcuEKGnrVH3eM",
	"_ApplicationId":  "lab4",
	"_JavaScriptKey":  "lab4",
	"_ClientVersion":  "js_xxx",
	"_InstallationId": "f28639d1-5c15-1fa0-89bd-9da5a8e015e0",
}

const alreadyBookedMarker = "已有预约"

// Login authenticates the account and remembers its platform uid.
func (c *Client) Login(ctx context.Context, account, secret string) status.Code {
	body := make(map[string]string, len(loginDefaults)+3)
	for k, v := range loginDefaults {
		body[k] = v
	}
	body["login_name"] = account
	body["password"] = secret
	body["org_id"] = c.opts.OrgID
	if body["org_id"] == "" {
		body["org_id"] = "142"
	}

	var res map[string]json.RawMessage
	if code := c.Call(ctx, Request{Endpoint: PathLogin, Method: http.MethodPost, JSON: body}, &res); code != status.Success {
		return code
	}
	if _, ok := res["mobile"]; !ok {
		return status.LoginFailed
	}
	var info struct {
		UID Text `json:"uid"`
	}
	if raw, ok := res["org_score_info"]; ok {
		if err := json.Unmarshal(raw, &info); err != nil {
			return status.JSONDecodeError
		}
	}
	c.SetUID(info.UID.String())
	return status.Success
}

// Window is a requested booking window in unix seconds.
type Window struct {
	Begin    int64
	Duration int64
}

// Adjustment is the window the platform offered instead of the requested one.
type Adjustment struct {
	Adjusted bool
	Begin    int64
	Duration int64
}

// SearchResult is the decoded answer of a seat search.
type SearchResult struct {
	Adjustment   Adjustment
	Availability seat.Availability
}

type searchResponse struct {
	Content struct {
		Children []struct {
			IfAdjust   Text `json:"ifAdjust"`
			AdjustDate Text `json:"adjustDate"`
			AdjustTime Text `json:"adjustTime"`
		} `json:"children"`
	} `json:"content"`
	Data json.RawMessage `json:"data"`
}

type searchData struct {
	BestPairSeats struct {
		Seats []poi `json:"seats"`
	} `json:"bestPairSeats"`
	POIs []poi `json:"POIs"`
}

type poi struct {
	ID    Text `json:"id"`
	Title Text `json:"title"`
	State Text `json:"state"`
}

func (p poi) candidate() seat.Candidate {
	return seat.Candidate{ID: p.ID.String(), Label: p.Title.String(), State: int(p.State.Int())}
}

// SearchSeats asks which seats of room are free for w.
func (c *Client) SearchSeats(ctx context.Context, roomID int, w Window) (SearchResult, status.Code) {
	form := url.Values{}
	form.Set("beginTime", strconv.FormatInt(w.Begin, 10))
	form.Set("duration", strconv.FormatInt(w.Duration, 10))
	form.Set("num", "1")
	form.Set("space_category[category_id]", c.opts.CategoryID)
	form.Set("space_category[content_id]", strconv.Itoa(roomID))

	var res searchResponse
	if code := c.Call(ctx, Request{Endpoint: PathSearch, Method: http.MethodPost, Form: form}, &res); code != status.Success {
		return SearchResult{}, code
	}
	// absent, null and empty-array data all mean nothing is free
	raw := bytes.TrimSpace(res.Data)
	if len(raw) == 0 || raw[0] != '{' {
		return SearchResult{}, status.NoSeat
	}
	var data searchData
	if err := json.Unmarshal(raw, &data); err != nil {
		return SearchResult{}, status.JSONDecodeError
	}

	var out SearchResult
	if len(res.Content.Children) > 1 {
		ch := res.Content.Children[1]
		out.Adjustment = Adjustment{
			Adjusted: ch.IfAdjust.Bool(),
			Begin:    ch.AdjustDate.Int(),
			Duration: ch.AdjustTime.Int(),
		}
	}
	for _, p := range data.BestPairSeats.Seats {
		out.Availability.BestPair = append(out.Availability.BestPair, p.candidate())
	}
	for _, p := range data.POIs {
		out.Availability.POIs = append(out.Availability.POIs, p.candidate())
	}
	return out, status.Success
}

type codeResponse struct {
	Code    string `json:"CODE"`
	Message string `json:"MESSAGE"`
}

// BookSeat books seatID for w on behalf of the logged in account.
func (c *Client) BookSeat(ctx context.Context, seatID string, w Window) status.Code {
	form := url.Values{}
	form.Set("beginTime", strconv.FormatInt(w.Begin, 10))
	form.Set("duration", strconv.FormatInt(w.Duration, 10))
	form.Set("seats[0]", seatID)
	form.Set("seatBookers[0]", c.UID())

	var res codeResponse
	if code := c.Call(ctx, Request{Endpoint: PathBook, Method: http.MethodPost, Form: form}, &res); code != status.Success {
		return code
	}
	switch res.Code {
	case "ok":
		return status.Success
	case "ParamError":
		if strings.Contains(res.Message, alreadyBookedMarker) {
			return status.AlreadyBooked
		}
		return status.ParamError
	default:
		return status.UnknownError
	}
}

// Bookings lists the account's recent bookings, newest first.
func (c *Client) Bookings(ctx context.Context) ([]Record, status.Code) {
	var res struct {
		Content struct {
			DefaultItems []Record `json:"defaultItems"`
		} `json:"content"`
	}
	if code := c.Call(ctx, Request{Endpoint: PathBookings}, &res); code != status.Success {
		return nil, code
	}
	return res.Content.DefaultItems, status.Success
}

// Cancel releases a pending booking.
func (c *Client) Cancel(ctx context.Context, bookingID string) status.Code {
	return c.bookingAction(ctx, PathCancel, bookingID)
}

// CheckOut ends an active booking.
func (c *Client) CheckOut(ctx context.Context, bookingID string) status.Code {
	return c.bookingAction(ctx, PathCheckOut, bookingID)
}

func (c *Client) bookingAction(ctx context.Context, path, bookingID string) status.Code {
	form := url.Values{"bookingId": {bookingID}}
	var res codeResponse
	if code := c.Call(ctx, Request{Endpoint: path, Method: http.MethodPost, Form: form}, &res); code != status.Success {
		return code
	}
	if res.Code == "ok" {
		return status.Success
	}
	return status.UnknownError
}

// CheckIn confirms presence for a pending booking. On rejection the
// platform's message is returned alongside UnknownError.
func (c *Client) CheckIn(ctx context.Context, bookingID string) (status.Code, string) {
	form := url.Values{"bookingId": {bookingID}}
	var res struct {
		Data struct {
			Result string `json:"result"`
			Msg    string `json:"msg"`
		} `json:"DATA"`
	}
	if code := c.Call(ctx, Request{Endpoint: PathCheckIn, Method: http.MethodPost, Form: form}, &res); code != status.Success {
		return code, ""
	}
	if res.Data.Result == "success" {
		return status.Success, ""
	}
	return status.UnknownError, res.Data.Msg
}
