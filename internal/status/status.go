// Package status defines the closed set of outcomes a platform operation can
// produce. Every remote call, retry loop and booking workflow reports one of
// these codes instead of an error value.
package status

// Code is the result of a single platform operation or of a retry loop.
type Code int

const (
	Success Code = iota + 1
	NoSeat
	NotAffordable
	StatusCodeError
	TimeOut
	ParamError
	UnknownError
	AlreadyBooked
	LoopFailed
	LoginFailed
	ProxyError
	JSONDecodeError
	NoNeed
)

func (c Code) String() string {
	switch c {
	case Success:
		return "success"
	case NoSeat:
		return "no_seat"
	case NotAffordable:
		return "not_affordable"
	case StatusCodeError:
		return "status_code_error"
	case TimeOut:
		return "time_out"
	case ParamError:
		return "param_error"
	case UnknownError:
		return "unknown_error"
	case AlreadyBooked:
		return "already_booked"
	case LoopFailed:
		return "loop_failed"
	case LoginFailed:
		return "login_failed"
	case ProxyError:
		return "proxy_error"
	case JSONDecodeError:
		return "json_decode_error"
	case NoNeed:
		return "no_need"
	default:
		return "invalid"
	}
}

// Terminal reports whether a retry loop must stop on c without spending
// further attempts. Success is not terminal in this sense; loops exit on it
// before asking.
func (c Code) Terminal() bool {
	switch c {
	case AlreadyBooked, ParamError, LoginFailed, NoNeed, LoopFailed:
		return true
	case Success, NoSeat, NotAffordable, StatusCodeError, TimeOut, UnknownError, ProxyError, JSONDecodeError:
		return false
	default:
		return true
	}
}

// Describe returns a short human readable explanation used in notifications.
func (c Code) Describe() string {
	switch c {
	case Success:
		return "completed"
	case NoSeat:
		return "no seat was available in the requested window"
	case NotAffordable:
		return "the platform only offered a time window outside your tolerance"
	case StatusCodeError:
		return "the platform answered with an unexpected HTTP status"
	case TimeOut:
		return "the platform did not answer in time"
	case ParamError:
		return "the platform rejected the request parameters"
	case UnknownError:
		return "the platform returned an unexpected answer"
	case AlreadyBooked:
		return "the account already holds a booking"
	case LoopFailed:
		return "all retries were used up"
	case LoginFailed:
		return "the platform rejected the account credentials"
	case ProxyError:
		return "a TLS or proxy error interrupted the connection"
	case JSONDecodeError:
		return "the platform returned a malformed response"
	case NoNeed:
		return "nothing to do for this booking"
	default:
		return "unknown outcome"
	}
}
